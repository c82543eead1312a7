package convert

import (
	"context"
	"os/exec"
	"testing"

	"github.com/coursemark/forge/job"
)

func TestClassifyToolMissing(t *testing.T) {
	_, err := exec.LookPath("definitely-not-a-real-converter-binary")
	if err == nil {
		t.Skip("unexpected binary found on PATH")
	}
	rec := Classify(err, 1, "")
	if rec.Kind != job.ToolMissing {
		t.Fatalf("expected ToolMissing, got %v", rec.Kind)
	}
	if !rec.IsFatal {
		t.Fatal("expected IsFatal")
	}
}

func TestClassifyDeadlineExceeded(t *testing.T) {
	rec := Classify(context.DeadlineExceeded, 2, "")
	if rec.Kind != job.Transient {
		t.Fatalf("expected Transient, got %v", rec.Kind)
	}
	if !rec.IsTransient {
		t.Fatal("expected IsTransient")
	}
}

func TestClassifyCancelled(t *testing.T) {
	rec := Classify(context.Canceled, 1, "")
	if rec.Kind != job.Cancellation {
		t.Fatalf("expected Cancellation, got %v", rec.Kind)
	}
}

func TestClassifyPreservesExplicitError(t *testing.T) {
	err := NewInputError("bad syntax at line 3")
	rec := Classify(err, 1, "stderr output")
	if rec.Kind != job.InputError {
		t.Fatalf("expected InputError, got %v", rec.Kind)
	}
	if rec.Traceback != "stderr output" {
		t.Fatalf("expected fallback traceback, got %q", rec.Traceback)
	}
}

func TestClassifyNilIsNil(t *testing.T) {
	if rec := Classify(nil, 0, ""); rec != nil {
		t.Fatalf("expected nil, got %+v", rec)
	}
}
