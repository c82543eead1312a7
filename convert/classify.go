package convert

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"

	"github.com/coursemark/forge/job"
)

// Error wraps a job.ErrorRecord so a Converter implementation can report
// a precisely classified failure directly, bypassing Classify's
// best-effort heuristics.
type Error struct {
	Record job.ErrorRecord
}

func (e *Error) Error() string {
	return e.Record.Error()
}

// NewTransientError builds an Error classified as a retryable failure
// (timeout, resource exhaustion, non-deterministic crash).
func NewTransientError(message string) *Error {
	return &Error{Record: job.ErrorRecord{Kind: job.Transient, Message: message, IsTransient: true}}
}

// NewInputError builds an Error classified as non-retryable bad input.
func NewInputError(message string) *Error {
	return &Error{Record: job.ErrorRecord{Kind: job.InputError, Message: message, IsFatal: true}}
}

// Classify turns err, produced by one converter invocation, into a
// job.ErrorRecord. It recognizes *Error values produced by this package
// verbatim; otherwise it applies the heuristics the error-handling design
// assigns to the common subprocess failure modes: missing executable and
// permission errors are tool-missing, a context deadline is transient, a
// context cancellation is reported as cancelled, a plain nonzero exit
// (which most often means the converter rejected its input) is
// input-error, and anything else is infrastructure. attempts and stderr
// are folded into the record for diagnostics.
func Classify(err error, attempts uint32, stderr string) *job.ErrorRecord {
	if err == nil {
		return nil
	}

	var convErr *Error
	if errors.As(err, &convErr) {
		rec := convErr.Record
		rec.Attempts = attempts
		if rec.Traceback == "" {
			rec.Traceback = stderr
		}
		return &rec
	}

	rec := job.ErrorRecord{
		Message:   err.Error(),
		Traceback: stderr,
		Attempts:  attempts,
	}

	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		rec.Kind = job.ToolMissing
		rec.IsFatal = true
	case errors.Is(err, fs.ErrPermission):
		rec.Kind = job.ToolMissing
		rec.IsFatal = true
	case errors.Is(err, context.DeadlineExceeded):
		rec.Kind = job.Transient
		rec.IsTransient = true
	case errors.Is(err, context.Canceled):
		rec.Kind = job.Cancellation
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			rec.Kind = job.InputError
			rec.IsFatal = true
			rec.Message = fmt.Sprintf("exit status %d: %s", exitErr.ExitCode(), err.Error())
		} else {
			rec.Kind = job.Infrastructure
		}
	}
	return &rec
}
