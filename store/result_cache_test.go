package store

import (
	"context"
	"testing"
	"time"

	"github.com/coursemark/forge"
)

func TestResultCachePutAndLookup(t *testing.T) {
	c := newTestResultCache(t)
	ctx := context.Background()

	_, ok, err := c.CacheLookup(ctx, "out.png", "fp1")
	if err != nil {
		t.Fatalf("CacheLookup: %v", err)
	}
	if ok {
		t.Fatal("expected miss on empty cache")
	}

	result := &forge.ConvertResult{Payload: []byte("img-bytes"), Metadata: []byte("variant=svg")}
	if err := c.Put(ctx, "out.png", "fp1", result); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := c.CacheLookup(ctx, "out.png", "fp1")
	if err != nil {
		t.Fatalf("CacheLookup: %v", err)
	}
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if string(got.Payload) != "img-bytes" {
		t.Fatalf("unexpected payload: %s", got.Payload)
	}
}

func TestResultCachePutOverwritesOnCollision(t *testing.T) {
	c := newTestResultCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, "out.png", "fp1", &forge.ConvertResult{Payload: []byte("v1")}); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := c.Put(ctx, "out.png", "fp1", &forge.ConvertResult{Payload: []byte("v2")}); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	got, ok, err := c.CacheLookup(ctx, "out.png", "fp1")
	if err != nil {
		t.Fatalf("CacheLookup: %v", err)
	}
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got.Payload) != "v2" {
		t.Fatalf("expected refreshed payload v2, got %s", got.Payload)
	}
}

func TestResultCacheVacuumDropsStaleEntries(t *testing.T) {
	c := newTestResultCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, "out.png", "fp1", &forge.ConvertResult{Payload: []byte("v1")}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	n, err := c.Vacuum(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Vacuum: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected nothing stale yet, dropped %d", n)
	}

	n, err = c.Vacuum(ctx, -time.Second)
	if err != nil {
		t.Fatalf("Vacuum: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 dropped, got %d", n)
	}

	_, ok, err := c.CacheLookup(ctx, "out.png", "fp1")
	if err != nil {
		t.Fatalf("CacheLookup: %v", err)
	}
	if ok {
		t.Fatal("expected entry gone after Vacuum")
	}
}
