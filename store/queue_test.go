package store

import (
	"context"
	"testing"
	"time"

	"github.com/coursemark/forge"
	"github.com/coursemark/forge/job"
	"github.com/coursemark/forge/registry"
	"github.com/coursemark/forge/task"
)

func enqueueNotebook(t *testing.T, s *Store, priority int32) int64 {
	t.Helper()
	id, err := s.Enqueue(context.Background(), &task.Request{
		Kind:        task.Notebook,
		InputPath:   "in.nb",
		OutputPath:  "out.html",
		Fingerprint: "fp",
		Priority:    priority,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return id
}

func registerIdleWorker(t *testing.T, s *Store, kind task.Kind) int64 {
	t.Helper()
	id, err := s.RegisterWorker(context.Background(), kind, registry.Direct, "pid-1")
	if err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}
	return id
}

func TestEnqueueClaimNextOrdersByPriorityThenID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	low := enqueueNotebook(t, s, 0)
	high := enqueueNotebook(t, s, 10)
	_ = low

	w := registerIdleWorker(t, s, task.Notebook)

	claimed, err := s.ClaimNext(ctx, task.Notebook, w)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a job, got nil")
	}
	if claimed.Id != high {
		t.Fatalf("expected higher-priority job %d claimed first, got %d", high, claimed.Id)
	}
	if claimed.Status != job.Processing {
		t.Fatalf("expected Processing, got %v", claimed.Status)
	}
	if claimed.WorkerId == nil || *claimed.WorkerId != w {
		t.Fatalf("expected worker binding %d, got %v", w, claimed.WorkerId)
	}
}

func TestClaimNextReturnsNilWhenEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := registerIdleWorker(t, s, task.Notebook)

	claimed, err := s.ClaimNext(ctx, task.Notebook, w)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected nil, got %+v", claimed)
	}
}

func TestClaimNextRejectsNonIdleWorker(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	enqueueNotebook(t, s, 0)
	w := registerIdleWorker(t, s, task.Notebook)

	if err := s.StopWorker(ctx, w); err != nil {
		t.Fatalf("StopWorker: %v", err)
	}
	if _, err := s.ClaimNext(ctx, task.Notebook, w); err != forge.ErrNotIdle {
		t.Fatalf("expected ErrNotIdle, got %v", err)
	}
}

func TestCompleteSuccessPopulatesCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := enqueueNotebook(t, s, 0)
	w := registerIdleWorker(t, s, task.Notebook)

	claimed, err := s.ClaimNext(ctx, task.Notebook, w)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	result := &forge.ConvertResult{Payload: []byte("rendered"), Metadata: []byte("meta")}
	if err := s.Complete(ctx, id, result, nil, 250*time.Millisecond); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	statuses, err := s.PollStatuses(ctx, []int64{id})
	if err != nil {
		t.Fatalf("PollStatuses: %v", err)
	}
	if statuses[id].Status != job.Completed {
		t.Fatalf("expected Completed, got %v", statuses[id].Status)
	}

	cached, ok, err := s.CacheLookup(ctx, "out.html", "fp")
	if err != nil {
		t.Fatalf("CacheLookup: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(cached.Payload) != "rendered" {
		t.Fatalf("unexpected cached payload: %s", cached.Payload)
	}

	workers, err := s.GetWorkers(ctx, task.Notebook)
	if err != nil {
		t.Fatalf("GetWorkers: %v", err)
	}
	if len(workers) != 1 {
		t.Fatalf("expected 1 worker, got %d", len(workers))
	}
	if workers[0].Status != registry.Idle {
		t.Fatalf("expected worker released to Idle after Complete, got %v", workers[0].Status)
	}
	if workers[0].Stats.WallTime != 250*time.Millisecond {
		t.Fatalf("expected accumulated wall time 250ms, got %v", workers[0].Stats.WallTime)
	}
}

func TestClaimNextMarksWorkerBusy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	enqueueNotebook(t, s, 0)
	w := registerIdleWorker(t, s, task.Notebook)

	claimed, err := s.ClaimNext(ctx, task.Notebook, w)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	workers, err := s.GetWorkers(ctx, task.Notebook)
	if err != nil {
		t.Fatalf("GetWorkers: %v", err)
	}
	if len(workers) != 1 || workers[0].Status != registry.Busy {
		t.Fatalf("expected worker Busy after claim, got %+v", workers)
	}
}

func TestCompleteOnTerminalJobIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := enqueueNotebook(t, s, 0)
	w := registerIdleWorker(t, s, task.Notebook)
	if _, err := s.ClaimNext(ctx, task.Notebook, w); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	result := &forge.ConvertResult{Payload: []byte("a")}
	if err := s.Complete(ctx, id, result, nil, time.Millisecond); err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	// Simulates a reaper and a slow worker both reporting an outcome.
	if err := s.Complete(ctx, id, nil, &job.ErrorRecord{Kind: job.Transient, Message: "late"}, time.Millisecond); err != nil {
		t.Fatalf("second Complete should be a no-op, got error: %v", err)
	}

	statuses, err := s.PollStatuses(ctx, []int64{id})
	if err != nil {
		t.Fatalf("PollStatuses: %v", err)
	}
	if statuses[id].Status != job.Completed {
		t.Fatalf("terminal status must not move, got %v", statuses[id].Status)
	}
}

func TestReturnReschedulesToPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := enqueueNotebook(t, s, 0)
	w := registerIdleWorker(t, s, task.Notebook)
	if _, err := s.ClaimNext(ctx, task.Notebook, w); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	if err := s.Return(ctx, id); err != nil {
		t.Fatalf("Return: %v", err)
	}

	statuses, err := s.PollStatuses(ctx, []int64{id})
	if err != nil {
		t.Fatalf("PollStatuses: %v", err)
	}
	if statuses[id].Status != job.Pending {
		t.Fatalf("expected Pending after Return, got %v", statuses[id].Status)
	}

	workers, err := s.GetWorkers(ctx, task.Notebook)
	if err != nil {
		t.Fatalf("GetWorkers: %v", err)
	}
	if len(workers) != 1 || workers[0].Status != registry.Idle {
		t.Fatalf("expected worker released to Idle after Return, got %+v", workers)
	}

	w2 := registerIdleWorker(t, s, task.Notebook)
	claimed, err := s.ClaimNext(ctx, task.Notebook, w2)
	if err != nil {
		t.Fatalf("ClaimNext after Return: %v", err)
	}
	if claimed == nil || claimed.Id != id {
		t.Fatalf("expected %d to be reclaimable, got %+v", id, claimed)
	}
}

func TestCancelForInputIsNonTransitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := enqueueNotebook(t, s, 0)
	w := registerIdleWorker(t, s, task.Notebook)
	claimed, err := s.ClaimNext(ctx, task.Notebook, w)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	ids, err := s.CancelForInput(ctx, "in.nb", "test-client")
	if err != nil {
		t.Fatalf("CancelForInput: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("expected [%d], got %v", id, ids)
	}

	cancelled, err := s.IsCancelled(ctx, id)
	if err != nil {
		t.Fatalf("IsCancelled: %v", err)
	}
	if !cancelled {
		t.Fatal("expected job to be cancelled")
	}

	workers, err := s.GetWorkers(ctx, task.Notebook)
	if err != nil {
		t.Fatalf("GetWorkers: %v", err)
	}
	if len(workers) != 1 || workers[0].Status != registry.Busy {
		t.Fatalf("cancel must not touch worker status, got %+v", workers)
	}
}

func TestHeartbeatRejectsDeadWorker(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := registerIdleWorker(t, s, task.Notebook)

	if _, err := s.ReclaimDeadWorkers(ctx, 0); err != nil {
		t.Fatalf("ReclaimDeadWorkers: %v", err)
	}

	if err := s.Heartbeat(ctx, w); err != forge.ErrWorkerDead {
		t.Fatalf("expected ErrWorkerDead, got %v", err)
	}
}

func TestReclaimDeadWorkersReturnsInFlightJobsAndIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := enqueueNotebook(t, s, 0)
	w := registerIdleWorker(t, s, task.Notebook)
	if _, err := s.ClaimNext(ctx, task.Notebook, w); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	reclaimed, err := s.ReclaimDeadWorkers(ctx, 0)
	if err != nil {
		t.Fatalf("ReclaimDeadWorkers: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0] != id {
		t.Fatalf("expected [%d] reclaimed, got %v", id, reclaimed)
	}

	statuses, err := s.PollStatuses(ctx, []int64{id})
	if err != nil {
		t.Fatalf("PollStatuses: %v", err)
	}
	if statuses[id].Status != job.Pending {
		t.Fatalf("expected job returned to Pending, got %v", statuses[id].Status)
	}

	again, err := s.ReclaimDeadWorkers(ctx, 0)
	if err != nil {
		t.Fatalf("second ReclaimDeadWorkers: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected idempotent no-op, got %v", again)
	}
}

func TestPollStatusesBatched(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := enqueueNotebook(t, s, 0)
	b := enqueueNotebook(t, s, 0)

	statuses, err := s.PollStatuses(ctx, []int64{a, b})
	if err != nil {
		t.Fatalf("PollStatuses: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(statuses))
	}
	if statuses[a].Status != job.Pending || statuses[b].Status != job.Pending {
		t.Fatalf("expected Pending, got %+v", statuses)
	}
}

func TestWorkerAliveBoundaryIsInclusiveOfDeath(t *testing.T) {
	now := time.Now()
	w := &registry.Worker{Heartbeat: now.Add(-5 * time.Second)}
	if w.Alive(now, 5*time.Second) {
		t.Fatal("heartbeat exactly at threshold must be considered dead")
	}
	if !w.Alive(now, 6*time.Second) {
		t.Fatal("heartbeat inside threshold must be considered alive")
	}
}
