package forge

import (
	"context"
	"time"

	"github.com/coursemark/forge/job"
	"github.com/coursemark/forge/registry"
	"github.com/coursemark/forge/task"
)

// Enqueuer is the write-side entry point of the queue.
type Enqueuer interface {
	// Enqueue inserts a new Pending Job for req and returns its assigned
	// id. Enqueue must not mutate req after returning.
	Enqueue(ctx context.Context, req *task.Request) (int64, error)
}

// Claimer provides atomic job claiming and cooperative-cancellation
// polling for Worker Runtimes.
type Claimer interface {
	// ClaimNext atomically finds the oldest highest-priority Pending job
	// of kind, transitions it to Processing bound to workerID, and
	// returns it. It returns (nil, nil) when no eligible job exists.
	//
	// ClaimNext must return ErrNotIdle if workerID's registered status is
	// not Idle.
	ClaimNext(ctx context.Context, kind task.Kind, workerID int64) (*job.Job, error)

	// IsCancelled is a cheap read workers may poll during long-running
	// conversions (at least every 5s, per the cancellation design).
	IsCancelled(ctx context.Context, jobID int64) (bool, error)
}

// Completer finalizes a claimed job.
type Completer interface {
	// Complete marks jobID terminal. Exactly one of result or errRec is
	// non-nil: a non-nil result transitions to Completed and atomically
	// upserts a cache entry; a non-nil errRec transitions to Failed
	// (or, for errRec.Kind == job.Cancellation, Cancelled). wallTime is
	// the elapsed time the Worker Runtime spent on this attempt
	// (claim-to-completion); it accumulates into the owning Worker's
	// Stats.WallTime.
	//
	// Completing an already-terminal job is a no-op (absorbing the race
	// between a reaper and a slow worker both reporting outcomes); it
	// does not return an error.
	Complete(ctx context.Context, jobID int64, result *ConvertResult, errRec *job.ErrorRecord, wallTime time.Duration) error

	// Return reschedules a Processing job back to Pending, clearing its
	// worker binding. The Worker Runtime in package runtime does not call
	// it: it retries transient failures within the same claim.
	Return(ctx context.Context, jobID int64) error
}

// Canceller supports input-keyed, non-transitive cancellation.
type Canceller interface {
	// CancelForInput marks every non-terminal job with the given input
	// path as Cancelled and returns their ids. A job already Processing
	// is marked cancelled but its Worker is not killed; the Worker
	// discovers cancellation cooperatively via IsCancelled.
	CancelForInput(ctx context.Context, inputPath string, cancelledBy string) ([]int64, error)
}

// Registrar manages Worker registration, liveness and reaping.
type Registrar interface {
	// RegisterWorker inserts a Worker row with status Idle and a fresh
	// heartbeat, returning its assigned id.
	RegisterWorker(ctx context.Context, kind task.Kind, mode registry.Mode, externalHandle string) (int64, error)

	// Heartbeat updates workerID's heartbeat timestamp. If the worker has
	// already been marked Dead by the reaper, it returns ErrWorkerDead
	// instead of updating anything, instructing the caller to exit.
	Heartbeat(ctx context.Context, workerID int64) error

	// ReclaimDeadWorkers scans for workers whose heartbeat is at least
	// threshold old, marks them Dead, returns their in-flight jobs to
	// Pending with worker binding cleared, and logs a reclaim event per
	// job. It is idempotent: a second call with no new stale workers
	// reclaims nothing.
	ReclaimDeadWorkers(ctx context.Context, threshold time.Duration) ([]int64, error)

	// StopWorker marks workerID Stopped (orderly shutdown).
	StopWorker(ctx context.Context, workerID int64) error

	// GetWorkers returns the current registry snapshot, optionally
	// filtered by kind when kind is non-zero.
	GetWorkers(ctx context.Context, kind task.Kind) ([]*registry.Worker, error)
}

// StatusPoller supports the Processing Backend's batched completion
// detection.
type StatusPoller interface {
	// PollStatuses returns the status (and, for Failed, error record) of
	// every id in jobIDs as a single statement, bounding lock time
	// regardless of how large the pending set is.
	PollStatuses(ctx context.Context, jobIDs []int64) (map[int64]JobStatusView, error)
}

// JobStatusView is the minimal projection PollStatuses needs: enough to
// decide whether a job is done and, if so, how it ended.
type JobStatusView struct {
	Status     job.Status
	Error      *job.ErrorRecord
	OutputPath string
}

// CacheReader exposes the in-store, per-build result cache.
type CacheReader interface {
	CacheLookup(ctx context.Context, outputPath string, fingerprint string) (*ConvertResult, bool, error)
}

// Queue is the complete typed API onto the Durable Store — the only
// surface any other component uses to reach it.
type Queue interface {
	Enqueuer
	Claimer
	Completer
	Canceller
	Registrar
	StatusPoller
	CacheReader
}
