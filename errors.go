package forge

import (
	"errors"

	"github.com/coursemark/forge/internal"
)

var (
	// ErrJobLost indicates that the referenced job no longer exists, or is
	// not in the expected state, to complete the requested transition.
	//
	// This can happen if the job was concurrently reclaimed, cancelled, or
	// transitioned by another actor.
	ErrJobLost = errors.New("forge: job lost")

	// ErrNotIdle indicates ClaimNext was called by a Worker whose
	// registered status is not Idle — most commonly a zombie worker that
	// was already reaped attempting to claim new work.
	ErrNotIdle = errors.New("forge: worker is not idle")

	// ErrWorkerDead is returned from Heartbeat when the caller's Worker
	// row has already been marked Dead by the reaper; it instructs the
	// Worker Runtime to exit rather than keep processing under a
	// registration the rest of the system has disowned.
	ErrWorkerDead = errors.New("forge: worker is dead")

	// ErrNoHealthyWorker is returned by the Processing Backend when
	// AwaitAll is called and no healthy worker exists for a kind present
	// in the pending set.
	ErrNoHealthyWorker = errors.New("forge: no healthy worker for kind")
)

// Lifecycle errors re-exported from internal so callers of runtime, pool
// and lifecycle don't need to import an internal package to errors.Is
// against them.
var (
	ErrDoubleStarted = internal.ErrDoubleStarted
	ErrDoubleStopped = internal.ErrDoubleStopped
	ErrStopTimeout   = internal.ErrStopTimeout
)
