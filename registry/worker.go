package registry

import (
	"time"

	"github.com/coursemark/forge/task"
)

// Stats accumulates per-Worker diagnostics. It is updated on every
// Complete (a reclaim leaves it unchanged) and never reset for the life
// of the row.
type Stats struct {
	JobsProcessed uint64
	JobsFailed    uint64
	WallTime      time.Duration
}

// Worker is the Durable Store's record of one running converter process.
//
// ExternalHandle is the container id or OS process id used for liveness
// checks and forced termination; its interpretation depends on Mode.
type Worker struct {
	Id             int64
	Kind           task.Kind
	Mode           Mode
	ExternalHandle string
	Status         Status
	Heartbeat      time.Time
	Stats          Stats

	RegisteredAt time.Time
}

// Alive reports whether the heartbeat is still within threshold of now.
// A heartbeat exactly threshold old is considered dead: the boundary is
// inclusive of death.
func (w *Worker) Alive(now time.Time, threshold time.Duration) bool {
	return now.Sub(w.Heartbeat) < threshold
}
