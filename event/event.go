package event

import "time"

// Kind enumerates the recognized event kinds. The set may grow; unknown
// kinds are preserved verbatim on read so older readers don't choke on
// newer writers.
type Kind string

const (
	WorkerStarted  Kind = "worker-started"
	WorkerStopped  Kind = "worker-stopped"
	WorkerCrashed  Kind = "worker-crashed"
	JobStarted     Kind = "job-started"
	JobFinished    Kind = "job-finished"
	CleanupReclaim Kind = "cleanup-reclaimed"
)

// Event is one append-only log entry.
//
// WorkerId is nil when the event is not attributable to a single worker.
// Data is a small, free-form structured payload; forge does not
// interpret its contents beyond storing it.
type Event struct {
	Id        int64
	Timestamp time.Time
	WorkerId  *int64
	Kind      Kind
	Data      map[string]any
}
