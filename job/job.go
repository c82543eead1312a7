package job

import (
	"time"

	"github.com/coursemark/forge/task"
)

// Job represents one unit of conversion work as tracked by the Durable
// Store.
//
// Id is a monotonic integer assigned at insert time. WorkerId is the
// Worker that last claimed the job; returning the job to Pending (via
// reclaim or Return) clears it, while Complete and cancellation leave it
// set on the terminal job.
//
// CreatedAt, ClaimedAt and FinishedAt are nil until the corresponding
// transition has happened; a Pending job has only CreatedAt set.
type Job struct {
	task.Request

	Id       int64
	Status   Status
	Attempts uint32
	WorkerId *int64
	Error    *ErrorRecord

	CreatedAt  time.Time
	ClaimedAt  *time.Time
	FinishedAt *time.Time
}

// Claimable reports whether the job is still eligible to be claimed, i.e.
// it is Pending and not yet terminal.
func (j *Job) Claimable() bool {
	return j.Status == Pending
}
