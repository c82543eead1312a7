// Package task defines the submit-time descriptor of a conversion request.
//
// Request is intentionally minimal and carries no delivery or scheduling
// state — that is the concern of job.Job, which embeds Request and adds
// the fields a queue implementation maintains (status, attempts,
// worker binding). Request is what the Processing Backend hands to
// Queue.Enqueue; job.Job is what comes back out of Queue.ClaimNext.
package task
