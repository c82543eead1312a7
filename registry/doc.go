// Package registry defines the Worker entity: the Durable Store's record
// of one running converter process, in-process or containerized.
//
// A Worker is created by the Pool Manager (or, in persistent mode, by a
// client directly), registers itself, heartbeats while idle and while
// running jobs, and is removed from active consideration on orderly
// shutdown (Stopped) or by the reaper (Dead) after its heartbeat goes
// stale past the liveness threshold.
package registry
