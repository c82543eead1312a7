// Package runtime implements the Worker Runtime: the long-running loop
// that registers with the Queue Service, claims and converts jobs of one
// kind, and shuts down on request.
//
// State machine:
//
//	start -> register -> idle <-> busy -> drain -> stopped
//
// A Runtime owns exactly one converter invocation at a time; concurrency
// across kinds or workers comes from running multiple Runtimes, each its
// own goroutine (in-process mode) or its own OS process (direct/
// containerized mode, driven by package pool).
package runtime
