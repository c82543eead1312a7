// Package forge provides the job orchestration subsystem behind a
// course-conversion build: a durable job queue, a worker pool lifecycle,
// a processing backend that submits and awaits jobs, and a
// content-addressed result cache.
//
// # Overview
//
// forge turns conversion requests (task.Request) into persisted Jobs
// (job.Job) tracked through a small closed state machine, claimed by
// Workers (registry.Worker) running either in-process or in containers.
// All cross-process coordination flows through the Durable Store; forge
// never assumes shared memory between the client process and a Worker.
//
// # Delivery Semantics
//
// A Job is claimed by exactly one Worker at a time (single-claim,
// enforced by an atomic UPDATE ... RETURNING in package store). A Worker
// that dies mid-job is reaped on stale heartbeat and its job returned to
// Pending; a retried job may therefore run its converter more than once,
// so converters are expected to be idempotent the way handlers are in
// at-least-once messaging systems generally.
//
// # State Machine
//
// Jobs follow:
//
//	Pending    -> Processing
//	Processing -> Completed
//	Processing -> Pending     (reclaim after worker death, or retry on transient failure)
//	Processing -> Failed
//	Processing -> Cancelled
//	Pending    -> Cancelled
//
// Completed, Failed and Cancelled are terminal and immutable.
//
// # Components
//
//	store      — Durable Store + Queue Service (package store)
//	runtime    — Worker Runtime (package runtime)
//	pool       — Pool Manager (package pool)
//	lifecycle  — Lifecycle Manager (package lifecycle)
//	backend    — Processing Backend (package backend)
//
// This package holds the interfaces that let those components depend on
// each other's contracts rather than their concrete implementations:
// Queue (the only API onto the Durable Store), Converter (the
// kind-specific conversion contract), and the sentinel errors shared
// across packages.
//
// # Concurrency Model
//
// Cooperative concurrency inside the client process (Processing Backend,
// Pool Manager, Lifecycle Manager share one goroutine scheduler, which in
// Go means ordinary goroutines and channels rather than a dedicated
// single-threaded executor); each Worker Runtime owns one OS process or
// container. No package-level mutable state is held anywhere in this
// module — every component receives its Queue handle and logger
// explicitly, so the only ambient configuration is the Durable Store's
// file path.
package forge
