// Package store implements the Durable Store and the Queue Service on
// top of it using github.com/uptrace/bun over SQLite
// (modernc.org/sqlite).
//
// # Overview
//
// store provides:
//
//   - durable persistence of jobs, the worker registry, and the worker
//     event log in one file (the "jobs" store)
//   - a physically separate file holding the auxiliary, cross-invocation
//     Result cache
//   - an atomic claim via a single UPDATE ... RETURNING statement
//   - a BEGIN IMMEDIATE helper for the handful of operations that need
//     more than one statement inside one write transaction (ClaimNext,
//     Complete, Return, ReclaimDeadWorkers)
//
// # Journaling
//
// Per the data model's storage assumption, WAL is not used: the
// filesystem substrate cannot be assumed to support the shared-memory
// region WAL requires across every host environment this runs on.
// Connections are opened with rollback-journal mode and a busy_timeout
// pragma instead; MaxOpenConns is pinned to 1 so the process serializes
// its own writers ahead of relying on SQLite's file locking alone.
//
// # Schema
//
// InitDB creates, idempotently and inside one transaction:
//
//   - jobs(id, kind, input_path, output_path, fingerprint, params,
//     correlation, priority, status, attempts, worker_id, error,
//     created_at, claimed_at, finished_at) with index
//     (kind, status, priority, id)
//   - workers(id, kind, mode, external_handle, status, heartbeat,
//     jobs_processed, jobs_failed, wall_time_ns, registered_at)
//   - worker_events(id, timestamp, worker_id, kind, data)
//   - results_cache(output_path, fingerprint, payload, metadata,
//     hit_count, last_accessed) with index (output_path, fingerprint)
//
// InitResultCacheDB creates the same results_cache shape in the
// auxiliary file.
package store
