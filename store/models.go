package store

import (
	"time"

	"github.com/uptrace/bun"
)

type jobModel struct {
	bun.BaseModel `bun:"table:jobs"`

	Id          int64  `bun:"id,pk,autoincrement"`
	Kind        uint8  `bun:"kind,notnull"`
	InputPath   string `bun:"input_path,notnull"`
	OutputPath  string `bun:"output_path,notnull"`
	Fingerprint string `bun:"fingerprint,notnull"`
	Params      []byte `bun:"params,type:blob"`
	Correlation string `bun:"correlation"`
	Priority    int32  `bun:"priority,notnull,default:0"`

	Status   uint8  `bun:"status,notnull,default:1"`
	Attempts uint32 `bun:"attempts,notnull,default:0"`
	WorkerId *int64 `bun:"worker_id"`
	Error    []byte `bun:"error,type:blob"`

	CreatedAt  time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ClaimedAt  *time.Time `bun:"claimed_at,nullzero"`
	FinishedAt *time.Time `bun:"finished_at,nullzero"`
}

type workerModel struct {
	bun.BaseModel `bun:"table:workers"`

	Id             int64  `bun:"id,pk,autoincrement"`
	Kind           uint8  `bun:"kind,notnull"`
	Mode           uint8  `bun:"mode,notnull"`
	ExternalHandle string `bun:"external_handle"`
	Status         uint8  `bun:"status,notnull"`
	Heartbeat      time.Time `bun:"heartbeat,nullzero,notnull"`

	JobsProcessed uint64 `bun:"jobs_processed,notnull,default:0"`
	JobsFailed    uint64 `bun:"jobs_failed,notnull,default:0"`
	WallTimeNs    int64  `bun:"wall_time_ns,notnull,default:0"`

	RegisteredAt time.Time `bun:"registered_at,nullzero,notnull,default:current_timestamp"`
}

type eventModel struct {
	bun.BaseModel `bun:"table:worker_events"`

	Id        int64     `bun:"id,pk,autoincrement"`
	Timestamp time.Time `bun:"timestamp,nullzero,notnull,default:current_timestamp"`
	WorkerId  *int64    `bun:"worker_id"`
	Kind      string    `bun:"kind,notnull"`
	Data      []byte    `bun:"data,type:blob"`
}

// cacheModel backs both the in-store, per-build results_cache and the
// auxiliary, cross-invocation result cache file; the two use the same
// shape but live in physically separate databases (§9 Design Notes,
// two-tier cache).
type cacheModel struct {
	bun.BaseModel `bun:"table:results_cache"`

	OutputPath   string    `bun:"output_path,pk"`
	Fingerprint  string    `bun:"fingerprint,pk"`
	Payload      []byte    `bun:"payload,type:blob"`
	Metadata     []byte    `bun:"metadata,type:blob"`
	HitCount     int64     `bun:"hit_count,notnull,default:0"`
	LastAccessed time.Time `bun:"last_accessed,nullzero,notnull,default:current_timestamp"`
}
