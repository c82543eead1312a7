package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/coursemark/forge"
	"github.com/coursemark/forge/event"
	"github.com/coursemark/forge/registry"
)

// cacheLookup and upsertCache implement the in-store results_cache used
// by Store.CacheLookup and Store.Complete; the same shape backs the
// auxiliary ResultCache below, against a separate bun.DB.
func cacheLookup(ctx context.Context, db bun.IDB, outputPath, fingerprint string) (*forge.ConvertResult, bool, error) {
	var m cacheModel
	err := db.NewSelect().
		Model(&m).
		Where("output_path = ?", outputPath).
		Where("fingerprint = ?", fingerprint).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	_, _ = db.NewUpdate().
		Model((*cacheModel)(nil)).
		Set("hit_count = hit_count + 1").
		Set("last_accessed = ?", time.Now()).
		Where("output_path = ?", outputPath).
		Where("fingerprint = ?", fingerprint).
		Exec(ctx)
	return &forge.ConvertResult{Payload: m.Payload, Metadata: m.Metadata}, true, nil
}

// upsertCache stores or refreshes a cache entry. A collision on
// (output_path, fingerprint) is expected when two builds produce the
// same output from identical input and simply refreshes the row.
func upsertCache(ctx context.Context, db bun.IDB, outputPath, fingerprint string, payload, metadata []byte) error {
	model := &cacheModel{
		OutputPath:   outputPath,
		Fingerprint:  fingerprint,
		Payload:      payload,
		Metadata:     metadata,
		LastAccessed: time.Now(),
	}
	_, err := db.NewInsert().
		Model(model).
		On("CONFLICT (output_path, fingerprint) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("metadata = EXCLUDED.metadata").
		Set("last_accessed = EXCLUDED.last_accessed").
		Exec(ctx)
	return err
}

// bumpWorkerStats updates a Worker's accumulated Stats after a Complete
// call: the processed/failed counter and the cumulative wall time the
// Worker Runtime reports for this attempt (claim-to-completion, measured
// by the runtime itself around its converter invocation).
func bumpWorkerStats(ctx context.Context, db bun.IDB, workerID *int64, success bool, wallTime time.Duration) error {
	if workerID == nil {
		return nil
	}
	q := db.NewUpdate().Model((*workerModel)(nil)).Where("id = ?", *workerID)
	if success {
		q = q.Set("jobs_processed = jobs_processed + 1")
	} else {
		q = q.Set("jobs_failed = jobs_failed + 1")
	}
	q = q.Set("wall_time_ns = wall_time_ns + ?", wallTime.Nanoseconds())
	_, err := q.Exec(ctx)
	return err
}

// releaseWorker transitions a worker back to Idle after it finishes a
// job. It is conditioned on the worker still being Busy so it does not
// resurrect a worker the reaper has concurrently marked Dead or that has
// since been Stopped.
func releaseWorker(ctx context.Context, db bun.IDB, workerID *int64) error {
	if workerID == nil {
		return nil
	}
	_, err := db.NewUpdate().
		Model((*workerModel)(nil)).
		Set("status = ?", uint8(registry.Idle)).
		Where("id = ?", *workerID).
		Where("status = ?", uint8(registry.Busy)).
		Exec(ctx)
	return err
}

// writeEvent appends one entry to the worker_events log.
func writeEvent(ctx context.Context, db bun.IDB, workerID *int64, kind event.Kind, data map[string]any) error {
	blob, err := encodeEventData(data)
	if err != nil {
		return err
	}
	model := &eventModel{
		Timestamp: time.Now(),
		WorkerId:  workerID,
		Kind:      string(kind),
		Data:      blob,
	}
	_, err = db.NewInsert().Model(model).Exec(ctx)
	return err
}

// ResultCache is the auxiliary, cross-invocation Result cache: a second
// bun.DB, physically separate from a build's Durable Store, that
// survives across unrelated builds sharing the same output tree. It
// implements forge.CacheReader so the Processing Backend can consult it
// with the identical call shape it uses for the in-store cache.
type ResultCache struct {
	db *bun.DB
}

func NewResultCache(db *bun.DB) *ResultCache {
	return &ResultCache{db: db}
}

var _ forge.CacheReader = (*ResultCache)(nil)

func (c *ResultCache) CacheLookup(ctx context.Context, outputPath, fingerprint string) (*forge.ConvertResult, bool, error) {
	return cacheLookup(ctx, c.db, outputPath, fingerprint)
}

// Put records a completed conversion's output, for reuse by a future,
// unrelated invocation targeting the same output path and input
// fingerprint.
func (c *ResultCache) Put(ctx context.Context, outputPath, fingerprint string, result *forge.ConvertResult) error {
	return withRetry(ctx, func(ctx context.Context) error {
		return upsertCache(ctx, c.db, outputPath, fingerprint, result.Payload, result.Metadata)
	})
}

// Vacuum discards cache entries whose last access is older than
// olderThan. It is never run automatically; the cache has no implicit
// eviction policy per the open question on auxiliary cache lifetime, so
// callers must schedule Vacuum themselves if they want one.
func (c *ResultCache) Vacuum(ctx context.Context, olderThan time.Duration) (int64, error) {
	var affected int64
	err := withRetry(ctx, func(ctx context.Context) error {
		res, err := c.db.NewDelete().
			Model((*cacheModel)(nil)).
			Where("last_accessed < ?", time.Now().Add(-olderThan)).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected = getAffected(res)
		return nil
	})
	return affected, err
}
