package store

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
)

func createJobsTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().Model((*jobModel)(nil)).IfNotExists().Exec(ctx)
	return err
}

func createJobsIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobModel)(nil)).
		Index("idx_jobs_kind_status_priority_id").
		Column("kind", "status", "priority", "id").
		IfNotExists().
		Exec(ctx)
	return err
}

func createJobsInputIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobModel)(nil)).
		Index("idx_jobs_input_path").
		Column("input_path").
		IfNotExists().
		Exec(ctx)
	return err
}

func createWorkersTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().Model((*workerModel)(nil)).IfNotExists().Exec(ctx)
	return err
}

func createWorkersIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*workerModel)(nil)).
		Index("idx_workers_kind_status").
		Column("kind", "status").
		IfNotExists().
		Exec(ctx)
	return err
}

func createEventsTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().Model((*eventModel)(nil)).IfNotExists().Exec(ctx)
	return err
}

func createCacheTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().Model((*cacheModel)(nil)).IfNotExists().Exec(ctx)
	return err
}

func createCacheIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*cacheModel)(nil)).
		Index("idx_cache_output_fingerprint").
		Column("output_path", "fingerprint").
		IfNotExists().
		Exec(ctx)
	return err
}

// InitDB creates the jobs/workers/worker_events/results_cache tables and
// their indices inside one transaction. It is idempotent and performs no
// destructive migration; schema evolution beyond additive IfNotExists
// DDL is the caller's responsibility.
func InitDB(ctx context.Context, db *bun.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	steps := []func(context.Context, bun.IDB) error{
		createJobsTable, createJobsIndex, createJobsInputIndex,
		createWorkersTable, createWorkersIndex,
		createEventsTable,
		createCacheTable, createCacheIndex,
	}
	for _, step := range steps {
		if err := step(ctx, tx); err != nil {
			return errors.Join(err, tx.Rollback())
		}
	}
	return tx.Commit()
}

// MustInitDB behaves like InitDB but panics on failure, for application
// bootstrap code where a schema-init error is unrecoverable.
func MustInitDB(ctx context.Context, db *bun.DB) {
	if err := InitDB(ctx, db); err != nil {
		panic(err)
	}
}

// InitResultCacheDB creates the auxiliary, cross-invocation Result cache
// schema in its own file.
func InitResultCacheDB(ctx context.Context, db *bun.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := createCacheTable(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := createCacheIndex(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}
