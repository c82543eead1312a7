package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/coursemark/forge"
	"github.com/coursemark/forge/event"
	"github.com/coursemark/forge/job"
	"github.com/coursemark/forge/registry"
	"github.com/coursemark/forge/task"
)

// Store is the bun-backed implementation of forge.Queue — the only API
// onto the Durable Store, per §4.2.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

var _ forge.Queue = (*Store)(nil)

func toJob(m *jobModel) (*job.Job, error) {
	errRec, err := decodeError(m.Error)
	if err != nil {
		return nil, err
	}
	return &job.Job{
		Request: task.Request{
			Kind:        task.Kind(m.Kind),
			InputPath:   m.InputPath,
			OutputPath:  m.OutputPath,
			Fingerprint: m.Fingerprint,
			Params:      m.Params,
			Correlation: m.Correlation,
			Priority:    m.Priority,
		},
		Id:         m.Id,
		Status:     job.Status(m.Status),
		Attempts:   m.Attempts,
		WorkerId:   m.WorkerId,
		Error:      errRec,
		CreatedAt:  m.CreatedAt,
		ClaimedAt:  m.ClaimedAt,
		FinishedAt: m.FinishedAt,
	}, nil
}

// Enqueue inserts a new Pending Job for req.
func (s *Store) Enqueue(ctx context.Context, req *task.Request) (int64, error) {
	model := &jobModel{
		Kind:        uint8(req.Kind),
		InputPath:   req.InputPath,
		OutputPath:  req.OutputPath,
		Fingerprint: req.Fingerprint,
		Params:      req.Params,
		Correlation: req.Correlation,
		Priority:    req.Priority,
		Status:      uint8(job.Pending),
		CreatedAt:   time.Now(),
	}
	var err error
	err = withRetry(ctx, func(ctx context.Context) error {
		_, err := s.db.NewInsert().Model(model).Exec(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return model.Id, nil
}

// ClaimNext atomically finds the oldest highest-priority Pending job of
// kind and transitions it to Processing, bound to workerID.
//
// The claim itself is a single UPDATE ... WHERE id IN (subquery)
// RETURNING statement; it runs inside withImmediateTx together with the
// worker's Idle-to-Busy flip and the JobStarted event, so all three
// commit or fail together.
func (s *Store) ClaimNext(ctx context.Context, kind task.Kind, workerID int64) (*job.Job, error) {
	var w workerModel
	err := s.db.NewSelect().Model(&w).Where("id = ?", workerID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, forge.ErrJobLost
		}
		return nil, err
	}
	if registry.Status(w.Status) != registry.Idle {
		return nil, forge.ErrNotIdle
	}

	now := time.Now()
	subQuery := s.db.NewSelect().
		Model((*jobModel)(nil)).
		Column("id").
		Where("kind = ?", uint8(kind)).
		Where("status = ?", uint8(job.Pending)).
		Order("priority DESC", "id ASC").
		Limit(1)

	var models []jobModel
	err = withImmediateTx(ctx, s.db, func(ctx context.Context, tx bun.IDB) error {
		if _, err := tx.NewUpdate().
			Model((*jobModel)(nil)).
			Set("status = ?", uint8(job.Processing)).
			Set("attempts = attempts + 1").
			Set("worker_id = ?", workerID).
			Set("claimed_at = ?", now).
			Where("id IN (?)", subQuery).
			Returning("*").
			Exec(ctx, &models); err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		if _, err := tx.NewUpdate().
			Model((*workerModel)(nil)).
			Set("status = ?", uint8(registry.Busy)).
			Where("id = ?", workerID).
			Exec(ctx); err != nil {
			return err
		}
		return writeEvent(ctx, tx, &workerID, event.JobStarted, map[string]any{"job_id": models[0].Id})
	})
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	return toJob(&models[0])
}

func (s *Store) IsCancelled(ctx context.Context, jobID int64) (bool, error) {
	var status uint8
	err := s.db.NewSelect().
		Model((*jobModel)(nil)).
		Column("status").
		Where("id = ?", jobID).
		Scan(ctx, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, forge.ErrJobLost
		}
		return false, err
	}
	return job.Status(status) == job.Cancelled, nil
}

// Complete marks jobID terminal, absorbing the reaper/slow-worker race
// by treating completion of an already-terminal job as a no-op.
func (s *Store) Complete(ctx context.Context, jobID int64, result *forge.ConvertResult, errRec *job.ErrorRecord, wallTime time.Duration) error {
	return withImmediateTx(ctx, s.db, func(ctx context.Context, tx bun.IDB) error {
		var m jobModel
		if err := tx.NewSelect().Model(&m).Where("id = ?", jobID).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return forge.ErrJobLost
			}
			return err
		}
		if job.Status(m.Status).Terminal() {
			return nil // absorb reaper/slow-worker race, per §4.2 edge-case policy
		}

		now := time.Now()
		var newStatus job.Status
		var errBlob []byte
		var err error

		switch {
		case result != nil:
			newStatus = job.Completed
			if err := upsertCache(ctx, tx, m.OutputPath, m.Fingerprint, result.Payload, result.Metadata); err != nil {
				return err
			}
		case errRec != nil:
			if errRec.Kind == job.Cancellation {
				newStatus = job.Cancelled
			} else {
				newStatus = job.Failed
			}
			errBlob, err = encodeError(errRec)
			if err != nil {
				return err
			}
		default:
			return errors.New("store: Complete requires a result or an error record")
		}

		_, err = tx.NewUpdate().
			Model((*jobModel)(nil)).
			Set("status = ?", uint8(newStatus)).
			Set("error = ?", errBlob).
			Set("finished_at = ?", now).
			Where("id = ?", jobID).
			Where("status = ?", uint8(job.Processing)).
			Exec(ctx)
		if err != nil {
			return err
		}

		if err := bumpWorkerStats(ctx, tx, m.WorkerId, newStatus == job.Completed, wallTime); err != nil {
			return err
		}
		if err := writeEvent(ctx, tx, m.WorkerId, event.JobFinished, map[string]any{"job_id": jobID, "status": newStatus.String()}); err != nil {
			return err
		}
		return releaseWorker(ctx, tx, m.WorkerId)
	})
}

// Return reschedules a Processing job back to Pending, clearing its
// worker binding and releasing the worker back to Idle. Package runtime
// does not call it; it retries transient failures within the same claim.
func (s *Store) Return(ctx context.Context, jobID int64) error {
	return withImmediateTx(ctx, s.db, func(ctx context.Context, tx bun.IDB) error {
		var m jobModel
		if err := tx.NewSelect().Model(&m).Where("id = ?", jobID).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return forge.ErrJobLost
			}
			return err
		}
		if job.Status(m.Status) != job.Processing {
			return forge.ErrJobLost
		}

		res, err := tx.NewUpdate().
			Model((*jobModel)(nil)).
			Set("status = ?", uint8(job.Pending)).
			Set("worker_id = NULL").
			Set("claimed_at = NULL").
			Where("id = ?", jobID).
			Where("status = ?", uint8(job.Processing)).
			Exec(ctx)
		if err != nil {
			return err
		}
		if !isAffected(res) {
			return forge.ErrJobLost
		}
		return releaseWorker(ctx, tx, m.WorkerId)
	})
}

// CancelForInput is non-transitive: a Processing job is marked Cancelled
// but its Worker is not killed, only notified via IsCancelled polling.
func (s *Store) CancelForInput(ctx context.Context, inputPath string, cancelledBy string) ([]int64, error) {
	var ids []int64
	err := withRetry(ctx, func(ctx context.Context) error {
		var models []jobModel
		_, err := s.db.NewUpdate().
			Model((*jobModel)(nil)).
			Set("status = ?", uint8(job.Cancelled)).
			Set("finished_at = ?", time.Now()).
			Where("input_path = ?", inputPath).
			Where("status IN (?, ?)", uint8(job.Pending), uint8(job.Processing)).
			Returning("id").
			Exec(ctx, &models)
		if err != nil {
			return err
		}
		ids = make([]int64, len(models))
		for i, m := range models {
			ids[i] = m.Id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	_ = cancelledBy
	return ids, nil
}

func (s *Store) RegisterWorker(ctx context.Context, kind task.Kind, mode registry.Mode, externalHandle string) (int64, error) {
	model := &workerModel{
		Kind:           uint8(kind),
		Mode:           uint8(mode),
		ExternalHandle: externalHandle,
		Status:         uint8(registry.Idle),
		Heartbeat:      time.Now(),
		RegisteredAt:   time.Now(),
	}
	err := withRetry(ctx, func(ctx context.Context) error {
		_, err := s.db.NewInsert().Model(model).Exec(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	if err := writeEvent(ctx, s.db, &model.Id, event.WorkerStarted, map[string]any{"kind": kind.String(), "mode": mode.String()}); err != nil {
		return model.Id, err
	}
	return model.Id, nil
}

func (s *Store) Heartbeat(ctx context.Context, workerID int64) error {
	var status uint8
	err := s.db.NewSelect().
		Model((*workerModel)(nil)).
		Column("status").
		Where("id = ?", workerID).
		Scan(ctx, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return forge.ErrJobLost
		}
		return err
	}
	if registry.Status(status) == registry.Dead {
		return forge.ErrWorkerDead
	}
	res, err := s.db.NewUpdate().
		Model((*workerModel)(nil)).
		Set("heartbeat = ?", time.Now()).
		Where("id = ?", workerID).
		Where("status != ?", uint8(registry.Dead)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return forge.ErrWorkerDead
	}
	return nil
}

// ReclaimDeadWorkers is idempotent: a worker already Dead and a job
// already Pending are left untouched by a repeat call.
func (s *Store) ReclaimDeadWorkers(ctx context.Context, threshold time.Duration) ([]int64, error) {
	var reclaimedJobs []int64
	err := withImmediateTx(ctx, s.db, func(ctx context.Context, tx bun.IDB) error {
		cutoff := time.Now().Add(-threshold)
		var stale []workerModel
		if err := tx.NewSelect().
			Model(&stale).
			Where("status IN (?, ?, ?)", uint8(registry.Registering), uint8(registry.Idle), uint8(registry.Busy)).
			Where("heartbeat <= ?", cutoff).
			Scan(ctx); err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}
		staleIDs := make([]int64, len(stale))
		for i, w := range stale {
			staleIDs[i] = w.Id
		}

		if _, err := tx.NewUpdate().
			Model((*workerModel)(nil)).
			Set("status = ?", uint8(registry.Dead)).
			Where("id IN (?)", bun.In(staleIDs)).
			Exec(ctx); err != nil {
			return err
		}

		for _, w := range stale {
			id := w.Id
			if err := writeEvent(ctx, tx, &id, event.WorkerCrashed, map[string]any{"last_heartbeat": w.Heartbeat}); err != nil {
				return err
			}
		}

		var inFlight []jobModel
		if err := tx.NewSelect().
			Model(&inFlight).
			Column("id", "worker_id").
			Where("worker_id IN (?)", bun.In(staleIDs)).
			Where("status = ?", uint8(job.Processing)).
			Scan(ctx); err != nil {
			return err
		}
		if len(inFlight) == 0 {
			return nil
		}
		jobIDs := make([]int64, len(inFlight))
		for i, j := range inFlight {
			jobIDs[i] = j.Id
		}

		if _, err := tx.NewUpdate().
			Model((*jobModel)(nil)).
			Set("status = ?", uint8(job.Pending)).
			Set("worker_id = NULL").
			Set("claimed_at = NULL").
			Where("id IN (?)", bun.In(jobIDs)).
			Exec(ctx); err != nil {
			return err
		}

		reclaimedJobs = jobIDs
		for _, j := range inFlight {
			workerID := j.WorkerId
			if err := writeEvent(ctx, tx, workerID, event.CleanupReclaim, map[string]any{"job_id": j.Id}); err != nil {
				return err
			}
		}
		return nil
	})
	return reclaimedJobs, err
}

func (s *Store) StopWorker(ctx context.Context, workerID int64) error {
	_, err := s.db.NewUpdate().
		Model((*workerModel)(nil)).
		Set("status = ?", uint8(registry.Stopped)).
		Where("id = ?", workerID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return writeEvent(ctx, s.db, &workerID, event.WorkerStopped, nil)
}

func (s *Store) GetWorkers(ctx context.Context, kind task.Kind) ([]*registry.Worker, error) {
	query := s.db.NewSelect().Model((*workerModel)(nil))
	if kind != task.UnknownKind {
		query = query.Where("kind = ?", uint8(kind))
	}
	var models []workerModel
	if err := query.Scan(ctx, &models); err != nil {
		return nil, err
	}
	ret := make([]*registry.Worker, len(models))
	for i, m := range models {
		ret[i] = &registry.Worker{
			Id:             m.Id,
			Kind:           task.Kind(m.Kind),
			Mode:           registry.Mode(m.Mode),
			ExternalHandle: m.ExternalHandle,
			Status:         registry.Status(m.Status),
			Heartbeat:      m.Heartbeat,
			Stats: registry.Stats{
				JobsProcessed: m.JobsProcessed,
				JobsFailed:    m.JobsFailed,
				WallTime:      time.Duration(m.WallTimeNs),
			},
			RegisteredAt: m.RegisteredAt,
		}
	}
	return ret, nil
}

// PollStatuses is a single batched SELECT ... WHERE id IN (...), bounding
// lock time regardless of pending-set size (§4.2, §9).
func (s *Store) PollStatuses(ctx context.Context, jobIDs []int64) (map[int64]forge.JobStatusView, error) {
	ret := make(map[int64]forge.JobStatusView, len(jobIDs))
	if len(jobIDs) == 0 {
		return ret, nil
	}
	var models []jobModel
	err := s.db.NewSelect().
		Model(&models).
		Column("id", "status", "error", "output_path").
		Where("id IN (?)", bun.In(jobIDs)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		errRec, err := decodeError(m.Error)
		if err != nil {
			return nil, err
		}
		ret[m.Id] = forge.JobStatusView{
			Status:     job.Status(m.Status),
			Error:      errRec,
			OutputPath: m.OutputPath,
		}
	}
	return ret, nil
}

func (s *Store) CacheLookup(ctx context.Context, outputPath string, fingerprint string) (*forge.ConvertResult, bool, error) {
	return cacheLookup(ctx, s.db, outputPath, fingerprint)
}
