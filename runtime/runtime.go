package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coursemark/forge"
	"github.com/coursemark/forge/convert"
	"github.com/coursemark/forge/internal"
	"github.com/coursemark/forge/job"
	"github.com/coursemark/forge/registry"
	"github.com/coursemark/forge/task"
)

// Runtime drives one Worker's register/idle/busy/drain loop against a
// forge.Queue and a forge.Converter.
type Runtime struct {
	queue     forge.Queue
	converter forge.Converter
	kind      task.Kind
	mode      registry.Mode
	handle    string
	workDir   string
	cfg       Config
	sem       internal.Semaphore
	logger    *slog.Logger

	lc       internal.LifecycleBase
	workerID int64
	stopCh   chan struct{}
	done     internal.DoneChan
}

// New constructs a Runtime. sem bounds concurrent external converter
// invocations across the whole process, per the Pool Manager's resource
// bounds (§4.4); pass internal.NewSemaphore(1) to get no additional
// sharing beyond this Runtime's own single in-flight job.
func New(queue forge.Queue, converter forge.Converter, kind task.Kind, mode registry.Mode, handle string, workDir string, sem internal.Semaphore, cfg Config, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		queue:     queue,
		converter: converter,
		kind:      kind,
		mode:      mode,
		handle:    handle,
		workDir:   workDir,
		cfg:       cfg,
		sem:       sem,
		logger:    logger.With("kind", kind.String(), "handle", handle),
	}
}

// WorkerID reports the store-assigned id, valid only after Start succeeds.
func (r *Runtime) WorkerID() int64 {
	return r.workerID
}

// Start registers with the Queue Service, retrying registration failures
// with exponential backoff, then launches the idle/busy loop. Exhausting
// registration retries is a fatal startup error and Start returns before
// any loop is spawned.
func (r *Runtime) Start(ctx context.Context) error {
	id, err := r.registerWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("runtime: registration failed: %w", err)
	}
	if err := r.lc.TryStart(); err != nil {
		return err
	}
	r.workerID = id
	r.stopCh = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.loop(ctx)
	}()
	r.done = internal.WrapWaitGroup(&wg)
	return nil
}

func (r *Runtime) registerWithRetry(ctx context.Context) (int64, error) {
	counter := internal.NewCounter(r.cfg.RegisterRetry)
	var lastErr error
	var attempt uint32
	for {
		attempt++
		id, err := r.queue.RegisterWorker(ctx, r.kind, r.mode, r.handle)
		if err == nil {
			return id, nil
		}
		lastErr = err
		delay, ok := counter.Next(attempt)
		if !ok {
			return 0, lastErr
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Stop signals the loop to finish its current job (if any) and exit, and
// waits up to the Worker Runtime's ShutdownGrace plus one second for it
// to do so. An in-flight conversion is not cancelled when the wait runs
// out; Stop then returns forge.ErrStopTimeout.
func (r *Runtime) Stop(ctx context.Context) error {
	return r.lc.TryStop(r.cfg.ShutdownGrace+time.Second, func() internal.DoneChan {
		close(r.stopCh)
		return r.done
	})
}

func (r *Runtime) loop(ctx context.Context) {
	poll := time.NewTicker(r.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-r.stopCh:
			if err := r.queue.StopWorker(ctx, r.workerID); err != nil {
				r.logger.Warn("stop-worker failed", "err", err)
			}
			return
		case <-poll.C:
			if err := r.queue.Heartbeat(ctx, r.workerID); err != nil {
				if errors.Is(err, forge.ErrWorkerDead) {
					r.logger.Error("reaped while idle, exiting")
					return
				}
				r.logger.Warn("heartbeat failed", "err", err)
				continue
			}
			j, err := r.queue.ClaimNext(ctx, r.kind, r.workerID)
			if err != nil {
				r.logger.Warn("claim failed", "err", err)
				continue
			}
			if j == nil {
				continue
			}
			r.process(ctx, j)
		}
	}
}

// process drives one claimed job to completion: it runs the
// attempt/retry loop, keeps the heartbeat alive on a secondary timer
// while the converter is in flight, and reports the outcome.
func (r *Runtime) process(ctx context.Context, j *job.Job) {
	logger := r.logger.With("job_id", j.Id)
	started := time.Now()
	busyCtx, cancelBusy := context.WithCancel(ctx)
	defer cancelBusy()

	var hb internal.TimerTask
	hb.Start(busyCtx, func(tctx context.Context) {
		if err := r.queue.Heartbeat(ctx, r.workerID); err != nil {
			if errors.Is(err, forge.ErrWorkerDead) {
				logger.Error("reaped mid-job")
				cancelBusy()
			} else {
				logger.Warn("busy heartbeat failed", "err", err)
			}
		}
	}, r.cfg.BusyHeartbeatInterval)

	result, errRec := r.invoke(busyCtx, j)
	cancelBusy()
	<-hb.Stop()

	if err := r.queue.Complete(ctx, j.Id, result, errRec, time.Since(started)); err != nil {
		logger.Error("complete failed", "err", err)
	}
}

// invoke runs the converter, retrying transient failures with a doubling
// per-attempt timeout, up to Config.MaxAttempts. It returns exactly one
// of (result, nil) or (nil, errRec).
func (r *Runtime) invoke(ctx context.Context, j *job.Job) (*forge.ConvertResult, *job.ErrorRecord) {
	timeout := r.cfg.ConverterTimeout
	cancelTicker := time.NewTicker(r.cfg.CancelPollInterval)
	defer cancelTicker.Stop()

	var attempt uint32
	for attempt = 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if cancelled, err := r.queue.IsCancelled(ctx, j.Id); err == nil && cancelled {
			return nil, &job.ErrorRecord{Kind: job.Cancellation, Attempts: attempt}
		}

		if err := r.sem.Acquire(ctx); err != nil {
			return nil, &job.ErrorRecord{Kind: job.Infrastructure, Message: err.Error(), Attempts: attempt}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		workDir, cleanup, err := r.prepareWorkDir(j.Id, attempt)
		if err != nil {
			cancel()
			r.sem.Release()
			return nil, &job.ErrorRecord{Kind: job.Infrastructure, Message: err.Error(), Attempts: attempt}
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			r.watchCancellation(attemptCtx, cancel, j.Id, cancelTicker)
		}()

		result, convErr := r.converter.Convert(attemptCtx, j.InputPath, workDir, j.Params, r.reporter(attemptCtx, cancel, j.Id))
		cancel()
		<-done
		r.sem.Release()
		cleanup()

		if convErr == nil {
			return result, nil
		}

		rec := convert.Classify(convErr, attempt, "")
		switch rec.Kind {
		case job.Cancellation:
			return nil, rec
		case job.Transient:
			if attempt == r.cfg.MaxAttempts {
				rec.RetriesExhausted = true
				return nil, rec
			}
			timeout *= 2
			continue
		default:
			// input-error, tool-missing, infrastructure: surfaced
			// immediately, never retried by the Worker Runtime itself.
			return nil, rec
		}
	}
	return nil, &job.ErrorRecord{Kind: job.Transient, RetriesExhausted: true, Attempts: r.cfg.MaxAttempts}
}

// watchCancellation polls is_cancelled independent of the converter's
// own report_progress calls, satisfying the "at least once per 5s"
// requirement even for converters that never call report.
func (r *Runtime) watchCancellation(ctx context.Context, cancel context.CancelFunc, jobID int64, ticker *time.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cancelled, err := r.queue.IsCancelled(ctx, jobID); err == nil && cancelled {
				cancel()
				return
			}
		}
	}
}

// reporter translates a Converter's report_progress calls into a
// cancellation check, per the converter contract.
func (r *Runtime) reporter(ctx context.Context, cancel context.CancelFunc, jobID int64) forge.ProgressReporter {
	return func(ctx context.Context, note string) error {
		cancelled, err := r.queue.IsCancelled(ctx, jobID)
		if err != nil {
			return nil
		}
		if cancelled {
			cancel()
			return context.Canceled
		}
		return nil
	}
}

// prepareWorkDir returns a fresh, empty directory for one attempt and a
// cleanup function that removes it, so a Converter is always handed a
// clean working directory between retries.
func (r *Runtime) prepareWorkDir(jobID int64, attempt uint32) (string, func(), error) {
	dir := filepath.Join(r.workDir, fmt.Sprintf("job-%d-attempt-%d", jobID, attempt))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", func() {}, err
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}
