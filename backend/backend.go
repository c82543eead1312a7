package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coursemark/forge"
	"github.com/coursemark/forge/fingerprint"
	"github.com/coursemark/forge/job"
	"github.com/coursemark/forge/task"
)

// AuxCache is the auxiliary, cross-invocation result cache Submit
// consults on an in-store cache miss, and that AwaitAll writes through
// to on a successful completion. store.ResultCache implements it; it is
// accepted as an interface here so backend does not need to depend on
// the store package's concrete type.
type AuxCache interface {
	forge.CacheReader
	Put(ctx context.Context, outputPath, fingerprint string, result *forge.ConvertResult) error
}

// Config tunes Backend's polling cadence and health-check behavior.
type Config struct {
	PollIntervalMin time.Duration
	PollIntervalMax time.Duration

	// HeartbeatThreshold is used only to evaluate whether an existing
	// Worker counts as healthy in the pre-flight check below; it should
	// match the Pool Manager's own threshold.
	HeartbeatThreshold time.Duration

	// SkipHealthCheck disables the "at least one healthy worker per
	// kind" pre-flight assertion AwaitAll otherwise performs, for
	// callers (typically unit tests) that poll a queue with no Pool
	// Manager behind it.
	SkipHealthCheck bool
}

func DefaultConfig() Config {
	return Config{
		PollIntervalMin:    100 * time.Millisecond,
		PollIntervalMax:    2 * time.Second,
		HeartbeatThreshold: 15 * time.Second,
	}
}

// Handle identifies one Submit call's pending or already-resolved
// outcome. It is opaque to callers beyond equality comparison.
type Handle int64

type pendingEntry struct {
	jobID       int64
	kind        task.Kind
	outputPath  string
	fingerprint string
	correlation string
}

// Backend is the submit/await interface consumed by the course model.
// It never claims or executes a job itself; all of that is the Worker
// Runtime's responsibility, reached only through queue.
type Backend struct {
	queue  forge.Queue
	aux    AuxCache
	cfg    Config
	logger *slog.Logger

	nextHandle int64

	mu       sync.Mutex
	pending  map[Handle]*pendingEntry
	resolved map[Handle]Outcome
}

func New(queue forge.Queue, aux AuxCache, cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		queue:    queue,
		aux:      aux,
		cfg:      cfg,
		logger:   logger,
		pending:  map[Handle]*pendingEntry{},
		resolved: map[Handle]Outcome{},
	}
}

func (b *Backend) allocHandle() Handle {
	return Handle(atomic.AddInt64(&b.nextHandle, 1))
}

// Submit resolves req against the two cache tiers before ever reaching
// the Queue Service. On a cache hit it writes the cached payload to
// outputPath and returns a handle whose outcome is already resolved; on
// a miss it enqueues a new Job and tracks it in the pending-set for a
// later AwaitAll.
func (b *Backend) Submit(ctx context.Context, kind task.Kind, inputPath, outputPath string, contentBytes []byte, params []byte, correlation string, priority int32) (Handle, error) {
	fp := fingerprint.Compute(contentBytes, params)
	h := b.allocHandle()

	if result, hit, err := b.queue.CacheLookup(ctx, outputPath, fp); err != nil {
		return 0, fmt.Errorf("backend: in-store cache lookup: %w", err)
	} else if hit {
		return b.resolveCacheHit(h, outputPath, correlation, result)
	}

	if b.aux != nil {
		if result, hit, err := b.aux.CacheLookup(ctx, outputPath, fp); err != nil {
			b.logger.Warn("auxiliary cache lookup failed", "output_path", outputPath, "err", err)
		} else if hit {
			return b.resolveCacheHit(h, outputPath, correlation, result)
		}
	}

	jobID, err := b.queue.Enqueue(ctx, &task.Request{
		Kind:        kind,
		InputPath:   inputPath,
		OutputPath:  outputPath,
		Fingerprint: fp,
		Params:      params,
		Correlation: correlation,
		Priority:    priority,
	})
	if err != nil {
		return 0, fmt.Errorf("backend: enqueue: %w", err)
	}

	b.mu.Lock()
	b.pending[h] = &pendingEntry{
		jobID:       jobID,
		kind:        kind,
		outputPath:  outputPath,
		fingerprint: fp,
		correlation: correlation,
	}
	b.mu.Unlock()
	return h, nil
}

func (b *Backend) resolveCacheHit(h Handle, outputPath, correlation string, result *forge.ConvertResult) (Handle, error) {
	if err := writeOutputFile(outputPath, result.Payload); err != nil {
		return 0, fmt.Errorf("backend: writing cached output: %w", err)
	}
	b.mu.Lock()
	b.resolved[h] = Outcome{Status: Completed, ResultPath: outputPath, Correlation: correlation}
	b.mu.Unlock()
	return h, nil
}

// AwaitAll polls the Queue Service for every pending submission until
// all are terminal or timeout elapses. Jobs still pending at timeout are
// reported with a Timeout outcome and left in the pending-set — a
// following AwaitAll call picks them back up — per the "does not cancel"
// rule. A caller context cancellation, by contrast, aborts the call and
// returns its error; nothing is dropped from the pending-set in that
// case either.
func (b *Backend) AwaitAll(ctx context.Context, timeout time.Duration) (map[Handle]Outcome, error) {
	outcomes := map[Handle]Outcome{}

	b.mu.Lock()
	for h, o := range b.resolved {
		outcomes[h] = o
		delete(b.resolved, h)
	}
	pending := make(map[Handle]*pendingEntry, len(b.pending))
	for h, e := range b.pending {
		pending[h] = e
	}
	b.mu.Unlock()

	if len(pending) == 0 {
		return outcomes, nil
	}

	if !b.cfg.SkipHealthCheck {
		if err := b.assertHealthyWorkers(ctx, pending); err != nil {
			return outcomes, err
		}
	}

	deadline := time.Now().Add(timeout)
	interval := b.cfg.PollIntervalMin
	resolvedNow := map[Handle]bool{}

	for len(pending) > 0 {
		ids := make([]int64, 0, len(pending))
		byJobID := make(map[int64]Handle, len(pending))
		for h, e := range pending {
			ids = append(ids, e.jobID)
			byJobID[e.jobID] = h
		}

		statuses, err := b.queue.PollStatuses(ctx, ids)
		if err != nil {
			return outcomes, fmt.Errorf("backend: poll statuses: %w", err)
		}

		progressed := false
		for jobID, view := range statuses {
			if !view.Status.Terminal() {
				continue
			}
			h := byJobID[jobID]
			outcomes[h] = b.resolveTerminal(ctx, pending[h], view)
			resolvedNow[h] = true
			delete(pending, h)
			progressed = true
		}

		if len(pending) == 0 {
			break
		}

		if time.Now().After(deadline) {
			for h, e := range pending {
				outcomes[h] = Outcome{Status: Timeout, Correlation: e.correlation}
			}
			break
		}

		if progressed {
			interval = b.cfg.PollIntervalMin
		} else {
			interval *= 2
			if interval > b.cfg.PollIntervalMax {
				interval = b.cfg.PollIntervalMax
			}
		}

		select {
		case <-ctx.Done():
			return outcomes, ctx.Err()
		case <-time.After(interval):
		}
	}

	b.mu.Lock()
	for h := range resolvedNow {
		delete(b.pending, h)
	}
	b.mu.Unlock()

	return outcomes, nil
}

// resolveTerminal reads back the cache entry or error record for a newly
// terminal job and materializes its output file on success.
func (b *Backend) resolveTerminal(ctx context.Context, entry *pendingEntry, view forge.JobStatusView) Outcome {
	switch view.Status {
	case job.Completed:
		result, hit, err := b.queue.CacheLookup(ctx, entry.outputPath, entry.fingerprint)
		if err != nil || !hit {
			return Outcome{Status: Failed, Correlation: entry.correlation, Error: &ErrorInfo{
				Kind:    "infrastructure",
				Message: "job reported completed but no cache entry was found",
			}}
		}
		if err := writeOutputFileIfMissing(entry.outputPath, result.Payload); err != nil {
			return Outcome{Status: Failed, Correlation: entry.correlation, Error: &ErrorInfo{Kind: "infrastructure", Message: err.Error()}}
		}
		if b.aux != nil {
			if err := b.aux.Put(ctx, entry.outputPath, entry.fingerprint, result); err != nil {
				b.logger.Warn("auxiliary cache put failed", "output_path", entry.outputPath, "err", err)
			}
		}
		return Outcome{Status: Completed, ResultPath: entry.outputPath, Correlation: entry.correlation}

	case job.Failed:
		info := &ErrorInfo{}
		if rec := view.Error; rec != nil {
			info.Kind = rec.Kind.String()
			info.Message = rec.Message
			info.Traceback = rec.Traceback
			info.Details = map[string]any{
				"attempts":          rec.Attempts,
				"retries_exhausted": rec.RetriesExhausted,
			}
		}
		return Outcome{Status: Failed, Correlation: entry.correlation, Error: info}

	case job.Cancelled:
		return Outcome{Status: Cancelled, Correlation: entry.correlation}

	default:
		return Outcome{Status: Failed, Correlation: entry.correlation, Error: &ErrorInfo{
			Kind:    "infrastructure",
			Message: fmt.Sprintf("unexpected terminal status %s", view.Status),
		}}
	}
}

// assertHealthyWorkers fails fast, per kind present in pending, when no
// healthy worker is registered to claim it; otherwise a client would
// wait out the full timeout only to learn nothing could ever have
// picked the job up.
func (b *Backend) assertHealthyWorkers(ctx context.Context, pending map[Handle]*pendingEntry) error {
	kinds := map[task.Kind]bool{}
	for _, e := range pending {
		kinds[e.kind] = true
	}

	now := time.Now()
	for kind := range kinds {
		workers, err := b.queue.GetWorkers(ctx, kind)
		if err != nil {
			return fmt.Errorf("backend: checking workers for kind %s: %w", kind, err)
		}
		healthy := false
		for _, w := range workers {
			if w.Status.Healthy() && w.Alive(now, b.cfg.HeartbeatThreshold) {
				healthy = true
				break
			}
		}
		if !healthy {
			return fmt.Errorf("%w: kind %s", forge.ErrNoHealthyWorker, kind)
		}
	}
	return nil
}

// CancelForInput forwards to the Queue Service, used by watch-mode when
// a source file changes again while its previous conversion is still in
// flight.
func (b *Backend) CancelForInput(ctx context.Context, inputPath, cancelledBy string) ([]int64, error) {
	return b.queue.CancelForInput(ctx, inputPath, cancelledBy)
}

// Shutdown waits up to grace for every pending submission to finish,
// without cancelling anything still outstanding.
func (b *Backend) Shutdown(ctx context.Context, grace time.Duration) (map[Handle]Outcome, error) {
	return b.AwaitAll(ctx, grace)
}

func writeOutputFile(path string, payload []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func writeOutputFileIfMissing(path string, payload []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return writeOutputFile(path, payload)
}
