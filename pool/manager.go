package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"

	"github.com/coursemark/forge"
	"github.com/coursemark/forge/internal"
	"github.com/coursemark/forge/registry"
	"github.com/coursemark/forge/task"
)

// DesiredWorker is one entry of the Pool Manager's {kind: (count, mode)}
// configuration.
type DesiredWorker struct {
	Kind  task.Kind
	Mode  registry.Mode
	Count int
}

// Config tunes Manager's resource bounds and supervision cadence.
type Config struct {
	LaunchConcurrency    int           // global semaphore on concurrent launches
	ConverterConcurrency int           // global semaphore on concurrent converter invocations, default 50
	LaunchTimeout        time.Duration // per-worker startup timeout, default 30s
	SupervisionInterval  time.Duration // registry scan cadence, default 5s
	HeartbeatThreshold   time.Duration
	StopGrace            time.Duration

	// RestartFailureThreshold replacement launches for a kind within
	// RestartFailureWindow stops automatic replacement for that kind,
	// avoiding a fork bomb from a crash-looping worker.
	RestartFailureThreshold int
	RestartFailureWindow    time.Duration
}

func DefaultConfig() Config {
	return Config{
		LaunchConcurrency:       8,
		ConverterConcurrency:    50,
		LaunchTimeout:           30 * time.Second,
		SupervisionInterval:     5 * time.Second,
		HeartbeatThreshold:      15 * time.Second,
		StopGrace:               5 * time.Second,
		RestartFailureThreshold: 3,
		RestartFailureWindow:    time.Minute,
	}
}

// SpecBuilder fills in the substrate-specific parts of a LaunchSpec
// (store path, work dir, binary/image) for one (kind, mode) pair; the
// Manager owns only the orchestration around it.
type SpecBuilder func(kind task.Kind, mode registry.Mode) LaunchSpec

// launchJob is one unit of work handed to Manager's launchPool: launch a
// single worker of (kind, mode) under the caller-supplied context, and
// report the outcome back on done.
type launchJob struct {
	ctx  context.Context
	kind task.Kind
	mode registry.Mode
	done chan<- error
}

// Manager supervises a set of Worker Runtimes against a desired
// configuration: it launches them, watches the registry for stale
// heartbeats and dead handles, and launches replacements for any
// shortfall of healthy workers while respecting the
// no-auto-restart-on-crash-loop policy.
type Manager struct {
	queue    forge.Queue
	launcher Launcher
	build    SpecBuilder
	cfg      Config
	logger   *slog.Logger

	converterSem internal.Semaphore

	// launchPool bounds concurrent worker launches to cfg.LaunchConcurrency
	// fixed workers, avoiding a thundering-herd startup on a large desired
	// configuration; it outlives any single Launch call; Shutdown stops it.
	launchPool *internal.WorkerPool[launchJob]

	lc   internal.LifecycleBase
	cron *cron.Cron

	mu      sync.Mutex
	handles map[int64]Handle // worker id -> launch handle
	desired []DesiredWorker
	crashes map[task.Kind][]time.Time
}

func New(queue forge.Queue, launcher Launcher, build SpecBuilder, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		queue:        queue,
		launcher:     launcher,
		build:        build,
		cfg:          cfg,
		logger:       logger,
		converterSem: internal.NewSemaphore(cfg.ConverterConcurrency),
		handles:      map[int64]Handle{},
		crashes:      map[task.Kind][]time.Time{},
	}
	m.launchPool = internal.NewWorkerPool[launchJob](cfg.LaunchConcurrency, cfg.LaunchConcurrency*4, logger)
	m.launchPool.Start(context.Background(), func(_ context.Context, j launchJob) {
		j.done <- m.launchOne(j.ctx, j.kind, j.mode)
	})
	return m
}

// ConverterSemaphore is shared with every Runtime this Manager launches
// in-process, bounding total concurrent external converter invocations
// across all kinds (§4.4, §5).
func (m *Manager) ConverterSemaphore() internal.Semaphore {
	return m.converterSem
}

// Launch starts count instances for each DesiredWorker entry, bounded by
// launchPool's fixed concurrency, and reports realized counts per kind. A
// worker that fails to register within LaunchTimeout counts as a failed
// launch attempt but does not abort the others.
func (m *Manager) Launch(ctx context.Context, desired []DesiredWorker) (map[task.Kind]int, error) {
	m.mu.Lock()
	m.desired = desired
	m.mu.Unlock()

	results := make(map[task.Kind]int)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, d := range desired {
		for i := 0; i < d.Count; i++ {
			wg.Add(1)
			done := make(chan error, 1)
			if !m.launchPool.Push(launchJob{ctx: ctx, kind: d.Kind, mode: d.Mode, done: done}) {
				wg.Done()
				m.logger.Error("launch pool is stopped, skipping launch", "kind", d.Kind.String())
				continue
			}
			go func(kind task.Kind, done <-chan error) {
				defer wg.Done()
				if err := <-done; err != nil {
					m.logger.Error("worker launch failed", "kind", kind.String(), "err", err)
					return
				}
				mu.Lock()
				results[kind]++
				mu.Unlock()
			}(d.Kind, done)
		}
	}
	wg.Wait()
	return results, nil
}

func (m *Manager) launchOne(ctx context.Context, kind task.Kind, mode registry.Mode) error {
	spec := m.build(kind, mode)
	handle, err := m.launcher.Launch(ctx, spec)
	if err != nil {
		return fmt.Errorf("pool: launch: %w", err)
	}

	workerID, err := m.awaitRegistration(ctx, kind, handle.ID())
	if err != nil {
		_ = handle.Terminate(ctx, m.cfg.StopGrace)
		return err
	}

	m.mu.Lock()
	m.handles[workerID] = handle
	m.mu.Unlock()
	return nil
}

func (m *Manager) awaitRegistration(ctx context.Context, kind task.Kind, externalHandle string) (int64, error) {
	deadline := time.Now().Add(m.cfg.LaunchTimeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		workers, err := m.queue.GetWorkers(ctx, kind)
		if err == nil {
			for _, w := range workers {
				if w.ExternalHandle == externalHandle {
					return w.Id, nil
				}
			}
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("pool: worker %s did not register within %s", externalHandle, m.cfg.LaunchTimeout)
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Supervise starts the background registry scan. It is idempotent to
// call once; call Shutdown to stop it.
func (m *Manager) Supervise(ctx context.Context) error {
	if err := m.lc.TryStart(); err != nil {
		return err
	}
	m.cron = cron.New()
	_, err := m.cron.AddFunc(fmt.Sprintf("@every %s", m.cfg.SupervisionInterval), func() {
		m.tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("pool: scheduling supervision: %w", err)
	}
	m.cron.Start()
	return nil
}

func (m *Manager) tick(ctx context.Context) {
	reclaimed, err := m.queue.ReclaimDeadWorkers(ctx, m.cfg.HeartbeatThreshold)
	if err != nil {
		m.logger.Warn("reclaim scan failed", "err", err)
	} else if len(reclaimed) > 0 {
		m.logger.Info("reclaimed stale workers' jobs", "count", humanize.Comma(int64(len(reclaimed))))
	}

	workers, err := m.queue.GetWorkers(ctx, task.UnknownKind)
	if err != nil {
		m.logger.Warn("registry scan failed", "err", err)
		return
	}

	m.checkHandles(ctx, workers)
	m.restoreDesiredCounts(ctx, workers)
}

// checkHandles cross-checks each worker's external handle against the
// launch substrate. A handle no longer alive is logged immediately; the
// actual state transition is left to the next heartbeat-staleness
// reclaim, since forge.Queue exposes no separate "force dead" operation
// and a crashed process stops heartbeating on its own within one
// threshold window.
func (m *Manager) checkHandles(ctx context.Context, workers []*registry.Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range workers {
		if !w.Status.Healthy() {
			continue
		}
		h, ok := m.handles[w.Id]
		if !ok {
			continue
		}
		alive, err := h.Alive(ctx)
		if err == nil && !alive {
			m.logger.Warn("worker handle no longer alive, awaiting heartbeat reclaim", "worker_id", w.Id, "handle", h.ID())
		}
	}
}

func (m *Manager) restoreDesiredCounts(ctx context.Context, workers []*registry.Worker) {
	m.mu.Lock()
	desired := append([]DesiredWorker(nil), m.desired...)
	m.mu.Unlock()

	healthy := map[task.Kind]int{}
	for _, w := range workers {
		if w.Status.Healthy() {
			healthy[w.Kind]++
		}
	}

	for _, d := range desired {
		shortfall := d.Count - healthy[d.Kind]
		if shortfall <= 0 {
			continue
		}
		if m.crashLooping(d.Kind) {
			m.logger.Error("worker kind is crash-looping, not auto-restarting", "kind", d.Kind.String())
			continue
		}
		for i := 0; i < shortfall; i++ {
			m.recordRestart(d.Kind)
			done := make(chan error, 1)
			if !m.launchPool.Push(launchJob{ctx: ctx, kind: d.Kind, mode: d.Mode, done: done}) {
				m.logger.Error("launch pool is stopped, skipping replacement", "kind", d.Kind.String())
				continue
			}
			go func(kind task.Kind, done <-chan error) {
				if err := <-done; err != nil {
					m.logger.Error("replacement launch failed", "kind", kind.String(), "err", err)
				}
			}(d.Kind, done)
		}
	}
}

func (m *Manager) recordRestart(kind task.Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.crashes[kind] = append(m.crashes[kind], time.Now())
}

func (m *Manager) crashLooping(kind task.Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-m.cfg.RestartFailureWindow)
	var recent []time.Time
	for _, t := range m.crashes[kind] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	m.crashes[kind] = recent
	return len(recent) >= m.cfg.RestartFailureThreshold
}

// StopWorkers marks each of ids Stopped in the registry and terminates
// its launch handle, in parallel, each bounded by grace. Unknown ids
// (already terminated, or never launched by this Manager) are skipped.
// This is the primitive the Lifecycle Manager uses to stop only the
// workers one build invocation started (the "managed" set), as opposed
// to Shutdown, which tears down everything this Manager has launched.
func (m *Manager) StopWorkers(ctx context.Context, ids []int64, grace time.Duration) error {
	m.mu.Lock()
	targets := make(map[int64]Handle, len(ids))
	for _, id := range ids {
		if h, ok := m.handles[id]; ok {
			targets[id] = h
			delete(m.handles, id)
		}
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for id, h := range targets {
		wg.Add(1)
		go func(id int64, h Handle) {
			defer wg.Done()
			if err := m.queue.StopWorker(ctx, id); err != nil {
				m.logger.Warn("stop-worker failed", "worker_id", id, "err", err)
			}
			if err := h.Terminate(ctx, grace); err != nil {
				m.logger.Warn("terminate failed", "worker_id", id, "err", err)
			}
		}(id, h)
	}
	wg.Wait()
	return nil
}

// Shutdown stops supervision and terminates every launched worker in
// parallel, each bounded by grace.
func (m *Manager) Shutdown(ctx context.Context, grace time.Duration) error {
	if m.cron != nil {
		stopCtx := m.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(time.Second):
		}
	}
	_ = m.lc.TryStop(grace+time.Second, func() internal.DoneChan {
		done := make(internal.DoneChan)
		close(done)
		return done
	})

	m.mu.Lock()
	ids := make([]int64, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	err := m.StopWorkers(ctx, ids, grace)

	poolDone := m.launchPool.Stop()
	select {
	case <-poolDone:
	case <-time.After(grace + time.Second):
		m.logger.Warn("launch pool did not drain within grace period")
	}

	return err
}
