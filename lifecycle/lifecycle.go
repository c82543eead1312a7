package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/coursemark/forge"
	"github.com/coursemark/forge/pool"
	"github.com/coursemark/forge/registry"
	"github.com/coursemark/forge/task"
)

// Request is one build invocation's desired worker configuration and
// policy flags.
type Request struct {
	Desired      []pool.DesiredWorker
	AutoStart    bool
	AutoStop     bool
	ReuseWorkers bool
}

// Report tells the caller, per kind, how many existing workers were
// reused versus how many new ones this invocation started.
type Report struct {
	Kind       task.Kind
	Reused     int
	StartedNow int
}

// Manager mediates between one client build invocation and a
// pool.Manager. Workers it starts on this invocation's behalf are
// "managed"; workers it finds already running (started by an earlier
// persistent call, i.e. one with AutoStop false) are "persistent" and
// are never stopped by StopManaged.
type Manager struct {
	queue              forge.Queue
	pool               *pool.Manager
	heartbeatThreshold time.Duration

	mu      sync.Mutex
	managed []int64
}

func New(queue forge.Queue, poolMgr *pool.Manager, heartbeatThreshold time.Duration) *Manager {
	return &Manager{queue: queue, pool: poolMgr, heartbeatThreshold: heartbeatThreshold}
}

// Ensure realizes req's desired configuration: it reuses healthy
// existing workers up to the desired count when ReuseWorkers is set,
// starts the shortfall as managed workers when AutoStart is set, and
// returns the realized counts per kind.
func (m *Manager) Ensure(ctx context.Context, req Request) ([]Report, error) {
	reports := make([]Report, 0, len(req.Desired))

	for _, d := range req.Desired {
		reused := 0
		if req.ReuseWorkers {
			healthy, err := m.healthyWorkers(ctx, d.Kind)
			if err != nil {
				return reports, err
			}
			reused = len(healthy)
			if reused > d.Count {
				reused = d.Count
			}
		}

		startedNow := 0
		shortfall := d.Count - reused
		if shortfall > 0 && req.AutoStart {
			before, err := m.queue.GetWorkers(ctx, d.Kind)
			if err != nil {
				return reports, err
			}
			seen := idSet(before)

			results, err := m.pool.Launch(ctx, []pool.DesiredWorker{{Kind: d.Kind, Mode: d.Mode, Count: shortfall}})
			if err != nil {
				return reports, err
			}
			startedNow = results[d.Kind]

			after, err := m.queue.GetWorkers(ctx, d.Kind)
			if err != nil {
				return reports, err
			}
			m.mu.Lock()
			for _, w := range after {
				if !seen[w.Id] {
					m.managed = append(m.managed, w.Id)
				}
			}
			m.mu.Unlock()
		}

		reports = append(reports, Report{Kind: d.Kind, Reused: reused, StartedNow: startedNow})
	}

	return reports, nil
}

func idSet(workers []*registry.Worker) map[int64]bool {
	ret := make(map[int64]bool, len(workers))
	for _, w := range workers {
		ret[w.Id] = true
	}
	return ret
}

func (m *Manager) healthyWorkers(ctx context.Context, kind task.Kind) ([]*registry.Worker, error) {
	workers, err := m.queue.GetWorkers(ctx, kind)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var healthy []*registry.Worker
	for _, w := range workers {
		if w.Status.Healthy() && w.Alive(now, m.heartbeatThreshold) {
			healthy = append(healthy, w)
		}
	}
	return healthy, nil
}

// StopManaged stops only the workers this invocation started, leaving
// persistent workers (reused, or started by an earlier AutoStop=false
// call) running. It is a no-op if nothing was started as managed.
func (m *Manager) StopManaged(ctx context.Context, grace time.Duration) error {
	m.mu.Lock()
	ids := m.managed
	m.managed = nil
	m.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	return m.pool.StopWorkers(ctx, ids, grace)
}
