package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coursemark/forge"
	"github.com/coursemark/forge/job"
	"github.com/coursemark/forge/registry"
	"github.com/coursemark/forge/task"
)

// fakeHandle and fakeLauncher let tests exercise Manager without a real
// OS process or container runtime.
type fakeHandle struct {
	id    string
	alive atomic.Bool
}

func (h *fakeHandle) ID() string { return h.id }
func (h *fakeHandle) Alive(ctx context.Context) (bool, error) {
	return h.alive.Load(), nil
}
func (h *fakeHandle) Terminate(ctx context.Context, grace time.Duration) error {
	h.alive.Store(false)
	return nil
}

type fakeLauncher struct {
	mu      sync.Mutex
	handles []*fakeHandle
	nextID  int
}

func (l *fakeLauncher) Launch(ctx context.Context, spec LaunchSpec) (Handle, error) {
	l.mu.Lock()
	l.nextID++
	h := &fakeHandle{id: fmt.Sprintf("handle-%d", l.nextID)}
	h.alive.Store(true)
	l.handles = append(l.handles, h)
	l.mu.Unlock()
	return h, nil
}

// fakeRegistry is a minimal forge.Queue stub exercising only the
// Registrar and Canceller-adjacent surface Manager touches.
type fakeRegistry struct {
	mu      sync.Mutex
	nextID  int64
	workers map[int64]*registry.Worker
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{workers: map[int64]*registry.Worker{}}
}

func (r *fakeRegistry) Enqueue(ctx context.Context, req *task.Request) (int64, error) { return 0, nil }
func (r *fakeRegistry) ClaimNext(ctx context.Context, kind task.Kind, workerID int64) (*job.Job, error) {
	return nil, nil
}
func (r *fakeRegistry) IsCancelled(ctx context.Context, jobID int64) (bool, error) { return false, nil }
func (r *fakeRegistry) Complete(ctx context.Context, jobID int64, result *forge.ConvertResult, errRec *job.ErrorRecord, wallTime time.Duration) error {
	return nil
}
func (r *fakeRegistry) Return(ctx context.Context, jobID int64) error { return nil }
func (r *fakeRegistry) CancelForInput(ctx context.Context, inputPath, cancelledBy string) ([]int64, error) {
	return nil, nil
}

// registerFromLaunch simulates a Worker Runtime registering itself once
// its process/container has started; tests call this directly since
// there is no real runtime in the loop.
func (r *fakeRegistry) registerFromLaunch(kind task.Kind, externalHandle string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.workers[r.nextID] = &registry.Worker{
		Id: r.nextID, Kind: kind, Status: registry.Idle,
		ExternalHandle: externalHandle, Heartbeat: time.Now(),
	}
	return r.nextID
}

func (r *fakeRegistry) RegisterWorker(ctx context.Context, kind task.Kind, mode registry.Mode, externalHandle string) (int64, error) {
	return r.registerFromLaunch(kind, externalHandle), nil
}
func (r *fakeRegistry) Heartbeat(ctx context.Context, workerID int64) error { return nil }
func (r *fakeRegistry) ReclaimDeadWorkers(ctx context.Context, threshold time.Duration) ([]int64, error) {
	return nil, nil
}
func (r *fakeRegistry) StopWorker(ctx context.Context, workerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[workerID]; ok {
		w.Status = registry.Stopped
	}
	return nil
}
func (r *fakeRegistry) GetWorkers(ctx context.Context, kind task.Kind) ([]*registry.Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ret []*registry.Worker
	for _, w := range r.workers {
		if kind == task.UnknownKind || w.Kind == kind {
			ret = append(ret, w)
		}
	}
	return ret, nil
}
func (r *fakeRegistry) PollStatuses(ctx context.Context, jobIDs []int64) (map[int64]forge.JobStatusView, error) {
	return nil, nil
}
func (r *fakeRegistry) CacheLookup(ctx context.Context, outputPath, fingerprint string) (*forge.ConvertResult, bool, error) {
	return nil, false, nil
}

var _ forge.Queue = (*fakeRegistry)(nil)

func TestManagerLaunchRegistersAndCountsWorkers(t *testing.T) {
	q := newFakeRegistry()
	// The fakeLauncher itself doesn't register; simulate a runtime that
	// registers immediately after a successful Launch by wrapping it.
	l := &registeringLauncher{inner: &fakeLauncher{}, queue: q}

	cfg := DefaultConfig()
	cfg.LaunchTimeout = time.Second

	m := New(q, l, func(kind task.Kind, mode registry.Mode) LaunchSpec {
		return LaunchSpec{Kind: kind, Mode: mode}
	}, cfg, nil)

	results, err := m.Launch(context.Background(), []DesiredWorker{
		{Kind: task.Notebook, Mode: registry.Direct, Count: 2},
	})
	require.NoError(t, err)
	require.Equal(t, 2, results[task.Notebook])

	workers, _ := q.GetWorkers(context.Background(), task.Notebook)
	require.Len(t, workers, 2)
}

// registeringLauncher wraps a Launcher and immediately registers a
// worker in the queue, standing in for the Worker Runtime process that
// would otherwise do this itself after Start.
type registeringLauncher struct {
	inner *fakeLauncher
	queue *fakeRegistry
}

func (l *registeringLauncher) Launch(ctx context.Context, spec LaunchSpec) (Handle, error) {
	h, err := l.inner.Launch(ctx, spec)
	if err != nil {
		return nil, err
	}
	l.queue.registerFromLaunch(spec.Kind, h.ID())
	return h, nil
}

func TestManagerShutdownTerminatesHandles(t *testing.T) {
	q := newFakeRegistry()
	l := &registeringLauncher{inner: &fakeLauncher{}, queue: q}
	cfg := DefaultConfig()
	cfg.LaunchTimeout = time.Second

	m := New(q, l, func(kind task.Kind, mode registry.Mode) LaunchSpec {
		return LaunchSpec{Kind: kind, Mode: mode}
	}, cfg, nil)

	_, err := m.Launch(context.Background(), []DesiredWorker{
		{Kind: task.Notebook, Mode: registry.Direct, Count: 1},
	})
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(context.Background(), time.Second))

	workers, _ := q.GetWorkers(context.Background(), task.Notebook)
	require.Len(t, workers, 1)
	require.Equal(t, registry.Stopped, workers[0].Status)
	require.False(t, l.inner.handles[0].alive.Load(), "expected handle to be terminated")
}
