package pool

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// ContainerNamespace is the containerd namespace Worker containers are
// created in.
const ContainerNamespace = "forge"

// ContainerLauncher starts a Worker Runtime as a containerd task. The
// Durable Store directory and the workspace directory are both mounted
// read-write into the container, per the worker sub-process contract's
// requirement that paths recorded by a Worker resolve identically on
// host and container.
type ContainerLauncher struct {
	Client *containerd.Client
}

func NewContainerLauncher(socketPath string) (*ContainerLauncher, error) {
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("pool: connecting to containerd: %w", err)
	}
	return &ContainerLauncher{Client: client}, nil
}

func (l *ContainerLauncher) Close() error {
	return l.Client.Close()
}

type containerHandle struct {
	client    *containerd.Client
	namespace string
	id        string
}

func (h *containerHandle) ID() string {
	return h.id
}

func (h *containerHandle) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, h.namespace)
}

func (h *containerHandle) Alive(ctx context.Context) (bool, error) {
	ctx = h.ctx(ctx)
	c, err := h.client.LoadContainer(ctx, h.id)
	if err != nil {
		return false, nil
	}
	t, err := c.Task(ctx, nil)
	if err != nil {
		return false, nil
	}
	status, err := t.Status(ctx)
	if err != nil {
		return false, nil
	}
	return status.Status == containerd.Running, nil
}

func (h *containerHandle) Terminate(ctx context.Context, grace time.Duration) error {
	ctx = h.ctx(ctx)
	c, err := h.client.LoadContainer(ctx, h.id)
	if err != nil {
		return nil
	}
	t, err := c.Task(ctx, nil)
	if err != nil {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	statusC, err := t.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("pool: waiting on task %s: %w", h.id, err)
	}
	if err := t.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("pool: sending SIGTERM to task %s: %w", h.id, err)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := t.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("pool: force-killing task %s: %w", h.id, err)
		}
	}

	if _, err := t.Delete(ctx); err != nil {
		return fmt.Errorf("pool: deleting task %s: %w", h.id, err)
	}
	return c.Delete(ctx, containerd.WithSnapshotCleanup)
}

func (l *ContainerLauncher) Launch(ctx context.Context, spec LaunchSpec) (Handle, error) {
	ctx = namespaces.WithNamespace(ctx, ContainerNamespace)

	image, err := l.Client.GetImage(ctx, spec.Image)
	if err != nil {
		return nil, fmt.Errorf("pool: image %s not found (pull it before launching workers): %w", spec.Image, err)
	}

	id := fmt.Sprintf("forge-worker-%s-%d", spec.Kind.String(), time.Now().UnixNano())
	env := []string{
		"FORGE_STORE_PATH=" + spec.StorePath,
		"FORGE_WORKER_KIND=" + spec.Kind.String(),
		"FORGE_WORK_DIR=" + spec.WorkDir,
	}
	mounts := []specs.Mount{
		{Source: spec.StorePath, Destination: spec.StorePath, Type: "bind", Options: []string{"rbind", "rw"}},
		{Source: spec.WorkDir, Destination: spec.WorkDir, Type: "bind", Options: []string{"rbind", "rw"}},
	}

	container, err := l.Client.NewContainer(
		ctx,
		id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(
			oci.WithImageConfig(image),
			oci.WithEnv(env),
			oci.WithMounts(mounts),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("pool: creating container %s: %w", id, err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return nil, fmt.Errorf("pool: creating task for %s: %w", id, err)
	}
	if err := task.Start(ctx); err != nil {
		return nil, fmt.Errorf("pool: starting task for %s: %w", id, err)
	}

	return &containerHandle{client: l.Client, namespace: ContainerNamespace, id: id}, nil
}
