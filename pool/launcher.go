package pool

import (
	"context"
	"time"

	"github.com/coursemark/forge/registry"
	"github.com/coursemark/forge/task"
)

// LaunchSpec describes one Worker Runtime to start.
type LaunchSpec struct {
	Kind       task.Kind
	Mode       registry.Mode
	StorePath  string
	WorkDir    string
	BinaryPath string // direct mode: the worker executable
	Image      string // containerized mode: the worker image reference
}

// Handle is a running Worker's external handle — a container id or an OS
// PID — as observed by the substrate that launched it.
type Handle interface {
	// ID is the external_handle value recorded in the Worker registry.
	ID() string

	// Alive reports whether the underlying process/container is still
	// running, independent of what the Durable Store's registry says.
	Alive(ctx context.Context) (bool, error)

	// Terminate sends a termination signal and waits up to grace for a
	// clean exit before force-killing.
	Terminate(ctx context.Context, grace time.Duration) error
}

// Launcher starts one Worker Runtime instance and returns a Handle to
// supervise it.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Handle, error)
}
