package pool

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// DirectLauncher starts a Worker Runtime as a child process of the host.
// The binary is expected to accept the conventions of the worker
// sub-process contract (§6): store path, kind, and work directory via
// the FORGE_STORE_PATH, FORGE_WORKER_KIND and FORGE_WORK_DIR environment
// variables. No instance id is passed; the handle is identified by PID.
type DirectLauncher struct {
	// Env, when set, is appended to each child's environment in addition
	// to the three worker sub-process contract variables.
	Env []string
}

type directHandle struct {
	cmd *exec.Cmd
	pid int
}

func (h *directHandle) ID() string {
	return strconv.Itoa(h.pid)
}

// Alive uses gopsutil rather than signal-0 probing so liveness checks
// work uniformly across the platforms the Pool Manager targets.
func (h *directHandle) Alive(ctx context.Context) (bool, error) {
	exists, err := process.PidExistsWithContext(ctx, int32(h.pid))
	if err != nil {
		return false, fmt.Errorf("pool: checking pid %d: %w", h.pid, err)
	}
	return exists, nil
}

func (h *directHandle) Terminate(ctx context.Context, grace time.Duration) error {
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return h.cmd.Process.Kill()
	}

	done := make(chan error, 1)
	go func() { done <- h.cmd.Wait() }()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		if err := h.cmd.Process.Kill(); err != nil {
			return err
		}
		<-done
		return nil
	case <-ctx.Done():
		_ = h.cmd.Process.Kill()
		return ctx.Err()
	}
}

func (l *DirectLauncher) Launch(ctx context.Context, spec LaunchSpec) (Handle, error) {
	cmd := exec.CommandContext(ctx, spec.BinaryPath)
	cmd.Env = append(cmd.Env, l.Env...)
	cmd.Env = append(cmd.Env,
		"FORGE_STORE_PATH="+spec.StorePath,
		"FORGE_WORKER_KIND="+spec.Kind.String(),
		"FORGE_WORK_DIR="+spec.WorkDir,
	)
	// Detach from the ctx-scoped kill so shutdown goes through
	// Terminate's own TERM-then-KILL, not an abrupt context cancel.
	cmd.Cancel = func() error { return nil }

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("pool: launching %s: %w", spec.BinaryPath, err)
	}
	return &directHandle{cmd: cmd, pid: cmd.Process.Pid}, nil
}
