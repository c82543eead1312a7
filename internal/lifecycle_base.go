package internal

import (
	"errors"
	"sync/atomic"
	"time"
)

const (
	Stopped = iota
	Started
)

// Lifecycle sentinels, re-exported by package forge as
// forge.ErrDoubleStarted, forge.ErrDoubleStopped and forge.ErrStopTimeout.
var (
	ErrDoubleStarted = errors.New("forge: component double start")
	ErrDoubleStopped = errors.New("forge: component double stop")
	ErrStopTimeout   = errors.New("forge: component stop timeout")
)

// LifecycleBase centralizes the start-once/stop-once bookkeeping shared by
// the long-running components (Worker Runtime, Pool Manager), so they
// share one implementation and report the same
// ErrDoubleStarted/ErrDoubleStopped/ErrStopTimeout sentinels regardless
// of which component is using it.
type LifecycleBase struct {
	state atomic.Int32
}

func (lb *LifecycleBase) TryStart() error {
	if !lb.state.CompareAndSwap(Stopped, Started) {
		return ErrDoubleStarted
	}
	return nil
}

func (lb *LifecycleBase) TryStop(timeout time.Duration, df DoneFunc) error {
	if !lb.state.CompareAndSwap(Started, Stopped) {
		return ErrDoubleStopped
	}
	done := df()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

func (lb *LifecycleBase) Running() bool {
	return lb.state.Load() == Started
}
