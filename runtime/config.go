package runtime

import (
	"time"

	"github.com/coursemark/forge/internal"
)

// Config tunes one Runtime's timing. Defaults match the Worker Runtime
// design's stated defaults.
type Config struct {
	// PollInterval is how often an idle Runtime heartbeats and attempts
	// to claim a job. Default 100ms.
	PollInterval time.Duration

	// BusyHeartbeatInterval is how often a busy Runtime heartbeats on its
	// secondary timer while a conversion is in flight. Default 2s, well
	// inside any reasonable heartbeat threshold.
	BusyHeartbeatInterval time.Duration

	// CancelPollInterval bounds how often a busy Runtime checks
	// is_cancelled independent of the converter's own report_progress
	// calls. Default 5s, the maximum the cancellation design allows.
	CancelPollInterval time.Duration

	// ConverterTimeout is the per-attempt timeout for the first attempt;
	// it doubles on each retry. Default 60s.
	ConverterTimeout time.Duration

	// MaxAttempts bounds retries of transient converter failures. Default 3.
	MaxAttempts uint32

	// ShutdownGrace bounds how long Stop waits (plus one second) for an
	// in-flight conversion to finish. The conversion is not cancelled
	// when the wait runs out; Stop returns forge.ErrStopTimeout and the
	// loop exits once the job completes. Default 5s.
	ShutdownGrace time.Duration

	// RegisterRetry governs registration retry on startup.
	RegisterRetry internal.BackoffConfig
}

// DefaultConfig returns the Worker Runtime's documented defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:          100 * time.Millisecond,
		BusyHeartbeatInterval: 2 * time.Second,
		CancelPollInterval:    5 * time.Second,
		ConverterTimeout:      60 * time.Second,
		MaxAttempts:           3,
		ShutdownGrace:         5 * time.Second,
		RegisterRetry: internal.BackoffConfig{
			MaxRetries:      5,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2,
		},
	}
}
