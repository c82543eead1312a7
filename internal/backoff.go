package internal

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffConfig parameterizes the retry delay computed by Counter.Next.
// It is reused for two distinct concerns in this module: the Durable
// Store's lock-contention retry (§4.1) and the Worker Runtime's
// registration retry (§4.3); each constructs its own Counter from its
// own BackoffConfig.
type BackoffConfig struct {
	MaxRetries          uint32
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

type Counter struct {
	BackoffConfig
}

func NewCounter(cfg BackoffConfig) Counter {
	return Counter{cfg}
}

// Next returns the delay before the given attempt (1-indexed) and whether
// a retry is still permitted under MaxRetries.
func (bc *Counter) Next(attempt uint32) (time.Duration, bool) {
	if bc.MaxRetries > 0 && attempt > bc.MaxRetries {
		return 0, false
	}
	exp := float64(bc.InitialInterval) * math.Pow(bc.Multiplier, float64(attempt-1))
	if bc.MaxInterval > 0 && exp > float64(bc.MaxInterval) {
		exp = float64(bc.MaxInterval)
	}
	if bc.RandomizationFactor > 0 {
		delta := bc.RandomizationFactor * exp
		minExp := exp - delta
		maxExp := exp + delta
		exp = minExp + rand.Float64()*(maxExp-minExp)
	}
	if exp < 0 {
		exp = 0
	}
	return time.Duration(exp), true
}
