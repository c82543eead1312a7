package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/coursemark/forge/internal"
)

// lockRetryConfig is the exponential backoff applied to transient lock
// contention: start 50ms, factor 2, max 2s, cap at 5 retries, per the
// Durable Store's failure-handling design.
var lockRetryConfig = internal.BackoffConfig{
	MaxRetries:      5,
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	Multiplier:      2,
}

func isTransientLockErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "locked") || strings.Contains(msg, "busy")
}

// withRetry runs fn, retrying on transient lock contention with
// exponential backoff. If retries are exhausted it returns the last
// error unchanged.
func withRetry(ctx context.Context, fn func(context.Context) error) error {
	counter := internal.NewCounter(lockRetryConfig)
	var attempt uint32
	for {
		attempt++
		err := fn(ctx)
		if err == nil || !isTransientLockErr(err) {
			return err
		}
		delay, ok := counter.Next(attempt)
		if !ok {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// withImmediateTx runs fn inside a BEGIN IMMEDIATE transaction: the
// writer lock is acquired up front rather than lazily on the first
// write, so two concurrent multi-statement writers fail fast instead of
// deadlocking each other partway through. database/sql's Tx offers no
// way to choose SQLite's BEGIN mode, so a raw connection is used
// instead and committed/rolled back manually — the standard workaround
// for BEGIN IMMEDIATE with SQLite from Go.
func withImmediateTx(ctx context.Context, db *bun.DB, fn func(context.Context, bun.IDB) error) error {
	return withRetry(ctx, func(ctx context.Context) error {
		conn, err := db.Conn(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()
		if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
			return err
		}
		if err := fn(ctx, conn); err != nil {
			_, rbErr := conn.ExecContext(ctx, "ROLLBACK")
			return errors.Join(err, rbErr)
		}
		_, err = conn.ExecContext(ctx, "COMMIT")
		return err
	})
}
