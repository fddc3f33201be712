// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package execx

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds retries of transient failures.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first. Zero disables
	// retrying.
	MaxRetries int
	// InitialInterval is the first backoff delay. It grows exponentially.
	InitialInterval time.Duration
	// OnRetry runs after a transient failure, before the backoff sleep.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// RunWithRetry runs cmd and retries it while IsTransient holds for the
// failure. The error of the last attempt is returned.
func RunWithRetry(ctx context.Context, r Runner, cmd Command, policy RetryPolicy) (Result, error) {
	var (
		res     Result
		attempt int
	)

	op := func() error {
		attempt++
		var err error
		res, err = r.Run(ctx, cmd)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = policy.InitialInterval
	expo.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithMaxRetries(expo, uint64(max(policy.MaxRetries, 0)))
	b = backoff.WithContext(b, ctx)

	notify := func(err error, wait time.Duration) {
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err, wait)
		}
	}

	err := backoff.RetryNotify(op, b, notify)
	return res, err
}
