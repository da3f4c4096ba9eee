// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package retry provides the bounded exponential-backoff helper the ledger
// RPC client uses for transient failures. The persistent store does not use
// it; store operations are not retried.
package retry

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// Do runs fn, retrying on error with exponential backoff up to maxAttempts
// times total (including the first attempt). It stops early if ctx is
// canceled or fn returns a *Permanent error.
func Do(ctx context.Context, maxAttempts uint64, fn func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1), ctx)
	return backoff.Retry(fn, b)
}

// Permanent wraps an error to signal Do should stop retrying immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
