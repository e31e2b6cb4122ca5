// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package retry

import (
	"context"
	"log"
	"time"
)

// Notification describes one upcoming retry. Attempt is 1-based: the
// first retry is attempt 1 of Max.
type Notification struct {
	Attempt  int
	Max      int
	Delay    time.Duration
	Category Category
	Err      error
}

// Controller runs an operation with automatic retries for transient
// failures.
type Controller struct {
	// Policy supplies the delay schedule and retry budget. The zero
	// value uses the defaults.
	Policy Policy

	// OnRetry, if set, is called before each backoff sleep. Callers use
	// it to discard partial output from the failed attempt and surface
	// the retry to the user.
	OnRetry func(Notification)
}

// Run invokes attempt until it succeeds, fails with a non-retryable
// error, exhausts the retry budget, or ctx is cancelled.
//
// Cancellation, whether during an attempt or during a backoff sleep, is
// returned as ctx.Err() without a retry notification. The error from the
// final failed attempt is returned unwrapped so callers can classify it.
func (c *Controller) Run(ctx context.Context, attempt func(ctx context.Context) error) error {
	policy := c.Policy.normalized()

	for n := 0; ; n++ {
		err := attempt(ctx)
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		cat := Classify(err)
		if cat == CategoryCancelled {
			return err
		}
		if !cat.Retryable() || n >= policy.MaxRetries {
			return err
		}

		delay := policy.Delay(n, SuggestedDelay(err))
		note := Notification{
			Attempt:  n + 1,
			Max:      policy.MaxRetries,
			Delay:    delay,
			Category: cat,
			Err:      err,
		}
		log.Printf("retrying after %s error (attempt %d/%d, delay %s): %v",
			cat, note.Attempt, note.Max, delay.Round(time.Millisecond), err)
		if c.OnRetry != nil {
			c.OnRetry(note)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
