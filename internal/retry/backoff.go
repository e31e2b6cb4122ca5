// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package retry

import (
	"math/rand"
	"time"
)

// Default backoff tuning.
const (
	// DefaultBaseDelay is the first retry delay before jitter.
	DefaultBaseDelay = 1000 * time.Millisecond

	// DefaultMaxDelay caps any computed or suggested delay.
	DefaultMaxDelay = 30 * time.Second

	// DefaultJitterFraction is the symmetric jitter applied to computed
	// delays (0.2 = plus or minus 20%).
	DefaultJitterFraction = 0.2

	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3
)

// Policy computes retry delays.
type Policy struct {
	// BaseDelay is the delay for the first retry (attempt 0).
	BaseDelay time.Duration

	// MaxDelay clamps every delay, suggested or computed.
	MaxDelay time.Duration

	// JitterFraction is the symmetric jitter applied to computed delays.
	// Suggested delays are used as-is.
	JitterFraction float64

	// MaxRetries is the retry budget after the initial attempt.
	MaxRetries int

	// rng allows deterministic tests; nil uses the package default.
	rng *rand.Rand
}

// DefaultPolicy returns a policy with the default tuning.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:      DefaultBaseDelay,
		MaxDelay:       DefaultMaxDelay,
		JitterFraction: DefaultJitterFraction,
		MaxRetries:     DefaultMaxRetries,
	}
}

// normalized fills zero fields with defaults.
func (p Policy) normalized() Policy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return p
}

// Delay computes the backoff before retry number attempt (0-based). A
// positive suggested delay from the provider takes precedence and is
// clamped to MaxDelay without jitter. Otherwise the delay is
// BaseDelay * 2^attempt with symmetric jitter, clamped to [0, MaxDelay].
func (p Policy) Delay(attempt int, suggested time.Duration) time.Duration {
	p = p.normalized()

	if suggested > 0 {
		if suggested > p.MaxDelay {
			return p.MaxDelay
		}
		return suggested
	}

	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}

	if p.JitterFraction > 0 {
		// jitter in [-fraction, +fraction]
		f := p.JitterFraction * (2*p.random() - 1)
		delay += time.Duration(float64(delay) * f)
	}

	if delay < 0 {
		delay = 0
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

func (p Policy) random() float64 {
	if p.rng != nil {
		return p.rng.Float64()
	}
	return rand.Float64()
}
