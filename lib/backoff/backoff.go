// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

// Package backoff computes retry delays for failed jobs. The policy
// is deliberately deterministic: no jitter, so a job's next eligible
// time is reproducible from its attempt count alone.
package backoff

import "time"

// DefaultPolicy is the orchestrator's standard retry policy: 1s base
// doubling up to a 60s ceiling.
var DefaultPolicy = Policy{
	Base: time.Second,
	Max:  time.Minute,
}

// Policy computes exponential retry delays. The zero value is not
// usable; construct with a positive Base. Max below Base is treated
// as Base.
type Policy struct {
	// Base is the delay before the first retry.
	Base time.Duration

	// Max caps the delay regardless of attempt count.
	Max time.Duration
}

// Delay returns the wait before retry number attempt: base doubled
// per prior attempt, capped at Max. Attempt values below 1 are
// clamped to 1, so Delay(1) == Base.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	maxDelay := p.Max
	if maxDelay < p.Base {
		maxDelay = p.Base
	}

	delay := p.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay || delay <= 0 {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
