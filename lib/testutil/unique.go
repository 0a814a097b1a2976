// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" with N drawn from
// a process-wide counter. Use this instead of time.Now() when tests
// need distinguishable requesters, cattle names, or idempotency keys.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
