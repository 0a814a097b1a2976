// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the orchestrator so that retry
// delays, token expiry, and poll tickers are deterministic in tests.
// Production code injects Real(); tests inject Fake() and advance it
// explicitly.
package clock
