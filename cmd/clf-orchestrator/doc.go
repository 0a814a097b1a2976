// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

// The clf-orchestrator daemon owns the CLF job queue. It serves the
// versioned JSON protocol on a Unix socket, leases queued jobs one at
// a time, and runs the cattle.spawn and cattle.reap executors against
// the provisioning driver. One daemon owns one store file; there is
// no cross-process coordination beyond the store's conditional
// writes.
package main
