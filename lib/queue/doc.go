// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue is the durable job store behind the CLF orchestrator.
//
// A single Store owns the SQLite file and both tables (jobs and
// bootstrap_tokens). Every state transition is a conditional write
// checked against the number of rows it changed, so exactly one
// caller wins any race: leasing a queued job, completing or failing a
// running one, and redeeming a one-time bootstrap token all hold
// under concurrent callers and daemon restarts mid-operation.
//
// The orchestrator daemon and the bootstrap token service are callers
// of this store, never co-owners of the underlying pool.
package queue
