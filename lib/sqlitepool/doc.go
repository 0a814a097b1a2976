// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite connection pools with the pragmas
// every CLF store relies on: WAL journaling, a busy timeout, and
// in-memory temp storage. The queue store is the only direct owner of
// a pool; other components borrow connections through it.
package sqlitepool
