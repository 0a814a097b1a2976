// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint-level helpers shared by the CLF
// binaries.
package process
