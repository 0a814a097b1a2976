// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for CLF packages.
package testutil
