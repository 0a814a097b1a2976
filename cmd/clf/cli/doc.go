// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the clf binary: a
// pflag-based command tree with struct-tag flag binding, --json
// output embedding, and the exit-code taxonomy the orchestrator's
// error classes map onto.
package cli
