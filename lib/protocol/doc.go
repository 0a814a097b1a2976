// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the orchestrator's wire contract and its
// Unix-socket server and client.
//
// Every request and response is a JSON envelope carrying an integer
// protocolVersion; a mismatch on either side is an explicit protocol
// error, never a best-effort parse. Each connection serves exactly
// one request-response cycle.
package protocol
