// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

// Package bootstrap issues and redeems the single-use credentials
// that let a freshly booted cattle instance authenticate itself and
// fetch its task, so no long-lived secret is ever baked into an
// image.
//
// A token is 256 bits of randomness whose plaintext exists exactly
// once, in the Create return value; only its SHA-256 digest is
// persisted. Redemption is a single conditional write in the queue
// store, so concurrent redemption attempts have exactly one winner.
// Unknown, already-used, and expired tokens are deliberately
// indistinguishable to the caller.
package bootstrap
