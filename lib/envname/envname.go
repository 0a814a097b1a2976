// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

// Package envname validates environment-variable names before they
// are attached to bootstrap tokens. Every name a token carries is
// eventually exported into the shell environment of a freshly booted,
// internet-reachable instance, so this grammar is a security
// boundary, not a style check.
package envname

import (
	"fmt"
	"strings"
)

// PublicPrefix is the mandatory namespace for pre-disclosed public
// environment keys. The prefix fences public values into a namespace
// no unrelated software reads, so a misconfigured token cannot shadow
// PATH, LD_PRELOAD, or similar.
const PublicPrefix = "CLAWLETS_"

// maxNameLength bounds names well under common environment limits.
const maxNameLength = 128

// Valid reports whether name matches the safe identifier grammar:
// an ASCII uppercase letter or underscore, followed by uppercase
// letters, digits, or underscores, at most 128 bytes.
func Valid(name string) bool {
	if name == "" || len(name) > maxNameLength {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Check returns an error describing why name is unsafe, or nil.
func Check(name string) error {
	if !Valid(name) {
		return fmt.Errorf("unsafe environment variable name %q (must match [A-Z_][A-Z0-9_]*, max %d bytes)", name, maxNameLength)
	}
	return nil
}

// CheckPublic validates a public-env key: the safe grammar plus the
// mandatory CLAWLETS_ prefix.
func CheckPublic(name string) error {
	if err := Check(name); err != nil {
		return err
	}
	if !strings.HasPrefix(name, PublicPrefix) {
		return fmt.Errorf("public env key %q must start with %s", name, PublicPrefix)
	}
	return nil
}
