// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger builds the logger for CLI diagnostics. Terminals
// get text output; pipes and CI get JSON matching the daemon's log
// format.
func NewCommandLogger() *slog.Logger {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	return slog.New(newCommandHandler(os.Stderr, isTerminal))
}

func newCommandHandler(w io.Writer, isTerminal bool) slog.Handler {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if isTerminal {
		return slog.NewTextHandler(w, options)
	}
	return slog.NewJSONHandler(w, options)
}
