// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"net"

	"github.com/clawlets/clf/lib/protocol"
)

// Exit codes. Scripts branch on these, so they are part of the CLI
// contract.
const (
	// ExitFatal is an unexpected error: a bug, a corrupt store, an
	// internal daemon failure.
	ExitFatal = 1
	// ExitUser is a caller mistake: bad flags, unknown kind, unsafe
	// env name, unknown job id.
	ExitUser = 2
	// ExitTransient is a condition worth retrying: daemon not
	// running, socket timeout, protocol version skew after a partial
	// upgrade.
	ExitTransient = 3
)

// UsageError is a command-line mistake caught before any RPC: unknown
// subcommand, bad flag, missing argument.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return e.Message }

// ExitError carries an explicit exit code from a command that already
// wrote its own output.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ClassifyExit maps a command error to the process exit code.
func ClassifyExit(err error) int {
	if err == nil {
		return 0
	}

	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		return ExitUser
	}

	var service *protocol.ServiceError
	if errors.As(err, &service) {
		switch service.Code {
		case protocol.CodeValidation, protocol.CodeNotFound:
			return ExitUser
		case protocol.CodeProtocol:
			return ExitTransient
		}
		return ExitFatal
	}

	var protocolErr *protocol.ProtocolError
	if errors.As(err, &protocolErr) {
		return ExitTransient
	}
	// Dial failures and timeouts: daemon not running, socket missing.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ExitTransient
	}

	return ExitFatal
}
