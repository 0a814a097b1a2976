// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"os"

	"github.com/clawlets/clf/lib/config"
	"github.com/clawlets/clf/lib/protocol"
)

// SocketOptions is embedded in a command's params struct to add the
// --socket flag. Precedence: flag, then CLF_SOCKET, then the built-in
// default.
type SocketOptions struct {
	Socket string `flag:"socket" desc:"orchestrator socket path (default: $CLF_SOCKET or /run/clf/orchestrator.sock)"`
}

// Path resolves the socket path.
func (o *SocketOptions) Path() string {
	if o.Socket != "" {
		return o.Socket
	}
	if env := os.Getenv(config.EnvSocket); env != "" {
		return env
	}
	return protocol.DefaultSocketPath
}

// Client returns a protocol client for the resolved socket.
func (o *SocketOptions) Client() *protocol.Client {
	return protocol.NewClient(o.Path())
}
