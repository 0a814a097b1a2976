// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// checkPeer enforces that the connecting process runs as the same
// user as the orchestrator, or as root. The socket file mode is the
// first line of defense; SO_PEERCRED closes the gap when the socket
// directory is more permissive than intended.
func checkPeer(conn *net.UnixConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("peer credentials: %w", err)
	}

	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return fmt.Errorf("peer credentials: %w", err)
	}
	if credErr != nil {
		return fmt.Errorf("peer credentials: %w", credErr)
	}

	uid := uint32(os.Getuid())
	if cred.Uid != uid && cred.Uid != 0 {
		return fmt.Errorf("peer uid %d is neither %d nor root", cred.Uid, uid)
	}
	return nil
}
