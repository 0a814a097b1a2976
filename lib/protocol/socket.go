// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

// ActionFunc processes one request. The raw parameter is the
// envelope's params field; handlers decode their own typed params
// from it. Return a result value (marshaled into the response's data
// field), or an error for a failure response. Handlers signal their
// error class by returning *queue.ValidationError, ErrNotFound, and
// so on; the server maps those to wire codes.
type ActionFunc func(ctx context.Context, raw json.RawMessage) (any, error)

// ErrorClassifier maps a handler error to a wire error code. The
// daemon installs one that understands the queue package's taxonomy;
// nil means every error is "internal".
type ErrorClassifier func(err error) string

// SocketServer serves the versioned JSON protocol on a Unix socket.
// Each connection is one request-response cycle: the client writes a
// Request envelope, the server writes a Response envelope, the
// connection closes.
//
// Register actions with Handle before calling Serve.
type SocketServer struct {
	socketPath string
	handlers   map[string]ActionFunc
	classify   ErrorClassifier
	logger     *slog.Logger

	// activeConnections tracks in-flight handlers so Serve can drain
	// them before returning on shutdown.
	activeConnections sync.WaitGroup
}

// NewSocketServer creates a server that will listen on socketPath.
func NewSocketServer(socketPath string, classify ErrorClassifier, logger *slog.Logger) *SocketServer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SocketServer{
		socketPath: socketPath,
		handlers:   make(map[string]ActionFunc),
		classify:   classify,
		logger:     logger,
	}
}

// Handle registers a handler for an action name. Panics on duplicate
// registration; that is a wiring bug, not a runtime condition.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("protocol.SocketServer: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// readTimeout is how long the server waits for the client's request.
const readTimeout = 30 * time.Second

// writeTimeout is how long the server waits for the response write.
const writeTimeout = 10 * time.Second

// maxRequestSize bounds a single request envelope. Payloads are task
// descriptions, not bulk data; 1 MB is generous.
const maxRequestSize = 1024 * 1024

// Serve accepts connections and dispatches requests until ctx is
// cancelled, then stops accepting and waits for active handlers.
//
// A stale socket file at the path is removed before listening, and
// the socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// handleConnection processes one request-response cycle.
func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if unixConn, ok := conn.(*net.UnixConn); ok {
		if err := checkPeer(unixConn); err != nil {
			s.logger.Warn("rejected socket peer", "error", err)
			s.writeError(conn, CodeProtocol, "permission denied")
			return
		}
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var request Request
	decoder := json.NewDecoder(io.LimitReader(conn, maxRequestSize))
	if err := decoder.Decode(&request); err != nil {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		s.writeError(conn, CodeProtocol, fmt.Sprintf("invalid request: %v", err))
		return
	}

	if request.ProtocolVersion != Version {
		s.writeError(conn, CodeProtocol,
			fmt.Sprintf("protocol version mismatch: client %d, server %d", request.ProtocolVersion, Version))
		return
	}
	if request.Action == "" {
		s.writeError(conn, CodeProtocol, "missing required field: action")
		return
	}

	handler, exists := s.handlers[request.Action]
	if !exists {
		s.writeError(conn, CodeProtocol, fmt.Sprintf("unknown action %q", request.Action))
		return
	}

	result, err := handler(ctx, request.Params)
	if err != nil {
		code := CodeInternal
		if s.classify != nil {
			code = s.classify(err)
		}
		s.logger.Debug("action failed",
			"action", request.Action,
			"code", code,
			"error", err,
		)
		s.writeError(conn, code, err.Error())
		return
	}

	s.writeSuccess(conn, result)
}

// writeError sends {ok:false, error:{message, code}}. Write failures
// are logged at debug: the connection is closing regardless.
func (s *SocketServer) writeError(conn net.Conn, code, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := json.NewEncoder(conn).Encode(Response{
		ProtocolVersion: Version,
		OK:              false,
		Error:           &ErrorDetail{Message: message, Code: code},
	}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

// writeSuccess sends {ok:true} or {ok:true, data:<json>}.
func (s *SocketServer) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{ProtocolVersion: Version, OK: true}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			s.writeError(conn, CodeInternal, fmt.Sprintf("marshaling response: %v", err))
			return
		}
		response.Data = data
	}

	if err := json.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
