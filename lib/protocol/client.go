// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/clawlets/clf/lib/queue"
)

// dialTimeout covers only the connect phase; the server's own
// timeouts bound the rest.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long the client waits for the response
// after writing its request, sized to the server's read plus write
// timeouts and handler execution.
const responseReadTimeout = 45 * time.Second

// maxResponseSize matches the server's request bound for symmetry.
const maxResponseSize = 1024 * 1024

// Client calls the orchestrator socket. Each call opens a fresh
// connection, matching the server's one-request-per-connection model.
type Client struct {
	socketPath string
}

// NewClient creates a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Call sends one action with typed params, decoding the response's
// data field into result when result is non-nil. An ok=false reply
// becomes a *ServiceError; envelope and version trouble becomes a
// *ProtocolError.
func (c *Client) Call(ctx context.Context, action string, params any, result any) error {
	var rawParams json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encoding %q params: %w", action, err)
		}
		rawParams = encoded
	}

	response, err := c.send(ctx, Request{
		ProtocolVersion: Version,
		Action:          action,
		Params:          rawParams,
	})
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}

	if response.ProtocolVersion != Version {
		return &ProtocolError{Message: fmt.Sprintf(
			"protocol version mismatch: server %d, client %d", response.ProtocolVersion, Version)}
	}

	if !response.OK {
		detail := response.Error
		if detail == nil {
			detail = &ErrorDetail{Message: "unknown error"}
		}
		return &ServiceError{
			Action:  action,
			Message: detail.Message,
			Code:    detail.Code,
		}
	}

	if result != nil && len(response.Data) > 0 {
		if err := json.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding %q response data: %w", action, err)
		}
	}
	return nil
}

// send connects, writes the request, and reads the response.
func (c *Client) send(ctx context.Context, request Request) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	// Half-close the write side so the server's decoder sees a clean
	// EOF after the envelope.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := json.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}

// --- Typed wrappers, the contract the CLI programs against ---

// Health checks daemon liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.Call(ctx, ActionHealth, nil, nil)
}

// Info returns daemon uptime and store counts.
func (c *Client) Info(ctx context.Context) (*InfoResult, error) {
	var result InfoResult
	if err := c.Call(ctx, ActionInfo, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Enqueue submits a job and returns its ID (existing ID on an
// idempotent replay).
func (c *Client) Enqueue(ctx context.Context, params EnqueueParams) (*EnqueueResult, error) {
	var result EnqueueResult
	if err := c.Call(ctx, ActionEnqueue, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// List returns job summaries matching the filter.
func (c *Client) List(ctx context.Context, params ListParams) (*ListResult, error) {
	var result ListResult
	if err := c.Call(ctx, ActionList, params, &result); err != nil {
		return nil, err
	}
	if result.Jobs == nil {
		result.Jobs = []queue.Summary{}
	}
	return &result, nil
}

// Show returns the full record for one job.
func (c *Client) Show(ctx context.Context, jobID string) (*queue.Job, error) {
	var result ShowResult
	if err := c.Call(ctx, ActionShow, ShowParams{JobID: jobID}, &result); err != nil {
		return nil, err
	}
	return result.Job, nil
}

// Cancel requests cancellation of a job. Succeeds even when the job
// already finished naturally.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	return c.Call(ctx, ActionCancel, CancelParams{JobID: jobID}, nil)
}

// Redeem exchanges a bootstrap token for its binding. Found is false
// for anything that does not redeem.
func (c *Client) Redeem(ctx context.Context, token string) (*RedeemResult, error) {
	var result RedeemResult
	if err := c.Call(ctx, ActionRedeem, RedeemParams{Token: token}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
