// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/clawlets/clf/lib/bootstrap"
	"github.com/clawlets/clf/lib/queue"
)

// Version is the protocol revision both sides must agree on. Bump it
// when an envelope or action shape changes incompatibly.
const Version = 1

// DefaultSocketPath is where the orchestrator listens unless
// overridden by configuration, CLF_SOCKET, or --socket.
const DefaultSocketPath = "/run/clf/orchestrator.sock"

// Action names served by the orchestrator.
const (
	ActionHealth  = "health"
	ActionInfo    = "info"
	ActionEnqueue = "enqueue"
	ActionList    = "list"
	ActionShow    = "show"
	ActionCancel  = "cancel"
	ActionRedeem  = "redeem"
)

// Request is the wire envelope for every call.
type Request struct {
	ProtocolVersion int             `json:"protocolVersion"`
	Action          string          `json:"action"`
	Params          json.RawMessage `json:"params,omitempty"`
}

// Response is the wire envelope for every reply.
type Response struct {
	ProtocolVersion int             `json:"protocolVersion"`
	OK              bool            `json:"ok"`
	Error           *ErrorDetail    `json:"error,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
}

// ErrorDetail carries a failure across the wire. Code lets the client
// classify without parsing the message; absent codes mean "internal".
type ErrorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error codes mirroring the daemon-side error taxonomy.
const (
	CodeValidation = "validation"
	CodeNotFound   = "not_found"
	CodeProtocol   = "protocol"
	CodeInternal   = "internal"
)

// ServiceError is returned by the client when the server answered
// with ok=false.
type ServiceError struct {
	Action  string
	Message string
	Code    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("orchestrator error on %q: %s", e.Action, e.Message)
}

// ProtocolError reports a version mismatch or a malformed envelope.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string { return e.Message }

// --- Typed action params and results ---

// EnqueueParams is the "enqueue" action's params.
type EnqueueParams struct {
	Requester      string          `json:"requester"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	Kind           string          `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
	RunAt          *time.Time      `json:"runAt,omitempty"`
	Priority       int             `json:"priority,omitempty"`
	MaxAttempts    int             `json:"maxAttempts,omitempty"`
}

// EnqueueResult is the "enqueue" action's data.
type EnqueueResult struct {
	JobID string `json:"jobId"`
}

// ListParams is the "list" action's params. Empty fields mean no
// filter.
type ListParams struct {
	Requester string `json:"requester,omitempty"`
	Status    string `json:"status,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// ListResult is the "list" action's data.
type ListResult struct {
	Jobs []queue.Summary `json:"jobs"`
}

// ShowParams is the "show" action's params.
type ShowParams struct {
	JobID string `json:"jobId"`
}

// ShowResult is the "show" action's data.
type ShowResult struct {
	Job *queue.Job `json:"job"`
}

// CancelParams is the "cancel" action's params.
type CancelParams struct {
	JobID string `json:"jobId"`
}

// InfoResult is the "info" action's data.
type InfoResult struct {
	UptimeSeconds int            `json:"uptimeSeconds"`
	Jobs          map[string]int `json:"jobs"`
	Tokens        int            `json:"tokens"`
}

// RedeemParams is the "redeem" action's params, used by the
// co-located bootstrap front-end on behalf of a booting instance.
type RedeemParams struct {
	Token string `json:"token"`
}

// RedeemResult is the "redeem" action's data. Found is false for any
// token that does not redeem; the result never says why.
type RedeemResult struct {
	Found   bool               `json:"found"`
	Binding *bootstrap.Binding `json:"binding,omitempty"`
}
