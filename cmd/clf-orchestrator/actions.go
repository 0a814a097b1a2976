// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clawlets/clf/lib/protocol"
	"github.com/clawlets/clf/lib/queue"
)

// registerActions registers the socket API on the server.
func (o *Orchestrator) registerActions(server *protocol.SocketServer) {
	server.Handle(protocol.ActionHealth, o.handleHealth)
	server.Handle(protocol.ActionInfo, o.handleInfo)
	server.Handle(protocol.ActionEnqueue, o.handleEnqueue)
	server.Handle(protocol.ActionList, o.handleList)
	server.Handle(protocol.ActionShow, o.handleShow)
	server.Handle(protocol.ActionCancel, o.handleCancel)
	server.Handle(protocol.ActionRedeem, o.handleRedeem)
}

// classifyError maps handler errors to wire error codes.
func classifyError(err error) string {
	var validation *queue.ValidationError
	if errors.As(err, &validation) {
		return protocol.CodeValidation
	}
	if errors.Is(err, queue.ErrNotFound) {
		return protocol.CodeNotFound
	}
	return protocol.CodeInternal
}

// decodeParams decodes an action's params into target. Missing params
// decode as the zero value; handlers validate required fields.
func decodeParams(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return &queue.ValidationError{Message: fmt.Sprintf("malformed params: %v", err)}
	}
	return nil
}

func (o *Orchestrator) handleHealth(ctx context.Context, raw json.RawMessage) (any, error) {
	return nil, nil
}

func (o *Orchestrator) handleInfo(ctx context.Context, raw json.RawMessage) (any, error) {
	counts, err := o.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	tokens, err := o.store.CountTokens(ctx)
	if err != nil {
		return nil, err
	}

	jobs := make(map[string]int, len(counts))
	for status, count := range counts {
		jobs[string(status)] = count
	}
	uptime := o.clock.Now().Sub(o.startedAt)
	return protocol.InfoResult{
		UptimeSeconds: int(uptime.Seconds()),
		Jobs:          jobs,
		Tokens:        tokens,
	}, nil
}

func (o *Orchestrator) handleEnqueue(ctx context.Context, raw json.RawMessage) (any, error) {
	var params protocol.EnqueueParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}

	job, err := o.store.Enqueue(ctx, queue.EnqueueParams{
		Kind:           queue.Kind(params.Kind),
		Requester:      params.Requester,
		Payload:        params.Payload,
		IdempotencyKey: params.IdempotencyKey,
		RunAt:          params.RunAt,
		Priority:       params.Priority,
		MaxAttempts:    params.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	return protocol.EnqueueResult{JobID: job.JobID}, nil
}

func (o *Orchestrator) handleList(ctx context.Context, raw json.RawMessage) (any, error) {
	var params protocol.ListParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}

	filter := queue.ListFilter{
		Requester: params.Requester,
		Kind:      queue.Kind(params.Kind),
		Limit:     params.Limit,
	}
	if params.Status != "" {
		status, err := queue.ParseStatus(params.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}

	jobs, err := o.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []queue.Summary{}
	}
	return protocol.ListResult{Jobs: jobs}, nil
}

func (o *Orchestrator) handleShow(ctx context.Context, raw json.RawMessage) (any, error) {
	var params protocol.ShowParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.JobID == "" {
		return nil, &queue.ValidationError{Message: "jobId is required"}
	}

	job, err := o.store.Show(ctx, params.JobID)
	if err != nil {
		return nil, err
	}
	return protocol.ShowResult{Job: job}, nil
}

func (o *Orchestrator) handleCancel(ctx context.Context, raw json.RawMessage) (any, error) {
	var params protocol.CancelParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.JobID == "" {
		return nil, &queue.ValidationError{Message: "jobId is required"}
	}

	if err := o.store.Cancel(ctx, params.JobID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (o *Orchestrator) handleRedeem(ctx context.Context, raw json.RawMessage) (any, error) {
	var params protocol.RedeemParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.Token == "" {
		return nil, &queue.ValidationError{Message: "token is required"}
	}

	binding, err := o.tokens.Consume(ctx, params.Token)
	if err != nil {
		return nil, err
	}
	return protocol.RedeemResult{
		Found:   binding != nil,
		Binding: binding,
	}, nil
}
