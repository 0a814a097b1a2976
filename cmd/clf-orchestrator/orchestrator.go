// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/clawlets/clf/lib/bootstrap"
	"github.com/clawlets/clf/lib/clock"
	"github.com/clawlets/clf/lib/provision"
	"github.com/clawlets/clf/lib/queue"
)

// Orchestrator wires the queue store, token service, and provisioning
// driver together and drives leased jobs to a terminal state.
type Orchestrator struct {
	store  *queue.Store
	tokens *bootstrap.Service
	driver provision.Driver
	clock  clock.Clock
	logger *slog.Logger

	pollInterval  time.Duration
	pruneInterval time.Duration
	startedAt     time.Time
}

type orchestratorConfig struct {
	Store         *queue.Store
	Tokens        *bootstrap.Service
	Driver        provision.Driver
	Clock         clock.Clock
	Logger        *slog.Logger
	PollInterval  time.Duration
	PruneInterval time.Duration
}

func newOrchestrator(cfg orchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	pruneInterval := cfg.PruneInterval
	if pruneInterval <= 0 {
		pruneInterval = 5 * time.Minute
	}
	return &Orchestrator{
		store:         cfg.Store,
		tokens:        cfg.Tokens,
		driver:        cfg.Driver,
		clock:         cfg.Clock,
		logger:        logger,
		pollInterval:  pollInterval,
		pruneInterval: pruneInterval,
		startedAt:     cfg.Clock.Now(),
	}
}

// runWorker polls the queue and executes leased jobs until ctx is
// cancelled. Jobs run one at a time: provisioning calls are the slow
// path and the store serializes leasing anyway.
func (o *Orchestrator) runWorker(ctx context.Context) {
	ticker := o.clock.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Drain all eligible jobs on each tick so a burst does not
		// pay one poll interval per job.
		for {
			worked, err := o.tick(ctx)
			if err != nil {
				o.logger.Error("worker tick failed", "error", err)
				break
			}
			if !worked {
				break
			}
		}
	}
}

// tick leases and executes at most one job. Returns whether a job was
// leased. Executor failures are recorded on the job, not returned:
// the error return is for store-level trouble only.
func (o *Orchestrator) tick(ctx context.Context) (bool, error) {
	job, err := o.store.Lease(ctx)
	if err != nil {
		return false, fmt.Errorf("leasing: %w", err)
	}
	if job == nil {
		return false, nil
	}

	o.logger.Info("executing job",
		"job_id", job.JobID,
		"kind", job.Kind,
		"attempt", job.Attempt,
	)

	result, execErr := o.execute(ctx, job)
	if execErr != nil {
		o.logger.Warn("job execution failed",
			"job_id", job.JobID,
			"kind", job.Kind,
			"attempt", job.Attempt,
			"transient", provision.IsTransient(execErr),
			"error", execErr,
		)
		if err := o.store.Fail(ctx, job.JobID, execErr.Error()); err != nil {
			return true, fmt.Errorf("recording failure for %s: %w", job.JobID, err)
		}
		return true, nil
	}

	if err := o.store.Complete(ctx, job.JobID, result); err != nil {
		// A concurrent cancel can beat us to the row. The work is
		// done either way; log and move on.
		o.logger.Warn("could not mark job succeeded",
			"job_id", job.JobID,
			"error", err,
		)
		return true, nil
	}
	o.logger.Info("job succeeded", "job_id", job.JobID, "kind", job.Kind)
	return true, nil
}

// execute dispatches to the executor for the job's kind.
func (o *Orchestrator) execute(ctx context.Context, job *queue.Job) (json.RawMessage, error) {
	switch job.Kind {
	case queue.KindCattleSpawn:
		return o.executeSpawn(ctx, job)
	case queue.KindCattleReap:
		return o.executeReap(ctx, job)
	}
	// Enqueue validation makes this unreachable; fail terminally
	// rather than retry a job no executor will ever handle.
	return nil, fmt.Errorf("no executor for job kind %q", job.Kind)
}

// runPruner garbage-collects expired and used bootstrap tokens until
// ctx is cancelled.
func (o *Orchestrator) runPruner(ctx context.Context) {
	ticker := o.clock.NewTicker(o.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pruned, err := o.tokens.Prune(ctx)
		if err != nil {
			o.logger.Error("token prune failed", "error", err)
			continue
		}
		if pruned > 0 {
			o.logger.Info("pruned bootstrap tokens", "count", pruned)
		}
	}
}
