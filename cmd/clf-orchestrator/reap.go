// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clawlets/clf/lib/provision"
	"github.com/clawlets/clf/lib/queue"
)

// reapResult is persisted as the job result on success.
type reapResult struct {
	DryRun  bool     `json:"dryRun"`
	Checked int      `json:"checked"`
	Reaped  []string `json:"reaped"`
}

// executeReap destroys instances past their TTL and orphans (no
// recorded creation time). With dryRun set it only reports what it
// would destroy.
func (o *Orchestrator) executeReap(ctx context.Context, job *queue.Job) (json.RawMessage, error) {
	payload, err := queue.DecodeReapPayload(job.Payload)
	if err != nil {
		return nil, err
	}

	instances, err := o.driver.List(ctx)
	if err != nil {
		return nil, err
	}

	now := o.clock.Now()
	reaped := []string{}
	var failed []string
	for _, instance := range instances {
		if !reapable(instance, now) {
			continue
		}
		if payload.DryRun {
			reaped = append(reaped, instance.Name)
			continue
		}
		if err := o.driver.Destroy(ctx, instance.Name); err != nil {
			o.logger.Warn("destroy failed",
				"job_id", job.JobID,
				"name", instance.Name,
				"error", err,
			)
			failed = append(failed, instance.Name)
			continue
		}
		reaped = append(reaped, instance.Name)
	}

	if len(failed) > 0 {
		// Retry the whole job: already-destroyed instances drop out
		// of the next List, so the retry only revisits the failures.
		return nil, provision.Transient(fmt.Errorf("failed to destroy %d of %d instances: %v",
			len(failed), len(failed)+len(reaped), failed))
	}

	return json.Marshal(reapResult{
		DryRun:  payload.DryRun,
		Checked: len(instances),
		Reaped:  reaped,
	})
}

// reapable reports whether an instance is past its TTL, or an orphan
// with no recorded creation time at all.
func reapable(instance provision.Instance, now time.Time) bool {
	if instance.CreatedAt.IsZero() {
		return true
	}
	if instance.TTL <= 0 {
		return false
	}
	return !now.Before(instance.CreatedAt.Add(instance.TTL))
}
