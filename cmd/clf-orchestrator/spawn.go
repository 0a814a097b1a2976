// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/clawlets/clf/lib/bootstrap"
	"github.com/clawlets/clf/lib/provision"
	"github.com/clawlets/clf/lib/queue"
)

// userDataTokenKey is where the bootstrap token lands in the
// instance's startup data. The instance redeems it against the
// bootstrap front-end exactly once to fetch its task and secrets.
const userDataTokenKey = "CLF_BOOTSTRAP_TOKEN"

// userDataTaskIDKey tells the instance which task it was spawned for,
// before redemption completes.
const userDataTaskIDKey = "CLAWLETS_TASK_ID"

// spawnResult is persisted as the job result on success.
type spawnResult struct {
	CattleName     string    `json:"cattleName"`
	InstanceID     string    `json:"instanceId"`
	IPv4           string    `json:"ipv4"`
	TokenExpiresAt time.Time `json:"tokenExpiresAt"`
}

// executeSpawn provisions one cattle instance for a leased
// cattle.spawn job. The job succeeds once the provisioning call
// returns; the instance reports its own task completion through the
// payload's callback URL, outside this daemon.
func (o *Orchestrator) executeSpawn(ctx context.Context, job *queue.Job) (json.RawMessage, error) {
	payload, err := queue.DecodeSpawnPayload(job.Payload)
	if err != nil {
		// Enqueue validated the payload; a decode failure here means
		// the stored row is corrupt. Not retryable.
		return nil, err
	}

	var ttl time.Duration
	if payload.TTL != "" {
		ttl, err = time.ParseDuration(payload.TTL)
		if err != nil {
			return nil, fmt.Errorf("bad ttl %q: %w", payload.TTL, err)
		}
	}

	cattleName := cattleName(payload.Persona, job.JobID)

	// Mint the token first: it has to ride in the instance's startup
	// data. If provisioning then fails, the token is never disclosed
	// and dies at its expiry.
	created, err := o.tokens.Create(ctx, bootstrap.CreateParams{
		JobID:      job.JobID,
		Requester:  job.Requester,
		CattleName: cattleName,
		EnvKeys:    payload.EnvKeys,
		PublicEnv:  payload.PublicEnv,
	})
	if err != nil {
		return nil, err
	}

	userData := map[string]string{
		userDataTokenKey:  created.Token,
		userDataTaskIDKey: payload.Task.TaskID,
	}
	for key, value := range payload.PublicEnv {
		userData[key] = value
	}

	result, err := o.driver.Create(ctx, provision.Spec{
		Name:         cattleName,
		Persona:      payload.Persona,
		Image:        payload.Image,
		ServerType:   payload.ServerType,
		Location:     payload.Location,
		TTL:          ttl,
		AutoShutdown: payload.AutoShutdown,
		UserData:     userData,
	}, provision.Runtime{
		JobID:     job.JobID,
		Requester: job.Requester,
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(spawnResult{
		CattleName:     cattleName,
		InstanceID:     result.InstanceID,
		IPv4:           result.IPv4,
		TokenExpiresAt: created.ExpiresAt,
	})
}

// cattleName derives a unique, human-scannable instance name from the
// persona and the job id.
func cattleName(persona, jobID string) string {
	short := strings.ReplaceAll(jobID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("cattle-%s-%s", persona, short)
}
