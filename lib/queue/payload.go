// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clawlets/clf/lib/envname"
)

// Task is the versioned work description handed to a spawned
// instance. The instance reports completion to CallbackURL on its
// own; the orchestrator never waits for it.
type Task struct {
	SchemaVersion int    `json:"schemaVersion"`
	TaskID        string `json:"taskId"`
	Type          string `json:"type"`
	Message       string `json:"message"`
	CallbackURL   string `json:"callbackUrl,omitempty"`
}

// taskSchemaVersion is the only task schema this build understands.
const taskSchemaVersion = 1

// SpawnPayload is the cattle.spawn job payload: what to provision and
// what the instance is allowed to see once it authenticates.
type SpawnPayload struct {
	Persona string `json:"persona"`
	Task    Task   `json:"task"`

	// TTL is the instance lifetime as a Go duration string. Empty
	// means the provisioner's default.
	TTL string `json:"ttl,omitempty"`

	Image        string `json:"image,omitempty"`
	ServerType   string `json:"serverType,omitempty"`
	Location     string `json:"location,omitempty"`
	AutoShutdown bool   `json:"autoShutdown,omitempty"`

	// EnvKeys are the secret names the instance may resolve after
	// redeeming its bootstrap token. Names are validated here, at
	// the enqueue boundary, so an executor never sees an unsafe one.
	EnvKeys []string `json:"envKeys,omitempty"`

	// PublicEnv is disclosed to the instance before redemption
	// completes. Keys must carry the CLAWLETS_ namespace prefix.
	PublicEnv map[string]string `json:"publicEnv,omitempty"`
}

// ReapPayload is the cattle.reap job payload.
type ReapPayload struct {
	DryRun bool `json:"dryRun"`
}

// ValidatePayload decodes and validates raw as the payload variant
// for kind. Returns a *ValidationError for unknown kinds, unknown
// fields, and any constraint violation. No write happens until this
// passes.
func ValidatePayload(kind Kind, raw json.RawMessage) error {
	switch kind {
	case KindCattleSpawn:
		var payload SpawnPayload
		if err := decodeStrict(raw, &payload); err != nil {
			return &ValidationError{Message: fmt.Sprintf("malformed %s payload: %v", kind, err)}
		}
		return validateSpawn(&payload)
	case KindCattleReap:
		var payload ReapPayload
		if err := decodeStrict(raw, &payload); err != nil {
			return &ValidationError{Message: fmt.Sprintf("malformed %s payload: %v", kind, err)}
		}
		return nil
	}
	return &ValidationError{Message: fmt.Sprintf("unknown job kind %q (known: %v)", kind, KnownKinds())}
}

// DecodeSpawnPayload decodes a payload previously accepted by
// ValidatePayload. Executors call this on leased jobs.
func DecodeSpawnPayload(raw json.RawMessage) (*SpawnPayload, error) {
	var payload SpawnPayload
	if err := decodeStrict(raw, &payload); err != nil {
		return nil, fmt.Errorf("decoding spawn payload: %w", err)
	}
	return &payload, nil
}

// DecodeReapPayload decodes a payload previously accepted by
// ValidatePayload.
func DecodeReapPayload(raw json.RawMessage) (*ReapPayload, error) {
	var payload ReapPayload
	if err := decodeStrict(raw, &payload); err != nil {
		return nil, fmt.Errorf("decoding reap payload: %w", err)
	}
	return &payload, nil
}

func validateSpawn(payload *SpawnPayload) error {
	if payload.Persona == "" {
		return &ValidationError{Message: "spawn payload: persona is required"}
	}
	if payload.Task.SchemaVersion != taskSchemaVersion {
		return &ValidationError{Message: fmt.Sprintf("spawn payload: task schemaVersion %d not supported (want %d)", payload.Task.SchemaVersion, taskSchemaVersion)}
	}
	if payload.Task.TaskID == "" {
		return &ValidationError{Message: "spawn payload: task.taskId is required"}
	}
	if payload.Task.Type == "" {
		return &ValidationError{Message: "spawn payload: task.type is required"}
	}
	if payload.Task.Message == "" {
		return &ValidationError{Message: "spawn payload: task.message is required"}
	}
	if payload.TTL != "" {
		if _, err := time.ParseDuration(payload.TTL); err != nil {
			return &ValidationError{Message: fmt.Sprintf("spawn payload: bad ttl %q: %v", payload.TTL, err)}
		}
	}
	for _, key := range payload.EnvKeys {
		if err := envname.Check(key); err != nil {
			return &ValidationError{Message: fmt.Sprintf("spawn payload: envKeys: %v", err)}
		}
	}
	for key := range payload.PublicEnv {
		if err := envname.CheckPublic(key); err != nil {
			return &ValidationError{Message: fmt.Sprintf("spawn payload: publicEnv: %v", err)}
		}
	}
	return nil
}

// decodeStrict decodes JSON rejecting unknown fields and trailing
// garbage, so payload typos fail at the boundary instead of becoming
// silently ignored settings.
func decodeStrict(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return err
	}
	if decoder.More() {
		return fmt.Errorf("trailing data after payload")
	}
	return nil
}
