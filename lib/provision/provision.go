// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Spec describes the instance to create. UserData is the startup
// payload handed to the instance verbatim; the spawn executor puts the
// bootstrap token and public environment in there.
type Spec struct {
	Name         string            `json:"name"`
	Persona      string            `json:"persona"`
	Image        string            `json:"image,omitempty"`
	ServerType   string            `json:"serverType,omitempty"`
	Location     string            `json:"location,omitempty"`
	TTL          time.Duration     `json:"-"`
	TTLSeconds   int64             `json:"ttlSeconds,omitempty"`
	AutoShutdown bool              `json:"autoShutdown,omitempty"`
	UserData     map[string]string `json:"userData,omitempty"`
}

// Runtime carries the orchestration context for a driver call, kept
// separate from Spec so the driver can label cloud resources with
// where they came from.
type Runtime struct {
	JobID     string `json:"jobId"`
	Requester string `json:"requester"`
}

// Result is what a successful create returns.
type Result struct {
	InstanceID string `json:"instanceId"`
	IPv4       string `json:"ipv4"`
}

// Instance is one live cattle instance as reported by the driver,
// enough for the reaper to decide whether it has outlived its TTL.
type Instance struct {
	Name       string        `json:"name"`
	InstanceID string        `json:"instanceId"`
	CreatedAt  time.Time     `json:"createdAt"`
	TTL        time.Duration `json:"-"`
	TTLSeconds int64         `json:"ttlSeconds"`
}

// Driver is the provisioning collaborator boundary.
type Driver interface {
	// Create provisions one instance and returns its id and address.
	Create(ctx context.Context, spec Spec, runtime Runtime) (*Result, error)
	// List enumerates the instances this driver currently manages.
	List(ctx context.Context) ([]Instance, error)
	// Destroy tears down the named instance. Destroying an instance
	// that no longer exists is not an error.
	Destroy(ctx context.Context, name string) error
}

// TransientError marks a driver failure worth retrying: API hiccups,
// rate limits, timeouts. The executor maps it to a queue retry with
// backoff instead of a terminal failure.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient provisioning error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}
