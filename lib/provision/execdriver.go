// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// commandTimeout bounds any single driver CLI invocation. Cloud
// provisioning is slow but not this slow.
const commandTimeout = 5 * time.Minute

// ExecDriver drives provisioning by invoking the provisioning CLI.
// The contract: `<binary> create` reads a JSON spec document on stdin
// and prints `{"instanceId","ipv4"}`; `<binary> list` prints
// `{"instances":[...]}`; `<binary> destroy --name <name>` prints
// nothing. Every command takes `--json`.
type ExecDriver struct {
	binary string
	runner Runner
	logger *slog.Logger
}

// NewExecDriver creates a driver that invokes binary through runner.
func NewExecDriver(binary string, runner Runner, logger *slog.Logger) *ExecDriver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ExecDriver{binary: binary, runner: runner, logger: logger}
}

// createDocument is the stdin document for the create command.
type createDocument struct {
	Spec    Spec    `json:"spec"`
	Runtime Runtime `json:"runtime"`
}

// Create provisions one instance. Command failures are transient: the
// queue's retry budget decides when to give up.
func (d *ExecDriver) Create(ctx context.Context, spec Spec, runtime Runtime) (*Result, error) {
	spec.TTLSeconds = int64(spec.TTL / time.Second)
	document, err := json.Marshal(createDocument{Spec: spec, Runtime: runtime})
	if err != nil {
		return nil, fmt.Errorf("encoding create spec: %w", err)
	}

	d.logger.Info("provisioning instance",
		"name", spec.Name,
		"job_id", runtime.JobID,
	)

	run, err := d.runner.Run(ctx, d.binary, []string{"create", "--json"}, RunOptions{
		Stdin:   document,
		Timeout: commandTimeout,
	})
	if err != nil {
		return nil, Transient(fmt.Errorf("create %s: %w", spec.Name, err))
	}

	var result Result
	if err := json.Unmarshal(run.Stdout, &result); err != nil {
		return nil, Transient(fmt.Errorf("parsing create output for %s: %w", spec.Name, err))
	}
	if result.InstanceID == "" {
		return nil, Transient(fmt.Errorf("create %s: driver returned no instance id", spec.Name))
	}

	d.logger.Info("instance provisioned",
		"name", spec.Name,
		"instance_id", result.InstanceID,
		"ipv4", result.IPv4,
	)
	return &result, nil
}

// listDocument is the stdout document of the list command.
type listDocument struct {
	Instances []Instance `json:"instances"`
}

// List enumerates managed instances.
func (d *ExecDriver) List(ctx context.Context) ([]Instance, error) {
	run, err := d.runner.Run(ctx, d.binary, []string{"list", "--json"}, RunOptions{
		Timeout: commandTimeout,
	})
	if err != nil {
		return nil, Transient(fmt.Errorf("list: %w", err))
	}

	var document listDocument
	if err := json.Unmarshal(run.Stdout, &document); err != nil {
		return nil, Transient(fmt.Errorf("parsing list output: %w", err))
	}
	for i := range document.Instances {
		document.Instances[i].TTL = time.Duration(document.Instances[i].TTLSeconds) * time.Second
	}
	return document.Instances, nil
}

// Destroy tears down the named instance.
func (d *ExecDriver) Destroy(ctx context.Context, name string) error {
	d.logger.Info("destroying instance", "name", name)
	_, err := d.runner.Run(ctx, d.binary, []string{"destroy", "--json", "--name", name}, RunOptions{
		Timeout: commandTimeout,
	})
	if err != nil {
		return Transient(fmt.Errorf("destroy %s: %w", name, err))
	}
	return nil
}
