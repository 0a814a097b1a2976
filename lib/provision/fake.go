// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"fmt"
	"sync"
)

// FakeDriver is an in-memory Driver for tests. Zero value is usable:
// Create succeeds with synthesized ids, List returns what was created,
// Destroy removes by name. Set the error fields to force failures.
type FakeDriver struct {
	mu        sync.Mutex
	instances []Instance
	nextID    int

	CreateErr  error
	ListErr    error
	DestroyErr error

	// Created and Destroyed record the calls in order.
	Created   []Spec
	Destroyed []string
}

func (f *FakeDriver) Create(ctx context.Context, spec Spec, runtime Runtime) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.nextID++
	instance := Instance{
		Name:       spec.Name,
		InstanceID: fmt.Sprintf("fake-%d", f.nextID),
		TTL:        spec.TTL,
	}
	f.instances = append(f.instances, instance)
	f.Created = append(f.Created, spec)
	return &Result{
		InstanceID: instance.InstanceID,
		IPv4:       fmt.Sprintf("10.0.0.%d", f.nextID),
	}, nil
}

func (f *FakeDriver) List(ctx context.Context) ([]Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]Instance, len(f.instances))
	copy(out, f.instances)
	return out, nil
}

func (f *FakeDriver) Destroy(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DestroyErr != nil {
		return f.DestroyErr
	}
	f.Destroyed = append(f.Destroyed, name)
	kept := f.instances[:0]
	for _, instance := range f.instances {
		if instance.Name != name {
			kept = append(kept, instance)
		}
	}
	f.instances = kept
	return nil
}

// SetInstances replaces the fake's instance inventory, for reap tests
// that need instances the fake never created.
func (f *FakeDriver) SetInstances(instances []Instance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instances = append([]Instance(nil), instances...)
}

// FakeRunner replays scripted results for ExecDriver tests and
// records every invocation.
type FakeRunner struct {
	mu      sync.Mutex
	Results []FakeRun
	Calls   []FakeCall
}

// FakeRun is one scripted outcome, consumed in order.
type FakeRun struct {
	Result RunResult
	Err    error
}

// FakeCall records one Run invocation.
type FakeCall struct {
	Name  string
	Args  []string
	Stdin []byte
}

func (f *FakeRunner) Run(ctx context.Context, name string, args []string, opts RunOptions) (RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, FakeCall{Name: name, Args: args, Stdin: opts.Stdin})
	if len(f.Results) == 0 {
		return RunResult{}, fmt.Errorf("FakeRunner: no scripted result for %s %v", name, args)
	}
	next := f.Results[0]
	f.Results = f.Results[1:]
	return next.Result, next.Err
}
