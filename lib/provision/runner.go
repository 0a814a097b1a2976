// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// RunOptions adjusts a single command invocation.
type RunOptions struct {
	// Stdin is written to the child's standard input when non-empty.
	Stdin []byte
	// Env entries are appended to the parent environment.
	Env []string
	// Timeout bounds the invocation; zero means the context alone
	// bounds it.
	Timeout time.Duration
}

// RunResult is the outcome of one command invocation.
type RunResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner runs one external command to completion. The concrete
// implementation shells out; tests inject a fake.
type Runner interface {
	Run(ctx context.Context, name string, args []string, opts RunOptions) (RunResult, error)
}

// ExecRunner runs commands with os/exec. Stderr is captured separately
// and folded into error messages on failure.
type ExecRunner struct{}

// Run executes the command and waits for it. A non-zero exit status is
// returned as an error, with the exit code also recorded in the
// result.
func (ExecRunner) Run(ctx context.Context, name string, args []string, opts RunOptions) (RunResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, name, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr
	if len(opts.Stdin) > 0 {
		command.Stdin = bytes.NewReader(opts.Stdin)
	}
	if len(opts.Env) > 0 {
		command.Env = append(command.Environ(), opts.Env...)
	}

	err := command.Run()
	result := RunResult{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		return result, fmt.Errorf("%s %s: %w (stderr: %s)",
			name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return result, nil
}
