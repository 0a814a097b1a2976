// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

// The clf binary is the operator CLI for the CLF orchestrator.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/clawlets/clf/cmd/clf/cli"
	"github.com/clawlets/clf/cmd/clf/jobs"
)

func main() {
	logger := cli.NewCommandLogger()
	root := &cli.Command{
		Name:    "clf",
		Summary: "Operate the CLF cattle orchestrator",
		Description: "clf talks to the clf-orchestrator daemon over its Unix socket to\n" +
			"submit, inspect, and cancel cattle jobs.",
		Subcommands: []*cli.Command{
			jobs.Command(),
			healthCommand(),
			infoCommand(),
		},
	}

	err := root.Execute(os.Args[1:])
	if err == nil {
		return
	}

	var exit *cli.ExitError
	var usage *cli.UsageError
	switch {
	case errors.As(err, &exit):
		// The command already produced its output.
	case errors.As(err, &usage):
		// Usage mistakes read better as plain text next to the help.
		fmt.Fprintf(os.Stderr, "clf: %v\n", err)
	default:
		logger.Error("command failed", "error", err)
	}
	os.Exit(cli.ClassifyExit(err))
}
