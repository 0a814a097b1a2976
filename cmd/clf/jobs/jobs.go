// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

// Package jobs implements the clf jobs command group: enqueue, list,
// show, and cancel against the orchestrator socket.
package jobs

import (
	"github.com/clawlets/clf/cmd/clf/cli"
)

// Command returns the "jobs" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "jobs",
		Summary: "Manage cattle jobs",
		Description: "Submit, inspect, and cancel jobs on the CLF orchestrator.\n" +
			"Jobs run asynchronously; use 'jobs show' to poll for the outcome.",
		Subcommands: []*cli.Command{
			enqueueCommand(),
			listCommand(),
			showCommand(),
			cancelCommand(),
		},
	}
}
