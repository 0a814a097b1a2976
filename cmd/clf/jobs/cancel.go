// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/clawlets/clf/cmd/clf/cli"
)

type cancelParams struct {
	cli.JSONOutput
	cli.SocketOptions
}

func cancelCommand() *cli.Command {
	var params cancelParams
	return &cli.Command{
		Name:    "cancel",
		Summary: "Cancel a queued or running job",
		Usage:   "clf jobs cancel <jobId> [flags]",
		Description: "Cancel flips the job's persisted state; it does not interrupt an\n" +
			"executor already in flight. Canceling a job that already finished is\n" +
			"a successful no-op.",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("cancel", &params)
		},
		Run: func(args []string) error {
			return runCancel(&params, args)
		},
	}
}

func runCancel(params *cancelParams, args []string) error {
	if len(args) != 1 {
		return &cli.UsageError{Message: "exactly one jobId argument required"}
	}

	if err := params.Client().Cancel(context.Background(), args[0]); err != nil {
		params.EmitError(err)
		return err
	}

	if done, err := params.EmitJSON(struct {
		OK bool `json:"ok"`
	}{OK: true}); done {
		return err
	}
	fmt.Printf("canceled %s\n", args[0])
	return nil
}
