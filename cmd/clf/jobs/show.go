// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/clawlets/clf/cmd/clf/cli"
)

type showParams struct {
	cli.JSONOutput
	cli.SocketOptions
}

func showCommand() *cli.Command {
	var params showParams
	return &cli.Command{
		Name:    "show",
		Summary: "Show one job's full record",
		Usage:   "clf jobs show <jobId> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("show", &params)
		},
		Run: func(args []string) error {
			return runShow(&params, args)
		},
	}
}

func runShow(params *showParams, args []string) error {
	if len(args) != 1 {
		return &cli.UsageError{Message: "exactly one jobId argument required"}
	}

	job, err := params.Client().Show(context.Background(), args[0])
	if err != nil {
		params.EmitError(err)
		return err
	}

	if done, err := params.EmitJSON(job); done {
		return err
	}

	fmt.Printf("job:         %s\n", job.JobID)
	fmt.Printf("kind:        %s\n", job.Kind)
	fmt.Printf("status:      %s\n", job.Status)
	fmt.Printf("attempt:     %d/%d\n", job.Attempt, job.MaxAttempts)
	fmt.Printf("requester:   %s\n", job.Requester)
	if job.Priority != 0 {
		fmt.Printf("priority:    %d\n", job.Priority)
	}
	if job.RunAt != nil {
		fmt.Printf("run at:      %s\n", job.RunAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("created:     %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("updated:     %s\n", job.UpdatedAt.Format("2006-01-02 15:04:05"))
	if len(job.Result) > 0 {
		fmt.Printf("result:      %s\n", job.Result)
	}
	if job.Error != "" {
		fmt.Printf("error:       %s\n", job.Error)
	}
	return nil
}
