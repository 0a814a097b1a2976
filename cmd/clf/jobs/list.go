// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/clawlets/clf/cmd/clf/cli"
	"github.com/clawlets/clf/lib/protocol"
)

type listParams struct {
	cli.JSONOutput
	cli.SocketOptions

	Requester string `flag:"requester" desc:"filter by requester"`
	Status    string `flag:"status" desc:"filter by status (queued, running, succeeded, failed, canceled)"`
	Kind      string `flag:"kind" desc:"filter by job kind"`
	Limit     int    `flag:"limit" desc:"maximum rows (default 50, max 500)"`
}

func listCommand() *cli.Command {
	var params listParams
	return &cli.Command{
		Name:    "list",
		Summary: "List jobs, most recently updated first",
		Usage:   "clf jobs list [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(args []string) error {
			return runList(&params, args)
		},
	}
}

func runList(params *listParams, args []string) error {
	if len(args) > 0 {
		return &cli.UsageError{Message: fmt.Sprintf("unexpected argument %q", args[0])}
	}

	result, err := params.Client().List(context.Background(), protocol.ListParams{
		Requester: params.Requester,
		Status:    params.Status,
		Kind:      params.Kind,
		Limit:     params.Limit,
	})
	if err != nil {
		params.EmitError(err)
		return err
	}

	if done, err := params.EmitJSON(result.Jobs); done {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "JOB ID\tKIND\tSTATUS\tATTEMPT\tUPDATED")
	for _, job := range result.Jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n",
			job.JobID, job.Kind, job.Status, job.Attempt, job.MaxAttempts,
			job.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
