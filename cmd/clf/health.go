// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/pflag"

	"github.com/clawlets/clf/cmd/clf/cli"
)

type healthParams struct {
	cli.JSONOutput
	cli.SocketOptions
}

func healthCommand() *cli.Command {
	var params healthParams
	return &cli.Command{
		Name:    "health",
		Summary: "Check that the orchestrator is alive",
		Usage:   "clf health [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("health", &params)
		},
		Run: func(args []string) error {
			if err := params.Client().Health(context.Background()); err != nil {
				params.EmitError(err)
				return err
			}
			if done, err := params.EmitJSON(struct {
				OK bool `json:"ok"`
			}{OK: true}); done {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}

type infoParams struct {
	cli.JSONOutput
	cli.SocketOptions
}

func infoCommand() *cli.Command {
	var params infoParams
	return &cli.Command{
		Name:    "info",
		Summary: "Show orchestrator uptime and queue counts",
		Usage:   "clf info [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("info", &params)
		},
		Run: func(args []string) error {
			info, err := params.Client().Info(context.Background())
			if err != nil {
				params.EmitError(err)
				return err
			}
			if done, err := params.EmitJSON(info); done {
				return err
			}

			fmt.Printf("uptime:  %ds\n", info.UptimeSeconds)
			fmt.Printf("tokens:  %d\n", info.Tokens)
			statuses := make([]string, 0, len(info.Jobs))
			for status := range info.Jobs {
				statuses = append(statuses, status)
			}
			sort.Strings(statuses)
			for _, status := range statuses {
				fmt.Printf("jobs %-10s %d\n", status+":", info.Jobs[status])
			}
			return nil
		},
	}
}
