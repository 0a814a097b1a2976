// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/clawlets/clf/cmd/clf/cli"
	"github.com/clawlets/clf/lib/protocol"
	"github.com/clawlets/clf/lib/queue"
)

type enqueueParams struct {
	cli.JSONOutput
	cli.SocketOptions

	Kind           string `flag:"kind" desc:"job kind: cattle.spawn or cattle.reap"`
	Requester      string `flag:"requester" desc:"caller identity recorded on the job"`
	IdempotencyKey string `flag:"idempotency-key" desc:"deduplicate retried enqueues with the same key"`
	RunAt          string `flag:"run-at" desc:"do not run before this RFC 3339 time"`
	Priority       int    `flag:"priority" desc:"higher runs first among eligible jobs"`
	MaxAttempts    int    `flag:"max-attempts" desc:"retry budget (default 5, max 20)"`

	// cattle.spawn
	Persona      string        `flag:"persona" desc:"spawn: instance persona"`
	TaskID       string        `flag:"task-id" desc:"spawn: task identifier"`
	TaskType     string        `flag:"task-type" desc:"spawn: task type"`
	Message      string        `flag:"message" desc:"spawn: task message for the instance"`
	CallbackURL  string        `flag:"callback-url" desc:"spawn: URL the instance reports completion to"`
	TTL          time.Duration `flag:"ttl" desc:"spawn: instance lifetime"`
	Image        string        `flag:"image" desc:"spawn: machine image"`
	ServerType   string        `flag:"server-type" desc:"spawn: server type"`
	Location     string        `flag:"location" desc:"spawn: datacenter location"`
	AutoShutdown bool          `flag:"auto-shutdown" desc:"spawn: instance powers off after its task"`
	EnvKeys      []string      `flag:"env-key" desc:"spawn: secret name the instance may resolve (repeatable)"`
	PublicEnv    []string      `flag:"public-env" desc:"spawn: KEY=VALUE disclosed before redemption (repeatable, CLAWLETS_ keys only)"`

	// cattle.reap
	DryRun bool `flag:"dry-run" desc:"reap: report what would be destroyed without destroying"`
}

func enqueueCommand() *cli.Command {
	var params enqueueParams
	return &cli.Command{
		Name:    "enqueue",
		Summary: "Submit a job",
		Usage:   "clf jobs enqueue --kind <kind> --requester <id> [flags]",
		Examples: []cli.Example{
			{
				Description: "spawn a web instance for one task",
				Command: "clf jobs enqueue --kind cattle.spawn --requester alice --persona web " +
					"--task-id t-1 --task-type deploy --message 'deploy frontend' --env-key DATABASE_URL",
			},
			{
				Description: "dry-run the reaper",
				Command:     "clf jobs enqueue --kind cattle.reap --requester alice --dry-run",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("enqueue", &params)
		},
		Run: func(args []string) error {
			return runEnqueue(&params, args)
		},
	}
}

func runEnqueue(params *enqueueParams, args []string) error {
	if len(args) > 0 {
		return &cli.UsageError{Message: fmt.Sprintf("unexpected argument %q", args[0])}
	}
	if params.Kind == "" {
		return &cli.UsageError{Message: "--kind is required"}
	}
	if params.Requester == "" {
		return &cli.UsageError{Message: "--requester is required"}
	}

	payload, err := buildPayload(params)
	if err != nil {
		return err
	}

	request := protocol.EnqueueParams{
		Requester:      params.Requester,
		IdempotencyKey: params.IdempotencyKey,
		Kind:           params.Kind,
		Payload:        payload,
		Priority:       params.Priority,
		MaxAttempts:    params.MaxAttempts,
	}
	if params.RunAt != "" {
		runAt, err := time.Parse(time.RFC3339, params.RunAt)
		if err != nil {
			return &cli.UsageError{Message: fmt.Sprintf("--run-at: %v", err)}
		}
		request.RunAt = &runAt
	}

	result, err := params.Client().Enqueue(context.Background(), request)
	if err != nil {
		params.EmitError(err)
		return err
	}

	if done, err := params.EmitJSON(result); done {
		return err
	}
	fmt.Println(result.JobID)
	return nil
}

// buildPayload assembles the kind-specific payload from flags.
func buildPayload(params *enqueueParams) (json.RawMessage, error) {
	switch queue.Kind(params.Kind) {
	case queue.KindCattleSpawn:
		publicEnv, err := parsePublicEnv(params.PublicEnv)
		if err != nil {
			return nil, err
		}
		payload := queue.SpawnPayload{
			Persona: params.Persona,
			Task: queue.Task{
				SchemaVersion: 1,
				TaskID:        params.TaskID,
				Type:          params.TaskType,
				Message:       params.Message,
				CallbackURL:   params.CallbackURL,
			},
			Image:        params.Image,
			ServerType:   params.ServerType,
			Location:     params.Location,
			AutoShutdown: params.AutoShutdown,
			EnvKeys:      params.EnvKeys,
			PublicEnv:    publicEnv,
		}
		if params.TTL > 0 {
			payload.TTL = params.TTL.String()
		}
		return json.Marshal(payload)

	case queue.KindCattleReap:
		return json.Marshal(queue.ReapPayload{DryRun: params.DryRun})
	}
	// Let the daemon produce its canonical unknown-kind error.
	return json.RawMessage(`{}`), nil
}

// parsePublicEnv splits repeated KEY=VALUE flags into a map. Value
// validation (grammar, prefix) belongs to the daemon.
func parsePublicEnv(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	publicEnv := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return nil, &cli.UsageError{Message: fmt.Sprintf("--public-env %q: want KEY=VALUE", entry)}
		}
		publicEnv[key] = value
	}
	return publicEnv, nil
}
