// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/clawlets/clf/cmd/clf/cli"
	"github.com/clawlets/clf/lib/protocol"
	"github.com/clawlets/clf/lib/queue"
	"github.com/clawlets/clf/lib/testutil"
)

func TestBuildSpawnPayload(t *testing.T) {
	params := &enqueueParams{
		Kind:      string(queue.KindCattleSpawn),
		Persona:   "web",
		TaskID:    "t-1",
		TaskType:  "deploy",
		Message:   "go",
		TTL:       90 * time.Minute,
		EnvKeys:   []string{"DATABASE_URL"},
		PublicEnv: []string{"CLAWLETS_REGION=fsn1"},
	}

	raw, err := buildPayload(params)
	if err != nil {
		t.Fatalf("buildPayload failed: %v", err)
	}
	var payload queue.SpawnPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Task.SchemaVersion != 1 {
		t.Errorf("schemaVersion = %d", payload.Task.SchemaVersion)
	}
	if payload.TTL != "1h30m0s" {
		t.Errorf("ttl = %q", payload.TTL)
	}
	if payload.PublicEnv["CLAWLETS_REGION"] != "fsn1" {
		t.Errorf("publicEnv = %v", payload.PublicEnv)
	}
}

func TestBuildReapPayload(t *testing.T) {
	raw, err := buildPayload(&enqueueParams{
		Kind:   string(queue.KindCattleReap),
		DryRun: true,
	})
	if err != nil {
		t.Fatalf("buildPayload failed: %v", err)
	}
	var payload queue.ReapPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !payload.DryRun {
		t.Error("dryRun not set")
	}
}

func TestParsePublicEnvRejectsBareKey(t *testing.T) {
	_, err := parsePublicEnv([]string{"CLAWLETS_REGION"})
	var usage *cli.UsageError
	if !errors.As(err, &usage) {
		t.Fatalf("err = %v, want *cli.UsageError", err)
	}
}

func TestRunEnqueueMissingFlags(t *testing.T) {
	err := runEnqueue(&enqueueParams{}, nil)
	var usage *cli.UsageError
	if !errors.As(err, &usage) {
		t.Fatalf("err = %v, want *cli.UsageError", err)
	}
}

// startFakeDaemon serves the given enqueue handler on a fresh socket.
func startFakeDaemon(t *testing.T, handler protocol.ActionFunc) string {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "clf.sock")
	server := protocol.NewSocketServer(socketPath, nil, nil)
	server.Handle(protocol.ActionEnqueue, handler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "fake daemon shutdown"); err != nil {
			t.Errorf("fake daemon returned error: %v", err)
		}
	})

	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			conn.Close()
			return socketPath
		}
		if time.Now().After(deadline) {
			t.Fatalf("fake daemon never listened: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunEnqueueRoundTrip(t *testing.T) {
	var received protocol.EnqueueParams
	socketPath := startFakeDaemon(t, func(ctx context.Context, raw json.RawMessage) (any, error) {
		if err := json.Unmarshal(raw, &received); err != nil {
			return nil, err
		}
		return protocol.EnqueueResult{JobID: "job-xyz"}, nil
	})

	params := &enqueueParams{
		Kind:      string(queue.KindCattleSpawn),
		Requester: "alice",
		Persona:   "web",
		TaskID:    "t-1",
		TaskType:  "deploy",
		Message:   "go",
	}
	params.Socket = socketPath

	if err := runEnqueue(params, nil); err != nil {
		t.Fatalf("runEnqueue failed: %v", err)
	}
	if received.Requester != "alice" || received.Kind != string(queue.KindCattleSpawn) {
		t.Errorf("daemon received %+v", received)
	}
}
