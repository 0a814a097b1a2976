// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/clawlets/clf/lib/backoff"
	"github.com/clawlets/clf/lib/bootstrap"
	"github.com/clawlets/clf/lib/clock"
	"github.com/clawlets/clf/lib/config"
	"github.com/clawlets/clf/lib/process"
	"github.com/clawlets/clf/lib/protocol"
	"github.com/clawlets/clf/lib/provision"
	"github.com/clawlets/clf/lib/queue"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var socketPath string
	flag.StringVar(&configPath, "config", "", "path to the daemon config file (default: $CLF_CONFIG, else built-in defaults)")
	flag.StringVar(&socketPath, "socket", "", "Unix socket path (overrides config and $CLF_SOCKET)")
	flag.Parse()

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.SocketPath = socketPath
	}

	logger := newLogger(cfg.LogLevel)
	clk := clock.Real()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := queue.Open(queue.Config{
		Path:  cfg.StorePath,
		Clock: clk,
		Backoff: backoff.Policy{
			Base: cfg.BackoffBase.Std(),
			Max:  cfg.BackoffMax.Std(),
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	// Any job still marked running belongs to a previous process
	// that died mid-execution. Return it to the queue before serving.
	recovered, err := store.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recovering abandoned jobs: %w", err)
	}
	if recovered > 0 {
		logger.Info("recovered abandoned jobs", "count", recovered)
	}

	tokens := bootstrap.NewService(store, clk, logger)
	if _, err := tokens.Prune(ctx); err != nil {
		return fmt.Errorf("initial token prune: %w", err)
	}

	driver := provision.NewExecDriver(cfg.DriverBinary, provision.ExecRunner{}, logger)

	orchestrator := newOrchestrator(orchestratorConfig{
		Store:         store,
		Tokens:        tokens,
		Driver:        driver,
		Clock:         clk,
		Logger:        logger,
		PollInterval:  cfg.PollInterval.Std(),
		PruneInterval: cfg.PruneInterval.Std(),
	})

	server := protocol.NewSocketServer(cfg.SocketPath, classifyError, logger)
	orchestrator.registerActions(server)

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- server.Serve(ctx)
	}()
	go orchestrator.runWorker(ctx)
	go orchestrator.runPruner(ctx)

	logger.Info("orchestrator running",
		"socket", cfg.SocketPath,
		"store", cfg.StorePath,
		"driver", cfg.DriverBinary,
		"poll_interval", cfg.PollInterval.Std(),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := <-socketDone; err != nil {
		logger.Error("socket server error", "error", err)
	}
	return nil
}

// newLogger builds the daemon logger writing to stderr.
func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel}))
}
