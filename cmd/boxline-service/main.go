// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

// boxline-service runs the box intake chat service: it polls the chat
// transport for updates and dispatches them to the intake and triage
// engines over a SQLite-backed ledger.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/boxline/boxline/chat"
	"github.com/boxline/boxline/intake"
	"github.com/boxline/boxline/ledger"
	"github.com/boxline/boxline/ledger/sqlitetable"
	"github.com/boxline/boxline/lib/clock"
	"github.com/boxline/boxline/lib/config"
	"github.com/boxline/boxline/lib/version"
	"github.com/boxline/boxline/roles"
	"github.com/boxline/boxline/router"
	"github.com/boxline/boxline/triage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "", "path to the service configuration file")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("boxline-service %s\n", version.Full())
		return nil
	}

	resolved, err := config.ResolvePath(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(resolved)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	table, err := sqlitetable.Open(sqlitetable.Config{
		Path:   cfg.Ledger.Path,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening ledger table: %w", err)
	}
	defer table.Close()

	gateway, err := ledger.New(ledger.Config{
		Table:   table,
		Clock:   clock.Real(),
		Logger:  logger,
		Timeout: cfg.Ledger.Timeout.Std(),
	})
	if err != nil {
		return fmt.Errorf("constructing ledger gateway: %w", err)
	}

	client, err := chat.NewClient(chat.ClientConfig{
		BaseURL: cfg.Transport.BaseURL,
		Token:   cfg.Transport.Token,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("constructing chat client: %w", err)
	}

	resolver := roles.NewResolver(cfg.Admins, gateway)

	// The intake engine shows the idle menu after a workflow ends; the
	// router is constructed after it, so bind through a variable.
	var dispatcher *router.Router

	intakeEngine, err := intake.New(intake.Config{
		Gateway:  gateway,
		Resolver: resolver,
		Sender:   client,
		Clock:    clock.Real(),
		Logger:   logger,
		IdleMenu: func(ctx context.Context, user chat.UserID) {
			dispatcher.ShowMenu(ctx, user)
		},
	})
	if err != nil {
		return fmt.Errorf("constructing intake engine: %w", err)
	}

	triageEngine, err := triage.New(triage.Config{
		Gateway:  gateway,
		Resolver: resolver,
		Sender:   client,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("constructing triage engine: %w", err)
	}

	dispatcher, err = router.New(router.Config{
		Gateway:  gateway,
		Resolver: resolver,
		Intake:   intakeEngine,
		Triage:   triageEngine,
		Sender:   client,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("constructing router: %w", err)
	}

	logger.Info("boxline service starting",
		"version", version.Info(),
		"ledger", cfg.Ledger.Path,
		"transport", cfg.Transport.BaseURL,
	)

	return poll(ctx, logger, client, dispatcher, cfg.Transport.PollTimeout.Std())
}

// poll runs the long-poll loop until ctx is cancelled. Transport
// errors back off briefly instead of killing the service; dispatch
// runs inline, so one slow handler delays the next poll rather than
// piling up goroutines.
func poll(ctx context.Context, logger *slog.Logger, client *chat.Client, dispatcher *router.Router, timeout time.Duration) error {
	var offset int64
	for {
		updates, err := client.Updates(ctx, offset, timeout)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("boxline service stopping")
				return nil
			}
			logger.Warn("update poll failed", "offset", offset, "error", err)
			select {
			case <-ctx.Done():
				logger.Info("boxline service stopping")
				return nil
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			if update.ID >= offset {
				offset = update.ID + 1
			}
			if err := dispatcher.Dispatch(ctx, update.Event); err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				logger.Warn("event dispatch failed",
					"update_id", update.ID, "user", update.Event.User, "error", err)
			}
		}
	}
}
