// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

// fitlog is a small operational CLI over the offline-first workout log: it
// records edits into the local store and pushes pending batches to the sync
// server on demand. The store and sync core are exactly the ones the app
// embeds; the CLI is just another presentation layer.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/VikramSGIT/FitLog-sub000/fitstore"
	"github.com/VikramSGIT/FitLog-sub000/fitsync"
	"github.com/VikramSGIT/FitLog-sub000/internal/auth"
	"github.com/VikramSGIT/FitLog-sub000/internal/config"
	"github.com/VikramSGIT/FitLog-sub000/logbook"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "fitlog",
		Short:         "Offline-first workout log client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	root.AddCommand(newStatusCmd(&configPath))
	root.AddCommand(newSyncCmd(&configPath))
	root.AddCommand(newAddSetCmd(&configPath))
	return root
}

type app struct {
	cfg     *config.Config
	store   *fitstore.Store
	service *logbook.Service
	orch    *fitsync.Orchestrator
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.UserID == "" {
		cfg.UserID = "local"
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
	}
	logger := newLogger(cfg)

	store, err := fitstore.Open(cfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	tokens := auth.NewTokenSource(cfg.JWTSecret, cfg.UserID, cfg.DeviceID, cfg.TokenExpiry.Std())
	transport := fitsync.NewTransport(cfg.ServerURL, tokens.Token, logger)
	orch := fitsync.NewOrchestrator(store, transport, &fitsync.Config{
		Debounce:  cfg.Debounce.Std(),
		IdleAfter: cfg.IdleAfter.Std(),
	}, logger)
	service := logbook.NewService(store, orch, transport, cfg.UserID, logger)
	return &app{cfg: cfg, store: store, service: service, orch: orch}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close store: %v\n", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSize,
			MaxBackups: 3,
		}
	}
	return slog.New(slog.NewTextHandler(w, nil))
}

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending local changes and the cached epoch",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			pending, err := fitsync.Gather(ctx, a.store)
			if err != nil {
				return err
			}
			batch, err := fitsync.BuildBatch(pending)
			if err != nil {
				return err
			}
			epoch, ok, err := a.store.Epoch(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("database:   %s\n", a.cfg.DatabasePath)
			fmt.Printf("pending:    %d days, %d exercises, %d sets, %d rests, %d tombstones\n",
				len(pending.Days), len(pending.Exercises),
				len(pending.Sets), len(pending.Rests), len(pending.Tombstones))
			fmt.Printf("batch ops:  %d\n", len(batch.Ops))
			if ok {
				fmt.Printf("epoch:      %d\n", epoch)
			} else {
				fmt.Printf("epoch:      (none cached)\n")
			}
			return nil
		},
	}
}

func newSyncCmd(configPath *string) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push pending local changes to the server now",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := a.service.SaveNow(ctx); err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			status := a.service.Status()
			fmt.Printf("state: %s", status.State)
			if !status.LastSavedAt.IsZero() {
				fmt.Printf(" (saved at %s)", status.LastSavedAt.Format(time.RFC3339))
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "network timeout")
	return cmd
}

func newAddSetCmd(configPath *string) *cobra.Command {
	var (
		date      string
		catalogID string
		reps      int
		weight    float64
		warmup    bool
	)
	cmd := &cobra.Command{
		Use:   "add-set",
		Short: "Record a set offline (creates day and exercise as needed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			exercise, err := a.service.AddExercise(ctx, date, catalogID)
			if err != nil {
				return err
			}
			set, err := a.service.AddSet(ctx, exercise.LocalID, reps, weight, warmup)
			if err != nil {
				return err
			}
			fmt.Printf("recorded %dx%.1f (volume %.1f) for %s on %s\n",
				set.Reps, set.Weight, set.Volume, catalogID, date)
			// Drain the queued auto-save before the process exits.
			if err := a.service.Flush(ctx); err != nil {
				fmt.Printf("offline: edits kept locally (%v)\n", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", time.Now().Format("2006-01-02"), "ISO day to log against")
	cmd.Flags().StringVar(&catalogID, "exercise", "", "catalog exercise id")
	cmd.Flags().IntVar(&reps, "reps", 0, "repetitions")
	cmd.Flags().Float64Var(&weight, "weight", 0, "weight")
	cmd.Flags().BoolVar(&warmup, "warmup", false, "mark as warmup set")
	_ = cmd.MarkFlagRequired("exercise")
	_ = cmd.MarkFlagRequired("reps")
	return cmd
}
