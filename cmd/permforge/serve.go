// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/permforge/permforge/internal/actionlog"
	"github.com/permforge/permforge/internal/config"
	"github.com/permforge/permforge/internal/engine"
	"github.com/permforge/permforge/internal/events"
	"github.com/permforge/permforge/internal/logging"
	"github.com/permforge/permforge/internal/observability"
	"github.com/permforge/permforge/internal/store"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the permission engine",
		Long: `Start the permission engine: load groups and tracks from storage,
begin the temporary-node sweeper, and serve metrics and health probes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(resolveConfigPath(), cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, cmd)
		},
	}

	cmd.Flags().String("server", "global", "this server's name for server-scoped nodes")
	cmd.Flags().String("storage.backend", "postgres", "storage backend (postgres or memory)")
	cmd.Flags().String("storage.database_url", "", "PostgreSQL connection string")
	cmd.Flags().String("metrics.addr", ":9090", "metrics/health HTTP address")
	cmd.Flags().String("log.level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().String("log.format", "text", "log format (text or json)")

	return cmd
}

func runServe(ctx context.Context, cfg config.Config, cmd *cobra.Command) error {
	logging.SetDefault("permforge", version, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))

	st, auditWriter, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Warn("error closing store", "error", closeErr)
		}
	}()

	slog.Info("storage ready", "backend", cfg.Storage.Backend)

	audit := actionlog.NewLogger(auditWriter, cfg.ActionLog.WALPath)
	if err := audit.ReplayWAL(ctx); err != nil {
		slog.Warn("action log WAL replay failed", "error", err)
	}

	bus := events.NewBus()
	eng := engine.New(st,
		engine.WithBus(bus),
		engine.WithActionLog(audit),
		engine.WithDefaultValue(cfg.DefaultValue),
	)
	if err := eng.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Sweep expired temporary nodes in the background.
	go runSweeper(ctx, eng, cfg.SweepInterval)

	var obsServer *observability.Server
	if cfg.Metrics.Enabled && cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer pingCancel()
			return st.Ping(pingCtx) == nil
		})
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("PermForge started")
	slog.Info("engine ready",
		"server", cfg.Server,
		"backend", cfg.Storage.Backend,
	)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	if err := audit.Close(); err != nil {
		slog.Warn("error closing action log", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// openStore builds the configured storage backend and a matching action log
// writer. The PostgreSQL writer shares the store's connection pool.
func openStore(ctx context.Context, cfg config.Config) (store.Store, actionlog.Writer, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return store.NewMemoryStore(), actionlog.NewMemoryWriter(), nil
	case "postgres":
		url := cfg.Storage.DatabaseURL
		if url == "" {
			url = os.Getenv("DATABASE_URL")
		}
		if url == "" {
			return nil, nil, fmt.Errorf("storage.database_url or DATABASE_URL is required for the postgres backend")
		}
		pg, err := store.NewPostgresStore(ctx, url)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return pg, actionlog.NewPostgresWriter(pg.Querier()), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// runSweeper removes expired temporary nodes on a fixed interval until the
// context is cancelled.
func runSweeper(ctx context.Context, eng *engine.Engine, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := eng.SweepTemporaryNodes(ctx); err != nil {
				slog.Warn("temporary node sweep failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// monitorServerErrors monitors a server's error channel and cancels the
// context on error so a failed server triggers graceful shutdown.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
