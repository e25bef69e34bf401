// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Menuflow runs the Matrix sessions of every configured menu-bot
// account: it bootstraps each account's connection, keeps its sync
// loop running, and hands incoming messages and invites to the
// conversation engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/menuflow/account"
	"github.com/bureau-foundation/menuflow/dispatch"
	"github.com/bureau-foundation/menuflow/lib/clock"
	"github.com/bureau-foundation/menuflow/lib/config"
	"github.com/bureau-foundation/menuflow/lib/process"
	"github.com/bureau-foundation/menuflow/lib/ref"
	"github.com/bureau-foundation/menuflow/lib/sqlitepool"
	"github.com/bureau-foundation/menuflow/lib/version"
	"github.com/bureau-foundation/menuflow/messaging"
	"github.com/bureau-foundation/menuflow/participant"
	"github.com/bureau-foundation/menuflow/session"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	configPath  string
	showVersion bool
	addAccount  string
	homeserver  string
	accessToken string
	deviceID    string
}

func parseFlags(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("menuflow", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to menuflow.yaml (default: $MENUFLOW_CONFIG)")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	flagSet.StringVar(&opts.addAccount, "add-account", "", "register this Matrix user ID before starting")
	flagSet.StringVar(&opts.homeserver, "homeserver", "", "homeserver URL for --add-account")
	flagSet.StringVar(&opts.accessToken, "access-token", "", "access token for --add-account")
	flagSet.StringVar(&opts.deviceID, "device-id", "", "device ID for --add-account")
	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if opts.addAccount == "" && (opts.homeserver != "" || opts.accessToken != "" || opts.deviceID != "") {
		return options{}, fmt.Errorf("--homeserver, --access-token and --device-id require --add-account")
	}
	return opts, nil
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		version.Print("menuflow")
		return nil
	}

	var cfg *config.Config
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("starting menuflow", "version", version.Info(), "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o700); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Database.Path,
		PoolSize: cfg.Database.PoolSize,
		Schema:   account.Schema + participant.Schema,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	bus := dispatch.New(dispatch.Config{Buffer: cfg.Dispatch.Buffer, Logger: logger})
	defer bus.Close()

	realClock := clock.Real()
	registry, err := session.NewRegistry(session.RegistryConfig{
		Store:            account.NewSQLiteStore(pool),
		TransportFactory: connectionFactory(cfg, realClock, logger),
		Sink:             bus,
		Clock:            realClock,
		RetryStep:        cfg.RetryStep(),
		MaxAttempts:      cfg.Bootstrap.MaxAttempts,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	engine := &engine{
		bus:          bus,
		participants: participant.NewStore(participant.NewSQLiteRepository(pool), logger),
		logger:       logger,
	}
	engineDone, err := engine.start(ctx)
	if err != nil {
		return err
	}

	if opts.addAccount != "" {
		if err := addAccount(ctx, registry, opts); err != nil {
			return err
		}
	}

	var server *http.Server
	if cfg.Metrics.ListenAddress != "" {
		server = newHTTPServer(cfg.Metrics.ListenAddress, registry)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", "address", cfg.Metrics.ListenAddress, "error", err)
			}
		}()
		logger.Info("serving metrics", "address", cfg.Metrics.ListenAddress)
	}

	if err := registry.StartAll(ctx); err != nil {
		logger.Warn("some accounts failed to start", "error", err)
	}
	logger.Info("accounts loaded", "sessions", registry.Len())

	<-ctx.Done()
	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics listener shutdown", "error", err)
		}
	}
	if err := registry.Close(shutdownCtx); err != nil {
		return fmt.Errorf("closing sessions: %w", err)
	}
	if err := bus.Close(); err != nil {
		logger.Warn("closing event bus", "error", err)
	}
	<-engineDone

	logger.Info("shutdown complete")
	return nil
}

// connectionFactory builds a messaging.Connection for each account.
func connectionFactory(cfg *config.Config, connectionClock clock.Clock, logger *slog.Logger) session.TransportFactory {
	httpClient := &http.Client{Timeout: cfg.SyncTimeout() + 30*time.Second}
	return func(record account.Account) (session.Transport, error) {
		return messaging.NewConnection(messaging.ConnectionConfig{
			HomeserverURL: record.Homeserver,
			UserID:        record.UserID,
			AccessToken:   record.AccessToken,
			HTTPClient:    httpClient,
			Clock:         connectionClock,
			SyncTimeout:   cfg.SyncTimeout(),
			MaxBackoff:    cfg.SyncMaxBackoff(),
			Logger:        logger,
		})
	}
}

func addAccount(ctx context.Context, registry *session.Registry, opts options) error {
	userID, err := ref.ParseUserID(opts.addAccount)
	if err != nil {
		return fmt.Errorf("--add-account: %w", err)
	}
	if _, err := registry.GetOrCreate(ctx, userID, &account.Credentials{
		Homeserver:  opts.homeserver,
		AccessToken: opts.accessToken,
		DeviceID:    opts.deviceID,
	}); err != nil {
		return fmt.Errorf("registering %s: %w", userID, err)
	}
	return nil
}
