package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"cashbook/internal/auth"
	"cashbook/internal/backend"
	"cashbook/internal/cashbook"
	"cashbook/internal/cli"
	apphttp "cashbook/internal/http"
	"cashbook/internal/log"
	"cashbook/internal/services"
	"cashbook/internal/sheets"
	gsheet "cashbook/internal/sheets/google"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentApp)
	logger.Info("Starting cashbook server", "port", cfg.Port, "backend", cfg.DataBackend)

	// An empty queue name gives each server instance its own queue, so every
	// instance sees every change.
	backendCfg, err := backend.FromAppConfig(cfg, "")
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	svc, err := auth.NewService(result.Store, auth.Config{
		Secret:     []byte(cfg.AuthJWTSecret),
		TokenTTL:   cfg.AuthTokenTTL,
		BcryptCost: cfg.AuthBcryptCost,
	})
	if err != nil {
		logger.Error("Failed to initialize auth service", log.FieldError, err)
		os.Exit(1)
	}

	// Spreadsheet export is optional for the server.
	var publisher sheets.TablePublisher
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Warn("Google Sheets export disabled", log.FieldError, err)
		} else {
			publisher = client
			logger.Info("Google Sheets export enabled", log.FieldSpreadsheet, cfg.GoogleSpreadsheetID)
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, result.Store, publisher, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		WorkspaceIdleTTL:   cfg.WorkspaceIdleTTL,
		MaxWorkspaces:      cfg.MaxWorkspaces,
		SheetTab:           cfg.GoogleSheetName,
		Client: cashbook.Options{
			Location:        cfg.Location(),
			ShareBase:       cfg.ShareBaseURL,
			StrictOwnership: cfg.EnforceOwnership,
		},
		Ready:  readiness(result.Store),
		Logger: logger.WithComponent(log.ComponentHTTP),
	})
	srv.ReadTimeout = 15 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", log.FieldError, err)
			}
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if result.Notifier != nil {
		relay := services.NewChangeRelay(result.Store, result.Notifier.Origin())
		g.Go(func() error {
			err := result.Notifier.ConsumeLedgerChanges(gctx, relay.Handle)
			if err != nil && !errors.Is(err, context.Canceled) {
				// Losing the relay only delays cross-instance updates.
				logger.Error("Change consumer stopped", log.FieldError, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
}

// readiness pings the store when it can be pinged.
func readiness(store backend.Store) func(context.Context) error {
	pinger, ok := store.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return pinger.Ping
}
