package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"cashbook/internal/backend"
	"cashbook/internal/cli"
	"cashbook/internal/config"
	"cashbook/internal/log"
	gsheet "cashbook/internal/sheets/google"
	"cashbook/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentWorker, (*config.Config).ValidateMirror)
	logger.Info("Starting cashbook-worker",
		log.FieldSpreadsheet, cfg.GoogleSpreadsheetID,
		"interval", cfg.MirrorInterval)

	backendCfg, err := backend.FromAppConfig(cfg, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}

	sheetsClient, err := gsheet.NewFromEnv(context.Background())
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "tab", sheetsClient.Tab())

	mirror := worker.NewMirror(result.Store, sheetsClient, worker.MirrorConfig{
		Tab:      sheetsClient.Tab(),
		Location: cfg.Location(),
		Interval: cfg.MirrorInterval,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := mirror.Stop(shutdownCtx); err != nil {
			logger.Error("Failed to stop mirror", log.FieldError, err)
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", log.FieldError, err)
			}
		}
	})

	if err := mirror.Start(ctx); err != nil {
		logger.Error("Failed to start mirror", log.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	if result.Notifier != nil {
		g.Go(func() error {
			err := result.Notifier.ConsumeLedgerChanges(gctx, mirror.HandleChange)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		logger.Info("AMQP disabled, mirroring on the interval only")
	}

	if err := g.Wait(); err != nil {
		// The interval loop keeps the sheet current without messages.
		logger.Error("Change consumption failed", log.FieldError, err)
	}
	cli.WaitForShutdown(ctx, done)
}
