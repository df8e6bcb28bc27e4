package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mintExchange/internal/api"
	"mintExchange/internal/config"
	"mintExchange/internal/indexer"
	"mintExchange/internal/webhook"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	ingestor, err := webhook.NewIngestor(p.dispatcher, p.chain, p.metrics, logger)
	if err != nil {
		return err
	}

	opts := api.Options{
		Syncer:     p.coordinator,
		Ingester:   ingestor,
		Gatherer:   p.registry,
		AdminToken: cfg.AdminToken,
		Logger:     logger,
	}
	if p.pg != nil {
		opts.Health = p.pg
	}

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("serve start",
		zap.String("listen", cfg.Listen),
		zap.Duration("sync_interval", cfg.SyncInterval),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if cfg.SyncInterval > 0 {
		g.Go(func() error {
			schedule(ctx, p.coordinator, cfg.SyncInterval, logger)
			return nil
		})
	}

	return g.Wait()
}

// schedule runs a sync pass right away and then on every tick until ctx ends.
// A failed pass is logged and retried on the next tick.
func schedule(ctx context.Context, coordinator *indexer.Coordinator, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := coordinator.Run(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Error("scheduled sync failed", zap.Error(err))
		case err == nil:
			logResult(logger, "scheduled sync finished", result)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
