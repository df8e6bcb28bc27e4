package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mintExchange/internal/config"
)

func runSync(cmd *cobra.Command, _ []string) error {
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

	logger.Info("sync start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("cursor_name", cfg.CursorName),
		zap.Uint64("chunk_size", cfg.ChunkSize),
		zap.Duration("time_budget", cfg.TimeBudget),
	)

	result, err := p.coordinator.Run(ctx)
	if err != nil {
		return err
	}
	logResult(logger, "sync finished", result)
	return nil
}

func runBackfill(cmd *cobra.Command, _ []string) error {
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

	if !cmd.Flags().Changed("to") {
		return fmt.Errorf("--to is required")
	}
	if cfg.ToBlock < cfg.FromBlock {
		return fmt.Errorf("to block must be >= from block")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	logger.Info("backfill start", zap.Uint64("from", cfg.FromBlock), zap.Uint64("to", cfg.ToBlock))

	result, err := p.coordinator.RunRange(ctx, cfg.FromBlock, cfg.ToBlock)
	if err != nil {
		return err
	}
	logResult(logger, "backfill finished", result)
	return nil
}
