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
	"mintExchange/internal/model"
	"mintExchange/internal/storage"
)

func runReplay(cmd *cobra.Command, _ []string) error {
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

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	failures, err := storage.ReadFailures(cfg.In)
	if err != nil {
		return err
	}
	if cfg.Failures == cfg.In {
		cfg.Failures = cfg.In + ".retry"
		logger.Warn("failure log is the replay input, recording new failures elsewhere", zap.String("failures", cfg.Failures))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	logs := make([]model.RawLog, 0, len(failures))
	for _, failure := range failures {
		logs = append(logs, failure.Log)
	}
	model.SortLogs(logs)

	logger.Info("replay start", zap.String("input", cfg.In), zap.Int("logs", len(logs)))

	result := p.dispatcher.DispatchBatch(ctx, logs)
	logger.Info("replay finished",
		zap.Int("total", result.Total),
		zap.Int("applied", result.Applied),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	if result.Failed > 0 {
		return fmt.Errorf("%d logs failed again", result.Failed)
	}
	return nil
}
