package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "marketsync",
		Short:        "Marketplace chain-to-database sync",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass from the cursor to the chain tip",
		RunE:  runSync,
	}
	addPipelineFlags(syncCmd.Flags())
	root.AddCommand(syncCmd)

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Scan an explicit block range without moving the cursor",
		RunE:  runBackfill,
	}
	addPipelineFlags(backfillCmd.Flags())
	backfillCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	backfillCmd.Flags().Uint64("to", 0, "end block (inclusive)")
	root.AddCommand(backfillCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook and admin endpoints and sync on an interval",
		RunE:  runServe,
	}
	addPipelineFlags(serveCmd.Flags())
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Duration("sync-interval", time.Minute, "interval between scheduled sync passes, 0 disables")
	serveCmd.Flags().String("admin-token", "", "bearer token required by /admin/sync")
	root.AddCommand(serveCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-dispatch logs recorded in a failure log",
		RunE:  runReplay,
	}
	addPipelineFlags(replayCmd.Flags())
	replayCmd.Flags().String("in", "", "input failure log JSONL")
	root.AddCommand(replayCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addPipelineFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "RPC URL")
	flags.String("pg-dsn", "", "Postgres DSN, empty runs against memory and a cursor file")
	flags.Uint64("chain-id", 0, "expected chain id, 0 skips the check")
	flags.StringSlice("marketplace-address", nil, "native marketplace contract addresses (comma-separated)")
	flags.StringSlice("seaport-address", nil, "order protocol contract addresses (comma-separated)")
	flags.String("payment-token", "", "ERC-20 token prices are paid in")
	flags.Int32("payment-decimals", 6, "decimals of the payment token")
	flags.Uint64("deployment-block", 0, "first block scanned when no cursor exists")
	flags.Uint64("chunk-size", 500, "blocks per getLogs request")
	flags.Uint64("max-range", 10000, "maximum blocks per sync pass, 0 means unlimited")
	flags.Duration("time-budget", 50*time.Second, "wall time after which a sync pass stops between chunks")
	flags.Uint64("confirmations", 0, "blocks behind the tip to stay")
	flags.String("cursor-name", "marketplace", "cursor record name")
	flags.String("cursor-file", "./data/cursor.json", "cursor file used when no pg-dsn is set")
	flags.Int("max-retries", 3, "maximum retry attempts for provider calls")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.Duration("listing-ttl", 720*time.Hour, "listing and offer lifetime when the event carries none")
	flags.String("identity-url", "", "identity directory base URL, empty disables lookups")
	flags.String("identity-api-key", "", "identity directory API key")
	flags.Int("identity-cache-size", 4096, "in-process identity cache entries")
	flags.Duration("identity-cache-ttl", time.Hour, "shared identity cache TTL")
	flags.Duration("identity-timeout", 5*time.Second, "identity directory HTTP timeout")
	flags.String("redis-addr", "", "Redis address for the shared identity cache, empty disables it")
	flags.Int("profile-workers", 2, "background profile refresh workers")
	flags.String("ipfs-gateway", "https://ipfs.io/ipfs/", "gateway ipfs:// URIs are rewritten to")
	flags.Duration("metadata-timeout", 10*time.Second, "metadata HTTP timeout")
	flags.Int("metadata-cache-size", 1024, "in-process metadata cache entries")
	flags.String("failures", "", "failure log JSONL path, empty disables it")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
