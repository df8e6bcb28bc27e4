package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mintExchange/internal/chain"
	"mintExchange/internal/config"
	"mintExchange/internal/dispatch"
	"mintExchange/internal/handler"
	"mintExchange/internal/identity"
	"mintExchange/internal/indexer"
	"mintExchange/internal/market"
	"mintExchange/internal/metadata"
	"mintExchange/internal/metrics"
	"mintExchange/internal/storage"
	"mintExchange/internal/storage/postgres"
)

// pipeline is the wired log-to-database path shared by every subcommand.
type pipeline struct {
	chain       *chain.Client
	pg          *postgres.Store
	store       storage.Store
	redis       redis.UniversalClient
	profiles    *identity.ProfileSyncer
	dispatcher  *dispatch.Dispatcher
	coordinator *indexer.Coordinator
	metrics     *metrics.Pipeline
	registry    *prometheus.Registry
}

func buildPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger) (*pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	p := &pipeline{registry: prometheus.NewRegistry()}
	ok := false
	defer func() {
		if !ok {
			p.Close()
		}
	}()

	p.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewPipeline(p.registry)
	if err != nil {
		return nil, err
	}
	p.metrics = m

	p.chain, err = chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	if cfg.ChainID != 0 {
		id, err := p.chain.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("get chain id: %w", err)
		}
		if id.Uint64() != cfg.ChainID {
			return nil, fmt.Errorf("rpc serves chain %s, expected %d", id, cfg.ChainID)
		}
	}

	var cursor indexer.CursorStore
	if cfg.PGDSN != "" {
		p.pg, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		p.store = p.pg
		cursor = p.pg
	} else {
		logger.Warn("no pg-dsn set, writing to memory with a file cursor", zap.String("cursor_file", cfg.CursorFile))
		p.store = storage.NewMemoryStore()
		cursor = indexer.NewFileCursor(cfg.CursorFile)
	}

	deps := handler.Deps{
		Store:           p.store,
		Logger:          logger,
		PaymentDecimals: cfg.PaymentDecimals,
		ListingTTL:      cfg.ListingTTL,
	}

	if cfg.IdentityURL != "" {
		if cfg.RedisAddr != "" {
			p.redis = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.RedisAddr}})
		}
		resolver, err := identity.NewCachedResolver(
			identity.NewClient(cfg.IdentityURL, cfg.IdentityAPIKey, cfg.IdentityTimeout),
			cfg.IdentityCacheSize, p.redis, cfg.IdentityCacheTTL, logger,
		)
		if err != nil {
			return nil, err
		}
		p.profiles = identity.NewProfileSyncer(resolver, p.store, cfg.ProfileWorkers, logger)
		deps.Identities = resolver
		deps.Profiles = p.profiles
	}

	fetcher, err := metadata.NewFetcher(p.chain, cfg.IPFSGateway, cfg.MetadataTimeout, cfg.MetadataCacheSize)
	if err != nil {
		return nil, err
	}
	deps.Metadata = fetcher

	handlers, err := handler.New(deps)
	if err != nil {
		return nil, err
	}

	routes, err := buildRoutes(cfg)
	if err != nil {
		return nil, err
	}
	p.dispatcher, err = dispatch.New(routes, handlers.Table(), storage.NewFailureLog(cfg.Failures), m, logger)
	if err != nil {
		return nil, err
	}

	p.coordinator, err = indexer.NewCoordinator(indexer.Config{
		CursorName:      cfg.CursorName,
		DeploymentBlock: cfg.DeploymentBlock,
		ChunkSize:       cfg.ChunkSize,
		MaxRange:        cfg.MaxRange,
		TimeBudget:      cfg.TimeBudget,
		Confirmations:   cfg.Confirmations,
		MaxRetries:      cfg.MaxRetries,
		RetryBackoff:    cfg.RetryBackoff,
	}, p.chain, cursor, p.dispatcher, m, logger)
	if err != nil {
		return nil, err
	}

	ok = true
	return p, nil
}

// buildRoutes maps every configured contract to the decoders of its schema.
func buildRoutes(cfg config.Config) (dispatch.Routes, error) {
	routes := make(dispatch.Routes)

	if len(cfg.MarketplaceAddresses) > 0 {
		native, err := market.NewNativeDecoder()
		if err != nil {
			return nil, err
		}
		for _, input := range cfg.MarketplaceAddresses {
			addr, err := parseContract(input)
			if err != nil {
				return nil, err
			}
			routes[addr] = append(routes[addr], native)
		}
	}

	if len(cfg.SeaportAddresses) > 0 {
		paymentToken, _, err := indexer.ParseAddress(cfg.PaymentToken)
		if err != nil {
			return nil, fmt.Errorf("payment token: %w", err)
		}
		seaport, err := market.NewSeaportDecoder(market.SeaportConfig{PaymentToken: paymentToken})
		if err != nil {
			return nil, err
		}
		for _, input := range cfg.SeaportAddresses {
			addr, err := parseContract(input)
			if err != nil {
				return nil, err
			}
			routes[addr] = append(routes[addr], seaport)
		}
	}

	return routes, nil
}

func parseContract(input string) (common.Address, error) {
	addr, ok, err := indexer.ParseAddress(input)
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return common.Address{}, fmt.Errorf("empty contract address")
	}
	return addr, nil
}

// Close releases the pipeline's connections. It is safe on a partly built
// pipeline.
func (p *pipeline) Close() {
	if p.profiles != nil {
		p.profiles.Close()
	}
	if p.redis != nil {
		_ = p.redis.Close()
	}
	if p.pg != nil {
		p.pg.Close()
	}
	if p.chain != nil {
		p.chain.Close()
	}
}

func logResult(logger *zap.Logger, msg string, result indexer.Result) {
	logger.Info(msg,
		zap.Uint64("from", result.From),
		zap.Uint64("to", result.To),
		zap.Int("chunks", result.Chunks),
		zap.Int("logs", result.Logs),
		zap.Int("applied", result.Applied),
		zap.Int("failed", result.Failed),
		zap.Uint64("cursor", result.Cursor),
		zap.Bool("aborted", result.Aborted),
		zap.String("reason", result.Reason),
	)
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
