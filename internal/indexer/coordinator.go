package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"mintExchange/internal/chain"
	"mintExchange/internal/dispatch"
	"mintExchange/internal/metrics"
	"mintExchange/internal/model"
)

// Abort reasons reported in Result.Reason.
const (
	ReasonTimeBudget  = "time_budget"
	ReasonRateLimited = "rate_limited"
	ReasonTimeout     = "timeout"
)

// LogSource is the subset of the chain client the coordinator reads from.
type LogSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, address common.Address, fromBlock, toBlock uint64) ([]types.Log, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// CursorStore persists the last fully applied block.
type CursorStore interface {
	LoadCursor(ctx context.Context, name string) (uint64, bool, error)
	AdvanceCursor(ctx context.Context, name string, block uint64) error
}

// LogDispatcher applies sorted logs and names the contracts to scan.
type LogDispatcher interface {
	Addresses() []common.Address
	DispatchBatch(ctx context.Context, logs []model.RawLog) dispatch.BatchResult
}

// Config holds runtime settings for the coordinator.
type Config struct {
	CursorName      string
	DeploymentBlock uint64
	ChunkSize       uint64
	MaxRange        uint64
	TimeBudget      time.Duration
	Confirmations   uint64
	MaxRetries      int
	RetryBackoff    time.Duration
}

// Result describes one sync pass. Cursor is the last block of the last
// completed chunk.
type Result struct {
	From    uint64 `json:"fromBlock"`
	To      uint64 `json:"toBlock"`
	Chunks  int    `json:"chunks"`
	Logs    int    `json:"logs"`
	Applied int    `json:"applied"`
	Failed  int    `json:"failed"`
	Cursor  uint64 `json:"cursor"`
	Aborted bool   `json:"aborted"`
	Reason  string `json:"reason,omitempty"`
}

// Coordinator scans monitored contracts chunk by chunk and feeds the logs to
// the dispatcher in (block, log index) order.
type Coordinator struct {
	cfg        Config
	source     LogSource
	cursor     CursorStore
	dispatcher LogDispatcher
	metrics    *metrics.Pipeline
	logger     *zap.Logger
	now        func() time.Time
}

// NewCoordinator builds a Coordinator with its dependencies.
func NewCoordinator(cfg Config, source LogSource, cursor CursorStore, dispatcher LogDispatcher, m *metrics.Pipeline, logger *zap.Logger) (*Coordinator, error) {
	if source == nil {
		return nil, fmt.Errorf("log source is nil")
	}
	if cursor == nil {
		return nil, fmt.Errorf("cursor store is nil")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is nil")
	}
	if cfg.ChunkSize == 0 {
		return nil, fmt.Errorf("chunk size must be greater than zero")
	}
	if cfg.CursorName == "" {
		return nil, fmt.Errorf("cursor name is required")
	}
	if len(dispatcher.Addresses()) == 0 {
		return nil, fmt.Errorf("at least one address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Coordinator{
		cfg:        cfg,
		source:     source,
		cursor:     cursor,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Run resolves the next block range from the cursor and the chain tip, then
// scans it, advancing the cursor after every chunk.
func (c *Coordinator) Run(ctx context.Context) (Result, error) {
	start := c.now()

	from := c.cfg.DeploymentBlock
	last, ok, err := c.cursor.LoadCursor(ctx, c.cfg.CursorName)
	if err != nil {
		return Result{}, fmt.Errorf("load cursor: %w", err)
	}
	if ok {
		from = last + 1
	}

	var tip uint64
	err = withRetry(ctx, c.cfg.MaxRetries, c.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		tip, err = c.source.LatestBlockNumber(ctx)
		if err != nil {
			c.logger.Warn("get latest block failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		if reason, abort := c.abortReason(ctx, err); abort {
			return c.abort(Result{From: from, Cursor: last}, reason, err), nil
		}
		return Result{}, fmt.Errorf("get latest block: %w", err)
	}

	result := Result{From: from, Cursor: last}
	blocks, ok := ResolveRange(from, tip, c.cfg.Confirmations, c.cfg.MaxRange)
	result.To = blocks.To
	if !ok {
		c.logger.Info("nothing to sync",
			zap.Uint64("from", from),
			zap.Uint64("tip", tip),
			zap.Uint64("confirmations", c.cfg.Confirmations),
		)
		return result, nil
	}

	return c.scan(ctx, start, result, true)
}

// RunRange scans an explicit range without reading or moving the cursor.
func (c *Coordinator) RunRange(ctx context.Context, from, to uint64) (Result, error) {
	if to < from {
		return Result{}, fmt.Errorf("to block must be >= from block")
	}
	return c.scan(ctx, c.now(), Result{From: from, To: to}, false)
}

func (c *Coordinator) scan(ctx context.Context, start time.Time, result Result, advance bool) (Result, error) {
	ranges, err := SplitRange(result.From, result.To, c.cfg.ChunkSize)
	if err != nil {
		return result, err
	}
	addresses := c.dispatcher.Addresses()

	c.logger.Info("sync start",
		zap.Uint64("from", result.From),
		zap.Uint64("to", result.To),
		zap.Int("chunks", len(ranges)),
		zap.Bool("advance_cursor", advance),
	)

	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if c.cfg.TimeBudget > 0 && c.now().Sub(start) >= c.cfg.TimeBudget {
			return c.abort(result, ReasonTimeBudget, nil), nil
		}

		chunkStart := c.now()
		logs, err := c.fetchChunk(ctx, addresses, blockRange)
		if err != nil {
			if reason, abort := c.abortReason(ctx, err); abort {
				return c.abort(result, reason, err), nil
			}
			return result, fmt.Errorf("fetch blocks %d-%d: %w", blockRange.From, blockRange.To, err)
		}

		model.SortLogs(logs)
		batch := c.dispatcher.DispatchBatch(ctx, logs)

		if advance {
			if err := c.cursor.AdvanceCursor(ctx, c.cfg.CursorName, blockRange.To); err != nil {
				return result, fmt.Errorf("advance cursor to %d: %w", blockRange.To, err)
			}
			c.metrics.CursorBlock.Set(float64(blockRange.To))
		}

		result.Chunks++
		result.Logs += len(logs)
		result.Applied += batch.Applied
		result.Failed += batch.Failed
		result.Cursor = blockRange.To
		c.metrics.ChunkDuration.Observe(c.now().Sub(chunkStart).Seconds())

		c.logger.Info("chunk complete",
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
			zap.Int("logs", len(logs)),
			zap.Int("applied", batch.Applied),
			zap.Int("failed", batch.Failed),
		)
	}

	return result, nil
}

// abortReason classifies errors that end a pass early without failing it.
func (c *Coordinator) abortReason(ctx context.Context, err error) (string, bool) {
	switch {
	case chain.IsRateLimited(err):
		return ReasonRateLimited, true
	case ctx.Err() == nil && chain.IsTimeout(err):
		return ReasonTimeout, true
	default:
		return "", false
	}
}

func (c *Coordinator) abort(result Result, reason string, err error) Result {
	result.Aborted = true
	result.Reason = reason
	c.metrics.SyncAborts.WithLabelValues(reason).Inc()
	fields := []zap.Field{
		zap.String("reason", reason),
		zap.Uint64("cursor", result.Cursor),
		zap.Int("chunks", result.Chunks),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	c.logger.Warn("sync aborted", fields...)
	return result
}

// fetchChunk loads the logs of every monitored contract in one block range.
func (c *Coordinator) fetchChunk(ctx context.Context, addresses []common.Address, blockRange BlockRange) ([]model.RawLog, error) {
	seen := make(map[string]struct{})
	timestamps := make(map[uint64]uint64)
	var out []model.RawLog

	for _, address := range addresses {
		logs, err := c.filterLogsWithRetry(ctx, address, blockRange.From, blockRange.To)
		if err != nil {
			return nil, err
		}
		for _, log := range logs {
			id := fmt.Sprintf("%s:%d", log.TxHash.Hex(), log.Index)
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}

			ts, ok := timestamps[log.BlockNumber]
			if !ok {
				ts, err = c.blockTimestampWithRetry(ctx, log.BlockNumber)
				if err != nil {
					return nil, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
				}
				timestamps[log.BlockNumber] = ts
			}
			out = append(out, buildRawLog(log, ts))
		}
	}
	return out, nil
}

func (c *Coordinator) filterLogsWithRetry(ctx context.Context, address common.Address, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, c.cfg.MaxRetries, c.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = c.source.FilterLogs(ctx, address, fromBlock, toBlock)
		if err != nil {
			c.logger.Warn("filter logs failed", zap.Error(err), zap.String("address", address.Hex()), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (c *Coordinator) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, c.cfg.MaxRetries, c.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = c.source.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			c.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}
