// Package webhook feeds pushed transaction logs through the dispatcher without
// touching the sync cursor.
package webhook

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mintExchange/internal/dispatch"
	"mintExchange/internal/metrics"
	"mintExchange/internal/model"
)

// Dispatcher is the part of the protocol dispatcher a delivery needs.
type Dispatcher interface {
	Monitored(address string) bool
	DispatchBatch(ctx context.Context, logs []model.RawLog) dispatch.BatchResult
}

// TimestampSource fills in block times the provider left out.
type TimestampSource interface {
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Result reports what one delivery did.
type Result struct {
	TransactionHash string `json:"transactionHash"`
	Received        int    `json:"received"`
	Discarded       int    `json:"discarded"`
	dispatch.BatchResult
}

// Ingestor applies webhook deliveries.
type Ingestor struct {
	dispatcher Dispatcher
	timestamps TimestampSource
	metrics    *metrics.Pipeline
	logger     *zap.Logger
}

// NewIngestor builds an Ingestor. timestamps may be nil.
func NewIngestor(dispatcher Dispatcher, timestamps TimestampSource, m *metrics.Pipeline, logger *zap.Logger) (*Ingestor, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Ingestor{dispatcher: dispatcher, timestamps: timestamps, metrics: m, logger: logger}, nil
}

// Ingest dispatches the logs of one transaction that belong to a monitored
// contract and discards the rest.
func (i *Ingestor) Ingest(ctx context.Context, txHash string, logs []model.RawLog) Result {
	i.metrics.WebhookDeliveries.Inc()
	txHash = model.NormalizeHex(txHash)

	result := Result{TransactionHash: txHash, Received: len(logs)}
	monitored := make([]model.RawLog, 0, len(logs))
	for _, log := range logs {
		if !i.dispatcher.Monitored(log.Address) {
			i.logger.Debug("discard unmonitored webhook log",
				zap.String("address", log.Address),
				zap.String("tx_hash", txHash),
			)
			result.Discarded++
			continue
		}
		if log.TxHash == "" {
			log.TxHash = txHash
		}
		monitored = append(monitored, log)
	}

	i.fillTimestamps(ctx, monitored)
	model.SortLogs(monitored)
	result.BatchResult = i.dispatcher.DispatchBatch(ctx, monitored)

	i.logger.Info("webhook delivery applied",
		zap.String("tx_hash", txHash),
		zap.Int("received", result.Received),
		zap.Int("applied", result.Applied),
		zap.Int("failed", result.Failed),
	)
	return result
}

func (i *Ingestor) fillTimestamps(ctx context.Context, logs []model.RawLog) {
	if i.timestamps == nil {
		return
	}
	known := make(map[uint64]uint64)
	for idx := range logs {
		if logs[idx].Timestamp != 0 || logs[idx].BlockNumber == 0 {
			continue
		}
		ts, ok := known[logs[idx].BlockNumber]
		if !ok {
			var err error
			ts, err = i.timestamps.BlockTimestamp(ctx, logs[idx].BlockNumber)
			if err != nil {
				i.logger.Warn("block timestamp lookup failed",
					zap.Uint64("block_number", logs[idx].BlockNumber),
					zap.Error(err),
				)
				continue
			}
			known[logs[idx].BlockNumber] = ts
		}
		logs[idx].Timestamp = ts
	}
}
