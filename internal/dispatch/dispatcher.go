package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"mintExchange/internal/handler"
	"mintExchange/internal/market"
	"mintExchange/internal/metrics"
	"mintExchange/internal/model"
)

// FailureSink keeps failed logs for later replay.
type FailureSink interface {
	Record(failure model.DispatchFailure) error
}

// Routes maps a monitored contract address to the decoders of its schema(s).
type Routes map[common.Address][]market.Decoder

// BatchResult summarizes one DispatchBatch call.
type BatchResult struct {
	Total   int `json:"total"`
	Decoded int `json:"decoded"`
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Dispatcher decodes raw logs with the decoders registered for their address
// and applies the resulting events through the handler table.
type Dispatcher struct {
	routes   map[string][]market.Decoder
	handlers map[model.EventType]handler.Func
	failures FailureSink
	metrics  *metrics.Pipeline
	logger   *zap.Logger
	now      func() time.Time
}

func New(routes Routes, handlers map[model.EventType]handler.Func, failures FailureSink, m *metrics.Pipeline, logger *zap.Logger) (*Dispatcher, error) {
	if len(routes) == 0 {
		return nil, fmt.Errorf("at least one monitored contract is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop()
	}

	table := make(map[string][]market.Decoder, len(routes))
	for address, decoders := range routes {
		if len(decoders) == 0 {
			return nil, fmt.Errorf("no decoders for %s", address.Hex())
		}
		table[model.NormalizeAddress(address)] = decoders
	}

	return &Dispatcher{
		routes:   table,
		handlers: handlers,
		failures: failures,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Addresses returns the monitored contracts in a stable order.
func (d *Dispatcher) Addresses() []common.Address {
	out := make([]common.Address, 0, len(d.routes))
	for address := range d.routes {
		out = append(out, common.HexToAddress(address))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

// Monitored reports whether logs from address are dispatched.
func (d *Dispatcher) Monitored(address string) bool {
	_, ok := d.routes[strings.ToLower(strings.TrimSpace(address))]
	return ok
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeUnhandled
	outcomeApplied
	outcomeFailed
)

// Dispatch decodes and applies one log. It returns nil when the log is not
// for a monitored contract or matches none of its schemas. Failures are
// recorded to the failure sink and returned.
func (d *Dispatcher) Dispatch(ctx context.Context, log model.RawLog) (*model.Event, error) {
	_, event, err := d.dispatch(ctx, log)
	return event, err
}

// DispatchBatch dispatches logs in the given order. One log failing never
// stops the rest of the batch.
func (d *Dispatcher) DispatchBatch(ctx context.Context, logs []model.RawLog) BatchResult {
	result := BatchResult{Total: len(logs)}
	for _, log := range logs {
		out, event, _ := d.dispatch(ctx, log)
		if event != nil {
			result.Decoded++
		}
		switch out {
		case outcomeApplied:
			result.Applied++
		case outcomeFailed:
			result.Failed++
		default:
			result.Skipped++
		}
	}
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, log model.RawLog) (outcome, *model.Event, error) {
	if log.Removed {
		d.metrics.Logs.WithLabelValues(metrics.OutcomeRemoved).Inc()
		d.logger.Debug("skip removed log", zap.String("tx_hash", log.TxHash), zap.Uint64("log_index", log.LogIndex))
		return outcomeSkipped, nil, nil
	}

	decoders, ok := d.routes[strings.ToLower(strings.TrimSpace(log.Address))]
	if !ok {
		d.metrics.Logs.WithLabelValues(metrics.OutcomeUnmonitored).Inc()
		return outcomeSkipped, nil, nil
	}

	event, found, err := decode(decoders, log)
	if err != nil {
		d.fail(log, nil, err)
		return outcomeFailed, nil, err
	}
	if !found {
		d.metrics.Logs.WithLabelValues(metrics.OutcomeNotApplicable).Inc()
		d.logger.Debug("log not applicable",
			zap.String("address", log.Address),
			zap.String("tx_hash", log.TxHash),
			zap.Uint64("log_index", log.LogIndex),
		)
		return outcomeSkipped, nil, nil
	}

	fn, ok := d.handlers[event.Type]
	if !ok {
		d.metrics.Logs.WithLabelValues(metrics.OutcomeUnhandled).Inc()
		d.logger.Debug("no handler for event", zap.String("event", event.Type.String()), zap.String("tx_hash", log.TxHash))
		return outcomeUnhandled, &event, nil
	}

	if err := fn(ctx, event); err != nil {
		err = fmt.Errorf("%s: %w", event.Type, err)
		d.fail(log, &event, err)
		return outcomeFailed, &event, err
	}

	d.metrics.Logs.WithLabelValues(metrics.OutcomeApplied).Inc()
	return outcomeApplied, &event, nil
}

// decode tries the decoders of one address in order. The first decoder that
// recognises the signature owns the log.
func decode(decoders []market.Decoder, log model.RawLog) (model.Event, bool, error) {
	topic0 := log.Topic0()
	for _, decoder := range decoders {
		if !decoder.CanDecode(topic0) {
			continue
		}
		event, ok, err := decoder.Decode(log)
		if err != nil {
			return model.Event{}, false, fmt.Errorf("decode %s log: %w", decoder.Protocol(), err)
		}
		if ok {
			return event, true, nil
		}
		return model.Event{}, false, nil
	}
	return model.Event{}, false, nil
}

func (d *Dispatcher) fail(log model.RawLog, event *model.Event, err error) {
	eventName := ""
	if event != nil {
		eventName = event.Type.String()
	}
	d.metrics.Logs.WithLabelValues(metrics.OutcomeFailed).Inc()
	d.metrics.HandlerFailures.WithLabelValues(failureLabel(eventName)).Inc()

	fields := []zap.Field{
		zap.String("event", eventName),
		zap.String("address", log.Address),
		zap.Uint64("block_number", log.BlockNumber),
		zap.String("tx_hash", log.TxHash),
		zap.Uint64("log_index", log.LogIndex),
		zap.Error(err),
	}
	if errors.Is(err, handler.ErrMissingReference) {
		d.logger.Warn("skip log referencing unseen row", fields...)
	} else {
		d.logger.Error("dispatch failed", fields...)
	}

	if d.failures == nil {
		return
	}
	if recErr := d.failures.Record(model.DispatchFailure{
		Log:      log,
		Event:    eventName,
		Error:    err.Error(),
		FailedAt: d.now().UTC().Format(time.RFC3339Nano),
	}); recErr != nil {
		d.logger.Error("record failure", zap.String("tx_hash", log.TxHash), zap.Error(recErr))
	}
}

func failureLabel(eventName string) string {
	if eventName == "" {
		return "decode"
	}
	return eventName
}
