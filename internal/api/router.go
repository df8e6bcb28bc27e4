// Package api exposes the webhook, admin sync, health and metrics endpoints.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mintExchange/internal/indexer"
	"mintExchange/internal/model"
	"mintExchange/internal/webhook"
)

const maxBodyBytes = 4 << 20

// Syncer runs sync passes on demand.
type Syncer interface {
	Run(ctx context.Context) (indexer.Result, error)
	RunRange(ctx context.Context, from, to uint64) (indexer.Result, error)
}

// Ingester applies a webhook delivery.
type Ingester interface {
	Ingest(ctx context.Context, txHash string, logs []model.RawLog) webhook.Result
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the router. Health, Gatherer and AdminToken are optional.
type Options struct {
	Syncer     Syncer
	Ingester   Ingester
	Health     Pinger
	Gatherer   prometheus.Gatherer
	AdminToken string
	Logger     *zap.Logger
}

type app struct {
	opts   Options
	logger *zap.Logger
}

// NewRouter registers the routes and wraps them with request id and access
// logging middleware.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &app{opts: opts, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/logs", a.webhookHandler)
	mux.HandleFunc("POST /admin/sync", a.adminSyncHandler)
	mux.HandleFunc("GET /healthz", a.healthHandler)
	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return WithRequestID(WithLogging(logger, mux))
}

func (a *app) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if a.opts.Ingester == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "webhook_disabled", "")
		return
	}
	payload, err := webhook.DecodePayload(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}
	result := a.opts.Ingester.Ingest(r.Context(), payload.TransactionHash, payload.RawLogs())
	writeJSON(w, http.StatusOK, result)
}

type syncRequest struct {
	FromBlock *webhook.Quantity `json:"fromBlock"`
	ToBlock   *webhook.Quantity `json:"toBlock"`
}

func (a *app) adminSyncHandler(w http.ResponseWriter, r *http.Request) {
	if !a.authorized(r) {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	if a.opts.Syncer == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "sync_disabled", "")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	var (
		result indexer.Result
		runErr error
	)
	if len(strings.TrimSpace(string(body))) == 0 {
		result, runErr = a.opts.Syncer.Run(r.Context())
	} else {
		var req syncRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
		switch {
		case req.FromBlock == nil && req.ToBlock == nil:
			result, runErr = a.opts.Syncer.Run(r.Context())
		case req.FromBlock == nil || req.ToBlock == nil:
			writeJSONError(w, http.StatusBadRequest, "validation_error", "fromBlock and toBlock must be given together")
			return
		case *req.ToBlock < *req.FromBlock:
			writeJSONError(w, http.StatusBadRequest, "validation_error", "toBlock must be >= fromBlock")
			return
		default:
			result, runErr = a.opts.Syncer.RunRange(r.Context(), uint64(*req.FromBlock), uint64(*req.ToBlock))
		}
	}
	if runErr != nil {
		a.logger.Error("admin sync failed", zap.Error(runErr), zap.String("request_id", RequestIDFromContext(r.Context())))
		writeJSONError(w, http.StatusInternalServerError, "sync_failed", runErr.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *app) authorized(r *http.Request) bool {
	if a.opts.AdminToken == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(a.opts.AdminToken)) == 1
}

func (a *app) healthHandler(w http.ResponseWriter, r *http.Request) {
	if a.opts.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.opts.Health.Ping(ctx); err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
