// Package api exposes the executor's GetEndpointData entry point, plus
// the stats and cache-management endpoints, over HTTP.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KathyBarabash/asg-runtime/internal/executor"
	"github.com/KathyBarabash/asg-runtime/internal/httputil"
	"github.com/KathyBarabash/asg-runtime/internal/obs"
)

// Handler adapts an *executor.Executor to net/http.
type Handler struct {
	exec           *executor.Executor
	logger         *slog.Logger
	maxRequestBody int64
}

// New builds a Handler. maxRequestBody bounds the size of the endpoint
// spec body accepted by GetEndpointData; zero disables the limit.
func New(exec *executor.Executor, logger *slog.Logger, maxRequestBody int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{exec: exec, logger: logger, maxRequestBody: maxRequestBody}
}

// RegisterRoutes wires every endpoint this runtime exposes onto mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /endpoint-data", h.GetEndpointData)
	mux.HandleFunc("GET /stats", h.Stats)
	mux.HandleFunc("POST /cache/response/clear", h.ClearResponseCache)
	mux.HandleFunc("POST /cache/origin/clear", h.ClearOriginCache)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// Health reports liveness; it never touches the executor.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// GetEndpointData reads a specification from the request body and
// returns the executor's envelope verbatim.
func (h *Handler) GetEndpointData(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadLimitedBody(r.Body, h.maxRequestBody)
	if err != nil {
		h.writeEnvelope(w, http.StatusBadRequest, executor.Response{
			Status:  "error",
			Message: "request body too large or unreadable: " + err.Error(),
		})
		return
	}

	resp := h.exec.GetEndpointData(r.Context(), string(body))
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusBadRequest
	}
	h.writeEnvelope(w, status, resp)
}

// Stats serves the describe()-style snapshot.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	snap := h.exec.Stats()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.logger.Error("failed to encode stats response", "error", err)
	}
}

// ClearResponseCache mirrors async_clear_response_cache's management endpoint.
func (h *Handler) ClearResponseCache(w http.ResponseWriter, r *http.Request) {
	msg := h.exec.ClearResponseCache(r.Context())
	h.writeMessage(w, msg)
}

// ClearOriginCache mirrors async_clear_origin_cache's management endpoint.
func (h *Handler) ClearOriginCache(w http.ResponseWriter, r *http.Request) {
	msg := h.exec.ClearOriginCache(r.Context())
	h.writeMessage(w, msg)
}

func (h *Handler) writeEnvelope(w http.ResponseWriter, status int, resp executor.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode endpoint-data response", "error", err)
	}
}

func (h *Handler) writeMessage(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"message": message}); err != nil {
		h.logger.Error("failed to encode cache response", "error", err)
	}
}

// RecoveryMiddleware converts a panic in any downstream handler into a
// 500 envelope instead of crashing the process.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", "error", rec, "path", r.URL.Path)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = io.WriteString(w, `{"status":"error","message":"internal server error"}`)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware wraps every request with request-ID scoping via
// internal/obs, logging each request at debug level.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	withID := obs.RequestIDMiddleware
	return func(next http.Handler) http.Handler {
		return withID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := obs.RequestIDFromContext(r.Context())
			logger.Debug("request received", "method", r.Method, "path", r.URL.Path, "request_id", reqID)
			next.ServeHTTP(w, r)
		}))
	}
}
