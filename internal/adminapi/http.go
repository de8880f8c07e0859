package adminapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/webitel/cluster-sharding/internal/host"
	"github.com/webitel/cluster-sharding/internal/observability"
	"github.com/webitel/cluster-sharding/internal/sharding"
)

// HTTPHandler is the chi-routed introspection and operator surface for a
// single entity type's ShardHost: list live shards, inspect one, and
// request a manual hand-off.
type HTTPHandler struct {
	logger *slog.Logger
	host   *host.ShardHost
}

// NewHTTPHandler builds the router for h, mounted by the caller under
// whatever path prefix fits the rest of its HTTP surface.
func NewHTTPHandler(logger *slog.Logger, h *host.ShardHost) *HTTPHandler {
	return &HTTPHandler{logger: logger, host: h}
}

// Routes returns the mountable chi.Router for this handler.
func (h *HTTPHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(tracingMiddleware)

	r.Get("/shards", h.listShards)
	r.Get("/shards/{shardId}/state", h.shardState)
	r.Post("/shards/{shardId}/handoff", h.handOff)
	r.Get("/shards/{shardId}/state/stream", h.streamState)
	return r
}

func (h *HTTPHandler) listShards(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	writeJSON(w, http.StatusOK, h.host.Stats(ctx))
}

func (h *HTTPHandler) shardState(w http.ResponseWriter, r *http.Request) {
	shardId := chi.URLParam(r, "shardId")
	state, ok := h.host.CurrentState(r.Context(), sharding.ShardId(shardId))
	if !ok {
		http.Error(w, "unknown or inactive shard id", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *HTTPHandler) handOff(w http.ResponseWriter, r *http.Request) {
	shardId := chi.URLParam(r, "shardId")
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := h.host.HandOffOne(ctx, sharding.ShardId(shardId)); err != nil {
		h.logger.Error("ADMIN_HANDOFF_FAILED", "shard_id", shardId, "err", err)
		http.Error(w, "hand-off did not complete in time", http.StatusGatewayTimeout)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// tracingMiddleware wraps every admin request in a span named after its
// method and request path, so request tracing reaches into the HTTP layer
// the same way it would once an exporter is attached.
func tracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := observability.StartSpan(r.Context(), "adminapi."+r.Method+" "+r.URL.Path)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
