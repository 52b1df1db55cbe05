// Copyright 2026 The Authzd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/authzd/authzd/internal/audit"
	"github.com/authzd/authzd/internal/authz"
	"github.com/authzd/authzd/internal/cache"
	"github.com/authzd/authzd/internal/observability/logger"
)

const defaultAuditLimit = 100

// Handler holds HTTP handlers and their dependencies.
type Handler struct {
	evaluator   *authz.Evaluator
	auditStore  audit.Store
	cacheStats  *cache.Instrumented
	invalidator *cache.Invalidator
}

// NewHandler creates a new HTTP handler. auditStore, cacheStats and
// invalidator may be nil; the corresponding endpoints then return 503.
func NewHandler(evaluator *authz.Evaluator, auditStore audit.Store, cacheStats *cache.Instrumented, invalidator *cache.Invalidator) *Handler {
	return &Handler{
		evaluator:   evaluator,
		auditStore:  auditStore,
		cacheStats:  cacheStats,
		invalidator: invalidator,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// Decision endpoint: the hot path, mounted at the root.
	r.Post("/authorize", h.Authorize)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/audit", func(r chi.Router) {
			r.Get("/entries", h.AuditEntries)
			r.Get("/stats", h.AuditStats)
			r.Get("/verify", h.AuditVerify)
		})
		r.Get("/cache/stats", h.CacheStats)
		r.Post("/events/invalidate", h.Invalidate)
	})

	return r
}

// HealthCheck reports service liveness
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "authzd",
	})
}

// Authorize evaluates an authorization request. The evaluator never
// fails: any well-formed envelope gets a 200 with an explicit decision.
// Only an unparseable body earns a 400.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req authz.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp := h.evaluator.Evaluate(r.Context(), &req)
	respondJSON(w, http.StatusOK, resp)
}

// AuditEntries returns recent audit entries for a tenant, oldest first.
// Optional principal_id or resource_type+resource_id narrow the query.
func (h *Handler) AuditEntries(w http.ResponseWriter, r *http.Request) {
	if h.auditStore == nil {
		respondError(w, http.StatusServiceUnavailable, "audit store not configured")
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	limit := queryLimit(r)

	var (
		entries []audit.Entry
		err     error
	)
	switch {
	case r.URL.Query().Get("principal_id") != "":
		entries, err = h.auditStore.RecentByPrincipal(r.Context(), tenantID, r.URL.Query().Get("principal_id"), limit)
	case r.URL.Query().Get("resource_type") != "":
		entries, err = h.auditStore.RecentByResource(r.Context(), tenantID,
			r.URL.Query().Get("resource_type"), r.URL.Query().Get("resource_id"), limit)
	default:
		entries, err = h.auditStore.RecentByTenant(r.Context(), tenantID, limit)
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "audit query failed",
			logger.Component("http"), logger.TenantID(tenantID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to read audit log")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// AuditStats returns allowed/denied totals for a tenant
func (h *Handler) AuditStats(w http.ResponseWriter, r *http.Request) {
	if h.auditStore == nil {
		respondError(w, http.StatusServiceUnavailable, "audit store not configured")
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	allowed, denied, err := h.auditStore.DecisionCounts(r.Context(), tenantID)
	if err != nil {
		slog.ErrorContext(r.Context(), "audit stats query failed",
			logger.Component("http"), logger.TenantID(tenantID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to read audit log")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"tenant_id": tenantID,
		"allowed":   allowed,
		"denied":    denied,
		"total":     allowed + denied,
	})
}

// AuditVerify recomputes the hash chain over a tenant's recent entries
// and reports the first broken link, if any.
func (h *Handler) AuditVerify(w http.ResponseWriter, r *http.Request) {
	if h.auditStore == nil {
		respondError(w, http.StatusServiceUnavailable, "audit store not configured")
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	entries, err := h.auditStore.RecentByTenant(r.Context(), tenantID, queryLimit(r))
	if err != nil {
		slog.ErrorContext(r.Context(), "audit verify query failed",
			logger.Component("http"), logger.TenantID(tenantID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to read audit log")
		return
	}

	badIndex, verr := audit.VerifyChain(entries)
	result := map[string]any{
		"tenant_id": tenantID,
		"checked":   len(entries),
		"intact":    verr == nil,
	}
	if verr != nil {
		result["broken_at"] = badIndex
		result["detail"] = verr.Error()
	}

	respondJSON(w, http.StatusOK, result)
}

// CacheStats exposes hit/miss/error counters of the decision cache
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cacheStats == nil {
		respondError(w, http.StatusServiceUnavailable, "cache not configured")
		return
	}

	respondJSON(w, http.StatusOK, h.cacheStats.Snapshot())
}

// Invalidate accepts a mutation event from the management plane and
// applies it to the local cache. When Redis pub/sub is active, events
// arriving there are applied by the listener instead; this endpoint is
// the fallback transport and also republishes to peers.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	if h.invalidator == nil {
		respondError(w, http.StatusServiceUnavailable, "cache invalidation not configured")
		return
	}

	var ev cache.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if ev.Type == "" || ev.TenantID == "" {
		respondError(w, http.StatusBadRequest, "type and tenant_id are required")
		return
	}

	if err := h.invalidator.Apply(r.Context(), ev); err != nil {
		slog.ErrorContext(r.Context(), "cache invalidation failed",
			logger.Component("http"), logger.TenantID(ev.TenantID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to invalidate cache")
		return
	}
	if err := h.invalidator.Publish(r.Context(), ev); err != nil {
		slog.WarnContext(r.Context(), "event publish failed",
			logger.Component("http"), logger.TenantID(ev.TenantID), logger.Error(err))
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func queryLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultAuditLimit
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
