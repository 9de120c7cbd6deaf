package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"escrowd/pkg/db"
)

// RouterOptions tunes the outer middleware stack.
type RouterOptions struct {
	AllowedOrigins []string
	RequestLimit   int
}

// Routes constructs the chi router containing all API endpoints.
func (a *API) Routes(opts RouterOptions) (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	allowed := opts.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	requestLimit := opts.RequestLimit
	if requestLimit <= 0 {
		requestLimit = 100
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", callerHeader},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}))
	r.Use(httprate.Limit(requestLimit, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", a.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", a.handleCreateSession)
		r.Get("/sessions", a.handleListSessions)
		r.Get("/sessions/{id}", a.handleGetSession)
		r.Get("/sessions/{id}/audit", a.handleSessionAudit)
		r.Get("/sessions/{id}/transfers", a.handleSessionTransfers)
		r.Get("/nonce", a.handleNextNonce)

		r.Post("/sessions/{id}/start", a.handleStartSession)
		r.Post("/sessions/{id}/heartbeat", a.handleHeartbeat)
		r.Post("/sessions/{id}/pause", a.handlePauseSession)
		r.Post("/sessions/{id}/resume", a.handleResumeSession)
		r.Post("/sessions/{id}/release", a.handleReleasePayment)
		r.Post("/sessions/{id}/complete", a.handleCompleteSession)
		r.Post("/sessions/{id}/auto-complete", a.handleAutoCompleteSession)
		r.Post("/sessions/{id}/cancel", a.handleCancelSession)

		r.Post("/sessions/{id}/expire", a.handleExpireSession)
		r.Post("/sessions/{id}/no-show", a.handleMarkNoShow)
		r.Post("/sessions/{id}/no-show/refund", a.handleNoShowRefund)
		r.Post("/sessions/{id}/refund", a.handleTriggerRefund)

		r.Post("/admin/refunds/force", a.handleForceRefund)
		r.Post("/admin/refunds/batch", a.handleBatchRefund)
		r.Post("/admin/audit/export", a.handleAuditExport)
	})

	return r, nil
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.store.DB != nil {
		if err := db.Ping(r.Context(), a.store.DB); err != nil {
			respondError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
