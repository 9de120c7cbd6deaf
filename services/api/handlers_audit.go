package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"escrowd/pkg/db"
	"escrowd/services/audit"
	"escrowd/services/escrow"
)

// sessionIDParam normalizes and validates the id path parameter, matching
// the engine's own canonicalization of caller-supplied ids.
func sessionIDParam(r *http.Request) (string, bool) {
	id := escrow.NormalizeSessionID(chi.URLParam(r, "id"))
	return id, escrow.ValidSessionID(id)
}

func (a *API) handleSessionAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, escrow.ErrInvalidSessionID)
		return
	}

	var rows []audit.EventRow
	err := db.Select(r.Context(), a.store.DB, &rows,
		`SELECT event_id, session_id, kind, actor, amount, fee_amount, pathway, reason, at
		 FROM audit_events
		 WHERE session_id = $1
		 ORDER BY at, id`, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "events": rows})
}

func (a *API) handleSessionTransfers(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, escrow.ErrInvalidSessionID)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var models []transferModel
	if err := a.store.ORM.WithContext(ctx).
		Where("session_id = ?", id).
		Order("at, id").
		Find(&models).Error; err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	views := make([]TransferView, 0, len(models))
	for _, m := range models {
		views = append(views, m.toView())
	}
	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "transfers": views})
}

func (a *API) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdminToken(w, r) {
		return
	}
	if a.exporter == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("audit export not configured"))
		return
	}

	var req struct {
		From time.Time `json:"from"`
		To   time.Time `json:"to"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.To.IsZero() {
		req.To = time.Now().UTC()
	}

	result, err := a.exporter.Export(r.Context(), req.From, req.To)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"export": result})
}
