package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (a *API) handleExpireSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	id := chi.URLParam(r, "id")
	refunded, err := a.engine.ExpireSession(ctx, callerFrom(r), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "refunded": refunded})
}

func (a *API) handleMarkNoShow(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := a.engine.MarkNoShow(ctx, callerFrom(r), id); err != nil {
		respondEngineError(w, err)
		return
	}
	a.respondSession(w, r, id)
}

func (a *API) handleNoShowRefund(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	id := chi.URLParam(r, "id")
	refunded, err := a.engine.ProcessNoShowRefund(ctx, callerFrom(r), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "refunded": refunded})
}

func (a *API) handleTriggerRefund(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	id := chi.URLParam(r, "id")
	refunded, condition, err := a.engine.TriggerEligibleRefund(ctx, callerFrom(r), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"refunded":   refunded,
		"condition":  condition,
	})
}

func (a *API) handleForceRefund(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdminToken(w, r) {
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		Reason    string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	refunded, err := a.engine.ForceRefund(ctx, callerFrom(r), req.SessionID, req.Reason)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"session_id": req.SessionID, "refunded": refunded})
}

func (a *API) handleBatchRefund(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdminToken(w, r) {
		return
	}

	var req struct {
		SessionIDs []string `json:"session_ids"`
		Reason     string   `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	results, err := a.engine.BatchRefund(ctx, callerFrom(r), req.SessionIDs, req.Reason)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}
