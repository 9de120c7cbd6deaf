package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"escrowd/services/escrow"
)

func (a *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID              string `json:"id"`
		Payee           string `json:"payee"`
		Asset           string `json:"asset"`
		Amount          uint64 `json:"amount"`
		DurationMinutes uint32 `json:"duration_minutes"`
		Nonce           uint64 `json:"nonce"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	s, err := a.engine.CreateSession(ctx, callerFrom(r), escrow.CreateSessionInput{
		ID:              req.ID,
		Payee:           req.Payee,
		Asset:           req.Asset,
		Amount:          req.Amount,
		DurationMinutes: req.DurationMinutes,
		Nonce:           req.Nonce,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"session": toSessionView(s)})
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	s, err := a.engine.GetSession(ctx, chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"session": toSessionView(s)})
}

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	participant := r.URL.Query().Get("participant")
	if participant == "" {
		respondError(w, http.StatusBadRequest, errors.New("participant is required"))
		return
	}

	limit := a.config.ListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	sessions, err := a.engine.ListSessions(ctx, participant, limit)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, toSessionView(s))
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (a *API) handleNextNonce(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if caller == "" {
		respondError(w, http.StatusBadRequest, errors.New("caller header required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	nonce, err := a.engine.NextNonce(ctx, caller)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"caller": caller, "nonce": nonce})
}

func (a *API) handleStartSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := a.engine.StartSession(ctx, callerFrom(r), id); err != nil {
		respondEngineError(w, err)
		return
	}
	a.respondSession(w, r, id)
}

func (a *API) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := a.engine.Heartbeat(ctx, callerFrom(r), id); err != nil {
		respondEngineError(w, err)
		return
	}
	a.respondSession(w, r, id)
}

func (a *API) handlePauseSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := a.engine.PauseSession(ctx, callerFrom(r), id); err != nil {
		respondEngineError(w, err)
		return
	}
	a.respondSession(w, r, id)
}

func (a *API) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := a.engine.ResumeSession(ctx, callerFrom(r), id); err != nil {
		respondEngineError(w, err)
		return
	}
	a.respondSession(w, r, id)
}

func (a *API) handleReleasePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	id := chi.URLParam(r, "id")
	amount, err := a.engine.ReleasePayment(ctx, callerFrom(r), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "released": amount})
}

func (a *API) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rating uint8  `json:"rating"`
		Note   string `json:"note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := a.engine.CompleteSession(ctx, callerFrom(r), id, req.Rating, req.Note); err != nil {
		respondEngineError(w, err)
		return
	}
	a.respondSession(w, r, id)
}

func (a *API) handleAutoCompleteSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := a.engine.AutoCompleteSession(ctx, callerFrom(r), id); err != nil {
		respondEngineError(w, err)
		return
	}
	a.respondSession(w, r, id)
}

func (a *API) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	id := chi.URLParam(r, "id")
	refunded, err := a.engine.CancelSession(ctx, callerFrom(r), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "refunded": refunded})
}

func (a *API) respondSession(w http.ResponseWriter, r *http.Request, id string) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	s, err := a.engine.GetSession(ctx, id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"session": toSessionView(s)})
}
