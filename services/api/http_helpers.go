package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"escrowd/services/escrow"
)

// callerHeader carries the authenticated principal for every operation.
// Upstream gateway auth is expected to have validated it already.
const callerHeader = "X-Escrow-Caller"

func decodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

// respondEngineError maps engine sentinel errors onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	respondError(w, engineStatus(err), err)
}

func engineStatus(err error) int {
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, escrow.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, escrow.ErrWrongState),
		errors.Is(err, escrow.ErrTimeoutExceeded),
		errors.Is(err, escrow.ErrNotEligible),
		errors.Is(err, escrow.ErrInvalidNonce),
		errors.Is(err, escrow.ErrDuplicateSession),
		errors.Is(err, escrow.ErrAlreadyRefunded):
		return http.StatusConflict
	case errors.Is(err, escrow.ErrNothingAvailable),
		errors.Is(err, escrow.ErrNothingToRefund):
		return http.StatusUnprocessableEntity
	case errors.Is(err, escrow.ErrInvalidSessionID),
		errors.Is(err, escrow.ErrInvalidPayee),
		errors.Is(err, escrow.ErrUnsupportedAsset),
		errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrInvalidDuration),
		errors.Is(err, escrow.ErrInvalidRating),
		errors.Is(err, escrow.ErrReasonRequired),
		errors.Is(err, escrow.ErrBatchTooLarge):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func callerFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(callerHeader))
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 5*time.Second)
}

// requireAdminToken checks the bearer token on admin endpoints. The caller
// identity check against the configured admin list happens in the engine.
func (a *API) requireAdminToken(w http.ResponseWriter, r *http.Request) bool {
	if a.config.AdminToken == "" {
		respondError(w, http.StatusForbidden, errors.New("admin endpoints disabled"))
		return false
	}

	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) != a.config.AdminToken {
		respondError(w, http.StatusForbidden, errors.New("invalid admin token"))
		return false
	}
	return true
}
