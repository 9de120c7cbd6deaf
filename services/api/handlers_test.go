package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"escrowd/services/escrow"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := escrow.DefaultConfig()
	cfg.Admins = []string{"admin"}

	engine, err := escrow.New(cfg, escrow.Deps{
		Ledger:   escrow.NewMemoryLedger(),
		Treasury: escrow.NewMemoryTreasury(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	a := &API{
		store:   &Store{},
		engine:  engine,
		config:  Config{AdminToken: "secret", ListLimit: 100},
		log:     zerolog.Nop(),
		metrics: newMetrics(prometheus.NewRegistry()),
	}

	routes, err := a.Routes(RouterOptions{})
	if err != nil {
		t.Fatalf("Routes() error = %v", err)
	}

	srv := httptest.NewServer(routes)
	t.Cleanup(srv.Close)
	return srv
}

func sid(n byte) string {
	return strings.Repeat(fmt.Sprintf("%02x", n), 32)
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, caller string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if caller != "" {
		req.Header.Set(callerHeader, caller)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		payload = nil
	}
	return resp, payload
}

func createSession(t *testing.T, srv *httptest.Server, id string, nonce uint64) {
	t.Helper()

	resp, payload := doRequest(t, srv, http.MethodPost, "/v1/sessions", "payer", map[string]any{
		"id":               id,
		"payee":            "payee",
		"asset":            "native",
		"amount":           100,
		"duration_minutes": 60,
		"nonce":            nonce,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d, payload %v", resp.StatusCode, payload)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	id := sid(1)

	createSession(t, srv, id, 0)

	resp, payload := doRequest(t, srv, http.MethodPost, "/v1/sessions/"+id+"/start", "payee", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, payload %v", resp.StatusCode, payload)
	}
	session := payload["session"].(map[string]any)
	if session["status"] != "active" {
		t.Fatalf("status after start = %v, want active", session["status"])
	}

	resp, _ = doRequest(t, srv, http.MethodPost, "/v1/sessions/"+id+"/heartbeat", "payee", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("heartbeat status = %d", resp.StatusCode)
	}

	resp, payload = doRequest(t, srv, http.MethodPost, "/v1/sessions/"+id+"/complete", "payer", map[string]any{
		"rating": 5,
		"note":   "great",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete status = %d, payload %v", resp.StatusCode, payload)
	}
	session = payload["session"].(map[string]any)
	if session["status"] != "completed" {
		t.Fatalf("status after complete = %v, want completed", session["status"])
	}
	if session["released_amount"].(float64) != 100 {
		t.Fatalf("released_amount = %v, want 100", session["released_amount"])
	}

	resp, payload = doRequest(t, srv, http.MethodGet, "/v1/sessions/"+id, "", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	session = payload["session"].(map[string]any)
	if session["rating"].(float64) != 5 {
		t.Fatalf("rating = %v, want 5", session["rating"])
	}
}

func TestCancelSessionOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	id := sid(2)

	createSession(t, srv, id, 0)

	resp, payload := doRequest(t, srv, http.MethodPost, "/v1/sessions/"+id+"/cancel", "payer", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d, payload %v", resp.StatusCode, payload)
	}
	if payload["refunded"].(float64) != 100 {
		t.Fatalf("refunded = %v, want 100", payload["refunded"])
	}

	// Second cancel must hit the idempotency guard.
	resp, _ = doRequest(t, srv, http.MethodPost, "/v1/sessions/"+id+"/cancel", "payer", nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second cancel status = %d, want 409", resp.StatusCode)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	id := sid(3)
	createSession(t, srv, id, 0)

	tests := []struct {
		name       string
		method     string
		path       string
		caller     string
		body       any
		wantStatus int
	}{
		{
			name:       "missing caller is forbidden",
			method:     http.MethodPost,
			path:       "/v1/sessions",
			body:       map[string]any{"id": sid(9), "payee": "p", "asset": "native", "amount": 1, "duration_minutes": 1, "nonce": 1},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "unknown session is not found",
			method:     http.MethodGet,
			path:       "/v1/sessions/" + sid(8),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "stale nonce conflicts",
			method:     http.MethodPost,
			path:       "/v1/sessions",
			caller:     "payer",
			body:       map[string]any{"id": sid(7), "payee": "payee", "asset": "native", "amount": 1, "duration_minutes": 1, "nonce": 0},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "duplicate id conflicts",
			method:     http.MethodPost,
			path:       "/v1/sessions",
			caller:     "payer",
			body:       map[string]any{"id": id, "payee": "payee", "asset": "native", "amount": 1, "duration_minutes": 1, "nonce": 1},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "unsupported asset is a bad request",
			method:     http.MethodPost,
			path:       "/v1/sessions",
			caller:     "payer",
			body:       map[string]any{"id": sid(6), "payee": "payee", "asset": "doge", "amount": 1, "duration_minutes": 1, "nonce": 1},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "release before start conflicts",
			method:     http.MethodPost,
			path:       "/v1/sessions/" + id + "/release",
			caller:     "payer",
			wantStatus: http.StatusConflict,
		},
		{
			name:       "malformed body is a bad request",
			method:     http.MethodPost,
			path:       "/v1/sessions/" + id + "/complete",
			caller:     "payer",
			body:       map[string]any{"unknown_field": true},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, payload := doRequest(t, srv, tt.method, tt.path, tt.caller, tt.body, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (payload %v)", resp.StatusCode, tt.wantStatus, payload)
			}
		})
	}
}

func TestAdminEndpoints(t *testing.T) {
	srv := newTestServer(t)
	id := sid(4)
	createSession(t, srv, id, 0)

	forceBody := map[string]any{"session_id": id, "reason": "dispute resolved"}

	resp, _ := doRequest(t, srv, http.MethodPost, "/v1/admin/refunds/force", "admin", forceBody, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("force without token status = %d, want 403", resp.StatusCode)
	}

	auth := map[string]string{"Authorization": "Bearer secret"}

	resp, _ = doRequest(t, srv, http.MethodPost, "/v1/admin/refunds/force", "payer", forceBody, auth)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("force as non-admin status = %d, want 403", resp.StatusCode)
	}

	resp, payload := doRequest(t, srv, http.MethodPost, "/v1/admin/refunds/force", "admin", forceBody, auth)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("force status = %d, payload %v", resp.StatusCode, payload)
	}
	if payload["refunded"].(float64) != 100 {
		t.Fatalf("refunded = %v, want 100", payload["refunded"])
	}

	resp, payload = doRequest(t, srv, http.MethodPost, "/v1/admin/refunds/batch", "admin", map[string]any{
		"session_ids": []string{id, sid(5)},
		"reason":      "cleanup",
	}, auth)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("batch status = %d, payload %v", resp.StatusCode, payload)
	}
	results := payload["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("batch results = %d, want 2", len(results))
	}
	first := results[0].(map[string]any)
	if first["error"] == nil || first["error"] == "" {
		t.Fatalf("already-refunded session should report an error, got %v", first)
	}
}

func TestListSessionsAndNonce(t *testing.T) {
	srv := newTestServer(t)
	createSession(t, srv, sid(10), 0)
	createSession(t, srv, sid(11), 1)

	resp, payload := doRequest(t, srv, http.MethodGet, "/v1/sessions?participant=payee", "", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	sessions := payload["sessions"].([]any)
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}

	resp, payload = doRequest(t, srv, http.MethodGet, "/v1/nonce", "payer", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("nonce status = %d", resp.StatusCode)
	}
	if payload["nonce"].(float64) != 2 {
		t.Fatalf("nonce = %v, want 2", payload["nonce"])
	}
}

func TestSessionIDParamNormalizes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"lowercase", strings.Repeat("ab", 32), strings.Repeat("ab", 32), true},
		{"uppercase", strings.Repeat("AB", 32), strings.Repeat("ab", 32), true},
		{"padded", " " + strings.Repeat("ab", 32) + " ", strings.Repeat("ab", 32), true},
		{"not hex", strings.Repeat("zz", 32), "", false},
		{"too short", "abcd", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", tt.raw)
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

			id, ok := sessionIDParam(r)
			if ok != tt.ok {
				t.Fatalf("sessionIDParam(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			}
			if ok && id != tt.want {
				t.Fatalf("sessionIDParam(%q) = %q, want %q", tt.raw, id, tt.want)
			}
		})
	}
}
