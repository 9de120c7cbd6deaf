package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("", "alice", ""); err == nil {
		t.Fatal("NewClient() accepted an empty base URL")
	}
	if _, err := NewClient("http://localhost:8080", "", ""); err == nil {
		t.Fatal("NewClient() accepted an empty caller")
	}

	c, err := NewClient("http://localhost:8080/", "alice", "")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.baseURL != "http://localhost:8080" {
		t.Fatalf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
}

func TestClientSetsHeaders(t *testing.T) {
	var gotCaller, gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCaller = r.Header.Get("X-Escrow-Caller")
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "admin", "secret")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := c.ForceRefund(context.Background(), strings.Repeat("ab", 32), "dispute"); err != nil {
		t.Fatalf("ForceRefund() error = %v", err)
	}
	if gotCaller != "admin" {
		t.Fatalf("caller header = %q, want admin", gotCaller)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization header = %q, want bearer token", gotAuth)
	}
	if gotPath != "/v1/admin/refunds/force" {
		t.Fatalf("path = %q", gotPath)
	}
}

func TestClientRequiresAdminToken(t *testing.T) {
	c, err := NewClient("http://localhost:8080", "admin", "")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if _, err := c.ForceRefund(context.Background(), strings.Repeat("ab", 32), "dispute"); err == nil {
		t.Fatal("ForceRefund() without an admin token should fail before sending")
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "refund already processed"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "alice", "")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = c.TriggerRefund(context.Background(), strings.Repeat("cd", 32))
	if err == nil || !strings.Contains(err.Error(), "refund already processed") {
		t.Fatalf("TriggerRefund() error = %v, want API error surfaced", err)
	}
}
