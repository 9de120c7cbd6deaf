// Package admin is a thin HTTP client for escrowd's operator surface,
// used by the escrowctl command.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client issues authenticated requests against the escrowd API.
type Client struct {
	baseURL    string
	caller     string
	adminToken string
	httpClient *http.Client
}

// NewClient validates the connection parameters and returns a Client.
func NewClient(baseURL, caller, adminToken string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api base url is required")
	}
	if caller == "" {
		return nil, errors.New("caller is required")
	}

	return &Client{
		baseURL:    baseURL,
		caller:     caller,
		adminToken: adminToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// GetSession fetches one session by id.
func (c *Client) GetSession(ctx context.Context, id string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/v1/sessions/"+id, nil, false)
}

// ListSessions fetches sessions where participant is payer or payee.
func (c *Client) ListSessions(ctx context.Context, participant string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/v1/sessions?participant="+participant, nil, false)
}

// SessionAudit fetches the audit trail for one session.
func (c *Client) SessionAudit(ctx context.Context, id string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/v1/sessions/"+id+"/audit", nil, false)
}

// TriggerRefund fires the universal refund trigger for one session.
func (c *Client) TriggerRefund(ctx context.Context, id string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+id+"/refund", nil, false)
}

// ForceRefund refunds the remaining escrow of one session, recording reason.
func (c *Client) ForceRefund(ctx context.Context, id, reason string) (json.RawMessage, error) {
	body := map[string]any{"session_id": id, "reason": reason}
	return c.do(ctx, http.MethodPost, "/v1/admin/refunds/force", body, true)
}

// BatchRefund refunds up to the server-side batch cap of sessions.
func (c *Client) BatchRefund(ctx context.Context, ids []string, reason string) (json.RawMessage, error) {
	body := map[string]any{"session_ids": ids, "reason": reason}
	return c.do(ctx, http.MethodPost, "/v1/admin/refunds/batch", body, true)
}

// ExportAudit requests a signed audit archive for the given window.
func (c *Client) ExportAudit(ctx context.Context, from, to time.Time) (json.RawMessage, error) {
	body := map[string]any{"from": from, "to": to}
	return c.do(ctx, http.MethodPost, "/v1/admin/audit/export", body, true)
}

func (c *Client) do(ctx context.Context, method, path string, body any, admin bool) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Escrow-Caller", c.caller)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		if c.adminToken == "" {
			return nil, errors.New("admin token is required for this operation")
		}
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return nil, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	return json.RawMessage(payload), nil
}
