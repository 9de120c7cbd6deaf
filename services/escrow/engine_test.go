package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type captureRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *captureRecorder) Record(_ context.Context, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *captureRecorder) last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

type testHarness struct {
	engine   *Engine
	treasury *MemoryTreasury
	clock    *fakeClock
	recorder *captureRecorder
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Admins = []string{"admin"}

	clock := newFakeClock()
	treasury := NewMemoryTreasury()
	recorder := &captureRecorder{}

	engine, err := New(cfg, Deps{
		Ledger:   NewMemoryLedger(),
		Treasury: treasury,
		Recorder: recorder,
		Now:      clock.Now,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testHarness{engine: engine, treasury: treasury, clock: clock, recorder: recorder}
}

// sid builds a valid 64-char hex session id from a single byte.
func sid(n byte) string {
	return strings.Repeat(fmt.Sprintf("%02x", n), 32)
}

func (h *testHarness) create(t *testing.T, id string, nonce uint64) {
	t.Helper()
	_, err := h.engine.CreateSession(context.Background(), "payer", CreateSessionInput{
		ID:              id,
		Payee:           "payee",
		Asset:           NativeAsset,
		Amount:          100,
		DurationMinutes: 60,
		Nonce:           nonce,
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
}

func (h *testHarness) createAndStart(t *testing.T, id string, nonce uint64) {
	t.Helper()
	h.create(t, id, nonce)
	if err := h.engine.StartSession(context.Background(), "payer", id); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	tests := []struct {
		name    string
		caller  string
		input   CreateSessionInput
		wantErr error
	}{
		{
			name:    "empty caller",
			caller:  "",
			input:   CreateSessionInput{ID: sid(1), Payee: "payee", Asset: NativeAsset, Amount: 100, DurationMinutes: 60},
			wantErr: ErrUnauthorized,
		},
		{
			name:    "malformed session id",
			caller:  "payer",
			input:   CreateSessionInput{ID: "not-hex", Payee: "payee", Asset: NativeAsset, Amount: 100, DurationMinutes: 60},
			wantErr: ErrInvalidSessionID,
		},
		{
			name:    "payee equals payer",
			caller:  "payer",
			input:   CreateSessionInput{ID: sid(1), Payee: "payer", Asset: NativeAsset, Amount: 100, DurationMinutes: 60},
			wantErr: ErrInvalidPayee,
		},
		{
			name:    "unknown asset",
			caller:  "payer",
			input:   CreateSessionInput{ID: sid(1), Payee: "payee", Asset: "doge", Amount: 100, DurationMinutes: 60},
			wantErr: ErrUnsupportedAsset,
		},
		{
			name:    "zero amount",
			caller:  "payer",
			input:   CreateSessionInput{ID: sid(1), Payee: "payee", Asset: NativeAsset, Amount: 0, DurationMinutes: 60},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "zero duration",
			caller:  "payer",
			input:   CreateSessionInput{ID: sid(1), Payee: "payee", Asset: NativeAsset, Amount: 100, DurationMinutes: 0},
			wantErr: ErrInvalidDuration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHarness(t)
			_, err := h.engine.CreateSession(context.Background(), tt.caller, tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CreateSession() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateSessionLocksEscrow(t *testing.T) {
	h := newTestHarness(t)
	h.create(t, sid(1), 0)

	if got := h.treasury.Escrowed(sid(1)); got != 100 {
		t.Fatalf("Escrowed() = %d, want 100", got)
	}
	s, err := h.engine.GetSession(context.Background(), sid(1))
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if s.Status != StatusCreated {
		t.Fatalf("Status = %q, want %q", s.Status, StatusCreated)
	}
	if s.StartedAt != nil {
		t.Fatalf("StartedAt set on a session that never went active")
	}
}

func TestCreateSessionNonceStrictness(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	// Any nonce other than the current counter fails, valid id or not.
	for _, nonce := range []uint64{1, 5, ^uint64(0)} {
		_, err := h.engine.CreateSession(ctx, "payer", CreateSessionInput{
			ID: sid(9), Payee: "payee", Asset: NativeAsset, Amount: 100, DurationMinutes: 60, Nonce: nonce,
		})
		if !errors.Is(err, ErrInvalidNonce) {
			t.Fatalf("CreateSession(nonce=%d) error = %v, want ErrInvalidNonce", nonce, err)
		}
	}

	h.create(t, sid(1), 0)
	h.create(t, sid(2), 1)

	// Reusing a consumed nonce fails.
	_, err := h.engine.CreateSession(ctx, "payer", CreateSessionInput{
		ID: sid(3), Payee: "payee", Asset: NativeAsset, Amount: 100, DurationMinutes: 60, Nonce: 0,
	})
	if !errors.Is(err, ErrInvalidNonce) {
		t.Fatalf("CreateSession(reused nonce) error = %v, want ErrInvalidNonce", err)
	}

	next, err := h.engine.NextNonce(ctx, "payer")
	if err != nil {
		t.Fatalf("NextNonce() error = %v", err)
	}
	if next != 2 {
		t.Fatalf("NextNonce() = %d, want 2", next)
	}
}

func TestCreateSessionRetryAfterFailedAttempt(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	_, err := h.engine.CreateSession(ctx, "payer", CreateSessionInput{
		ID: sid(1), Payee: "payee", Asset: NativeAsset, Amount: 100, DurationMinutes: 60, Nonce: 5,
	})
	if !errors.Is(err, ErrInvalidNonce) {
		t.Fatalf("CreateSession(bad nonce) error = %v, want ErrInvalidNonce", err)
	}
	if got := h.treasury.Escrowed(sid(1)); got != 0 {
		t.Fatalf("Escrowed() = %d, want 0 after rolled-back create", got)
	}

	// The failed attempt must not poison the id: the same session id with
	// the correct nonce succeeds and locks exactly one deposit.
	h.create(t, sid(1), 0)
	if got := h.treasury.Escrowed(sid(1)); got != 100 {
		t.Fatalf("Escrowed() = %d, want 100 after retry", got)
	}
}

func TestCreateSessionDuplicateID(t *testing.T) {
	h := newTestHarness(t)
	h.create(t, sid(1), 0)

	_, err := h.engine.CreateSession(context.Background(), "payer", CreateSessionInput{
		ID: sid(1), Payee: "payee", Asset: NativeAsset, Amount: 100, DurationMinutes: 60, Nonce: 1,
	})
	if !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("CreateSession(duplicate) error = %v, want ErrDuplicateSession", err)
	}

	// The rejected deposit went back to the payer, leaving only the original lock.
	if got := h.treasury.Escrowed(sid(1)); got != 100 {
		t.Fatalf("Escrowed() = %d, want 100 after rollback", got)
	}
	if got := h.treasury.Balance("payer", NativeAsset); got != 100 {
		t.Fatalf("payer balance = %d, want 100 refunded from rolled-back create", got)
	}

	// The failed creation must not have burned the nonce.
	next, err := h.engine.NextNonce(context.Background(), "payer")
	if err != nil {
		t.Fatalf("NextNonce() error = %v", err)
	}
	if next != 1 {
		t.Fatalf("NextNonce() = %d, want 1", next)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	h := newTestHarness(t)
	if _, err := h.engine.GetSession(context.Background(), sid(7)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSession() error = %v, want ErrNotFound", err)
	}
}
