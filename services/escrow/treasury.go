package escrow

import (
	"context"
	"errors"
	"sync"
	"time"
)

// PlatformAccount receives the platform fee at settlement.
const PlatformAccount = "platform"

// Treasury moves escrowed value. Lock records the payer's deposit against a
// session; Release pays part of that deposit out to an account. Both are
// synchronous: an error fails the calling unit of work as a whole.
type Treasury interface {
	Lock(ctx context.Context, sessionID, payer, asset string, amount uint64) error
	Release(ctx context.Context, sessionID, to, asset string, amount uint64, memo string) error
}

// TransferRecord is one treasury movement, kept for amount-level audit.
type TransferRecord struct {
	SessionID string
	To        string
	Asset     string
	Amount    uint64
	Memo      string
	At        time.Time
}

var errInsufficientEscrow = errors.New("release exceeds escrowed balance")

// MemoryTreasury tracks escrow balances and account credits in process. It is
// the Treasury used by tests and single-node deployments.
type MemoryTreasury struct {
	mu        sync.Mutex
	escrowed  map[string]uint64            // session id -> remaining locked
	balances  map[string]map[string]uint64 // account -> asset -> amount
	transfers []TransferRecord
	now       func() time.Time
}

// NewMemoryTreasury returns an empty in-process treasury.
func NewMemoryTreasury() *MemoryTreasury {
	return &MemoryTreasury{
		escrowed: make(map[string]uint64),
		balances: make(map[string]map[string]uint64),
		now:      time.Now,
	}
}

// Lock records amount as escrowed against the session.
func (t *MemoryTreasury) Lock(_ context.Context, sessionID, payer, asset string, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.escrowed[sessionID] += amount
	return nil
}

// Release moves amount from the session's escrow to the target account.
func (t *MemoryTreasury) Release(_ context.Context, sessionID, to, asset string, amount uint64, memo string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.escrowed[sessionID] < amount {
		return errInsufficientEscrow
	}
	t.escrowed[sessionID] -= amount

	if t.balances[to] == nil {
		t.balances[to] = make(map[string]uint64)
	}
	t.balances[to][asset] += amount

	t.transfers = append(t.transfers, TransferRecord{
		SessionID: sessionID,
		To:        to,
		Asset:     asset,
		Amount:    amount,
		Memo:      memo,
		At:        t.now().UTC(),
	})
	return nil
}

// Balance returns the credited amount for an account and asset.
func (t *MemoryTreasury) Balance(account, asset string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances[account][asset]
}

// Escrowed returns the amount still locked against a session.
func (t *MemoryTreasury) Escrowed(sessionID string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.escrowed[sessionID]
}

// Transfers returns a copy of all recorded movements in order.
func (t *MemoryTreasury) Transfers() []TransferRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TransferRecord, len(t.transfers))
	copy(out, t.transfers)
	return out
}
