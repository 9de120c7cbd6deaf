package escrow

import "sync"

// ReplayGuard keeps a strictly sequential counter per caller so a captured
// session-creation request cannot be replayed. A supplied nonce must equal
// the caller's current counter exactly; the counter advances only when the
// rest of session creation succeeds, so ledger implementations call Require
// and Advance inside the same unit of work.
type ReplayGuard struct {
	mu       sync.Mutex
	counters map[string]uint64
}

// NewReplayGuard returns an empty guard; every caller's counter starts at 0.
func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{counters: make(map[string]uint64)}
}

// Require checks that nonce equals the caller's current counter.
func (g *ReplayGuard) Require(caller string, nonce uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.counters[caller] != nonce {
		return ErrInvalidNonce
	}
	return nil
}

// Advance increments the caller's counter after a successful creation.
func (g *ReplayGuard) Advance(caller string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters[caller]++
}

// Counter returns the nonce the caller must supply on its next creation.
func (g *ReplayGuard) Counter(caller string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counters[caller]
}
