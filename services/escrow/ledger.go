package escrow

import (
	"context"
	"sync"
)

// Ledger is the sole owner of session state. CreateSession is atomic with the
// replay-guard check: the nonce is validated and advanced, the id checked for
// reuse, and the record inserted as one unit. Mutate runs fn under a
// per-session exclusive lock; if fn returns an error the record is left
// unchanged and no partial state is ever observed by a concurrent caller.
type Ledger interface {
	CreateSession(ctx context.Context, s *Session, caller string, nonce uint64) error
	Get(ctx context.Context, id string) (*Session, error)
	Mutate(ctx context.Context, id string, fn func(ctx context.Context, s *Session) error) (*Session, error)
	ListByParticipant(ctx context.Context, principal string, limit int) ([]*Session, error)
	NextNonce(ctx context.Context, caller string) (uint64, error)
}

// MemoryLedger is the in-process Ledger used by tests and single-node
// deployments. Postgres-backed deployments use the store package instead.
type MemoryLedger struct {
	guard *ReplayGuard

	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*sync.Mutex
}

// NewMemoryLedger returns an empty in-process ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		guard:    NewReplayGuard(),
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
	}
}

// CreateSession validates the caller's nonce, rejects reused ids, stores the
// record, and advances the nonce counter, all under one lock.
func (l *MemoryLedger) CreateSession(_ context.Context, s *Session, caller string, nonce uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.guard.Require(caller, nonce); err != nil {
		return err
	}
	if _, exists := l.sessions[s.ID]; exists {
		return ErrDuplicateSession
	}
	l.sessions[s.ID] = s.Clone()
	l.guard.Advance(caller)
	return nil
}

// Get returns a copy of the session or ErrNotFound.
func (l *MemoryLedger) Get(_ context.Context, id string) (*Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// Mutate applies fn to a copy of the session under the session's exclusive
// lock and commits the copy only when fn succeeds.
func (l *MemoryLedger) Mutate(ctx context.Context, id string, fn func(ctx context.Context, s *Session) error) (*Session, error) {
	lock := l.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	l.mu.Lock()
	current, ok := l.sessions[id]
	l.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	working := current.Clone()
	if err := fn(ctx, working); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.sessions[id] = working
	l.mu.Unlock()
	return working.Clone(), nil
}

// ListByParticipant returns sessions where principal is payer or payee.
func (l *MemoryLedger) ListByParticipant(_ context.Context, principal string, limit int) ([]*Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*Session
	for _, s := range l.sessions {
		if !s.IsParticipant(principal) {
			continue
		}
		out = append(out, s.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// NextNonce returns the nonce the caller must supply on its next creation.
func (l *MemoryLedger) NextNonce(_ context.Context, caller string) (uint64, error) {
	return l.guard.Counter(caller), nil
}

func (l *MemoryLedger) sessionLock(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[id] = lock
	}
	return lock
}
