// Package escrow implements a progressive-payment escrow engine. It holds a
// payer's funds against a time-metered session and releases them to the payee
// in proportion to elapsed live time, with heartbeat-driven pause accounting
// and multiple independent refund pathways so escrowed funds are never stuck.
//
// The engine is purely reactive: nothing runs in the background, and every
// "automatic" transition happens only when some caller invokes the relevant
// check. Each operation is one atomic unit of work against a single session
// record.
package escrow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine orchestrates the session lifecycle over a Ledger and Treasury.
type Engine struct {
	cfg      Config
	assets   *AssetRegistry
	ledger   Ledger
	treasury Treasury
	recorder Recorder
	now      func() time.Time
	log      zerolog.Logger
}

// Deps carries the engine's collaborators. Ledger and Treasury are required;
// the rest default to an empty registry, a no-op recorder, the wall clock,
// and a disabled logger.
type Deps struct {
	Ledger   Ledger
	Treasury Treasury
	Assets   *AssetRegistry
	Recorder Recorder
	Now      func() time.Time
	Logger   zerolog.Logger
}

// New creates an Engine with the given policy and collaborators.
func New(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if deps.Treasury == nil {
		return nil, errors.New("treasury is required")
	}
	if deps.Assets == nil {
		deps.Assets = NewAssetRegistry()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Engine{
		cfg:      cfg,
		assets:   deps.Assets,
		ledger:   deps.Ledger,
		treasury: deps.Treasury,
		recorder: deps.Recorder,
		now:      deps.Now,
		log:      deps.Logger,
	}, nil
}

// Config returns the engine's policy constants.
func (e *Engine) Config() Config { return e.cfg }

// CreateSessionInput describes a new escrowed session. ID is the
// caller-supplied 32-byte identifier in hex; Nonce must equal the caller's
// current counter.
type CreateSessionInput struct {
	ID              string
	Payee           string
	Asset           string
	Amount          uint64
	DurationMinutes uint32
	Nonce           uint64
}

// CreateSession locks the payer's funds and records a new session in the
// Created state. The nonce check, duplicate-id check, and insert happen as
// one atomic unit.
func (e *Engine) CreateSession(ctx context.Context, caller string, in CreateSessionInput) (*Session, error) {
	if caller == "" {
		return nil, ErrUnauthorized
	}

	id := NormalizeSessionID(in.ID)
	if !ValidSessionID(id) {
		return nil, ErrInvalidSessionID
	}
	payee := strings.TrimSpace(in.Payee)
	if payee == "" || payee == caller {
		return nil, ErrInvalidPayee
	}
	if !e.assets.Supported(in.Asset) {
		return nil, ErrUnsupportedAsset
	}
	if in.Amount == 0 {
		return nil, ErrInvalidAmount
	}
	if in.DurationMinutes == 0 {
		return nil, ErrInvalidDuration
	}

	now := e.now().UTC()
	s := &Session{
		ID:                       id,
		Payer:                    caller,
		Payee:                    payee,
		Asset:                    strings.ToLower(strings.TrimSpace(in.Asset)),
		TotalAmount:              in.Amount,
		ScheduledDurationMinutes: in.DurationMinutes,
		CreatedAt:                now,
		LastLivenessSignal:       now,
		Status:                   StatusCreated,
	}

	if err := e.treasury.Lock(ctx, s.ID, s.Payer, s.Asset, s.TotalAmount); err != nil {
		return nil, err
	}
	if err := e.ledger.CreateSession(ctx, s, caller, in.Nonce); err != nil {
		// Give the deposit back; creation failed before the session existed.
		if rerr := e.treasury.Release(ctx, s.ID, s.Payer, s.Asset, s.TotalAmount, "create_rollback"); rerr != nil {
			e.log.Error().Err(rerr).Str("session_id", s.ID).Msg("rollback deposit after failed create")
		}
		return nil, err
	}

	e.emit(ctx, Event{
		SessionID: s.ID,
		Kind:      EventSessionCreated,
		Actor:     caller,
		Amount:    s.TotalAmount,
	})
	return s, nil
}

// GetSession returns the session record, including terminal ones retained
// for audit.
func (e *Engine) GetSession(ctx context.Context, id string) (*Session, error) {
	return e.ledger.Get(ctx, NormalizeSessionID(id))
}

// ListSessions returns sessions the principal participates in.
func (e *Engine) ListSessions(ctx context.Context, principal string, limit int) ([]*Session, error) {
	return e.ledger.ListByParticipant(ctx, principal, limit)
}

// NextNonce returns the nonce the caller must supply on its next creation.
func (e *Engine) NextNonce(ctx context.Context, caller string) (uint64, error) {
	return e.ledger.NextNonce(ctx, caller)
}

func (e *Engine) mutate(ctx context.Context, id string, fn func(ctx context.Context, s *Session) error) (*Session, error) {
	return e.ledger.Mutate(ctx, NormalizeSessionID(id), fn)
}

func (e *Engine) emit(ctx context.Context, evt Event) {
	evt.ID = uuid.New()
	if evt.At.IsZero() {
		evt.At = e.now().UTC()
	}
	e.recorder.Record(ctx, evt)
}
