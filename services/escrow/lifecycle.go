package escrow

import (
	"context"
	"strings"
	"time"
)

// StartSession moves a Created session to Active. Only participants may
// start, and only within the start timeout; past it the session can only be
// expired for a refund.
func (e *Engine) StartSession(ctx context.Context, caller, id string) error {
	now := e.now().UTC()
	s, err := e.mutate(ctx, id, func(ctx context.Context, s *Session) error {
		if s.Status != StatusCreated {
			return ErrWrongState
		}
		if !s.IsParticipant(caller) {
			return ErrUnauthorized
		}
		if now.After(s.CreatedAt.Add(e.cfg.StartTimeout)) {
			return ErrTimeoutExceeded
		}
		started := now
		s.StartedAt = &started
		s.LastLivenessSignal = now
		s.Status = StatusActive
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(ctx, Event{SessionID: s.ID, Kind: EventSessionStarted, Actor: caller, At: now})
	return nil
}

// Heartbeat refreshes the session's liveness signal. A heartbeat on a paused
// session implicitly resumes it with the same accounting as ResumeSession.
func (e *Engine) Heartbeat(ctx context.Context, caller, id string) error {
	now := e.now().UTC()
	var resumed bool
	s, err := e.mutate(ctx, id, func(ctx context.Context, s *Session) error {
		if s.Status != StatusActive && s.Status != StatusPaused {
			return ErrWrongState
		}
		if !s.IsParticipant(caller) {
			return ErrUnauthorized
		}
		if s.Status == StatusPaused {
			s.AccumulatedPausedSeconds += pausedSecondsSince(s, now)
			s.Status = StatusActive
			resumed = true
		}
		s.LastLivenessSignal = now
		return nil
	})
	if err != nil {
		return err
	}
	if resumed {
		e.emit(ctx, Event{SessionID: s.ID, Kind: EventSessionResumed, Actor: caller, At: now})
	}
	return nil
}

// PauseSession suspends accrual. Participants may pause at will; anyone may
// pause once the heartbeat plus grace window has been missed. A manual pause
// refreshes the liveness signal first so the pause interval is measured from
// now; an auto-pause keeps the stale signal so the whole missed window counts
// as paused.
func (e *Engine) PauseSession(ctx context.Context, caller, id string) error {
	now := e.now().UTC()
	pathway := PathwayManualPause
	s, err := e.mutate(ctx, id, func(ctx context.Context, s *Session) error {
		if s.Status != StatusActive {
			return ErrWrongState
		}
		if s.IsParticipant(caller) {
			s.LastLivenessSignal = now
		} else if e.cfg.ShouldAutoPause(s, now) {
			pathway = PathwayAutoPause
		} else {
			return ErrNotEligible
		}
		s.Status = StatusPaused
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(ctx, Event{SessionID: s.ID, Kind: EventSessionPaused, Actor: caller, Pathway: pathway, At: now})
	return nil
}

// ResumeSession ends a pause, adding the paused interval to the session's
// accumulated paused time.
func (e *Engine) ResumeSession(ctx context.Context, caller, id string) error {
	now := e.now().UTC()
	s, err := e.mutate(ctx, id, func(ctx context.Context, s *Session) error {
		if s.Status != StatusPaused {
			return ErrWrongState
		}
		if !s.IsParticipant(caller) {
			return ErrUnauthorized
		}
		s.AccumulatedPausedSeconds += pausedSecondsSince(s, now)
		s.LastLivenessSignal = now
		s.Status = StatusActive
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(ctx, Event{SessionID: s.ID, Kind: EventSessionResumed, Actor: caller, At: now})
	return nil
}

// ReleasePayment pays the payee everything accrued beyond what was already
// released. Only participants may call it, and only while actively running.
func (e *Engine) ReleasePayment(ctx context.Context, caller, id string) (uint64, error) {
	now := e.now().UTC()
	var delta uint64
	s, err := e.mutate(ctx, id, func(ctx context.Context, s *Session) error {
		if s.Status != StatusActive {
			return ErrWrongState
		}
		if !s.IsParticipant(caller) {
			return ErrUnauthorized
		}

		elapsed := EffectiveElapsed(s, now)
		max := MaxReleasable(s.TotalAmount, elapsed, uint64(s.ScheduledDurationMinutes), e.cfg.PlatformFeePercent)
		if max <= s.ReleasedAmount {
			return ErrNothingAvailable
		}
		delta = max - s.ReleasedAmount
		s.ReleasedAmount = max
		return e.treasury.Release(ctx, s.ID, s.Payee, s.Asset, delta, PathwayProgressive)
	})
	if err != nil {
		return 0, err
	}
	e.emit(ctx, Event{
		SessionID: s.ID,
		Kind:      EventPaymentReleased,
		Actor:     caller,
		Amount:    delta,
		Pathway:   PathwayProgressive,
		At:        now,
	})
	return delta, nil
}

// CompleteSession settles the session at the payer's request, recording a
// rating. The remaining escrow is split between the payee and the platform
// fee, so the fee is collected exactly once even when progressive releases
// already paid out the full progressive pool.
func (e *Engine) CompleteSession(ctx context.Context, caller, id string, rating uint8, note string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	return e.settle(ctx, caller, id, PathwayComplete, func(s *Session) error {
		if caller != s.Payer {
			return ErrUnauthorized
		}
		s.Rating = rating
		s.Note = strings.TrimSpace(note)
		return nil
	})
}

// AutoCompleteSession force-settles a session nobody is actively managing
// anymore. Anyone may call it once the auto-release delay has elapsed since
// the session started.
func (e *Engine) AutoCompleteSession(ctx context.Context, caller, id string) error {
	return e.settle(ctx, caller, id, PathwayAutoComplete, func(s *Session) error {
		now := e.now().UTC()
		if s.StartedAt == nil || now.Before(s.StartedAt.Add(e.cfg.AutoReleaseDelay)) {
			return ErrNotEligible
		}
		return nil
	})
}

// CancelSession refunds a session that never started. Either participant may
// cancel while the session is still in Created.
func (e *Engine) CancelSession(ctx context.Context, caller, id string) (uint64, error) {
	now := e.now().UTC()
	var refund uint64
	s, err := e.mutate(ctx, id, func(ctx context.Context, s *Session) error {
		if s.Status != StatusCreated {
			return ErrWrongState
		}
		if !s.IsParticipant(caller) {
			return ErrUnauthorized
		}
		var err error
		refund, err = e.refundLocked(ctx, s, StatusCancelled, PathwayCancel)
		return err
	})
	if err != nil {
		return 0, err
	}
	e.emit(ctx, Event{
		SessionID: s.ID,
		Kind:      EventSessionCancel,
		Actor:     caller,
		Amount:    refund,
		Pathway:   PathwayCancel,
		At:        now,
	})
	return refund, nil
}

// settle runs final settlement for complete and auto-complete. check runs
// after the state guard and may apply pathway-specific validation and fields.
func (e *Engine) settle(ctx context.Context, caller, id, pathway string, check func(*Session) error) error {
	now := e.now().UTC()
	var payeeAmount, fee uint64
	s, err := e.mutate(ctx, id, func(ctx context.Context, s *Session) error {
		if s.Status != StatusActive && s.Status != StatusPaused {
			if pathway == PathwayAutoComplete {
				return ErrNotEligible
			}
			return ErrWrongState
		}
		if err := check(s); err != nil {
			return err
		}

		remaining := s.Remaining()
		payeeAmount, fee = SettlementSplit(remaining, e.cfg.PlatformFeePercent)

		s.ReleasedAmount = s.TotalAmount
		s.Status = StatusCompleted
		completed := now
		s.CompletedAt = &completed

		if payeeAmount > 0 {
			if err := e.treasury.Release(ctx, s.ID, s.Payee, s.Asset, payeeAmount, pathway); err != nil {
				return err
			}
		}
		if fee > 0 {
			if err := e.treasury.Release(ctx, s.ID, PlatformAccount, s.Asset, fee, pathway+"_fee"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(ctx, Event{
		SessionID: s.ID,
		Kind:      EventSessionComplete,
		Actor:     caller,
		Amount:    payeeAmount,
		FeeAmount: fee,
		Pathway:   pathway,
		At:        now,
	})
	return nil
}

// pausedSecondsSince measures the pause interval ending now, clamped at zero
// against clock skew.
func pausedSecondsSince(s *Session, now time.Time) int64 {
	secs := int64(now.Sub(s.LastLivenessSignal).Seconds())
	if secs < 0 {
		return 0
	}
	return secs
}
