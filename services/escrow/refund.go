package escrow

import (
	"context"
	"strings"
	"time"
)

// refundLocked performs the shared refund step inside a Mutate unit: it
// checks the single RefundProcessed flag, sets it together with the terminal
// status before any transfer so a reentrant or concurrent caller sees the
// flag already set, and then pays the un-released remainder back to the
// payer.
func (e *Engine) refundLocked(ctx context.Context, s *Session, terminal Status, pathway string) (uint64, error) {
	if s.RefundProcessed {
		return 0, ErrAlreadyRefunded
	}
	amount := s.Remaining()
	if amount == 0 {
		return 0, ErrNothingToRefund
	}

	s.RefundProcessed = true
	s.Status = terminal

	if err := e.treasury.Release(ctx, s.ID, s.Payer, s.Asset, amount, pathway); err != nil {
		return 0, err
	}
	return amount, nil
}

// ExpireSession refunds a Created session whose start window has elapsed.
// Anyone may call it; the payee never showing up must not strand funds behind
// a participant-only check.
func (e *Engine) ExpireSession(ctx context.Context, caller, id string) (uint64, error) {
	now := e.now().UTC()
	var refund uint64
	s, err := e.mutate(ctx, id, func(ctx context.Context, s *Session) error {
		if s.RefundProcessed {
			return ErrAlreadyRefunded
		}
		if s.Status != StatusCreated {
			return ErrWrongState
		}
		if !now.After(s.CreatedAt.Add(e.cfg.StartTimeout)) {
			return ErrNotEligible
		}
		var err error
		refund, err = e.refundLocked(ctx, s, StatusExpired, PathwayExpireOnTimeout)
		return err
	})
	if err != nil {
		return 0, err
	}
	e.emit(ctx, Event{
		SessionID: s.ID,
		Kind:      EventSessionExpired,
		Actor:     caller,
		Amount:    refund,
		Pathway:   PathwayExpireOnTimeout,
		At:        now,
	})
	return refund, nil
}

// MarkNoShow records that the payee never appeared, making the session
// refundable through the no-show pathway even if expire was somehow bypassed.
// Only the payer may mark, once the start window has elapsed.
func (e *Engine) MarkNoShow(ctx context.Context, caller, id string) error {
	now := e.now().UTC()
	s, err := e.mutate(ctx, id, func(ctx context.Context, s *Session) error {
		if s.RefundProcessed {
			return ErrAlreadyRefunded
		}
		if s.Status != StatusCreated {
			return ErrWrongState
		}
		if caller != s.Payer {
			return ErrUnauthorized
		}
		if !now.After(s.CreatedAt.Add(e.cfg.StartTimeout)) {
			return ErrNotEligible
		}
		if s.NoShowRefundEligibleAt == nil {
			// The refund waits out the grace period from the mark, leaving
			// the payee a dispute window before funds move.
			eligible := now.Add(e.cfg.RefundGracePeriod)
			s.NoShowRefundEligibleAt = &eligible
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(ctx, Event{SessionID: s.ID, Kind: EventNoShowMarked, Actor: caller, At: now})
	return nil
}

// ProcessNoShowRefund pays out a session previously marked as a no-show.
func (e *Engine) ProcessNoShowRefund(ctx context.Context, caller, id string) (uint64, error) {
	now := e.now().UTC()
	var refund uint64
	s, err := e.mutate(ctx, id, func(ctx context.Context, s *Session) error {
		if s.RefundProcessed {
			return ErrAlreadyRefunded
		}
		if s.NoShowRefundEligibleAt == nil || now.Before(*s.NoShowRefundEligibleAt) {
			return ErrNotEligible
		}
		var err error
		refund, err = e.refundLocked(ctx, s, StatusRefundProcessed, PathwayNoShow)
		return err
	})
	if err != nil {
		return 0, err
	}
	e.emitRefund(ctx, s.ID, caller, refund, PathwayNoShow, "", now)
	return refund, nil
}

// TriggerEligibleRefund is the recommended public-facing safety net: anyone
// may call it, and it re-checks every known eligibility condition, paying out
// under whichever holds. It returns the condition that fired.
func (e *Engine) TriggerEligibleRefund(ctx context.Context, caller, id string) (uint64, string, error) {
	now := e.now().UTC()
	var (
		refund    uint64
		condition string
	)
	s, err := e.mutate(ctx, id, func(ctx context.Context, s *Session) error {
		if s.RefundProcessed {
			return ErrAlreadyRefunded
		}
		condition = e.eligibleCondition(s, now)
		if condition == "" {
			return ErrNotEligible
		}
		var err error
		refund, err = e.refundLocked(ctx, s, StatusRefundProcessed, PathwayUniversalTrigger)
		return err
	})
	if err != nil {
		return 0, "", err
	}
	e.emitRefund(ctx, s.ID, caller, refund, PathwayUniversalTrigger, condition, now)
	return refund, condition, nil
}

// eligibleCondition returns the refund condition that holds, or "". Checks
// run most specific first: an explicit no-show mark, then the emergency net
// for any non-terminal session stuck past the threshold, then the unstarted
// windows from shortest remaining claim to longest.
func (e *Engine) eligibleCondition(s *Session, now time.Time) string {
	if s.NoShowRefundEligibleAt != nil && !now.Before(*s.NoShowRefundEligibleAt) {
		return ConditionMarkedNoShow
	}
	if !s.Status.IsTerminal() && now.After(s.CreatedAt.Add(e.cfg.EmergencyThreshold)) {
		return ConditionEmergencyElapsed
	}
	if s.Status == StatusCreated {
		if now.After(s.CreatedAt.Add(e.cfg.StartTimeout + e.cfg.RefundGracePeriod)) {
			return ConditionGracePeriodElapsed
		}
		if now.After(s.CreatedAt.Add(e.cfg.StartTimeout)) {
			return ConditionExpiredCreated
		}
	}
	return ""
}

// ForceRefund is the administrative pathway for conditions the automatic
// checks did not anticipate. It requires the admin capability and a reason
// string, and works for any session not yet terminal.
func (e *Engine) ForceRefund(ctx context.Context, caller, id, reason string) (uint64, error) {
	if !e.cfg.IsAdmin(caller) {
		return 0, ErrUnauthorized
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return 0, ErrReasonRequired
	}
	return e.forceRefund(ctx, caller, id, reason, PathwayForceRefund)
}

func (e *Engine) forceRefund(ctx context.Context, caller, id, reason, pathway string) (uint64, error) {
	now := e.now().UTC()
	var refund uint64
	s, err := e.mutate(ctx, id, func(ctx context.Context, s *Session) error {
		if s.RefundProcessed {
			return ErrAlreadyRefunded
		}
		if s.Status.IsTerminal() {
			return ErrWrongState
		}
		var err error
		refund, err = e.refundLocked(ctx, s, StatusRefundProcessed, pathway)
		return err
	})
	if err != nil {
		return 0, err
	}
	e.emitRefund(ctx, s.ID, caller, refund, pathway, reason, now)
	return refund, nil
}

// BatchRefundResult is the per-item outcome of an administrative batch
// refund.
type BatchRefundResult struct {
	SessionID string `json:"session_id"`
	Amount    uint64 `json:"amount,omitempty"`
	Err       string `json:"error,omitempty"`
}

// BatchRefund force-refunds up to MaxBatchRefund sessions. Each item is
// processed independently; one failure never aborts the batch, and every
// outcome is recorded for audit.
func (e *Engine) BatchRefund(ctx context.Context, caller string, ids []string, reason string) ([]BatchRefundResult, error) {
	if !e.cfg.IsAdmin(caller) {
		return nil, ErrUnauthorized
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	if len(ids) == 0 || len(ids) > e.cfg.MaxBatchRefund {
		return nil, ErrBatchTooLarge
	}

	results := make([]BatchRefundResult, 0, len(ids))
	for _, id := range ids {
		amount, err := e.forceRefund(ctx, caller, id, reason, PathwayBatchRefund)
		result := BatchRefundResult{SessionID: NormalizeSessionID(id), Amount: amount}
		if err != nil {
			result.Err = err.Error()
			result.Amount = 0
		}
		results = append(results, result)
	}
	return results, nil
}

func (e *Engine) emitRefund(ctx context.Context, sessionID, actor string, amount uint64, pathway, reason string, at time.Time) {
	e.emit(ctx, Event{
		SessionID: sessionID,
		Kind:      EventRefundProcessed,
		Actor:     actor,
		Amount:    amount,
		Pathway:   pathway,
		Reason:    reason,
		At:        at,
	})
}
