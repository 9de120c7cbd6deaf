package escrow

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusCreated         Status = "created"
	StatusActive          Status = "active"
	StatusPaused          Status = "paused"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
	StatusExpired         Status = "expired"
	StatusRefundProcessed Status = "refund_processed"
)

// IsTerminal reports whether no further transition may fire for this status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired, StatusRefundProcessed:
		return true
	}
	return false
}

// Session is one escrowed, time-metered engagement between a payer and a payee.
// TotalAmount is fixed at creation; ReleasedAmount only grows and never
// exceeds TotalAmount. Records are retained read-only after a terminal
// transition, never deleted.
type Session struct {
	ID                       string
	Payer                    string
	Payee                    string
	Asset                    string
	TotalAmount              uint64
	ReleasedAmount           uint64
	ScheduledDurationMinutes uint32

	CreatedAt                time.Time
	StartedAt                *time.Time // set iff the session has ever been active
	LastLivenessSignal       time.Time
	AccumulatedPausedSeconds int64

	Status                 Status
	RefundProcessed        bool
	NoShowRefundEligibleAt *time.Time

	Rating      uint8
	Note        string
	CompletedAt *time.Time
}

// IsParticipant reports whether caller is the session's payer or payee.
func (s *Session) IsParticipant(caller string) bool {
	return caller != "" && (caller == s.Payer || caller == s.Payee)
}

// Remaining is the escrowed amount not yet paid out or refunded.
func (s *Session) Remaining() uint64 {
	return s.TotalAmount - s.ReleasedAmount
}

// Clone returns a deep copy so ledger callers never share mutable state.
func (s *Session) Clone() *Session {
	out := *s
	out.StartedAt = cloneTime(s.StartedAt)
	out.NoShowRefundEligibleAt = cloneTime(s.NoShowRefundEligibleAt)
	out.CompletedAt = cloneTime(s.CompletedAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// ValidSessionID reports whether id is a 64-character lowercase hex string,
// the 32-byte identifier format callers supply at creation.
func ValidSessionID(id string) bool {
	if len(id) != 64 {
		return false
	}
	for _, r := range id {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// NormalizeSessionID lowercases and trims an id so mixed-case input from
// callers matches the canonical stored form.
func NormalizeSessionID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
