package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventKind names a state transition for external observers.
type EventKind string

const (
	EventSessionCreated  EventKind = "session.created"
	EventSessionStarted  EventKind = "session.started"
	EventSessionPaused   EventKind = "session.paused"
	EventSessionResumed  EventKind = "session.resumed"
	EventPaymentReleased EventKind = "payment.released"
	EventSessionComplete EventKind = "session.completed"
	EventSessionCancel   EventKind = "session.cancelled"
	EventSessionExpired  EventKind = "session.expired"
	EventNoShowMarked    EventKind = "session.no_show_marked"
	EventRefundProcessed EventKind = "session.refund_processed"
)

// Refund and settlement pathway names recorded on audit events.
const (
	PathwayManualPause      = "manual_pause"
	PathwayAutoPause        = "auto_pause"
	PathwayProgressive      = "progressive_release"
	PathwayComplete         = "complete"
	PathwayAutoComplete     = "auto_complete"
	PathwayCancel           = "cancel"
	PathwayExpireOnTimeout  = "expire_on_timeout"
	PathwayNoShow           = "no_show"
	PathwayUniversalTrigger = "universal_trigger"
	PathwayForceRefund      = "force_refund"
	PathwayBatchRefund      = "batch_refund"
)

// Eligibility conditions the universal trigger reports.
const (
	ConditionExpiredCreated     = "expired_created"
	ConditionMarkedNoShow       = "marked_no_show"
	ConditionGracePeriodElapsed = "grace_period_elapsed"
	ConditionEmergencyElapsed   = "emergency_threshold_elapsed"
)

// Event is the structured audit record emitted after every state transition.
// It is the only channel external collaborators (billing dashboards,
// notification bots) consume.
type Event struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      EventKind `json:"kind"`
	Actor     string    `json:"actor,omitempty"`
	Amount    uint64    `json:"amount,omitempty"`
	FeeAmount uint64    `json:"fee_amount,omitempty"`
	Pathway   string    `json:"pathway,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Recorder receives audit events after the owning unit of work has committed.
// Implementations must not call back into the engine.
type Recorder interface {
	Record(ctx context.Context, evt Event)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ctx context.Context, evt Event)

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, evt Event) { f(ctx, evt) }

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Event) {}
