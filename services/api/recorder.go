package api

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"escrowd/pkg/bus"
	"escrowd/services/escrow"
)

// StreamName is the JetStream stream holding all engine audit events.
const StreamName = "ESCROWD"

// storeRecorder persists every engine event to the audit table and fans it
// out on the bus for notification and billing consumers. Events arrive
// after the owning unit of work committed, so failures here are logged
// and never unwind a state transition.
type storeRecorder struct {
	orm     *gorm.DB
	bus     *bus.Bus
	log     zerolog.Logger
	metrics *metrics
}

var _ escrow.Recorder = (*storeRecorder)(nil)

func (r *storeRecorder) Record(ctx context.Context, evt escrow.Event) {
	model := fromEvent(evt)
	if err := r.orm.WithContext(ctx).Create(&model).Error; err != nil {
		r.log.Error().Err(err).
			Str("session_id", evt.SessionID).
			Str("kind", string(evt.Kind)).
			Msg("persist audit event")
	}

	if r.bus != nil {
		subject := "escrowd." + string(evt.Kind)
		if err := r.bus.Publish(ctx, subject, evt); err != nil {
			r.log.Error().Err(err).Str("subject", subject).Msg("publish audit event")
		}
	}

	if r.metrics != nil {
		r.metrics.observe(evt)
	}
}
