package api

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"escrowd/services/escrow"
)

type auditEventModel struct {
	ID        int64             `gorm:"type:bigserial;primaryKey"`
	EventID   uuid.UUID         `gorm:"type:uuid;uniqueIndex;not null"`
	SessionID string            `gorm:"type:char(64);index;not null"`
	Kind      string            `gorm:"type:text;index;not null"`
	Actor     string            `gorm:"type:text;not null"`
	Amount    uint64            `gorm:"type:bigint;not null;default:0"`
	FeeAmount uint64            `gorm:"type:bigint;not null;default:0"`
	Pathway   string            `gorm:"type:text"`
	Reason    string            `gorm:"type:text"`
	Details   datatypes.JSONMap `gorm:"type:jsonb"`
	At        time.Time         `gorm:"type:timestamptz;index;not null"`
}

func (auditEventModel) TableName() string { return "audit_events" }

func fromEvent(evt escrow.Event) auditEventModel {
	return auditEventModel{
		EventID:   evt.ID,
		SessionID: evt.SessionID,
		Kind:      string(evt.Kind),
		Actor:     evt.Actor,
		Amount:    evt.Amount,
		FeeAmount: evt.FeeAmount,
		Pathway:   evt.Pathway,
		Reason:    evt.Reason,
		At:        evt.At,
	}
}
