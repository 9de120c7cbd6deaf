package api

import (
	"time"

	"escrowd/services/escrow"
)

type sessionModel struct {
	ID                       string     `gorm:"type:char(64);primaryKey"`
	Payer                    string     `gorm:"type:text;index;not null"`
	Payee                    string     `gorm:"type:text;index;not null"`
	Asset                    string     `gorm:"type:text;not null"`
	TotalAmount              uint64     `gorm:"type:bigint;not null"`
	ReleasedAmount           uint64     `gorm:"type:bigint;not null;default:0"`
	ScheduledDurationMinutes uint32     `gorm:"type:integer;not null"`
	Status                   string     `gorm:"type:text;index;not null"`
	RefundProcessed          bool       `gorm:"type:boolean;not null;default:false"`
	AccumulatedPausedSeconds int64      `gorm:"type:bigint;not null;default:0"`
	Rating                   uint8      `gorm:"type:smallint;not null;default:0"`
	Note                     string     `gorm:"type:text"`
	CreatedAt                time.Time  `gorm:"type:timestamptz;not null;default:now()"`
	StartedAt                *time.Time `gorm:"type:timestamptz"`
	LastLivenessSignal       *time.Time `gorm:"type:timestamptz"`
	NoShowRefundEligibleAt   *time.Time `gorm:"type:timestamptz"`
	CompletedAt              *time.Time `gorm:"type:timestamptz"`
	UpdatedAt                time.Time  `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (sessionModel) TableName() string { return "sessions" }

func (m sessionModel) toDomain() *escrow.Session {
	s := &escrow.Session{
		ID:                       m.ID,
		Payer:                    m.Payer,
		Payee:                    m.Payee,
		Asset:                    m.Asset,
		TotalAmount:              m.TotalAmount,
		ReleasedAmount:           m.ReleasedAmount,
		ScheduledDurationMinutes: m.ScheduledDurationMinutes,
		Status:                   escrow.Status(m.Status),
		RefundProcessed:          m.RefundProcessed,
		AccumulatedPausedSeconds: m.AccumulatedPausedSeconds,
		Rating:                   m.Rating,
		Note:                     m.Note,
		CreatedAt:                m.CreatedAt,
		StartedAt:                m.StartedAt,
		NoShowRefundEligibleAt:   m.NoShowRefundEligibleAt,
		CompletedAt:              m.CompletedAt,
	}
	if m.LastLivenessSignal != nil {
		s.LastLivenessSignal = *m.LastLivenessSignal
	}
	return s
}

func fromDomain(s *escrow.Session) sessionModel {
	m := sessionModel{
		ID:                       s.ID,
		Payer:                    s.Payer,
		Payee:                    s.Payee,
		Asset:                    s.Asset,
		TotalAmount:              s.TotalAmount,
		ReleasedAmount:           s.ReleasedAmount,
		ScheduledDurationMinutes: s.ScheduledDurationMinutes,
		Status:                   string(s.Status),
		RefundProcessed:          s.RefundProcessed,
		AccumulatedPausedSeconds: s.AccumulatedPausedSeconds,
		Rating:                   s.Rating,
		Note:                     s.Note,
		CreatedAt:                s.CreatedAt,
		StartedAt:                s.StartedAt,
		NoShowRefundEligibleAt:   s.NoShowRefundEligibleAt,
		CompletedAt:              s.CompletedAt,
	}
	if !s.LastLivenessSignal.IsZero() {
		liveness := s.LastLivenessSignal
		m.LastLivenessSignal = &liveness
	}
	return m
}
