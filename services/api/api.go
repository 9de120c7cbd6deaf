package api

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"escrowd/pkg/bus"
	gos3 "escrowd/pkg/s3"
	"escrowd/services/audit"
	"escrowd/services/escrow"
)

// SessionView is the JSON shape of a session returned by read endpoints.
type SessionView struct {
	ID                       string     `json:"id"`
	Payer                    string     `json:"payer"`
	Payee                    string     `json:"payee"`
	Asset                    string     `json:"asset"`
	TotalAmount              uint64     `json:"total_amount"`
	ReleasedAmount           uint64     `json:"released_amount"`
	RemainingAmount          uint64     `json:"remaining_amount"`
	ScheduledDurationMinutes uint32     `json:"scheduled_duration_minutes"`
	Status                   string     `json:"status"`
	RefundProcessed          bool       `json:"refund_processed"`
	AccumulatedPausedSeconds int64      `json:"accumulated_paused_seconds"`
	Rating                   uint8      `json:"rating,omitempty"`
	Note                     string     `json:"note,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
	StartedAt                *time.Time `json:"started_at,omitempty"`
	NoShowRefundEligibleAt   *time.Time `json:"no_show_refund_eligible_at,omitempty"`
	CompletedAt              *time.Time `json:"completed_at,omitempty"`
}

func toSessionView(s *escrow.Session) SessionView {
	return SessionView{
		ID:                       s.ID,
		Payer:                    s.Payer,
		Payee:                    s.Payee,
		Asset:                    s.Asset,
		TotalAmount:              s.TotalAmount,
		ReleasedAmount:           s.ReleasedAmount,
		RemainingAmount:          s.Remaining(),
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
}

// Store holds external dependencies required by the API layer.
type Store struct {
	DB  *pgxpool.Pool
	ORM *gorm.DB
	S3  *gos3.Client
	Bus *bus.Bus
}

// Config controls runtime behaviour for the API handlers.
type Config struct {
	AdminToken  string
	AuditBucket string
	ListLimit   int
	Registry    prometheus.Registerer
}

const defaultListLimit = 100

// API wires the escrow engine, persistence, and exporter for HTTP handlers.
type API struct {
	store    *Store
	engine   *escrow.Engine
	exporter *audit.Exporter
	config   Config
	log      zerolog.Logger
	metrics  *metrics
}

// New assembles the Postgres-backed engine and the API layer around it.
func New(store *Store, engineCfg escrow.Config, assets *escrow.AssetRegistry, exporter *audit.Exporter, cfg Config, log zerolog.Logger) (*API, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if store.ORM == nil {
		return nil, errors.New("store ORM is required")
	}

	if cfg.ListLimit <= 0 {
		cfg.ListLimit = defaultListLimit
	}

	m := newMetrics(cfg.Registry)

	engine, err := escrow.New(engineCfg, escrow.Deps{
		Ledger:   newGormLedger(store.ORM),
		Treasury: newGormTreasury(store.ORM),
		Assets:   assets,
		Recorder: &storeRecorder{orm: store.ORM, bus: store.Bus, log: log, metrics: m},
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	return &API{
		store:    store,
		engine:   engine,
		exporter: exporter,
		config:   cfg,
		log:      log,
		metrics:  m,
	}, nil
}
