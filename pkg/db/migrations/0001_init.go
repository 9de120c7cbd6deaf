package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type Session struct {
	ID                       string     `gorm:"type:char(64);primaryKey"`
	Payer                    string     `gorm:"type:text;not null;index"`
	Payee                    string     `gorm:"type:text;not null;index"`
	Asset                    string     `gorm:"type:text;not null"`
	TotalAmount              uint64     `gorm:"type:bigint;not null"`
	ReleasedAmount           uint64     `gorm:"type:bigint;not null;default:0"`
	ScheduledDurationMinutes uint32     `gorm:"type:integer;not null"`
	Status                   string     `gorm:"type:text;not null;index"`
	RefundProcessed          bool       `gorm:"type:boolean;not null;default:false"`
	AccumulatedPausedSeconds int64      `gorm:"type:bigint;not null;default:0"`
	Rating                   uint8      `gorm:"type:smallint;not null;default:0"`
	Note                     string     `gorm:"type:text"`
	CreatedAt                time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	StartedAt                *time.Time `gorm:"type:timestamptz"`
	LastLivenessSignal       *time.Time `gorm:"type:timestamptz"`
	NoShowRefundEligibleAt   *time.Time `gorm:"type:timestamptz"`
	CompletedAt              *time.Time `gorm:"type:timestamptz"`
	UpdatedAt                time.Time  `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

type Nonce struct {
	Caller    string    `gorm:"type:text;primaryKey"`
	Counter   uint64    `gorm:"type:bigint;not null;default:0"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

type Escrow struct {
	SessionID string    `gorm:"type:char(64);primaryKey"`
	Asset     string    `gorm:"type:text;not null"`
	Amount    uint64    `gorm:"type:bigint;not null"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

type Account struct {
	Account   string    `gorm:"type:text;primaryKey"`
	Asset     string    `gorm:"type:text;primaryKey"`
	Balance   uint64    `gorm:"type:bigint;not null;default:0"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

type Transfer struct {
	ID        int64     `gorm:"type:bigserial;primaryKey"`
	SessionID string    `gorm:"type:char(64);not null;index"`
	ToAccount string    `gorm:"type:text;not null"`
	Asset     string    `gorm:"type:text;not null"`
	Amount    uint64    `gorm:"type:bigint;not null"`
	Memo      string    `gorm:"type:text"`
	At        time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

type AuditEvent struct {
	ID        int64             `gorm:"type:bigserial;primaryKey"`
	EventID   uuid.UUID         `gorm:"type:uuid;uniqueIndex;not null"`
	SessionID string            `gorm:"type:char(64);not null;index"`
	Kind      string            `gorm:"type:text;not null;index"`
	Actor     string            `gorm:"type:text;not null"`
	Amount    uint64            `gorm:"type:bigint;not null;default:0"`
	FeeAmount uint64            `gorm:"type:bigint;not null;default:0"`
	Pathway   string            `gorm:"type:text"`
	Reason    string            `gorm:"type:text"`
	Details   datatypes.JSONMap `gorm:"type:jsonb"`
	At        time.Time         `gorm:"type:timestamptz;not null;index"`
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).AutoMigrate(
		&Session{},
		&Nonce{},
		&Escrow{},
		&Account{},
		&Transfer{},
		&AuditEvent{},
	)
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(
		&AuditEvent{},
		&Transfer{},
		&Account{},
		&Escrow{},
		&Nonce{},
		&Session{},
	)
}
