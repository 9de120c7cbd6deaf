package api

import "time"

type escrowModel struct {
	SessionID string    `gorm:"type:char(64);primaryKey"`
	Asset     string    `gorm:"type:text;not null"`
	Amount    uint64    `gorm:"type:bigint;not null"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (escrowModel) TableName() string { return "escrows" }

type accountModel struct {
	Account   string    `gorm:"type:text;primaryKey"`
	Asset     string    `gorm:"type:text;primaryKey"`
	Balance   uint64    `gorm:"type:bigint;not null;default:0"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (accountModel) TableName() string { return "accounts" }

type transferModel struct {
	ID        int64     `gorm:"type:bigserial;primaryKey"`
	SessionID string    `gorm:"type:char(64);index;not null"`
	ToAccount string    `gorm:"type:text;not null"`
	Asset     string    `gorm:"type:text;not null"`
	Amount    uint64    `gorm:"type:bigint;not null"`
	Memo      string    `gorm:"type:text"`
	At        time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (transferModel) TableName() string { return "transfers" }

// TransferView is the JSON shape of one treasury movement.
type TransferView struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	ToAccount string    `json:"to_account"`
	Asset     string    `json:"asset"`
	Amount    uint64    `json:"amount"`
	Memo      string    `json:"memo,omitempty"`
	At        time.Time `json:"at"`
}

func (m transferModel) toView() TransferView {
	return TransferView{
		ID:        m.ID,
		SessionID: m.SessionID,
		ToAccount: m.ToAccount,
		Asset:     m.Asset,
		Amount:    m.Amount,
		Memo:      m.Memo,
		At:        m.At,
	}
}
