package api

import "time"

type nonceModel struct {
	Caller    string    `gorm:"type:text;primaryKey"`
	Counter   uint64    `gorm:"type:bigint;not null;default:0"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (nonceModel) TableName() string { return "nonces" }
