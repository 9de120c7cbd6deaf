package api

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"escrowd/services/escrow"
)

// gormTreasury moves value between the per-session escrow pot and account
// balances. All writes join the caller's transaction when one is carried
// in the context, so a failed unit of work rolls the movement back too.
type gormTreasury struct {
	orm *gorm.DB
}

func newGormTreasury(orm *gorm.DB) *gormTreasury {
	return &gormTreasury{orm: orm}
}

var _ escrow.Treasury = (*gormTreasury)(nil)

func (t *gormTreasury) Lock(ctx context.Context, sessionID, payer, asset string, amount uint64) error {
	orm := ormFrom(ctx, t.orm)

	// A pot row can survive a failed create attempt whose compensating
	// release zeroed it; locking again must top up the same row, the way
	// Release accumulates account balances.
	pot := escrowModel{SessionID: sessionID, Asset: asset, Amount: amount}
	if err := orm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.Assignments(map[string]any{"amount": gorm.Expr("escrows.amount + ?", amount)}),
	}).Create(&pot).Error; err != nil {
		return err
	}

	record := transferModel{
		SessionID: sessionID,
		ToAccount: "escrow:" + sessionID,
		Asset:     asset,
		Amount:    amount,
		Memo:      "lock:" + payer,
	}
	return orm.Create(&record).Error
}

func (t *gormTreasury) Release(ctx context.Context, sessionID, to, asset string, amount uint64, memo string) error {
	orm := ormFrom(ctx, t.orm)

	var pot escrowModel
	err := orm.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&pot, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.New("no escrow for session")
	}
	if err != nil {
		return err
	}
	if pot.Amount < amount {
		return errors.New("escrow balance too low")
	}

	if err := orm.Model(&escrowModel{}).
		Where("session_id = ?", sessionID).
		Update("amount", pot.Amount-amount).Error; err != nil {
		return err
	}

	if err := orm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}, {Name: "asset"}},
		DoUpdates: clause.Assignments(map[string]any{"balance": gorm.Expr("accounts.balance + ?", amount)}),
	}).Create(&accountModel{Account: to, Asset: asset, Balance: amount}).Error; err != nil {
		return err
	}

	record := transferModel{
		SessionID: sessionID,
		ToAccount: to,
		Asset:     asset,
		Amount:    amount,
		Memo:      memo,
	}
	return orm.Create(&record).Error
}
