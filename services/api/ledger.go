package api

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"escrowd/services/escrow"
)

type txKey struct{}

// withTx stashes the open transaction so collaborators invoked inside a
// unit of work join it instead of starting their own.
func withTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func ormFrom(ctx context.Context, base *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return base.WithContext(ctx)
}

// gormLedger is the Postgres-backed session ledger. Mutate serialises
// writers on the session row via SELECT FOR UPDATE, and CreateSession
// consumes the caller nonce in the same transaction that inserts the row.
type gormLedger struct {
	orm *gorm.DB
}

func newGormLedger(orm *gorm.DB) *gormLedger {
	return &gormLedger{orm: orm}
}

var _ escrow.Ledger = (*gormLedger)(nil)

func (l *gormLedger) CreateSession(ctx context.Context, s *escrow.Session, caller string, nonce uint64) error {
	return l.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n nonceModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&n, "caller = ?", caller).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			n = nonceModel{Caller: caller}
			if err := tx.Create(&n).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		}

		if nonce != n.Counter {
			return escrow.ErrInvalidNonce
		}

		var count int64
		if err := tx.Model(&sessionModel{}).Where("id = ?", s.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return escrow.ErrDuplicateSession
		}

		model := fromDomain(s)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}

		return tx.Model(&nonceModel{}).
			Where("caller = ?", caller).
			Update("counter", n.Counter+1).Error
	})
}

func (l *gormLedger) Get(ctx context.Context, id string) (*escrow.Session, error) {
	var model sessionModel
	err := l.orm.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, escrow.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.toDomain(), nil
}

func (l *gormLedger) Mutate(ctx context.Context, id string, fn func(ctx context.Context, s *escrow.Session) error) (*escrow.Session, error) {
	var out *escrow.Session
	err := l.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model sessionModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return escrow.ErrNotFound
		}
		if err != nil {
			return err
		}

		s := model.toDomain()
		if err := fn(withTx(ctx, tx), s); err != nil {
			return err
		}

		updated := fromDomain(s)
		updated.CreatedAt = model.CreatedAt
		if err := tx.Model(&sessionModel{ID: s.ID}).
			Select("*").Omit("id", "created_at", "updated_at").
			Updates(&updated).Error; err != nil {
			return err
		}

		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *gormLedger) ListByParticipant(ctx context.Context, principal string, limit int) ([]*escrow.Session, error) {
	q := l.orm.WithContext(ctx).
		Where("payer = ? OR payee = ?", principal, principal).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var models []sessionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	out := make([]*escrow.Session, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (l *gormLedger) NextNonce(ctx context.Context, caller string) (uint64, error) {
	var n nonceModel
	err := l.orm.WithContext(ctx).First(&n, "caller = ?", caller).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n.Counter, nil
}
