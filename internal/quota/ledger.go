// Package quota tracks how many certificate requests a user may still submit.
package quota

import (
	"context"
	"fmt"

	"go_certbot/internal/model"

	"gorm.io/gorm"
)

// Ledger reads and mutates per-user quota balances
type Ledger struct {
	db *gorm.DB
}

// NewLedger creates a ledger bound to db
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// WithTx returns a ledger whose writes join tx
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx}
}

// HasQuota reports whether the user may submit another domain
func (l *Ledger) HasQuota(user *model.User) bool {
	return user.Privileged() || user.Quota > 0
}

// Consume takes one unit from the user's balance. It never drives the balance
// negative and is a no-op for privileged users. consumed is false when the
// balance was already exhausted at write time.
func (l *Ledger) Consume(ctx context.Context, user *model.User) (consumed bool, err error) {
	if user.Privileged() {
		return true, nil
	}

	result := l.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND quota > 0", user.ID).
		UpdateColumn("quota", gorm.Expr("quota - 1"))
	if result.Error != nil {
		return false, fmt.Errorf("failed to consume quota for user %d: %w", user.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	user.Quota--
	return true, nil
}

// Refund returns one unit to the user's balance; no-op for privileged users
func (l *Ledger) Refund(ctx context.Context, user *model.User) error {
	if user.Privileged() {
		return nil
	}

	result := l.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", user.ID).
		UpdateColumn("quota", gorm.Expr("quota + 1"))
	if result.Error != nil {
		return fmt.Errorf("failed to refund quota for user %d: %w", user.ID, result.Error)
	}

	user.Quota++
	return nil
}

// Grant adds amount units to the user's balance
func (l *Ledger) Grant(ctx context.Context, user *model.User, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive, got %d", amount)
	}

	result := l.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", user.ID).
		UpdateColumn("quota", gorm.Expr("quota + ?", amount))
	if result.Error != nil {
		return fmt.Errorf("failed to grant quota for user %d: %w", user.ID, result.Error)
	}

	user.Quota += amount
	return nil
}

// Balance re-reads the persisted balance
func (l *Ledger) Balance(ctx context.Context, userID int) (int, error) {
	var user model.User
	if err := l.db.WithContext(ctx).Select("quota").First(&user, userID).Error; err != nil {
		return 0, err
	}
	return user.Quota, nil
}
