package quota

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"go_certbot/internal/model"
	"go_certbot/internal/testutil"
)

func TestLedger_ConsumeAndRefund(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	ledger := NewLedger(db)

	user := &model.User{ExternalID: 1001, Role: model.UserRoleMember, Quota: 1}
	require.NoError(t, db.Create(user).Error)

	assert.True(t, ledger.HasQuota(user))

	consumed, err := ledger.Consume(ctx, user)
	require.NoError(t, err)
	assert.True(t, consumed)

	balance, err := ledger.Balance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
	assert.False(t, ledger.HasQuota(user))

	// exhausted balance never goes negative
	consumed, err = ledger.Consume(ctx, user)
	require.NoError(t, err)
	assert.False(t, consumed)

	balance, err = ledger.Balance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)

	require.NoError(t, ledger.Refund(ctx, user))
	balance, err = ledger.Balance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, balance)
}

func TestLedger_PrivilegedBypass(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	ledger := NewLedger(db)

	admin := &model.User{ExternalID: 1, Role: model.UserRoleAdmin, Quota: 0}
	require.NoError(t, db.Create(admin).Error)

	assert.True(t, ledger.HasQuota(admin))

	consumed, err := ledger.Consume(ctx, admin)
	require.NoError(t, err)
	assert.True(t, consumed)
	require.NoError(t, ledger.Refund(ctx, admin))

	balance, err := ledger.Balance(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestLedger_GrantInsideTransaction(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	ledger := NewLedger(db)

	user := &model.User{ExternalID: 7, Role: model.UserRoleMember}
	require.NoError(t, db.Create(user).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.WithTx(tx).Grant(ctx, user, 5)
	})
	require.NoError(t, err)

	balance, err := ledger.Balance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, balance)

	assert.Error(t, ledger.Grant(ctx, user, 0))
}
