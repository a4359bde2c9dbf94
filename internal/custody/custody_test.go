package custody

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/velora-fi/poolengine/pkg/fixedpoint"
)

func newPool(t *testing.T) *Pool {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	pool, err := NewPool(zap.NewNop(), db)
	require.NoError(t, err)
	return pool
}

func TestMoveFunds(t *testing.T) {
	ctx := context.Background()
	pool := newPool(t)

	balance, err := pool.Balance(ctx, "USD")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	ok, err := pool.MoveFundsIn(ctx, "USD", "alice", fixedpoint.MustParse("7000"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = pool.MoveFundsIn(ctx, "SYN", "alice", fixedpoint.MustParse("10"))
	require.NoError(t, err)
	assert.True(t, ok)

	// Balances are tracked per token.
	balance, err = pool.Balance(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, "7000", balance.String())
	balance, err = pool.Balance(ctx, "SYN")
	require.NoError(t, err)
	assert.Equal(t, "10", balance.String())

	ok, err = pool.MoveFundsOut(ctx, "USD", "bob", fixedpoint.MustParse("2500.5"))
	require.NoError(t, err)
	assert.True(t, ok)
	balance, err = pool.Balance(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, "4499.5", balance.String())
}

func TestMoveFundsOutInsufficient(t *testing.T) {
	ctx := context.Background()
	pool := newPool(t)

	_, err := pool.MoveFundsIn(ctx, "USD", "alice", fixedpoint.MustParse("100"))
	require.NoError(t, err)

	ok, err := pool.MoveFundsOut(ctx, "USD", "bob", fixedpoint.MustParse("100.000000000000000001"))
	require.NoError(t, err)
	assert.False(t, ok)

	balance, err := pool.Balance(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, "100", balance.String())
}
