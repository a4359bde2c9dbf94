package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	apperrors "github.com/velora-fi/poolengine/common/errors"
	"github.com/velora-fi/poolengine/pkg/fixedpoint"
	"github.com/velora-fi/poolengine/pkg/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db
}

func newOrder(account string, typ models.OrderType) *models.Order {
	return &models.Order{
		ID:             uuid.New(),
		Account:        account,
		Type:           typ,
		TokensGiven:    amt("7000"),
		TokensReceived: amt("10"),
		FeeOrPrice:     amt("1000"),
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
}

func TestGormOrderStoreSequencing(t *testing.T) {
	ctx := context.Background()
	store, err := NewGormOrderStore(openTestDB(t))
	require.NoError(t, err)

	max, err := store.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), max)

	a0 := newOrder("alice", models.OrderCreate)
	require.NoError(t, store.AppendOrder(ctx, a0))
	b0 := newOrder("bob", models.OrderCreate)
	require.NoError(t, store.AppendOrder(ctx, b0))
	a1 := newOrder("alice", models.OrderRedeem)
	require.NoError(t, store.AppendOrder(ctx, a1))

	// Global sequence is contiguous; account sequence counts per account.
	assert.Equal(t, int64(0), a0.Seq)
	assert.Equal(t, int64(1), b0.Seq)
	assert.Equal(t, int64(2), a1.Seq)
	assert.Equal(t, int64(0), a0.AccountSeq)
	assert.Equal(t, int64(0), b0.AccountSeq)
	assert.Equal(t, int64(1), a1.AccountSeq)

	got, err := store.OrderBySeq(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Account)
	_, err = store.OrderBySeq(ctx, 99)
	assert.ErrorIs(t, err, apperrors.ErrNoData)

	alice, err := store.OrdersByAccount(ctx, "alice", 0, 0)
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, models.OrderCreate, alice[0].Type)
	assert.Equal(t, models.OrderRedeem, alice[1].Type)
}

func TestGormOrderStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	store, err := NewGormOrderStore(openTestDB(t))
	require.NoError(t, err)

	orig := newOrder("alice", models.OrderCreate)
	require.NoError(t, store.AppendOrder(ctx, orig))

	corrected := newOrder("alice", models.OrderCreate)
	corrected.TokensReceived = amt("9.5")
	require.NoError(t, store.OverwriteOrder(ctx, 0, corrected))

	// Identity and position survive the correction.
	got, err := store.OrderBySeq(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, int64(0), got.Seq)
	assert.Equal(t, "9.5", got.TokensReceived.String())

	max, err := store.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), max)

	err = store.OverwriteOrder(ctx, 5, newOrder("alice", models.OrderCreate))
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrderIndex)
}

func TestGormOrderStoreLastCreationAt(t *testing.T) {
	ctx := context.Background()
	store, err := NewGormOrderStore(openTestDB(t))
	require.NoError(t, err)

	_, err = store.LastCreationAt(ctx, "alice")
	assert.ErrorIs(t, err, apperrors.ErrNoData)

	first := newOrder("alice", models.OrderCreate)
	require.NoError(t, store.AppendOrder(ctx, first))
	require.NoError(t, store.AppendOrder(ctx, newOrder("alice", models.OrderRedeem)))
	second := newOrder("alice", models.OrderCreate)
	second.CreatedAt = first.CreatedAt.Add(time.Hour)
	require.NoError(t, store.AppendOrder(ctx, second))

	at, err := store.LastCreationAt(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, at.Equal(second.CreatedAt))
}

func TestGormOrderStoreDelayedRedemption(t *testing.T) {
	ctx := context.Background()
	store, err := NewGormOrderStore(openTestDB(t))
	require.NoError(t, err)

	out, err := store.DelayedRedemption(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, out.IsZero())

	require.NoError(t, store.SetDelayedRedemption(ctx, "alice", amt("5000")))
	require.NoError(t, store.SetDelayedRedemption(ctx, "bob", amt("300")))

	total, err := store.TotalDelayedRedemption(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5300", total.String())

	// Writing zero clears the row.
	require.NoError(t, store.SetDelayedRedemption(ctx, "alice", fixedpoint.Zero()))
	total, err = store.TotalDelayedRedemption(ctx)
	require.NoError(t, err)
	assert.Equal(t, "300", total.String())
}

func TestGormOrderStoreRebalanceRecords(t *testing.T) {
	ctx := context.Background()
	store, err := NewGormOrderStore(openTestDB(t))
	require.NoError(t, err)

	for _, kind := range []models.RebalanceKind{models.RebalanceDaily, models.RebalanceThreshold} {
		require.NoError(t, store.AppendRebalanceRecord(ctx, &models.RebalanceRecord{
			DayKey:          20240301,
			Kind:            kind,
			EndNetValue:     amt("600000"),
			EndBalance:      amt("85.7"),
			EndCashPosition: amt("1199808"),
			CreatedAt:       time.Now(),
		}))
	}

	records, err := store.RebalanceRecords(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.RebalanceThreshold, records[0].Kind)

	records, err = store.RebalanceRecords(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
