package calculator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velora-fi/poolengine/internal/ledger"
	"github.com/velora-fi/poolengine/pkg/models"
)

// seedCalculator returns a calculator over a ledger holding one
// snapshot: price 7000, 2000 cash and 0.2 debt per unit, 2.5% annual
// lending fee. At 1000 outstanding tokens the pool totals are
// 2,000,000 cash against 200 debt, a net value of 600,000.
func seedCalculator(t *testing.T, policy Policy, clock time.Time) *Calculator {
	t.Helper()
	ctx := context.Background()
	svc := ledger.NewService(zap.NewNop(), ledger.NewMemoryStore(),
		ledger.WithClock(func() time.Time { return clock }))
	require.NoError(t, svc.AppendSnapshot(ctx, models.RoleSettlement,
		amt("7000"), amt("2000"), amt("0.2"), amt("2.5")))
	return New(svc, policy).WithClock(func() time.Time { return clock })
}

func TestPreviewCreation(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	calc := seedCalculator(t, Policy{}, clock)

	p, err := calc.PreviewCreation(ctx, amt("7000"), amt("1000"))
	require.NoError(t, err)
	assert.True(t, p.FeeRate.IsZero())
	assert.Equal(t, "7000", p.CashAfterFee.String())
	assert.Equal(t, "11.666666666666666667", p.Tokens.String())
}

func TestPreviewRedemptionChargesOpenPeriod(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	calc := seedCalculator(t, Policy{ChargeOpenFeePeriod: true}, clock)

	p, err := calc.PreviewRedemption(ctx, amt("10"), amt("1000"))
	require.NoError(t, err)
	assert.Equal(t, 1, p.DaysCharged)
	assert.Equal(t, "95.890410958904107", p.FeeInFiat.String())
	assert.Equal(t, "5999.04109589041095893", p.Cash.String())
}

func TestPreviewRedemptionWithoutOpenPeriod(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	calc := seedCalculator(t, Policy{}, clock)

	p, err := calc.PreviewRedemption(ctx, amt("10"), amt("1000"))
	require.NoError(t, err)
	assert.Equal(t, 0, p.DaysCharged)
	assert.True(t, p.FeeInFiat.IsZero())
	assert.Equal(t, "6000", p.Cash.String())
}

func TestPreviewRebalance(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	calc := seedCalculator(t, Policy{}, clock)

	res, err := calc.PreviewRebalance(ctx, amt("7000"), amt("1000"), 1)
	require.NoError(t, err)
	assert.Equal(t, "95.890410958904107", res.FeeInFiat.String())
	assert.Equal(t, "85.700587084148727985", res.EndBalance.String())
	assert.Equal(t, "599904.109589041095893", res.EndNetValue.String())
}

func TestElapsedDays(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	calc := seedCalculator(t, Policy{ChargeOpenFeePeriod: true}, clock)

	days, err := calc.ElapsedDays(ctx, SideCreation)
	require.NoError(t, err)
	assert.Equal(t, 0, days)

	days, err = calc.ElapsedDays(ctx, SideRedemption)
	require.NoError(t, err)
	assert.Equal(t, 1, days)
}
