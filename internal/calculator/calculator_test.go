package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/velora-fi/poolengine/common/errors"
	"github.com/velora-fi/poolengine/pkg/fixedpoint"
)

func amt(s string) fixedpoint.Amount { return fixedpoint.MustParse(s) }

func TestNetValue(t *testing.T) {
	nv, err := NetValue(amt("2000000"), amt("200"), amt("7000"))
	require.NoError(t, err)
	assert.Equal(t, "600000", nv.String())

	// Collateral must strictly exceed the debt value.
	_, err = NetValue(amt("1400000"), amt("200"), amt("7000"))
	assert.ErrorIs(t, err, apperrors.ErrInsolvent)
	_, err = NetValue(amt("100"), amt("200"), amt("7000"))
	assert.ErrorIs(t, err, apperrors.ErrInsolvent)
}

func TestLendingFeeInCrypto(t *testing.T) {
	fee, err := LendingFeeInCrypto(amt("2.5"), amt("200"), 1)
	require.NoError(t, err)
	assert.Equal(t, "0.013698630136986301", fee.String())

	fee, err = LendingFeeInCrypto(amt("2.5"), amt("200"), 0)
	require.NoError(t, err)
	assert.True(t, fee.IsZero())

	// A full year at 2.5% accrues exactly 2.5% of the balance.
	fee, err = LendingFeeInCrypto(amt("2.5"), amt("200"), 365)
	require.NoError(t, err)
	assert.Equal(t, "5", fee.String())

	_, err = LendingFeeInCrypto(amt("2.5"), amt("200"), -1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRange)
}

func TestComputeRebalanceOneDay(t *testing.T) {
	res, err := ComputeRebalance(amt("2000000"), amt("200"), amt("7000"), amt("2.5"), 1, fixedpoint.Zero(), false)
	require.NoError(t, err)

	assert.Equal(t, "95.890410958904107", res.FeeInFiat.String())
	assert.True(t, res.DeltaIsNegative)
	assert.Equal(t, "114.299412915851272015", res.Delta.String())
	assert.Equal(t, "85.700587084148727985", res.EndBalance.String())
	assert.Equal(t, "1199808.219178082191788", res.EndCashPosition.String())
	assert.Equal(t, "599904.109589041095893", res.EndNetValue.String())
}

func TestComputeRebalanceIdempotentAtTarget(t *testing.T) {
	// At the target composition with no accrued fee, nothing moves.
	res, err := ComputeRebalance(amt("1400000"), amt("100"), amt("7000"), amt("2.5"), 0, fixedpoint.Zero(), false)
	require.NoError(t, err)
	assert.True(t, res.Delta.IsZero())
	assert.Equal(t, "100", res.EndBalance.String())
	assert.Equal(t, "1400000", res.EndCashPosition.String())
	assert.Equal(t, "700000", res.EndNetValue.String())
}

func TestComputeRebalanceMinDeltaFloor(t *testing.T) {
	// Target balance is 200.0714..., a move of 0.0714 under the floor.
	res, err := ComputeRebalance(amt("2800500"), amt("200"), amt("7000"), fixedpoint.Zero(), 0, amt("1000"), false)
	require.NoError(t, err)
	assert.True(t, res.Delta.IsZero())
	assert.False(t, res.DeltaIsNegative)
	assert.Equal(t, "200", res.EndBalance.String())
	assert.Equal(t, "2800500", res.EndCashPosition.String())
	assert.Equal(t, "1400500", res.EndNetValue.String())
}

func TestComputeRebalanceFeeExceedsBalance(t *testing.T) {
	_, err := ComputeRebalance(amt("2000000000"), amt("1"), amt("7000"), amt("40000"), 365, fixedpoint.Zero(), false)
	assert.ErrorIs(t, err, apperrors.ErrFeeExceedsBalance)
}

func TestTokensFromCash(t *testing.T) {
	tokens, err := TokensFromCash(amt("2000000"), amt("200"), amt("1000"), amt("7000"), amt("7000"))
	require.NoError(t, err)
	assert.Equal(t, "11.666666666666666667", tokens.String())

	_, err = TokensFromCash(amt("2000000"), amt("200"), amt("1000"), amt("7000"), fixedpoint.Zero())
	assert.ErrorIs(t, err, apperrors.ErrZeroPrice)
	_, err = TokensFromCash(amt("2000000"), amt("200"), fixedpoint.Zero(), amt("7000"), amt("7000"))
	assert.ErrorIs(t, err, apperrors.ErrZeroSupply)
}

func TestConversionRoundTrip(t *testing.T) {
	cash := amt("2000000")
	balance := amt("200")
	price := amt("7000")
	supply := amt("599999")

	in := amt("7000")
	tokens, err := TokensFromCash(cash, balance, supply, in, price)
	require.NoError(t, err)
	back, err := CashFromTokens(cash, balance, supply, tokens, price)
	require.NoError(t, err)

	// With net value per token near 1, the two half-up roundings cancel
	// to within one raw unit.
	diff := back.BigInt()
	diff.Sub(diff, in.BigInt()).Abs(diff)
	assert.LessOrEqual(t, diff.Int64(), int64(1), "round trip drift: in=%s back=%s", in, back)
}

func TestRemoveMintingFee(t *testing.T) {
	net, err := RemoveMintingFee(amt("100"), amt("0.001"), fixedpoint.Zero())
	require.NoError(t, err)
	assert.Equal(t, "99.9", net.String())

	// The floor replaces any smaller proportional fee.
	net, err = RemoveMintingFee(amt("100"), amt("0.001"), amt("5"))
	require.NoError(t, err)
	assert.Equal(t, "95", net.String())

	_, err = RemoveMintingFee(amt("100"), fixedpoint.Zero(), amt("200"))
	assert.ErrorIs(t, err, apperrors.ErrUnderflow)
}
