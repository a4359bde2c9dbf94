// Package calculator implements the composition calculator: pure
// functions over the pool's cash position, crypto debt, and price,
// composed into ledger-aware preview wrappers. The calculator owns no
// persistent state; the settlement coordinator recomputes every
// reported amount through it before committing anything.
package calculator

import (
	"github.com/velora-fi/poolengine/common/errors"
	"github.com/velora-fi/poolengine/pkg/fixedpoint"
)

// daysPerYearTimes100 folds the percent divisor and the day-count
// divisor of the simple-interest formula into one denominator.
const daysPerYearTimes100 = 365 * 100

// NetValue returns cashPosition minus the fiat value of the crypto
// debt. It fails with ErrInsolvent when the cash position does not
// strictly exceed balance·price: collateral must always cover the
// debt.
func NetValue(cashPosition, balance, price fixedpoint.Amount) (fixedpoint.Amount, error) {
	debtValue, err := fixedpoint.ScaledMul(balance, price)
	if err != nil {
		return fixedpoint.Zero(), err
	}
	if cashPosition.Cmp(debtValue) <= 0 {
		return fixedpoint.Zero(), errors.ErrInsolvent
	}
	return fixedpoint.Sub(cashPosition, debtValue)
}

// LendingFeeInCrypto accrues simple (non-compounding) interest on the
// crypto debt: (annualRatePct/100/365) · balance · daysElapsed.
// annualRatePct is a scaled percentage, e.g. 2.5 for 2.5% per year.
func LendingFeeInCrypto(annualRatePct, balance fixedpoint.Amount, daysElapsed int) (fixedpoint.Amount, error) {
	if daysElapsed < 0 {
		return fixedpoint.Zero(), errors.ErrInvalidRange
	}
	annual, err := fixedpoint.ScaledMul(balance, annualRatePct)
	if err != nil {
		return fixedpoint.Zero(), err
	}
	prorated, err := fixedpoint.MulInt(annual, int64(daysElapsed))
	if err != nil {
		return fixedpoint.Zero(), err
	}
	return fixedpoint.DivInt(prorated, daysPerYearTimes100)
}

// RebalanceDelta returns the unsigned distance between the current
// balance and the target balance netValue/price, plus a sign flag that
// is true when the balance must shrink.
func RebalanceDelta(netValue, balance, price fixedpoint.Amount) (fixedpoint.Amount, bool, error) {
	target, err := fixedpoint.ScaledDiv(netValue, price)
	if err != nil {
		return fixedpoint.Zero(), false, err
	}
	if target.Cmp(balance) >= 0 {
		delta, err := fixedpoint.Sub(target, balance)
		return delta, false, err
	}
	delta, err := fixedpoint.Sub(balance, target)
	return delta, true, err
}

// Result is the derived end state of one rebalance computation. It is
// persisted into a new accounting snapshot only after the coordinator
// cross-validates it.
type Result struct {
	EndNetValue     fixedpoint.Amount
	EndBalance      fixedpoint.Amount
	EndCashPosition fixedpoint.Amount
	FeeInFiat       fixedpoint.Amount
	Delta           fixedpoint.Amount
	DeltaIsNegative bool
}

// ComputeRebalance derives the pool's new composition from the current
// state, the price, and the accrued lending fee. The computation is
// bit-exact reproducible from the same inputs; the settlement
// coordinator recomputes it independently and any divergence is a
// protocol error.
//
// Moves smaller than minRebalanceAmount are not worth settling and
// leave the balance unchanged. When floorBeforeFee is set, the floor
// comparison uses the target delta derived before the fee deduction.
func ComputeRebalance(cashPosition, balance, price, annualRatePct fixedpoint.Amount, daysElapsed int, minRebalanceAmount fixedpoint.Amount, floorBeforeFee bool) (*Result, error) {
	fee, err := LendingFeeInCrypto(annualRatePct, balance, daysElapsed)
	if err != nil {
		return nil, err
	}
	if fee.Cmp(balance) > 0 {
		return nil, errors.ErrFeeExceedsBalance
	}

	var preFeeDelta fixedpoint.Amount
	if floorBeforeFee {
		nv, err := NetValue(cashPosition, balance, price)
		if err != nil {
			return nil, err
		}
		preFeeDelta, _, err = RebalanceDelta(nv, balance, price)
		if err != nil {
			return nil, err
		}
	}

	feeInFiat, err := fixedpoint.ScaledMul(fee, price)
	if err != nil {
		return nil, err
	}
	cash, err := fixedpoint.Sub(cashPosition, feeInFiat)
	if err != nil {
		return nil, err
	}

	nv, err := NetValue(cash, balance, price)
	if err != nil {
		return nil, err
	}
	delta, isNegative, err := RebalanceDelta(nv, balance, price)
	if err != nil {
		return nil, err
	}

	floorInput := delta
	if floorBeforeFee {
		floorInput = preFeeDelta
	}
	if floorInput.Cmp(minRebalanceAmount) < 0 {
		delta = fixedpoint.Zero()
		isNegative = false
	}

	endBalance := balance
	endCash := cash
	if !delta.IsZero() {
		deltaInFiat, err := fixedpoint.ScaledMul(delta, price)
		if err != nil {
			return nil, err
		}
		if isNegative {
			if endBalance, err = fixedpoint.Sub(balance, delta); err != nil {
				return nil, err
			}
			if endCash, err = fixedpoint.Sub(cash, deltaInFiat); err != nil {
				return nil, err
			}
		} else {
			if endBalance, err = fixedpoint.Add(balance, delta); err != nil {
				return nil, err
			}
			if endCash, err = fixedpoint.Add(cash, deltaInFiat); err != nil {
				return nil, err
			}
		}
	}

	endNetValue, err := NetValue(endCash, endBalance, price)
	if err != nil {
		return nil, err
	}

	return &Result{
		EndNetValue:     endNetValue,
		EndBalance:      endBalance,
		EndCashPosition: endCash,
		FeeInFiat:       feeInFiat,
		Delta:           delta,
		DeltaIsNegative: isNegative,
	}, nil
}

func conversionPreconditions(price, totalSupply fixedpoint.Amount) error {
	if price.IsZero() {
		return errors.ErrZeroPrice
	}
	if totalSupply.IsZero() {
		return errors.ErrZeroSupply
	}
	return nil
}

// TokensFromCash converts a cash amount into synthetic tokens at the
// pool's current composition: cash·supply / netValue.
func TokensFromCash(cashPosition, balance, totalSupply, cash, price fixedpoint.Amount) (fixedpoint.Amount, error) {
	if err := conversionPreconditions(price, totalSupply); err != nil {
		return fixedpoint.Zero(), err
	}
	nv, err := NetValue(cashPosition, balance, price)
	if err != nil {
		return fixedpoint.Zero(), err
	}
	num, err := fixedpoint.ScaledMul(cash, totalSupply)
	if err != nil {
		return fixedpoint.Zero(), err
	}
	return fixedpoint.ScaledDiv(num, nv)
}

// CashFromTokens converts a token amount into cash at the pool's
// current composition: netValue·tokens / supply.
func CashFromTokens(cashPosition, balance, totalSupply, tokenAmount, price fixedpoint.Amount) (fixedpoint.Amount, error) {
	if err := conversionPreconditions(price, totalSupply); err != nil {
		return fixedpoint.Zero(), err
	}
	nv, err := NetValue(cashPosition, balance, price)
	if err != nil {
		return fixedpoint.Zero(), err
	}
	num, err := fixedpoint.ScaledMul(nv, tokenAmount)
	if err != nil {
		return fixedpoint.Zero(), err
	}
	return fixedpoint.ScaledDiv(num, totalSupply)
}

// RemoveMintingFee deducts the minting fee from a cash amount. The fee
// is cash·feeRate, floored at minimumFeeFloor.
func RemoveMintingFee(cash, feeRate, minimumFeeFloor fixedpoint.Amount) (fixedpoint.Amount, error) {
	fee, err := fixedpoint.ScaledMul(cash, feeRate)
	if err != nil {
		return fixedpoint.Zero(), err
	}
	fee = fixedpoint.Max(fee, minimumFeeFloor)
	return fixedpoint.Sub(cash, fee)
}
