package calculator

import (
	"context"
	"time"

	"github.com/velora-fi/poolengine/internal/ledger"
	"github.com/velora-fi/poolengine/pkg/fixedpoint"
)

// Policy names the behaviors that differ between deployments of the
// rebalance algorithm.
type Policy struct {
	// FloorBeforeFee applies the minimum-rebalance floor to the target
	// delta computed before the lending-fee deduction.
	FloorBeforeFee bool
	// ChargeOpenFeePeriod adds one day to redemption-side fee accrual,
	// charging for the fee period already in progress.
	ChargeOpenFeePeriod bool
	// MinimumFeeFloor is the smallest minting fee ever charged.
	MinimumFeeFloor fixedpoint.Amount
	// MinRebalanceAmount is the no-op floor for rebalance deltas.
	MinRebalanceAmount fixedpoint.Amount
}

// Side distinguishes creation-side from redemption-side accrual.
type Side int

const (
	SideCreation Side = iota
	SideRedemption
)

// Calculator combines the pure composition functions with the
// accounting ledger's current snapshot. It holds no state of its own.
type Calculator struct {
	ledger *ledger.Service
	policy Policy
	now    func() time.Time
}

// New creates a ledger-aware calculator.
func New(ledgerSvc *ledger.Service, policy Policy) *Calculator {
	return &Calculator{ledger: ledgerSvc, policy: policy, now: time.Now}
}

// WithClock pins the calculator's wall clock for tests.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// Policy returns the configured policy flags.
func (c *Calculator) Policy() Policy { return c.policy }

// ElapsedDays returns the whole days since the last rebalance, plus
// one on the redemption side when the open fee period is charged.
func (c *Calculator) ElapsedDays(ctx context.Context, side Side) (int, error) {
	days, err := c.ledger.DaysSinceLastRebalance(ctx, c.now())
	if err != nil {
		return 0, err
	}
	if side == SideRedemption && c.policy.ChargeOpenFeePeriod {
		days++
	}
	return days, nil
}

// totals scales the per-unit snapshot fields up to pool totals for the
// given outstanding supply.
func (c *Calculator) totals(ctx context.Context, totalSupply fixedpoint.Amount) (cash, balance, price fixedpoint.Amount, err error) {
	snap, err := c.ledger.Current(ctx)
	if err != nil {
		return fixedpoint.Zero(), fixedpoint.Zero(), fixedpoint.Zero(), err
	}
	cash, err = fixedpoint.ScaledMul(snap.CashPerUnit, totalSupply)
	if err != nil {
		return fixedpoint.Zero(), fixedpoint.Zero(), fixedpoint.Zero(), err
	}
	balance, err = fixedpoint.ScaledMul(snap.BalancePerUnit, totalSupply)
	if err != nil {
		return fixedpoint.Zero(), fixedpoint.Zero(), fixedpoint.Zero(), err
	}
	return cash, balance, snap.Price, nil
}

// CreationPreview computes the tokens a creation order yields for a
// cash amount at the current composition, after the tiered minting
// fee.
type CreationPreview struct {
	CashAfterFee fixedpoint.Amount `json:"cash_after_fee"`
	FeeRate      fixedpoint.Amount `json:"fee_rate"`
	Tokens       fixedpoint.Amount `json:"tokens"`
}

// PreviewCreation simulates a creation order without mutating state.
func (c *Calculator) PreviewCreation(ctx context.Context, cashIn, totalSupply fixedpoint.Amount) (*CreationPreview, error) {
	feeRate, err := c.ledger.LookupMintingFee(ctx, cashIn)
	if err != nil {
		return nil, err
	}
	net, err := RemoveMintingFee(cashIn, feeRate, c.policy.MinimumFeeFloor)
	if err != nil {
		return nil, err
	}
	cash, balance, price, err := c.totals(ctx, totalSupply)
	if err != nil {
		return nil, err
	}
	tokens, err := TokensFromCash(cash, balance, totalSupply, net, price)
	if err != nil {
		return nil, err
	}
	return &CreationPreview{CashAfterFee: net, FeeRate: feeRate, Tokens: tokens}, nil
}

// RedemptionPreview reports the cash payable for a token amount after
// redemption-side lending-fee accrual.
type RedemptionPreview struct {
	DaysCharged int               `json:"days_charged"`
	FeeInFiat   fixedpoint.Amount `json:"fee_in_fiat"`
	Cash        fixedpoint.Amount `json:"cash"`
}

// PreviewRedemption simulates a redemption order without mutating
// state. Lending fees accrued since the last rebalance, plus the open
// fee period when the policy charges it, reduce the cash position
// before conversion.
func (c *Calculator) PreviewRedemption(ctx context.Context, tokens, totalSupply fixedpoint.Amount) (*RedemptionPreview, error) {
	days, err := c.ElapsedDays(ctx, SideRedemption)
	if err != nil {
		return nil, err
	}
	cash, balance, price, err := c.totals(ctx, totalSupply)
	if err != nil {
		return nil, err
	}
	rate, err := c.ledger.CurrentLendingFee(ctx)
	if err != nil {
		return nil, err
	}
	fee, err := LendingFeeInCrypto(rate, balance, days)
	if err != nil {
		return nil, err
	}
	feeInFiat, err := fixedpoint.ScaledMul(fee, price)
	if err != nil {
		return nil, err
	}
	adjCash, err := fixedpoint.Sub(cash, feeInFiat)
	if err != nil {
		return nil, err
	}
	out, err := CashFromTokens(adjCash, balance, totalSupply, tokens, price)
	if err != nil {
		return nil, err
	}
	return &RedemptionPreview{DaysCharged: days, FeeInFiat: feeInFiat, Cash: out}, nil
}

// PreviewRebalance runs the rebalance computation against the current
// snapshot and the given supply without committing anything. Callers
// can verify an end state before submitting it for settlement.
func (c *Calculator) PreviewRebalance(ctx context.Context, price, totalSupply fixedpoint.Amount, daysElapsed int) (*Result, error) {
	cash, balance, _, err := c.totals(ctx, totalSupply)
	if err != nil {
		return nil, err
	}
	rate, err := c.ledger.CurrentLendingFee(ctx)
	if err != nil {
		return nil, err
	}
	return ComputeRebalance(cash, balance, price, rate, daysElapsed, c.policy.MinRebalanceAmount, c.policy.FloorBeforeFee)
}
