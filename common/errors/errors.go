// Package errors defines the domain error taxonomy for the pool engine.
//
// Errors fall into four families: arithmetic failures, precondition
// violations, cross-validation mismatches, and liquidity shortfalls.
// Every mutating operation validates before its first write and
// rejects with one of these; writes preceding a failed commit are
// unwound.
package errors

import (
	"errors"
	"fmt"
)

// Arithmetic errors. Always fatal, never saturated or truncated.
var (
	ErrOverflow       = errors.New("arithmetic overflow")
	ErrUnderflow      = errors.New("arithmetic underflow")
	ErrDivisionByZero = errors.New("division by zero")
)

// Precondition violations. The operation is rejected before any state
// is touched.
var (
	ErrZeroPrice         = errors.New("price must be non-zero")
	ErrZeroSupply        = errors.New("total supply must be non-zero")
	ErrInsolvent         = errors.New("cash position does not cover outstanding debt")
	ErrFeeExceedsBalance = errors.New("accrued lending fee exceeds balance")
	ErrBracketOrder      = errors.New("fee bracket thresholds must be strictly ascending")
	ErrNotWhitelisted    = errors.New("account is not whitelisted")
	ErrUnauthorized      = errors.New("caller role is not authorized")
	ErrPaused            = errors.New("engine is paused")
	ErrShutdown          = errors.New("engine is shut down")
	ErrNoData            = errors.New("no accounting snapshot recorded")
	ErrInvalidRange      = errors.New("range end precedes range start")
	ErrInvalidDayKey     = errors.New("malformed day key")
	ErrFundsLocked       = errors.New("funds are inside the creation lock window")
	ErrInvalidOrderIndex = errors.New("order index out of bounds")
	ErrNegativeAmount    = errors.New("amount must be non-negative")
)

// Liquidity shortfall. Soft when raised inside redemption (routes into
// delayed settlement), hard when raised by SettleDelayedFunds.
var ErrInsufficientHotWalletFunds = errors.New("insufficient hot wallet funds")

// MismatchField names the quantity that diverged between the reported
// and the independently recomputed value.
type MismatchField string

const (
	FieldTokensReceived MismatchField = "tokens_received"
	FieldCashReceived   MismatchField = "cash_received"
	FieldEndBalance     MismatchField = "end_balance"
	FieldEndCash        MismatchField = "end_cash_position"
	FieldTotalSupply    MismatchField = "total_supply"
)

// MismatchError reports an off-chain/on-chain disagreement. It must
// never be reconciled silently; the external authority re-submits a
// corrected report instead.
type MismatchError struct {
	Op       string
	Field    MismatchField
	Reported string
	Computed string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %s mismatch: reported %s, computed %s", e.Op, e.Field, e.Reported, e.Computed)
}

// ErrSettlementMismatch and ErrRebalanceMismatch are matched with
// errors.Is against a MismatchError's Op.
var (
	ErrSettlementMismatch = errors.New("settlement cross-validation mismatch")
	ErrRebalanceMismatch  = errors.New("rebalance cross-validation mismatch")
)

func (e *MismatchError) Is(target error) bool {
	switch target {
	case ErrSettlementMismatch:
		return e.Op == "create" || e.Op == "redeem"
	case ErrRebalanceMismatch:
		return e.Op == "rebalance"
	}
	return false
}

// NewSettlementMismatch builds the mismatch error for a create/redeem
// cross-validation failure.
func NewSettlementMismatch(op string, field MismatchField, reported, computed string) *MismatchError {
	return &MismatchError{Op: op, Field: field, Reported: reported, Computed: computed}
}

// NewRebalanceMismatch builds the mismatch error for a rebalance
// end-state divergence.
func NewRebalanceMismatch(field MismatchField, reported, computed string) *MismatchError {
	return &MismatchError{Op: "rebalance", Field: field, Reported: reported, Computed: computed}
}
