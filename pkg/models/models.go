// Package models holds the persisted domain records of the pool
// engine: accounting snapshots, minting-fee brackets, order records,
// delayed-redemption balances, and rebalance records.
package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/velora-fi/poolengine/pkg/fixedpoint"
)

// Role identifies the caller of a mutating operation. Authorization is
// a precondition gate checked before any state is touched.
type Role string

const (
	RoleNone       Role = "none"
	RoleAdmin      Role = "admin"
	RoleSettlement Role = "settlement"
	RoleBridge     Role = "bridge"
)

// OrderType distinguishes creations, redemptions, and redemptions that
// could not be paid immediately.
type OrderType string

const (
	OrderCreate             OrderType = "create"
	OrderRedeem             OrderType = "redeem"
	OrderRedeemNoSettlement OrderType = "redeem_no_settlement"
)

// RebalanceKind distinguishes the daily rebalance, which advances the
// active day key, from intra-day threshold rebalances, which do not.
type RebalanceKind string

const (
	RebalanceDaily     RebalanceKind = "daily"
	RebalanceThreshold RebalanceKind = "threshold"
)

// Snapshot is one immutable accounting record for a day key. A day key
// may carry several snapshots in sequence (intra-day corrections); the
// current state is always the last snapshot of the last active day.
type Snapshot struct {
	ID             uint              `json:"id" gorm:"primaryKey;autoIncrement"`
	DayKey         int               `json:"day_key" gorm:"index" validate:"required,gt=19700100"`
	Price          fixedpoint.Amount `json:"price" validate:"required"`
	CashPerUnit    fixedpoint.Amount `json:"cash_per_unit"`
	BalancePerUnit fixedpoint.Amount `json:"balance_per_unit"`
	LendingFeeRate fixedpoint.Amount `json:"lending_fee_rate"`
	CreatedAt      time.Time         `json:"created_at"`
}

// FeeBracket is one tier of the minting-fee schedule: the rate applied
// to cash amounts at or below Threshold (and above the previous
// bracket's threshold). Position fixes the ascending order.
type FeeBracket struct {
	Position  int               `json:"position" gorm:"primaryKey;autoIncrement:false"`
	Threshold fixedpoint.Amount `json:"threshold"`
	Rate      fixedpoint.Amount `json:"rate"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Order is one committed creation or redemption. Orders live both in
// the global sequence (Seq) and the per-account sequence (AccountSeq);
// they are append-only, with an explicit overwrite-by-index correction
// path.
type Order struct {
	ID             uuid.UUID         `json:"id" gorm:"primaryKey;type:uuid"`
	Seq            int64             `json:"seq" gorm:"uniqueIndex"`
	Account        string            `json:"account" gorm:"index" validate:"required"`
	AccountSeq     int64             `json:"account_seq"`
	Type           OrderType         `json:"type" validate:"required,oneof=create redeem redeem_no_settlement"`
	TokensGiven    fixedpoint.Amount `json:"tokens_given"`
	TokensReceived fixedpoint.Amount `json:"tokens_received"`
	FeeOrPrice     fixedpoint.Amount `json:"fee_or_price"`
	CreatedAt      time.Time         `json:"created_at"`
}

// DelayedRedemption is an account's outstanding token payout awaiting
// settlement; created when liquidity was short at redemption time and
// deleted once paid down to zero.
type DelayedRedemption struct {
	Account   string            `json:"account" gorm:"primaryKey"`
	Amount    fixedpoint.Amount `json:"amount"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// RebalanceRecord preserves the committed end state of a rebalance
// cycle for audit.
type RebalanceRecord struct {
	ID              uint              `json:"id" gorm:"primaryKey;autoIncrement"`
	DayKey          int               `json:"day_key" gorm:"index"`
	Kind            RebalanceKind     `json:"kind"`
	EndNetValue     fixedpoint.Amount `json:"end_net_value"`
	EndBalance      fixedpoint.Amount `json:"end_balance"`
	EndCashPosition fixedpoint.Amount `json:"end_cash_position"`
	FeeInFiat       fixedpoint.Amount `json:"fee_in_fiat"`
	Delta           fixedpoint.Amount `json:"delta"`
	DeltaIsNegative bool              `json:"delta_is_negative"`
	CreatedAt       time.Time         `json:"created_at"`
}

// WriteMode selects between appending an order and overwriting an
// existing one at a caller-specified index.
type WriteMode struct {
	overwrite bool
	index     int64
}

// Append is the normal append-to-log write mode.
func Append() WriteMode { return WriteMode{} }

// OverwriteAt targets an existing global sequence index for
// correction. The index is bounds-checked before dispatch.
func OverwriteAt(index int64) WriteMode {
	return WriteMode{overwrite: true, index: index}
}

// IsOverwrite reports whether the mode targets an existing index, and
// if so which one.
func (m WriteMode) IsOverwrite() (int64, bool) { return m.index, m.overwrite }
