package settlement

import (
	"context"
	"time"

	"github.com/velora-fi/poolengine/pkg/fixedpoint"
	"github.com/velora-fi/poolengine/pkg/models"
)

// OrderStore is the persistence boundary of the settlement
// coordinator: the global and per-account order logs, the per-account
// delayed-redemption balances, and the rebalance audit records.
// Committed orders are never mutated except through the explicit
// overwrite-by-index correction path.
type OrderStore interface {
	// AppendOrder assigns the next global and per-account sequence
	// numbers and appends the order.
	AppendOrder(ctx context.Context, o *models.Order) error
	// OverwriteOrder replaces the order at an existing global sequence
	// index. The index must already exist.
	OverwriteOrder(ctx context.Context, seq int64, o *models.Order) error
	// OrderBySeq returns the order at a global sequence index, or
	// errors.ErrNoData.
	OrderBySeq(ctx context.Context, seq int64) (*models.Order, error)
	// MaxSeq returns the highest assigned global sequence, or -1 when
	// the log is empty.
	MaxSeq(ctx context.Context) (int64, error)
	// OrdersByAccount returns an account's orders in sequence order.
	OrdersByAccount(ctx context.Context, account string, limit, offset int) ([]models.Order, error)
	// LastCreationAt returns the timestamp of the account's most recent
	// creation order, or errors.ErrNoData.
	LastCreationAt(ctx context.Context, account string) (time.Time, error)

	// DelayedRedemption returns an account's outstanding balance (zero
	// when none is queued).
	DelayedRedemption(ctx context.Context, account string) (fixedpoint.Amount, error)
	// SetDelayedRedemption stores an account's outstanding balance,
	// deleting the record when the amount is zero.
	SetDelayedRedemption(ctx context.Context, account string, amount fixedpoint.Amount) error
	// TotalDelayedRedemption sums all outstanding balances.
	TotalDelayedRedemption(ctx context.Context) (fixedpoint.Amount, error)

	AppendRebalanceRecord(ctx context.Context, r *models.RebalanceRecord) error
	RebalanceRecords(ctx context.Context, limit int) ([]models.RebalanceRecord, error)
}
