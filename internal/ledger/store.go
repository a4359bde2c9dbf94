// Package ledger implements the accounting ledger: the append-only
// per-day snapshot history and the tiered minting-fee schedule.
package ledger

import (
	"context"

	"github.com/velora-fi/poolengine/pkg/fixedpoint"
	"github.com/velora-fi/poolengine/pkg/models"
)

// Store is the persistence boundary of the accounting ledger. Snapshot
// history is ordered append; historical snapshots are never mutated.
type Store interface {
	// AppendSnapshot appends one snapshot to the history. The snapshot's
	// DayKey decides whether the last active day advances.
	AppendSnapshot(ctx context.Context, snap *models.Snapshot) error
	// LatestSnapshot returns the most recently appended snapshot, or
	// errors.ErrNoData when the history is empty.
	LatestSnapshot(ctx context.Context) (*models.Snapshot, error)
	// SnapshotsForDay returns all snapshots recorded under a day key in
	// append order.
	SnapshotsForDay(ctx context.Context, dayKey int) ([]models.Snapshot, error)

	// Brackets returns the fee brackets ordered by position.
	Brackets(ctx context.Context) ([]models.FeeBracket, error)
	SaveBracket(ctx context.Context, b *models.FeeBracket) error
	DeleteBracket(ctx context.Context, position int) error
	FinalRate(ctx context.Context) (fixedpoint.Amount, error)
	SetFinalRate(ctx context.Context, rate fixedpoint.Amount) error
}
