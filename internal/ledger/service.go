package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/velora-fi/poolengine/common/errors"
	"github.com/velora-fi/poolengine/pkg/daykey"
	"github.com/velora-fi/poolengine/pkg/fixedpoint"
	"github.com/velora-fi/poolengine/pkg/models"
)

// Service owns the snapshot history and the minting-fee schedule.
// Snapshot appends are gated on the settlement authority role and
// bracket mutation on the admin role; both reject before any state is
// touched.
type Service struct {
	logger *zap.Logger
	store  Store
	now    func() time.Time
}

// Option configures the ledger service.
type Option func(*Service)

// WithClock overrides the wall clock, used by tests to pin day keys.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the accounting ledger service.
func NewService(logger *zap.Logger, store Store, opts ...Option) *Service {
	s := &Service{logger: logger, store: store, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func validateSnapshotInputs(price fixedpoint.Amount) error {
	if price.IsZero() {
		return apperrors.ErrZeroPrice
	}
	return nil
}

// AppendSnapshot records a new snapshot under today's day key,
// advancing the last active day. This is how a full daily rebalance
// commits.
func (s *Service) AppendSnapshot(ctx context.Context, role models.Role, price, cashPerUnit, balancePerUnit, lendingFeeRate fixedpoint.Amount) error {
	if role != models.RoleSettlement {
		return apperrors.ErrUnauthorized
	}
	if err := validateSnapshotInputs(price); err != nil {
		return err
	}
	key := daykey.FromTime(s.now())
	return s.append(ctx, int(key), price, cashPerUnit, balancePerUnit, lendingFeeRate)
}

// AppendSnapshotToLastActiveDay records a snapshot under the existing
// last active day key without advancing it. Intra-day threshold
// rebalances use this so lending-fee day counting is unaffected.
func (s *Service) AppendSnapshotToLastActiveDay(ctx context.Context, role models.Role, price, cashPerUnit, balancePerUnit, lendingFeeRate fixedpoint.Amount) error {
	if role != models.RoleSettlement {
		return apperrors.ErrUnauthorized
	}
	if err := validateSnapshotInputs(price); err != nil {
		return err
	}
	last, err := s.store.LatestSnapshot(ctx)
	if err != nil {
		return err
	}
	return s.append(ctx, last.DayKey, price, cashPerUnit, balancePerUnit, lendingFeeRate)
}

func (s *Service) append(ctx context.Context, dayKey int, price, cashPerUnit, balancePerUnit, lendingFeeRate fixedpoint.Amount) error {
	snap := &models.Snapshot{
		DayKey:         dayKey,
		Price:          price,
		CashPerUnit:    cashPerUnit,
		BalancePerUnit: balancePerUnit,
		LendingFeeRate: lendingFeeRate,
		CreatedAt:      s.now(),
	}
	if err := s.store.AppendSnapshot(ctx, snap); err != nil {
		return err
	}
	s.logger.Info("snapshot appended",
		zap.Int("day_key", dayKey),
		zap.String("price", price.String()),
		zap.String("cash_per_unit", cashPerUnit.String()),
		zap.String("balance_per_unit", balancePerUnit.String()),
	)
	return nil
}

// Current returns the most recent snapshot of the last active day.
func (s *Service) Current(ctx context.Context) (*models.Snapshot, error) {
	return s.store.LatestSnapshot(ctx)
}

// CurrentPrice returns the last recorded price.
func (s *Service) CurrentPrice(ctx context.Context) (fixedpoint.Amount, error) {
	snap, err := s.store.LatestSnapshot(ctx)
	if err != nil {
		return fixedpoint.Zero(), err
	}
	return snap.Price, nil
}

// CurrentCashPerUnit returns the last recorded cash position per unit.
func (s *Service) CurrentCashPerUnit(ctx context.Context) (fixedpoint.Amount, error) {
	snap, err := s.store.LatestSnapshot(ctx)
	if err != nil {
		return fixedpoint.Zero(), err
	}
	return snap.CashPerUnit, nil
}

// CurrentBalancePerUnit returns the last recorded debt balance per unit.
func (s *Service) CurrentBalancePerUnit(ctx context.Context) (fixedpoint.Amount, error) {
	snap, err := s.store.LatestSnapshot(ctx)
	if err != nil {
		return fixedpoint.Zero(), err
	}
	return snap.BalancePerUnit, nil
}

// CurrentLendingFee returns the last recorded annual lending-fee rate.
func (s *Service) CurrentLendingFee(ctx context.Context) (fixedpoint.Amount, error) {
	snap, err := s.store.LatestSnapshot(ctx)
	if err != nil {
		return fixedpoint.Zero(), err
	}
	return snap.LendingFeeRate, nil
}

// LastActiveDay returns the day key of the most recent snapshot.
func (s *Service) LastActiveDay(ctx context.Context) (daykey.Key, error) {
	snap, err := s.store.LatestSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	return daykey.Key(snap.DayKey), nil
}

// DaysSinceLastRebalance returns the whole days from the last active
// day to now.
func (s *Service) DaysSinceLastRebalance(ctx context.Context, now time.Time) (int, error) {
	last, err := s.LastActiveDay(ctx)
	if err != nil {
		return 0, err
	}
	start, err := daykey.DayStart(last)
	if err != nil {
		return 0, err
	}
	return daykey.DaysBetween(start, now)
}

// LookupMintingFee returns the fee rate for a cash amount: the rate of
// the first bracket whose threshold is >= the amount, else the final
// catch-all rate. Runs a binary search over the ascending thresholds.
func (s *Service) LookupMintingFee(ctx context.Context, cashAmount fixedpoint.Amount) (fixedpoint.Amount, error) {
	brackets, err := s.store.Brackets(ctx)
	if err != nil {
		return fixedpoint.Zero(), err
	}
	i := sort.Search(len(brackets), func(i int) bool {
		return brackets[i].Threshold.Cmp(cashAmount) >= 0
	})
	if i < len(brackets) {
		return brackets[i].Rate, nil
	}
	return s.store.FinalRate(ctx)
}

// Brackets returns the current fee schedule ordered by position.
func (s *Service) Brackets(ctx context.Context) ([]models.FeeBracket, error) {
	return s.store.Brackets(ctx)
}

// FinalRate returns the catch-all rate above every threshold.
func (s *Service) FinalRate(ctx context.Context) (fixedpoint.Amount, error) {
	return s.store.FinalRate(ctx)
}

// AddBracket appends a bracket after the current highest threshold.
// The new threshold must exceed the last one.
func (s *Service) AddBracket(ctx context.Context, role models.Role, threshold, rate fixedpoint.Amount) error {
	if role != models.RoleAdmin {
		return apperrors.ErrUnauthorized
	}
	brackets, err := s.store.Brackets(ctx)
	if err != nil {
		return err
	}
	if n := len(brackets); n > 0 && brackets[n-1].Threshold.Cmp(threshold) >= 0 {
		return apperrors.ErrBracketOrder
	}
	b := &models.FeeBracket{Position: len(brackets), Threshold: threshold, Rate: rate}
	if err := s.store.SaveBracket(ctx, b); err != nil {
		return err
	}
	s.logger.Info("fee bracket added",
		zap.Int("position", b.Position),
		zap.String("threshold", threshold.String()),
		zap.String("rate", rate.String()),
	)
	return nil
}

// ChangeBracket replaces the bracket at a position. The new threshold
// must stay strictly between its neighbors.
func (s *Service) ChangeBracket(ctx context.Context, role models.Role, position int, threshold, rate fixedpoint.Amount) error {
	if role != models.RoleAdmin {
		return apperrors.ErrUnauthorized
	}
	brackets, err := s.store.Brackets(ctx)
	if err != nil {
		return err
	}
	if position < 0 || position >= len(brackets) {
		return fmt.Errorf("no fee bracket at position %d", position)
	}
	if position > 0 && brackets[position-1].Threshold.Cmp(threshold) >= 0 {
		return apperrors.ErrBracketOrder
	}
	if position < len(brackets)-1 && threshold.Cmp(brackets[position+1].Threshold) >= 0 {
		return apperrors.ErrBracketOrder
	}
	b := &models.FeeBracket{Position: position, Threshold: threshold, Rate: rate}
	return s.store.SaveBracket(ctx, b)
}

// RemoveLastBracket drops the bracket with the highest threshold.
func (s *Service) RemoveLastBracket(ctx context.Context, role models.Role) error {
	if role != models.RoleAdmin {
		return apperrors.ErrUnauthorized
	}
	brackets, err := s.store.Brackets(ctx)
	if err != nil {
		return err
	}
	if len(brackets) == 0 {
		return apperrors.ErrNoData
	}
	return s.store.DeleteBracket(ctx, brackets[len(brackets)-1].Position)
}

// SetFinalRate replaces the catch-all rate.
func (s *Service) SetFinalRate(ctx context.Context, role models.Role, rate fixedpoint.Amount) error {
	if role != models.RoleAdmin {
		return apperrors.ErrUnauthorized
	}
	return s.store.SetFinalRate(ctx, rate)
}
