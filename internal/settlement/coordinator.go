package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/velora-fi/poolengine/common/errors"
	"github.com/velora-fi/poolengine/internal/calculator"
	"github.com/velora-fi/poolengine/internal/ledger"
	"github.com/velora-fi/poolengine/pkg/fixedpoint"
	"github.com/velora-fi/poolengine/pkg/metrics"
	"github.com/velora-fi/poolengine/pkg/models"
)

// Config holds the coordinator's deployment parameters.
type Config struct {
	// CashToken and PoolToken name the custody tokens moved when paying
	// out cash and refunding synthetic tokens.
	CashToken string `yaml:"cash_token" mapstructure:"cash_token"`
	PoolToken string `yaml:"pool_token" mapstructure:"pool_token"`
	// LockWindow is how long funds received via creation stay
	// unredeemable.
	LockWindow time.Duration `yaml:"lock_window" mapstructure:"lock_window"`
}

// ExecutionReport is what the external execution source delivers after
// a completed (or failed) off-chain trade.
type ExecutionReport struct {
	Success        bool
	Account        string
	TokensGiven    fixedpoint.Amount
	TokensReceived fixedpoint.Amount
	Fee            fixedpoint.Amount
	ExecutionPrice fixedpoint.Amount
	Mode           models.WriteMode
}

// Coordinator is the settlement state machine. Every mutating call is
// serialized: all preconditions and cross-validations run before the
// first write, and the order log append is the final commit point.
// Collaborator mutations that precede it are unwound best-effort when
// the append fails; an unwind failure is logged for operator
// reconciliation.
type Coordinator struct {
	mu sync.Mutex

	logger   *zap.Logger
	ledger   *ledger.Service
	calc     *calculator.Calculator
	orders   OrderStore
	custody  Custody
	identity Identity
	supply   Supply
	cfg      Config
	now      func() time.Time

	paused   bool
	shutdown bool
}

// NewCoordinator wires the settlement coordinator.
func NewCoordinator(logger *zap.Logger, ledgerSvc *ledger.Service, calc *calculator.Calculator, orders OrderStore, custody Custody, identity Identity, supply Supply, cfg Config) *Coordinator {
	if cfg.LockWindow == 0 {
		cfg.LockWindow = time.Hour
	}
	return &Coordinator{
		logger:   logger,
		ledger:   ledgerSvc,
		calc:     calc,
		orders:   orders,
		custody:  custody,
		identity: identity,
		supply:   supply,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock pins the coordinator's wall clock for tests.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// Pause refuses mutating operations until Resume.
func (c *Coordinator) Pause(role models.Role) error {
	if role != models.RoleAdmin {
		return apperrors.ErrUnauthorized
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	c.logger.Warn("settlement paused")
	return nil
}

// Resume lifts a pause.
func (c *Coordinator) Resume(role models.Role) error {
	if role != models.RoleAdmin {
		return apperrors.ErrUnauthorized
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	c.logger.Info("settlement resumed")
	return nil
}

// Shutdown permanently refuses mutating operations.
func (c *Coordinator) Shutdown(role models.Role) error {
	if role != models.RoleAdmin {
		return apperrors.ErrUnauthorized
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdown = true
	c.logger.Warn("settlement shut down")
	return nil
}

// adminState is checked before any other validation.
func (c *Coordinator) adminState() error {
	if c.shutdown {
		return apperrors.ErrShutdown
	}
	if c.paused {
		return apperrors.ErrPaused
	}
	return nil
}

func (c *Coordinator) gate(ctx context.Context, role models.Role, account string) error {
	if err := c.adminState(); err != nil {
		return err
	}
	if role != models.RoleSettlement && role != models.RoleBridge {
		return apperrors.ErrUnauthorized
	}
	ok, err := c.identity.IsWhitelisted(ctx, account)
	if err != nil {
		return fmt.Errorf("whitelist lookup failed: %w", err)
	}
	if !ok {
		return apperrors.ErrNotWhitelisted
	}
	return nil
}

// poolTotals scales the current per-unit snapshot up to pool totals.
func (c *Coordinator) poolTotals(ctx context.Context, totalSupply fixedpoint.Amount) (cash, balance fixedpoint.Amount, err error) {
	snap, err := c.ledger.Current(ctx)
	if err != nil {
		return fixedpoint.Zero(), fixedpoint.Zero(), err
	}
	if cash, err = fixedpoint.ScaledMul(snap.CashPerUnit, totalSupply); err != nil {
		return fixedpoint.Zero(), fixedpoint.Zero(), err
	}
	if balance, err = fixedpoint.ScaledMul(snap.BalancePerUnit, totalSupply); err != nil {
		return fixedpoint.Zero(), fixedpoint.Zero(), err
	}
	return cash, balance, nil
}

func (c *Coordinator) writeOrder(ctx context.Context, o *models.Order, mode models.WriteMode) error {
	if seq, overwrite := mode.IsOverwrite(); overwrite {
		max, err := c.orders.MaxSeq(ctx)
		if err != nil {
			return err
		}
		if seq < 0 || seq > max {
			return apperrors.ErrInvalidOrderIndex
		}
		return c.orders.OverwriteOrder(ctx, seq, o)
	}
	return c.orders.AppendOrder(ctx, o)
}

// CreateOrder settles a creation: the execution source paid cash in
// and claims a token amount. The claim is recomputed independently and
// any divergence rejects the order; a failed execution refunds the
// cash with no other effect.
func (c *Coordinator) CreateOrder(ctx context.Context, role models.Role, report ExecutionReport) (*models.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.gate(ctx, role, report.Account); err != nil {
		return nil, err
	}

	if !report.Success {
		ok, err := c.custody.MoveFundsOut(ctx, c.cfg.CashToken, report.Account, report.TokensGiven)
		if err != nil {
			return nil, fmt.Errorf("refund failed: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("refund rejected by custody")
		}
		metrics.OrdersRejected.WithLabelValues("execution_failed").Inc()
		c.logger.Info("creation refunded after failed execution",
			zap.String("account", report.Account),
			zap.String("amount", report.TokensGiven.String()),
		)
		return nil, nil
	}

	totalSupply, err := c.supply.TotalSupply(ctx)
	if err != nil {
		return nil, fmt.Errorf("supply lookup failed: %w", err)
	}
	cash, balance, err := c.poolTotals(ctx, totalSupply)
	if err != nil {
		return nil, err
	}
	netCash, err := fixedpoint.Sub(report.TokensGiven, report.Fee)
	if err != nil {
		return nil, err
	}
	expected, err := calculator.TokensFromCash(cash, balance, totalSupply, netCash, report.ExecutionPrice)
	if err != nil {
		return nil, err
	}
	if !expected.Equal(report.TokensReceived) {
		metrics.OrdersRejected.WithLabelValues("mismatch").Inc()
		return nil, apperrors.NewSettlementMismatch("create", apperrors.FieldTokensReceived,
			report.TokensReceived.String(), expected.String())
	}

	ok, err := c.supply.Mint(ctx, report.Account, report.TokensReceived)
	if err != nil {
		return nil, fmt.Errorf("mint failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("mint rejected by supply")
	}

	order := &models.Order{
		ID:             uuid.New(),
		Account:        report.Account,
		Type:           models.OrderCreate,
		TokensGiven:    report.TokensGiven,
		TokensReceived: report.TokensReceived,
		FeeOrPrice:     report.Fee,
		CreatedAt:      c.now(),
	}
	// The order log append is the commit point. If it fails the mint
	// is unwound; a failed unwind leaves supply ahead of the recorded
	// history and needs operator reconciliation.
	if err := c.writeOrder(ctx, order, report.Mode); err != nil {
		if _, burnErr := c.supply.Burn(ctx, false, report.TokensReceived); burnErr != nil {
			c.logger.Error("mint unwind failed after order write error",
				zap.String("account", report.Account),
				zap.String("amount", report.TokensReceived.String()),
				zap.Error(burnErr),
			)
		}
		return nil, err
	}

	metrics.OrdersSettled.WithLabelValues(string(models.OrderCreate)).Inc()
	c.logger.Info("creation committed",
		zap.String("account", report.Account),
		zap.Int64("seq", order.Seq),
		zap.String("cash_in", report.TokensGiven.String()),
		zap.String("tokens_minted", report.TokensReceived.String()),
	)
	return order, nil
}

// RedeemOrder settles a redemption: tokens are burned and cash paid
// out. When the hot wallet cannot cover the payout, the shortfall is
// queued as a delayed redemption instead of failing the order.
func (c *Coordinator) RedeemOrder(ctx context.Context, role models.Role, report ExecutionReport) (*models.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.gate(ctx, role, report.Account); err != nil {
		return nil, err
	}

	if !report.Success {
		ok, err := c.custody.MoveFundsOut(ctx, c.cfg.PoolToken, report.Account, report.TokensGiven)
		if err != nil {
			return nil, fmt.Errorf("refund failed: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("refund rejected by custody")
		}
		metrics.OrdersRejected.WithLabelValues("execution_failed").Inc()
		c.logger.Info("redemption refunded after failed execution",
			zap.String("account", report.Account),
			zap.String("tokens", report.TokensGiven.String()),
		)
		return nil, nil
	}

	if lastCreate, err := c.orders.LastCreationAt(ctx, report.Account); err == nil {
		if c.now().Sub(lastCreate) < c.cfg.LockWindow {
			return nil, apperrors.ErrFundsLocked
		}
	} else if err != apperrors.ErrNoData {
		return nil, err
	}

	totalSupply, err := c.supply.TotalSupply(ctx)
	if err != nil {
		return nil, fmt.Errorf("supply lookup failed: %w", err)
	}
	cash, balance, err := c.poolTotals(ctx, totalSupply)
	if err != nil {
		return nil, err
	}
	gross, err := calculator.CashFromTokens(cash, balance, totalSupply, report.TokensGiven, report.ExecutionPrice)
	if err != nil {
		return nil, err
	}
	expected, err := fixedpoint.Sub(gross, report.Fee)
	if err != nil {
		return nil, err
	}
	if !expected.Equal(report.TokensReceived) {
		metrics.OrdersRejected.WithLabelValues("mismatch").Inc()
		return nil, apperrors.NewSettlementMismatch("redeem", apperrors.FieldCashReceived,
			report.TokensReceived.String(), expected.String())
	}

	ok, err := c.supply.Burn(ctx, true, report.TokensGiven)
	if err != nil {
		return nil, fmt.Errorf("burn failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("burn rejected by supply")
	}

	// The order log append inside the payout is the commit point. A
	// payout or store failure before it unwinds the burn so supply
	// matches the recorded history; a failed unwind needs operator
	// reconciliation.
	order, err := c.settleRedemptionPayout(ctx, report)
	if err != nil {
		if _, mintErr := c.supply.Mint(ctx, report.Account, report.TokensGiven); mintErr != nil {
			c.logger.Error("burn unwind failed after payout error",
				zap.String("account", report.Account),
				zap.String("amount", report.TokensGiven.String()),
				zap.Error(mintErr),
			)
		}
		return nil, err
	}
	metrics.OrdersSettled.WithLabelValues(string(order.Type)).Inc()
	c.logger.Info("redemption committed",
		zap.String("account", report.Account),
		zap.Int64("seq", order.Seq),
		zap.String("type", string(order.Type)),
		zap.String("tokens_burned", report.TokensGiven.String()),
		zap.String("cash_out", report.TokensReceived.String()),
	)
	return order, nil
}

// settleRedemptionPayout pays what the hot wallet can cover and queues
// the remainder. This is the one designed soft failure: the order
// commits either way and the supply stays burned.
func (c *Coordinator) settleRedemptionPayout(ctx context.Context, report ExecutionReport) (*models.Order, error) {
	payout := report.TokensReceived
	available, err := c.custody.Balance(ctx, c.cfg.CashToken)
	if err != nil {
		return nil, fmt.Errorf("custody balance lookup failed: %w", err)
	}

	orderType := models.OrderRedeem
	paid := payout
	outstanding := fixedpoint.Zero()
	if available.Cmp(payout) < 0 {
		orderType = models.OrderRedeemNoSettlement
		paid = available
		shortfall, err := fixedpoint.Sub(payout, available)
		if err != nil {
			return nil, err
		}
		if outstanding, err = c.orders.DelayedRedemption(ctx, report.Account); err != nil {
			return nil, err
		}
		queued, err := fixedpoint.Add(outstanding, shortfall)
		if err != nil {
			return nil, err
		}
		if err := c.orders.SetDelayedRedemption(ctx, report.Account, queued); err != nil {
			return nil, err
		}
		c.updateDelayedGauge(ctx)
		c.logger.Warn("redemption payout queued",
			zap.String("account", report.Account),
			zap.String("shortfall", shortfall.String()),
			zap.String("outstanding", queued.String()),
		)
	}
	if !paid.IsZero() {
		ok, err := c.custody.MoveFundsOut(ctx, c.cfg.CashToken, report.Account, paid)
		if err != nil {
			c.revertDelayedQueue(ctx, report.Account, orderType, outstanding)
			return nil, fmt.Errorf("payout failed: %w", err)
		}
		if !ok {
			c.revertDelayedQueue(ctx, report.Account, orderType, outstanding)
			return nil, fmt.Errorf("payout rejected by custody")
		}
	}

	order := &models.Order{
		ID:             uuid.New(),
		Account:        report.Account,
		Type:           orderType,
		TokensGiven:    report.TokensGiven,
		TokensReceived: report.TokensReceived,
		FeeOrPrice:     report.Fee,
		CreatedAt:      c.now(),
	}
	if err := c.writeOrder(ctx, order, report.Mode); err != nil {
		if !paid.IsZero() {
			if _, refundErr := c.custody.MoveFundsIn(ctx, c.cfg.CashToken, report.Account, paid); refundErr != nil {
				c.logger.Error("payout unwind failed after order write error",
					zap.String("account", report.Account),
					zap.String("amount", paid.String()),
					zap.Error(refundErr),
				)
			}
		}
		c.revertDelayedQueue(ctx, report.Account, orderType, outstanding)
		return nil, err
	}
	return order, nil
}

// revertDelayedQueue restores an account's pre-call delayed balance
// when a redemption aborts after queueing a shortfall.
func (c *Coordinator) revertDelayedQueue(ctx context.Context, account string, orderType models.OrderType, outstanding fixedpoint.Amount) {
	if orderType != models.OrderRedeemNoSettlement {
		return
	}
	if err := c.orders.SetDelayedRedemption(ctx, account, outstanding); err != nil {
		c.logger.Error("delayed queue unwind failed",
			zap.String("account", account),
			zap.Error(err),
		)
		return
	}
	c.updateDelayedGauge(ctx)
}

// SettleDelayedFunds pays down an account's delayed-redemption balance
// once liquidity is available again.
func (c *Coordinator) SettleDelayedFunds(ctx context.Context, role models.Role, account string, amount fixedpoint.Amount) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.gate(ctx, role, account); err != nil {
		return err
	}

	outstanding, err := c.orders.DelayedRedemption(ctx, account)
	if err != nil {
		return err
	}
	if amount.Cmp(outstanding) > 0 {
		return apperrors.ErrUnderflow
	}
	available, err := c.custody.Balance(ctx, c.cfg.CashToken)
	if err != nil {
		return fmt.Errorf("custody balance lookup failed: %w", err)
	}
	if available.Cmp(amount) < 0 {
		return apperrors.ErrInsufficientHotWalletFunds
	}
	ok, err := c.custody.MoveFundsOut(ctx, c.cfg.CashToken, account, amount)
	if err != nil {
		return fmt.Errorf("payout failed: %w", err)
	}
	if !ok {
		return apperrors.ErrInsufficientHotWalletFunds
	}

	remaining, err := fixedpoint.Sub(outstanding, amount)
	if err != nil {
		return err
	}
	if err := c.orders.SetDelayedRedemption(ctx, account, remaining); err != nil {
		return err
	}
	c.updateDelayedGauge(ctx)
	c.logger.Info("delayed redemption settled",
		zap.String("account", account),
		zap.String("paid", amount.String()),
		zap.String("remaining", remaining.String()),
	)
	return nil
}

func (c *Coordinator) updateDelayedGauge(ctx context.Context) {
	total, err := c.orders.TotalDelayedRedemption(ctx)
	if err != nil {
		return
	}
	f, _ := total.Decimal().Float64()
	metrics.DelayedRedemptionOutstanding.Set(f)
}

// DailyRebalance recomputes the pool composition for a new day key and
// commits it if the caller's expected end state matches exactly.
func (c *Coordinator) DailyRebalance(ctx context.Context, role models.Role, price, annualLendingRate, expectedEndCash, expectedEndBalance, expectedSupply fixedpoint.Amount) (*calculator.Result, error) {
	return c.rebalance(ctx, role, models.RebalanceDaily, price, annualLendingRate, expectedEndCash, expectedEndBalance, expectedSupply)
}

// ThresholdRebalance is the intra-day variant: it commits under the
// existing last active day key so lending-fee day counting is
// unaffected.
func (c *Coordinator) ThresholdRebalance(ctx context.Context, role models.Role, price, annualLendingRate, expectedEndCash, expectedEndBalance, expectedSupply fixedpoint.Amount) (*calculator.Result, error) {
	return c.rebalance(ctx, role, models.RebalanceThreshold, price, annualLendingRate, expectedEndCash, expectedEndBalance, expectedSupply)
}

func (c *Coordinator) rebalance(ctx context.Context, role models.Role, kind models.RebalanceKind, price, annualLendingRate, expectedEndCash, expectedEndBalance, expectedSupply fixedpoint.Amount) (*calculator.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.adminState(); err != nil {
		return nil, err
	}
	if role != models.RoleSettlement {
		return nil, apperrors.ErrUnauthorized
	}
	if price.IsZero() {
		return nil, apperrors.ErrZeroPrice
	}

	totalSupply, err := c.supply.TotalSupply(ctx)
	if err != nil {
		return nil, fmt.Errorf("supply lookup failed: %w", err)
	}
	if totalSupply.IsZero() {
		return nil, apperrors.ErrZeroSupply
	}
	if !totalSupply.Equal(expectedSupply) {
		metrics.RebalanceMismatches.Inc()
		return nil, apperrors.NewRebalanceMismatch(apperrors.FieldTotalSupply,
			expectedSupply.String(), totalSupply.String())
	}

	cash, balance, err := c.poolTotals(ctx, totalSupply)
	if err != nil {
		return nil, err
	}
	days, err := c.ledger.DaysSinceLastRebalance(ctx, c.now())
	if err != nil {
		return nil, err
	}
	policy := c.calc.Policy()
	result, err := calculator.ComputeRebalance(cash, balance, price, annualLendingRate, days, policy.MinRebalanceAmount, policy.FloorBeforeFee)
	if err != nil {
		return nil, err
	}

	if !result.EndCashPosition.Equal(expectedEndCash) {
		metrics.RebalanceMismatches.Inc()
		return nil, apperrors.NewRebalanceMismatch(apperrors.FieldEndCash,
			expectedEndCash.String(), result.EndCashPosition.String())
	}
	if !result.EndBalance.Equal(expectedEndBalance) {
		metrics.RebalanceMismatches.Inc()
		return nil, apperrors.NewRebalanceMismatch(apperrors.FieldEndBalance,
			expectedEndBalance.String(), result.EndBalance.String())
	}

	cashPerUnit, err := fixedpoint.ScaledDiv(result.EndCashPosition, totalSupply)
	if err != nil {
		return nil, err
	}
	balancePerUnit, err := fixedpoint.ScaledDiv(result.EndBalance, totalSupply)
	if err != nil {
		return nil, err
	}
	if kind == models.RebalanceDaily {
		err = c.ledger.AppendSnapshot(ctx, models.RoleSettlement, price, cashPerUnit, balancePerUnit, annualLendingRate)
	} else {
		err = c.ledger.AppendSnapshotToLastActiveDay(ctx, models.RoleSettlement, price, cashPerUnit, balancePerUnit, annualLendingRate)
	}
	if err != nil {
		return nil, err
	}

	lastDay, err := c.ledger.LastActiveDay(ctx)
	if err != nil {
		return nil, err
	}
	record := &models.RebalanceRecord{
		DayKey:          int(lastDay),
		Kind:            kind,
		EndNetValue:     result.EndNetValue,
		EndBalance:      result.EndBalance,
		EndCashPosition: result.EndCashPosition,
		FeeInFiat:       result.FeeInFiat,
		Delta:           result.Delta,
		DeltaIsNegative: result.DeltaIsNegative,
		CreatedAt:       c.now(),
	}
	if err := c.orders.AppendRebalanceRecord(ctx, record); err != nil {
		return nil, err
	}

	metrics.Rebalances.WithLabelValues(string(kind)).Inc()
	c.logger.Info("rebalance committed",
		zap.String("kind", string(kind)),
		zap.Int("day_key", record.DayKey),
		zap.Int("days_elapsed", days),
		zap.String("end_balance", result.EndBalance.String()),
		zap.String("end_cash", result.EndCashPosition.String()),
		zap.String("fee_in_fiat", result.FeeInFiat.String()),
	)
	return result, nil
}

// Orders returns an account's order history.
func (c *Coordinator) Orders(ctx context.Context, account string, limit, offset int) ([]models.Order, error) {
	return c.orders.OrdersByAccount(ctx, account, limit, offset)
}

// DelayedRedemptionFor returns an account's outstanding delayed
// balance.
func (c *Coordinator) DelayedRedemptionFor(ctx context.Context, account string) (fixedpoint.Amount, error) {
	return c.orders.DelayedRedemption(ctx, account)
}

// RebalanceHistory returns the most recent rebalance records.
func (c *Coordinator) RebalanceHistory(ctx context.Context, limit int) ([]models.RebalanceRecord, error) {
	return c.orders.RebalanceRecords(ctx, limit)
}
