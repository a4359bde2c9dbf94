// Package custody is a database-backed implementation of the custody
// collaborator: per-token pooled balances with move-in/move-out. Cold
// storage splitting and custody percentages live outside the engine;
// this pool models only the hot wallet the coordinator draws on.
package custody

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/velora-fi/poolengine/pkg/fixedpoint"
)

// TokenBalance is one token's pooled hot-wallet balance.
type TokenBalance struct {
	Token     string `gorm:"primaryKey"`
	Balance   fixedpoint.Amount
	UpdatedAt time.Time
}

// Pool implements the custody collaborator over gorm.
type Pool struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewPool migrates the custody table and returns the pool.
func NewPool(logger *zap.Logger, db *gorm.DB) (*Pool, error) {
	if err := db.AutoMigrate(&TokenBalance{}); err != nil {
		return nil, fmt.Errorf("failed to migrate custody table: %w", err)
	}
	return &Pool{logger: logger, db: db}, nil
}

func (p *Pool) balanceRow(tx *gorm.DB, token string) (*TokenBalance, error) {
	var row TokenBalance
	err := tx.Where("token = ?", token).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return &TokenBalance{Token: token}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load custody balance for %s: %w", token, err)
	}
	return &row, nil
}

// MoveFundsIn credits the pool. Returns false only when the transfer
// cannot be accepted.
func (p *Pool) MoveFundsIn(ctx context.Context, token, fromAccount string, amount fixedpoint.Amount) (bool, error) {
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := p.balanceRow(tx, token)
		if err != nil {
			return err
		}
		if row.Balance, err = fixedpoint.Add(row.Balance, amount); err != nil {
			return err
		}
		row.UpdatedAt = time.Now()
		return tx.Save(row).Error
	})
	if err != nil {
		return false, err
	}
	p.logger.Debug("funds moved in",
		zap.String("token", token),
		zap.String("from", fromAccount),
		zap.String("amount", amount.String()),
	)
	return true, nil
}

// MoveFundsOut debits the pool. Returns false when the balance does
// not cover the amount.
func (p *Pool) MoveFundsOut(ctx context.Context, token, toAccount string, amount fixedpoint.Amount) (bool, error) {
	short := false
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := p.balanceRow(tx, token)
		if err != nil {
			return err
		}
		if row.Balance.Cmp(amount) < 0 {
			short = true
			return nil
		}
		if row.Balance, err = fixedpoint.Sub(row.Balance, amount); err != nil {
			return err
		}
		row.UpdatedAt = time.Now()
		return tx.Save(row).Error
	})
	if err != nil {
		return false, err
	}
	if short {
		return false, nil
	}
	p.logger.Debug("funds moved out",
		zap.String("token", token),
		zap.String("to", toAccount),
		zap.String("amount", amount.String()),
	)
	return true, nil
}

// Balance returns the pooled balance for a token.
func (p *Pool) Balance(ctx context.Context, token string) (fixedpoint.Amount, error) {
	row, err := p.balanceRow(p.db.WithContext(ctx), token)
	if err != nil {
		return fixedpoint.Zero(), err
	}
	return row.Balance, nil
}
