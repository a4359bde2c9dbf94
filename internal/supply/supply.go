// Package supply is a database-backed implementation of the synthetic
// token collaborator. The engine only tracks aggregate supply; holder
// balances live on the token itself.
package supply

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/velora-fi/poolengine/pkg/fixedpoint"
)

// supplyRow is the single aggregate-supply record.
type supplyRow struct {
	ID        uint `gorm:"primaryKey"`
	Total     fixedpoint.Amount
	UpdatedAt time.Time
}

func (supplyRow) TableName() string { return "token_supply" }

// Tracker implements the supply collaborator over gorm.
type Tracker struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewTracker migrates the supply table and returns the tracker.
func NewTracker(logger *zap.Logger, db *gorm.DB) (*Tracker, error) {
	if err := db.AutoMigrate(&supplyRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate supply table: %w", err)
	}
	return &Tracker{logger: logger, db: db}, nil
}

func (t *Tracker) row(tx *gorm.DB) (*supplyRow, error) {
	var row supplyRow
	err := tx.First(&row, 1).Error
	if err == gorm.ErrRecordNotFound {
		return &supplyRow{ID: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load supply: %w", err)
	}
	return &row, nil
}

// Mint increases aggregate supply.
func (t *Tracker) Mint(ctx context.Context, account string, amount fixedpoint.Amount) (bool, error) {
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := t.row(tx)
		if err != nil {
			return err
		}
		if row.Total, err = fixedpoint.Add(row.Total, amount); err != nil {
			return err
		}
		row.UpdatedAt = time.Now()
		return tx.Save(row).Error
	})
	if err != nil {
		return false, err
	}
	t.logger.Debug("supply minted", zap.String("account", account), zap.String("amount", amount.String()))
	return true, nil
}

// Burn decreases aggregate supply. Returns false when the amount
// exceeds the outstanding supply.
func (t *Tracker) Burn(ctx context.Context, fromCustody bool, amount fixedpoint.Amount) (bool, error) {
	short := false
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := t.row(tx)
		if err != nil {
			return err
		}
		if row.Total.Cmp(amount) < 0 {
			short = true
			return nil
		}
		if row.Total, err = fixedpoint.Sub(row.Total, amount); err != nil {
			return err
		}
		row.UpdatedAt = time.Now()
		return tx.Save(row).Error
	})
	if err != nil || short {
		return false, err
	}
	t.logger.Debug("supply burned", zap.Bool("from_custody", fromCustody), zap.String("amount", amount.String()))
	return true, nil
}

// TotalSupply returns the aggregate outstanding supply.
func (t *Tracker) TotalSupply(ctx context.Context) (fixedpoint.Amount, error) {
	row, err := t.row(t.db.WithContext(ctx))
	if err != nil {
		return fixedpoint.Zero(), err
	}
	return row.Total, nil
}
