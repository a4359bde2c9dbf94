package settlement

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/velora-fi/poolengine/common/errors"
	"github.com/velora-fi/poolengine/pkg/fixedpoint"
	"github.com/velora-fi/poolengine/pkg/models"
)

// GormOrderStore persists the order logs and delayed-redemption
// balances via gorm.
type GormOrderStore struct {
	db *gorm.DB
}

// NewGormOrderStore migrates the settlement tables and returns the
// store.
func NewGormOrderStore(db *gorm.DB) (*GormOrderStore, error) {
	if err := db.AutoMigrate(&models.Order{}, &models.DelayedRedemption{}, &models.RebalanceRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate settlement tables: %w", err)
	}
	return &GormOrderStore{db: db}, nil
}

func (s *GormOrderStore) AppendOrder(ctx context.Context, o *models.Order) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int64 = -1
		var last models.Order
		err := tx.Order("seq DESC").First(&last).Error
		if err == nil {
			maxSeq = last.Seq
		} else if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("failed to read order log head: %w", err)
		}

		var accountCount int64
		if err := tx.Model(&models.Order{}).Where("account = ?", o.Account).Count(&accountCount).Error; err != nil {
			return fmt.Errorf("failed to count account orders: %w", err)
		}

		o.Seq = maxSeq + 1
		o.AccountSeq = accountCount
		if err := tx.Create(o).Error; err != nil {
			return fmt.Errorf("failed to append order: %w", err)
		}
		return nil
	})
}

func (s *GormOrderStore) OverwriteOrder(ctx context.Context, seq int64, o *models.Order) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Order
		if err := tx.Where("seq = ?", seq).First(&existing).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.ErrInvalidOrderIndex
			}
			return fmt.Errorf("failed to load order %d: %w", seq, err)
		}
		o.ID = existing.ID
		o.Seq = existing.Seq
		o.AccountSeq = existing.AccountSeq
		if err := tx.Save(o).Error; err != nil {
			return fmt.Errorf("failed to overwrite order %d: %w", seq, err)
		}
		return nil
	})
}

func (s *GormOrderStore) OrderBySeq(ctx context.Context, seq int64) (*models.Order, error) {
	var o models.Order
	if err := s.db.WithContext(ctx).Where("seq = ?", seq).First(&o).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrNoData
		}
		return nil, fmt.Errorf("failed to load order %d: %w", seq, err)
	}
	return &o, nil
}

func (s *GormOrderStore) MaxSeq(ctx context.Context) (int64, error) {
	var last models.Order
	err := s.db.WithContext(ctx).Order("seq DESC").First(&last).Error
	if err == gorm.ErrRecordNotFound {
		return -1, nil
	}
	if err != nil {
		return -1, fmt.Errorf("failed to read order log head: %w", err)
	}
	return last.Seq, nil
}

func (s *GormOrderStore) OrdersByAccount(ctx context.Context, account string, limit, offset int) ([]models.Order, error) {
	if limit <= 0 {
		limit = -1
	}
	var orders []models.Order
	if err := s.db.WithContext(ctx).Where("account = ?", account).Order("account_seq ASC").Limit(limit).Offset(offset).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to load orders for %s: %w", account, err)
	}
	return orders, nil
}

func (s *GormOrderStore) LastCreationAt(ctx context.Context, account string) (time.Time, error) {
	var o models.Order
	err := s.db.WithContext(ctx).
		Where("account = ? AND type = ?", account, models.OrderCreate).
		Order("seq DESC").First(&o).Error
	if err == gorm.ErrRecordNotFound {
		return time.Time{}, apperrors.ErrNoData
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load last creation for %s: %w", account, err)
	}
	return o.CreatedAt, nil
}

func (s *GormOrderStore) DelayedRedemption(ctx context.Context, account string) (fixedpoint.Amount, error) {
	var d models.DelayedRedemption
	err := s.db.WithContext(ctx).Where("account = ?", account).First(&d).Error
	if err == gorm.ErrRecordNotFound {
		return fixedpoint.Zero(), nil
	}
	if err != nil {
		return fixedpoint.Zero(), fmt.Errorf("failed to load delayed redemption for %s: %w", account, err)
	}
	return d.Amount, nil
}

func (s *GormOrderStore) SetDelayedRedemption(ctx context.Context, account string, amount fixedpoint.Amount) error {
	if amount.IsZero() {
		if err := s.db.WithContext(ctx).Delete(&models.DelayedRedemption{}, "account = ?", account).Error; err != nil {
			return fmt.Errorf("failed to clear delayed redemption for %s: %w", account, err)
		}
		return nil
	}
	d := models.DelayedRedemption{Account: account, Amount: amount, UpdatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Save(&d).Error; err != nil {
		return fmt.Errorf("failed to save delayed redemption for %s: %w", account, err)
	}
	return nil
}

func (s *GormOrderStore) TotalDelayedRedemption(ctx context.Context) (fixedpoint.Amount, error) {
	var all []models.DelayedRedemption
	if err := s.db.WithContext(ctx).Find(&all).Error; err != nil {
		return fixedpoint.Zero(), fmt.Errorf("failed to load delayed redemptions: %w", err)
	}
	total := fixedpoint.Zero()
	for _, d := range all {
		var err error
		if total, err = fixedpoint.Add(total, d.Amount); err != nil {
			return fixedpoint.Zero(), err
		}
	}
	return total, nil
}

func (s *GormOrderStore) AppendRebalanceRecord(ctx context.Context, r *models.RebalanceRecord) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("failed to append rebalance record: %w", err)
	}
	return nil
}

func (s *GormOrderStore) RebalanceRecords(ctx context.Context, limit int) ([]models.RebalanceRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	var records []models.RebalanceRecord
	if err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load rebalance records: %w", err)
	}
	return records, nil
}
