package ledger

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/velora-fi/poolengine/common/errors"
	"github.com/velora-fi/poolengine/pkg/fixedpoint"
	"github.com/velora-fi/poolengine/pkg/models"
)

// feeScheduleMeta holds the catch-all rate applied above every bracket
// threshold. A single row with ID 1.
type feeScheduleMeta struct {
	ID        uint `gorm:"primaryKey"`
	FinalRate fixedpoint.Amount
	UpdatedAt time.Time
}

func (feeScheduleMeta) TableName() string { return "fee_schedule_meta" }

// GormStore persists the ledger in a relational database via gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the ledger tables and returns the store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&models.Snapshot{}, &models.FeeBracket{}, &feeScheduleMeta{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) AppendSnapshot(ctx context.Context, snap *models.Snapshot) error {
	if err := s.db.WithContext(ctx).Create(snap).Error; err != nil {
		return fmt.Errorf("failed to append snapshot: %w", err)
	}
	return nil
}

func (s *GormStore) LatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := s.db.WithContext(ctx).Order("id DESC").First(&snap).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrNoData
		}
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	return &snap, nil
}

func (s *GormStore) SnapshotsForDay(ctx context.Context, dayKey int) ([]models.Snapshot, error) {
	var snaps []models.Snapshot
	if err := s.db.WithContext(ctx).Where("day_key = ?", dayKey).Order("id ASC").Find(&snaps).Error; err != nil {
		return nil, fmt.Errorf("failed to load snapshots for day %d: %w", dayKey, err)
	}
	return snaps, nil
}

func (s *GormStore) Brackets(ctx context.Context) ([]models.FeeBracket, error) {
	var brackets []models.FeeBracket
	if err := s.db.WithContext(ctx).Order("position ASC").Find(&brackets).Error; err != nil {
		return nil, fmt.Errorf("failed to load fee brackets: %w", err)
	}
	return brackets, nil
}

// SaveBracket inserts or replaces the bracket at b.Position. An upsert
// rather than Save: position zero is a valid primary key, and Save
// would mistake it for an unset one and insert a duplicate.
func (s *GormStore) SaveBracket(ctx context.Context, b *models.FeeBracket) error {
	b.UpdatedAt = time.Now()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "position"}},
		DoUpdates: clause.AssignmentColumns([]string{"threshold", "rate", "updated_at"}),
	}).Create(b).Error
	if err != nil {
		return fmt.Errorf("failed to save fee bracket %d: %w", b.Position, err)
	}
	return nil
}

func (s *GormStore) DeleteBracket(ctx context.Context, position int) error {
	if err := s.db.WithContext(ctx).Delete(&models.FeeBracket{}, "position = ?", position).Error; err != nil {
		return fmt.Errorf("failed to delete fee bracket %d: %w", position, err)
	}
	return nil
}

func (s *GormStore) FinalRate(ctx context.Context) (fixedpoint.Amount, error) {
	var meta feeScheduleMeta
	if err := s.db.WithContext(ctx).First(&meta, 1).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fixedpoint.Zero(), nil
		}
		return fixedpoint.Zero(), fmt.Errorf("failed to load final fee rate: %w", err)
	}
	return meta.FinalRate, nil
}

func (s *GormStore) SetFinalRate(ctx context.Context, rate fixedpoint.Amount) error {
	meta := feeScheduleMeta{ID: 1, FinalRate: rate, UpdatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Save(&meta).Error; err != nil {
		return fmt.Errorf("failed to set final fee rate: %w", err)
	}
	return nil
}
