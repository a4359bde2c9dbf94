// Package identity is a database-backed whitelist implementing the
// identity collaborator. KYC review itself happens upstream; the
// engine only consumes the resulting predicate.
package identity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/velora-fi/poolengine/common/errors"
	"github.com/velora-fi/poolengine/pkg/models"
)

// WhitelistEntry marks an account as approved.
type WhitelistEntry struct {
	Account   string `gorm:"primaryKey"`
	CreatedAt time.Time
}

// Whitelist implements the identity collaborator over gorm.
type Whitelist struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewWhitelist migrates the whitelist table and returns the service.
func NewWhitelist(logger *zap.Logger, db *gorm.DB) (*Whitelist, error) {
	if err := db.AutoMigrate(&WhitelistEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate whitelist table: %w", err)
	}
	return &Whitelist{logger: logger, db: db}, nil
}

// IsWhitelisted reports whether the account is approved.
func (w *Whitelist) IsWhitelisted(ctx context.Context, account string) (bool, error) {
	var count int64
	if err := w.db.WithContext(ctx).Model(&WhitelistEntry{}).Where("account = ?", account).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check whitelist: %w", err)
	}
	return count > 0, nil
}

// Add approves an account. Admin only.
func (w *Whitelist) Add(ctx context.Context, role models.Role, account string) error {
	if role != models.RoleAdmin {
		return apperrors.ErrUnauthorized
	}
	entry := WhitelistEntry{Account: account, CreatedAt: time.Now()}
	if err := w.db.WithContext(ctx).Save(&entry).Error; err != nil {
		return fmt.Errorf("failed to whitelist %s: %w", account, err)
	}
	w.logger.Info("account whitelisted", zap.String("account", account))
	return nil
}

// Remove revokes an account's approval. Admin only.
func (w *Whitelist) Remove(ctx context.Context, role models.Role, account string) error {
	if role != models.RoleAdmin {
		return apperrors.ErrUnauthorized
	}
	if err := w.db.WithContext(ctx).Delete(&WhitelistEntry{}, "account = ?", account).Error; err != nil {
		return fmt.Errorf("failed to remove %s from whitelist: %w", account, err)
	}
	w.logger.Info("account removed from whitelist", zap.String("account", account))
	return nil
}
