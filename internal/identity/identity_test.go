package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	apperrors "github.com/velora-fi/poolengine/common/errors"
	"github.com/velora-fi/poolengine/pkg/models"
)

func newWhitelist(t *testing.T) *Whitelist {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	wl, err := NewWhitelist(zap.NewNop(), db)
	require.NoError(t, err)
	return wl
}

func TestWhitelist(t *testing.T) {
	ctx := context.Background()
	wl := newWhitelist(t)

	ok, err := wl.IsWhitelisted(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, wl.Add(ctx, models.RoleAdmin, "alice"))
	ok, err = wl.IsWhitelisted(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, wl.Remove(ctx, models.RoleAdmin, "alice"))
	ok, err = wl.IsWhitelisted(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWhitelistAuthority(t *testing.T) {
	ctx := context.Background()
	wl := newWhitelist(t)

	assert.ErrorIs(t, wl.Add(ctx, models.RoleSettlement, "alice"), apperrors.ErrUnauthorized)
	assert.ErrorIs(t, wl.Remove(ctx, models.RoleBridge, "alice"), apperrors.ErrUnauthorized)
}
