package seed

import (
	"context"
	"testing"

	"arbor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupSeedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Profile{}, &models.TenantRequest{}, &models.Setting{}))
	return db
}

func TestSeederRun(t *testing.T) {
	db := setupSeedDB(t)
	s := NewSeeder(db)

	err := s.Run(context.Background(), Options{NumProfiles: 10, NumRequests: 8, ShouldClean: true})
	require.NoError(t, err)

	var profileCount int64
	require.NoError(t, db.Model(&models.Profile{}).Count(&profileCount).Error)
	assert.Equal(t, int64(12), profileCount, "10 profiles plus 2 operators")

	var super models.Profile
	require.NoError(t, db.Where("username = ?", "superadmin").First(&super).Error)
	assert.True(t, super.IsSuperAdmin)

	var requests []models.TenantRequest
	require.NoError(t, db.Find(&requests).Error)
	require.Len(t, requests, 8)
	domains := make(map[string]bool)
	for _, r := range requests {
		assert.False(t, domains[r.DesiredDomain], "desired domains must be unique")
		domains[r.DesiredDomain] = true
		if r.Status == models.TenantRequestStatusRejected {
			assert.NotEmpty(t, r.RejectionReason)
		}
	}

	var siteName models.Setting
	require.NoError(t, db.Where("key = ? AND tenant_id = 0", "site_name").First(&siteName).Error)
	assert.Equal(t, "Arbor", siteName.Value)
}

func TestSeederRunIsRepeatableWithClean(t *testing.T) {
	db := setupSeedDB(t)
	s := NewSeeder(db)

	require.NoError(t, s.Run(context.Background(), Options{NumProfiles: 3, NumRequests: 2, ShouldClean: true}))
	require.NoError(t, s.Run(context.Background(), Options{NumProfiles: 3, NumRequests: 2, ShouldClean: true}))

	var settingCount int64
	require.NoError(t, db.Model(&models.Setting{}).Count(&settingCount).Error)
	assert.Equal(t, int64(6), settingCount, "clean run must not duplicate defaults")
}
