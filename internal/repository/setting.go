package repository

import (
	"context"
	"errors"

	"arbor/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingRepository defines persistence operations for configuration rows.
type SettingRepository interface {
	// Get returns the (key, tenantID) row, or nil when absent. Absence of an
	// override is normal and not an error.
	Get(ctx context.Context, key string, tenantID uint) (*models.Setting, error)
	// ListForTenant returns all default rows plus the tenant's override rows.
	ListForTenant(ctx context.Context, tenantID uint) ([]models.Setting, error)
	Upsert(ctx context.Context, setting *models.Setting) error
	// Delete removes the (key, tenantID) row; deleting an absent row is a no-op.
	Delete(ctx context.Context, key string, tenantID uint) error
}

type settingRepository struct {
	db *gorm.DB
}

// NewSettingRepository returns a new SettingRepository implementation.
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

func (r *settingRepository) Get(ctx context.Context, key string, tenantID uint) (*models.Setting, error) {
	var setting models.Setting
	err := r.db.WithContext(ctx).
		Where("key = ? AND tenant_id = ?", key, tenantID).
		First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &setting, nil
}

func (r *settingRepository) ListForTenant(ctx context.Context, tenantID uint) ([]models.Setting, error) {
	var settings []models.Setting
	q := r.db.WithContext(ctx).Order("key ASC, tenant_id ASC")
	if tenantID == 0 {
		q = q.Where("tenant_id = 0")
	} else {
		q = q.Where("tenant_id IN ?", []uint{0, tenantID})
	}
	if err := q.Find(&settings).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return settings, nil
}

func (r *settingRepository) Upsert(ctx context.Context, setting *models.Setting) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "key"},
			{Name: "tenant_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"value", "name", "description", "type", "updated_at"}),
	}).Create(setting).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *settingRepository) Delete(ctx context.Context, key string, tenantID uint) error {
	err := r.db.WithContext(ctx).
		Where("key = ? AND tenant_id = ?", key, tenantID).
		Delete(&models.Setting{}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
