package repository

import (
	"context"
	"errors"

	"arbor/internal/models"

	"gorm.io/gorm"
)

// ProfileRepository defines persistence operations for profiles. It works
// against any database: construct it with the global connection for the
// canonical copy, or with a branch connection for a tenant's cached copy.
type ProfileRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Profile, error)
	Create(ctx context.Context, profile *models.Profile) error
	Update(ctx context.Context, profile *models.Profile) error
	// List returns all profile rows. Reconciliation uses this to preload the
	// global copy once per run and to walk each branch's cached copy.
	List(ctx context.Context) ([]models.Profile, error)
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository returns a new ProfileRepository implementation.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) GetByID(ctx context.Context, id uint) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).First(&profile, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Profile", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &profile, nil
}

func (r *profileRepository) Create(ctx context.Context, profile *models.Profile) error {
	if err := r.db.WithContext(ctx).Create(profile).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Update writes the mirrored fields and the timestamp verbatim. UpdateColumns
// bypasses gorm's automatic update-time tracking, so a copied UpdatedAt
// reaches the row instead of the wall clock.
func (r *profileRepository) Update(ctx context.Context, profile *models.Profile) error {
	err := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", profile.ID).
		UpdateColumns(map[string]any{
			"username":          profile.Username,
			"avatar_url":        profile.AvatarURL,
			"points":            profile.Points,
			"virtual_currency":  profile.VirtualCurrency,
			"invitation_points": profile.InvitationPoints,
			"free_posts_count":  profile.FreePostsCount,
			"updated_at":        profile.UpdatedAt,
		}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *profileRepository) List(ctx context.Context) ([]models.Profile, error) {
	var profiles []models.Profile
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&profiles).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return profiles, nil
}
