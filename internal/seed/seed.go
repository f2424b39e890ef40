// Package seed provides helpers to create demo data for the global database.
// These helpers are intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"arbor/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Options configuration for the seeder.
type Options struct {
	NumProfiles int
	NumRequests int
	ShouldClean bool
}

// Seeder populates the global database with demo data.
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a Seeder bound to the provided Gorm DB.
func NewSeeder(db *gorm.DB) *Seeder {
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db}
}

// ClearAll removes all seeded data. Order matters for foreign keys.
func (s *Seeder) ClearAll() error {
	for _, table := range []string{"settings", "tenant_requests", "profiles"} {
		if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// Run seeds operators, default settings and a batch of tenant requests.
func (s *Seeder) Run(ctx context.Context, opts Options) error {
	if opts.ShouldClean {
		if err := s.ClearAll(); err != nil {
			return err
		}
	}

	admins, err := s.SeedOperators(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed operators: %w", err)
	}
	log.Printf("✓ %d operator profiles created", len(admins))

	profiles, err := s.SeedProfiles(ctx, opts.NumProfiles)
	if err != nil {
		return fmt.Errorf("failed to seed profiles: %w", err)
	}
	log.Printf("✓ %d profiles created", len(profiles))

	if err := s.SeedDefaultSettings(ctx); err != nil {
		return fmt.Errorf("failed to seed default settings: %w", err)
	}
	log.Println("✓ default settings created")

	requests, err := s.SeedTenantRequests(ctx, profiles, opts.NumRequests)
	if err != nil {
		return fmt.Errorf("failed to seed tenant requests: %w", err)
	}
	log.Printf("✓ %d tenant requests created", len(requests))

	return nil
}

// SeedOperators creates one admin and one super admin with fixed usernames so
// they are easy to find after seeding.
func (s *Seeder) SeedOperators(ctx context.Context) ([]models.Profile, error) {
	operators := []models.Profile{
		{Username: "admin", IsAdmin: true, AvatarURL: avatarURL("admin")},
		{Username: "superadmin", IsAdmin: true, IsSuperAdmin: true, AvatarURL: avatarURL("superadmin")},
	}
	if err := s.db.WithContext(ctx).Create(&operators).Error; err != nil {
		return nil, err
	}
	return operators, nil
}

// SeedProfiles creates n regular profiles with randomized economy fields.
// Optional override functions may modify each generated profile before saving.
func (s *Seeder) SeedProfiles(ctx context.Context, n int, overrides ...func(*models.Profile)) ([]models.Profile, error) {
	if n <= 0 {
		return nil, nil
	}
	profiles := make([]models.Profile, 0, n)
	for i := 0; i < n; i++ {
		p := models.Profile{
			Username:         fmt.Sprintf("%s%d", strings.ToLower(gofakeit.Username()), gofakeit.Number(100, 999)),
			AvatarURL:        avatarURL(gofakeit.UUID()),
			Points:           int64(gofakeit.Number(0, 50000)),
			VirtualCurrency:  int64(gofakeit.Number(0, 10000)),
			InvitationPoints: int64(gofakeit.Number(0, 500)),
			FreePostsCount:   gofakeit.Number(0, 10),
		}
		for _, override := range overrides {
			override(&p)
		}
		profiles = append(profiles, p)
	}
	if err := s.db.WithContext(ctx).Create(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

// SeedDefaultSettings writes the global default tier for the well-known keys.
func (s *Seeder) SeedDefaultSettings(ctx context.Context) error {
	defaults := []models.Setting{
		{Key: "site_name", Value: "Arbor", Name: "Site name", Type: models.SettingTypeText},
		{Key: "site_description", Value: "Community hosting, one tenant at a time", Name: "Site description", Type: models.SettingTypeText},
		{Key: "site_logo", Value: "/static/logo.png", Name: "Logo", Type: models.SettingTypeImage},
		{Key: "site_favicon", Value: "/static/favicon.ico", Name: "Favicon", Type: models.SettingTypeImage},
		{Key: "max_upload_mb", Value: "25", Name: "Max upload size (MB)", Type: models.SettingTypeNumber},
		{Key: "registration_open", Value: "true", Name: "Registration open", Type: models.SettingTypeBoolean},
	}
	return s.db.WithContext(ctx).Create(&defaults).Error
}

// SeedTenantRequests creates n tenant requests owned by random profiles.
// Most stay pending; roughly one in five is rejected with a reason, so the
// review queue looks lived-in.
func (s *Seeder) SeedTenantRequests(ctx context.Context, owners []models.Profile, n int) ([]models.TenantRequest, error) {
	if n <= 0 || len(owners) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, n)
	requests := make([]models.TenantRequest, 0, n)
	for len(requests) < n {
		domain := strings.ToLower(gofakeit.DomainName())
		if seen[domain] {
			continue
		}
		seen[domain] = true

		req := models.TenantRequest{
			DesiredDomain:  domain,
			OwnerProfileID: owners[gofakeit.Number(0, len(owners)-1)].ID,
			Status:         models.TenantRequestStatusPending,
		}
		if gofakeit.Number(1, 5) == 1 {
			req.Status = models.TenantRequestStatusRejected
			req.RejectionReason = gofakeit.Sentence(8)
		}
		requests = append(requests, req)
	}
	if err := s.db.WithContext(ctx).Create(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func avatarURL(seed string) string {
	return fmt.Sprintf("https://i.pravatar.cc/150?u=%s", seed)
}
