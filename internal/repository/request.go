// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"
	"strings"

	"arbor/internal/models"

	"gorm.io/gorm"
)

// TenantRequestRepository defines persistence operations for tenant requests.
type TenantRequestRepository interface {
	Create(ctx context.Context, req *models.TenantRequest) error
	GetByID(ctx context.Context, id uint) (*models.TenantRequest, error)
	List(ctx context.Context, status models.TenantRequestStatus, limit, offset int) ([]models.TenantRequest, error)
	ListNonDeleted(ctx context.Context) ([]models.TenantRequest, error)
	// DomainTaken reports whether the domain collides, case-insensitively,
	// with any non-deleted request. Uniqueness applies to non-deleted rows
	// only; a deleted tenant's domain may be requested again.
	DomainTaken(ctx context.Context, domain string) (bool, error)
	Update(ctx context.Context, req *models.TenantRequest) error
	// TransitionStatus performs a conditional state transition and reports
	// whether this caller won it. A false return with nil error means the
	// row was no longer in the `from` state.
	TransitionStatus(ctx context.Context, id uint, from, to models.TenantRequestStatus, updates map[string]any) (bool, error)
	// ResolveActiveDomain maps a hostname to the active tenant owning it as
	// custom or platform domain. Returns (0, nil) when no tenant matches.
	ResolveActiveDomain(ctx context.Context, hostname string) (uint, error)
	// ClearBranchMapping detaches a branch from any non-deleted request
	// still referencing it. Used when an operator removes a branch manually.
	ClearBranchMapping(ctx context.Context, branchName string) error
}

type tenantRequestRepository struct {
	db *gorm.DB
}

// NewTenantRequestRepository returns a new TenantRequestRepository implementation.
func NewTenantRequestRepository(db *gorm.DB) TenantRequestRepository {
	return &tenantRequestRepository{db: db}
}

func (r *tenantRequestRepository) Create(ctx context.Context, req *models.TenantRequest) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		// The partial unique index on the domain is the backstop for two
		// submits racing past the DomainTaken pre-check.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.NewConflictError("domain is already requested or in use: " + req.DesiredDomain)
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *tenantRequestRepository) GetByID(ctx context.Context, id uint) (*models.TenantRequest, error) {
	var req models.TenantRequest
	if err := r.db.WithContext(ctx).Preload("Owner").First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Tenant request", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &req, nil
}

func (r *tenantRequestRepository) List(ctx context.Context, status models.TenantRequestStatus, limit, offset int) ([]models.TenantRequest, error) {
	q := r.db.WithContext(ctx).Preload("Owner").Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	var reqs []models.TenantRequest
	if err := q.Find(&reqs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return reqs, nil
}

func (r *tenantRequestRepository) ListNonDeleted(ctx context.Context) ([]models.TenantRequest, error) {
	var reqs []models.TenantRequest
	if err := r.db.WithContext(ctx).
		Preload("Owner").
		Where("status <> ?", models.TenantRequestStatusDeleted).
		Find(&reqs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return reqs, nil
}

func (r *tenantRequestRepository) DomainTaken(ctx context.Context, domain string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.TenantRequest{}).
		Where("LOWER(desired_domain) = ? AND status <> ?",
			strings.ToLower(domain), models.TenantRequestStatusDeleted).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *tenantRequestRepository) Update(ctx context.Context, req *models.TenantRequest) error {
	if err := r.db.WithContext(ctx).Save(req).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *tenantRequestRepository) TransitionStatus(ctx context.Context, id uint, from, to models.TenantRequestStatus, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to

	res := r.db.WithContext(ctx).
		Model(&models.TenantRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *tenantRequestRepository) ResolveActiveDomain(ctx context.Context, hostname string) (uint, error) {
	hostname = strings.ToLower(hostname)

	var req models.TenantRequest
	err := r.db.WithContext(ctx).
		Select("id").
		Where("status = ? AND (LOWER(desired_domain) = ? OR LOWER(platform_domain) = ?)",
			models.TenantRequestStatusActive, hostname, hostname).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, models.NewInternalError(err)
	}
	return req.ID, nil
}

func (r *tenantRequestRepository) ClearBranchMapping(ctx context.Context, branchName string) error {
	err := r.db.WithContext(ctx).
		Model(&models.TenantRequest{}).
		Where("branch_name = ? AND status <> ?", branchName, models.TenantRequestStatusDeleted).
		Updates(map[string]any{"branch_name": "", "branch_host": ""}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
