// Package service implements the tenant lifecycle and isolation controller.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"arbor/internal/middleware"
	"arbor/internal/models"
	"arbor/internal/provider"
	"arbor/internal/repository"
)

// branchNamePattern matches the deterministic tenant branch naming
// convention. Branches outside the convention belong to other systems and
// are never touched by the controller.
var branchNamePattern = regexp.MustCompile(`^tenant-(\d+)$`)

// BranchNameFor returns the deterministic branch name for a tenant id.
// Determinism is what makes branch creation detectable and idempotent.
func BranchNameFor(tenantID uint) string {
	return fmt.Sprintf("tenant-%d", tenantID)
}

// ParseBranchTenantID extracts the tenant id from a conventional branch name.
func ParseBranchTenantID(name string) (uint, bool) {
	m := branchNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// SchemaInspector inspects and initializes a branch's schema.
type SchemaInspector interface {
	Tables(ctx context.Context, branch models.DatabaseBranch) ([]string, error)
	InitSchema(ctx context.Context, branch models.DatabaseBranch) error
}

// BranchService manages the physical database branch backing each tenant.
type BranchService struct {
	api       provider.BranchAPI
	inspector SchemaInspector
	requests  repository.TenantRequestRepository
	expected  []string
}

// NewBranchService creates a BranchService.
func NewBranchService(api provider.BranchAPI, inspector SchemaInspector, requests repository.TenantRequestRepository, expectedTables []string) *BranchService {
	return &BranchService{
		api:       api,
		inspector: inspector,
		requests:  requests,
		expected:  expectedTables,
	}
}

// CreateBranch provisions the branch for a tenant. Repeated calls for the
// same tenant converge on the same branch: a provider-level "already exists"
// resolves to the existing branch instead of failing.
func (s *BranchService) CreateBranch(ctx context.Context, tenantID uint) (*models.DatabaseBranch, error) {
	name := BranchNameFor(tenantID)

	created, err := s.api.CreateBranch(ctx, name)
	if errors.Is(err, provider.ErrBranchExists) {
		created, err = s.api.GetBranch(ctx, name)
	}
	if err != nil {
		middleware.ProvisionOutcomes.WithLabelValues("create", "error").Inc()
		return nil, models.NewProvisioningError("branch creation failed", err)
	}

	branch := models.DatabaseBranch{
		Name:     created.Name,
		Hostname: created.Hostname,
		TenantID: &tenantID,
		Mapped:   true,
	}

	if err := s.inspector.InitSchema(ctx, branch); err != nil {
		middleware.ProvisionOutcomes.WithLabelValues("init_schema", "error").Inc()
		return nil, models.NewProvisioningError("branch schema initialization failed", err)
	}

	middleware.ProvisionOutcomes.WithLabelValues("create", "ok").Inc()
	return &branch, nil
}

// HealthCheck compares a branch's actual table set against the expected
// schema manifest. Missing tables fail the check; extra tables are reported
// only.
func (s *BranchService) HealthCheck(ctx context.Context, branchName string) (*models.BranchHealth, error) {
	known, err := s.api.GetBranch(ctx, branchName)
	if err != nil {
		if errors.Is(err, provider.ErrBranchNotFound) {
			return nil, models.NewNotFoundError("Branch", branchName)
		}
		return nil, models.NewProvisioningError("branch lookup failed", err)
	}

	tables, err := s.inspector.Tables(ctx, models.DatabaseBranch{Name: known.Name, Hostname: known.Hostname})
	if err != nil {
		return nil, models.NewProvisioningError("branch schema inspection failed", err)
	}

	have := make(map[string]bool, len(tables))
	for _, t := range tables {
		have[t] = true
	}
	expected := make(map[string]bool, len(s.expected))

	health := &models.BranchHealth{
		Branch: branchName,
		Tables: tables,
	}
	for _, t := range s.expected {
		expected[t] = true
		if !have[t] {
			health.Missing = append(health.Missing, t)
		}
	}
	for _, t := range tables {
		if !expected[t] {
			health.Extra = append(health.Extra, t)
		}
	}
	sort.Strings(health.Missing)
	sort.Strings(health.Extra)
	health.Pass = len(health.Missing) == 0

	return health, nil
}

// ListBranches enumerates all provider-known branches with best-effort
// tenant-mapping annotation. A branch no non-deleted request references is
// orphaned (mapped=false).
func (s *BranchService) ListBranches(ctx context.Context) ([]models.DatabaseBranch, error) {
	known, err := s.api.ListBranches(ctx)
	if err != nil {
		return nil, models.NewProvisioningError("branch listing failed", err)
	}

	requests, err := s.requests.ListNonDeleted(ctx)
	if err != nil {
		return nil, err
	}
	byBranch := make(map[string]*models.TenantRequest, len(requests))
	for i := range requests {
		if requests[i].BranchName != "" {
			byBranch[requests[i].BranchName] = &requests[i]
		}
	}

	out := make([]models.DatabaseBranch, 0, len(known))
	for _, b := range known {
		branch := models.DatabaseBranch{
			Name:     b.Name,
			Hostname: b.Hostname,
		}
		if req, ok := byBranch[b.Name]; ok {
			id := req.ID
			branch.TenantID = &id
			branch.Mapped = true
			if req.Owner != nil {
				branch.OwnerUsername = req.Owner.Username
			}
		}
		out = append(out, branch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteBranch destroys a branch irreversibly. A branch that is already gone
// counts as deleted (idempotent delete semantics).
func (s *BranchService) DeleteBranch(ctx context.Context, branchName string) error {
	err := s.api.DeleteBranch(ctx, branchName)
	if errors.Is(err, provider.ErrBranchNotFound) {
		middleware.ProvisionOutcomes.WithLabelValues("delete", "already_gone").Inc()
		return nil
	}
	if err != nil {
		middleware.ProvisionOutcomes.WithLabelValues("delete", "error").Inc()
		return models.NewProvisioningError("branch deletion failed", err)
	}
	middleware.ProvisionOutcomes.WithLabelValues("delete", "ok").Inc()
	return nil
}

// RemoveBranch deletes a branch and, when unmap is set, clears the branch
// mapping from any non-deleted tenant request still referencing it. Without
// unmap the request keeps pointing at the now-missing branch, which the
// branch listing surfaces for an operator to resolve.
func (s *BranchService) RemoveBranch(ctx context.Context, branchName string, unmap bool) error {
	if err := s.DeleteBranch(ctx, branchName); err != nil {
		return err
	}
	if unmap {
		return s.requests.ClearBranchMapping(ctx, branchName)
	}
	return nil
}
