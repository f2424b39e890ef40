package service

import (
	"context"
	"fmt"
	"strings"

	"arbor/internal/cache"
	"arbor/internal/middleware"
	"arbor/internal/models"
	"arbor/internal/notifications"
	"arbor/internal/provider"
	"arbor/internal/repository"
)

// branchProvisioner is the slice of BranchService the lifecycle needs.
type branchProvisioner interface {
	CreateBranch(ctx context.Context, tenantID uint) (*models.DatabaseBranch, error)
	DeleteBranch(ctx context.Context, branchName string) error
}

// domainBinder is the slice of DomainService the lifecycle needs.
type domainBinder interface {
	Bind(ctx context.Context, req *models.TenantRequest) error
	Verify(ctx context.Context, req *models.TenantRequest) (*provider.VerifyResult, error)
	Connectivity(ctx context.Context, req *models.TenantRequest) *ConnectivityReport
	Teardown(ctx context.Context, domain string) error
}

// LifecycleService drives tenant requests through their state machine:
// pending to active or rejected, and any non-deleted state to deleted.
// Terminal states never transition again, and approval is serialized so two
// concurrent admins cannot both win it.
type LifecycleService struct {
	requests   repository.TenantRequestRepository
	profiles   repository.ProfileRepository
	branches   branchProvisioner
	domains    domainBinder
	notifier   *notifications.Notifier
	rootDomain string
}

// NewLifecycleService creates a LifecycleService.
func NewLifecycleService(
	requests repository.TenantRequestRepository,
	profiles repository.ProfileRepository,
	branches branchProvisioner,
	domains domainBinder,
	notifier *notifications.Notifier,
	rootDomain string,
) *LifecycleService {
	return &LifecycleService{
		requests:   requests,
		profiles:   profiles,
		branches:   branches,
		domains:    domains,
		notifier:   notifier,
		rootDomain: rootDomain,
	}
}

// PlatformDomainFor returns the always-available platform subdomain for a
// tenant. It is assigned at approval and never changes afterwards.
func (s *LifecycleService) PlatformDomainFor(tenantID uint) string {
	return fmt.Sprintf("%s.%s", BranchNameFor(tenantID), s.rootDomain)
}

// Get loads one tenant request with its owner preloaded.
func (s *LifecycleService) Get(ctx context.Context, id uint) (*models.TenantRequest, error) {
	return s.requests.GetByID(ctx, id)
}

// List returns tenant requests, optionally filtered by status and paginated.
func (s *LifecycleService) List(ctx context.Context, status models.TenantRequestStatus, limit, offset int) ([]models.TenantRequest, error) {
	if status != "" {
		switch status {
		case models.TenantRequestStatusPending, models.TenantRequestStatusActive,
			models.TenantRequestStatusRejected, models.TenantRequestStatusDeleted:
		default:
			return nil, models.NewValidationError("unknown status filter: " + string(status))
		}
	}
	return s.requests.List(ctx, status, limit, offset)
}

// Submit records a new tenant request in the pending state. The desired
// domain must be syntactically valid and not collide with any non-deleted
// request. A domain freed by a deleted tenant may be requested again.
func (s *LifecycleService) Submit(ctx context.Context, desiredDomain string, ownerID uint, ownerUsername string) (*models.TenantRequest, error) {
	domain := strings.ToLower(strings.TrimSpace(desiredDomain))
	if domain == "" {
		return nil, models.NewValidationError("desired domain is required")
	}
	if !ValidDomainSyntax(domain) {
		return nil, models.NewValidationError("domain has invalid syntax: " + domain)
	}

	taken, err := s.requests.DomainTaken(ctx, domain)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, models.NewConflictError("domain is already requested or in use: " + domain)
	}

	if ownerID == 0 {
		username := strings.TrimSpace(ownerUsername)
		if username == "" {
			return nil, models.NewValidationError("owner username is required when no owner profile is given")
		}
		owner := &models.Profile{Username: username}
		if err := s.profiles.Create(ctx, owner); err != nil {
			return nil, err
		}
		ownerID = owner.ID
	} else if _, err := s.profiles.GetByID(ctx, ownerID); err != nil {
		return nil, err
	}

	req := &models.TenantRequest{
		DesiredDomain:  domain,
		Status:         models.TenantRequestStatusPending,
		OwnerProfileID: ownerID,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	s.notify(ctx, notifications.Event{
		Type:      notifications.EventRequestSubmitted,
		RequestID: req.ID,
		OwnerID:   ownerID,
		Domain:    domain,
	})
	return req, nil
}

// Approve provisions the tenant's branch and flips the request from pending
// to active. Branch creation runs first and is idempotent, so a retry after a
// crash converges; the status flip itself is conditional, so exactly one of
// two concurrent approvals wins and the loser gets a conflict.
func (s *LifecycleService) Approve(ctx context.Context, id uint) (*models.TenantRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch req.Status {
	case models.TenantRequestStatusPending:
	case models.TenantRequestStatusActive:
		return nil, models.NewConflictError("tenant request is already active")
	default:
		return nil, models.NewConflictError(
			fmt.Sprintf("cannot approve a %s tenant request", req.Status))
	}

	branch, err := s.branches.CreateBranch(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	platformDomain := s.PlatformDomainFor(req.ID)
	won, err := s.requests.TransitionStatus(ctx, req.ID,
		models.TenantRequestStatusPending, models.TenantRequestStatusActive,
		map[string]any{
			"platform_domain": platformDomain,
			"branch_name":     branch.Name,
			"branch_host":     branch.Hostname,
		})
	if err != nil {
		return nil, err
	}
	if !won {
		current, gerr := s.requests.GetByID(ctx, req.ID)
		if gerr != nil {
			return nil, gerr
		}
		if current.Status == models.TenantRequestStatusActive {
			return nil, models.NewConflictError("tenant request is already active")
		}
		return nil, models.NewConflictError(
			fmt.Sprintf("tenant request moved to %s during approval", current.Status))
	}

	cache.InvalidateTenantHost(ctx, req.DesiredDomain)
	cache.InvalidateTenantHost(ctx, platformDomain)

	s.notify(ctx, notifications.Event{
		Type:      notifications.EventRequestApproved,
		RequestID: req.ID,
		OwnerID:   req.OwnerProfileID,
		Domain:    req.DesiredDomain,
	})
	return s.requests.GetByID(ctx, req.ID)
}

// Reject moves a pending request to the rejected terminal state. A reason is
// mandatory; the operator who asked must learn why.
func (s *LifecycleService) Reject(ctx context.Context, id uint, reason string) (*models.TenantRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.NewValidationError("a rejection reason is required")
	}

	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.TenantRequestStatusPending {
		return nil, models.NewConflictError(
			fmt.Sprintf("cannot reject a %s tenant request", req.Status))
	}

	won, err := s.requests.TransitionStatus(ctx, id,
		models.TenantRequestStatusPending, models.TenantRequestStatusRejected,
		map[string]any{"rejection_reason": reason})
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, models.NewConflictError("tenant request left the pending state during rejection")
	}

	s.notify(ctx, notifications.Event{
		Type:      notifications.EventRequestRejected,
		RequestID: req.ID,
		OwnerID:   req.OwnerProfileID,
		Domain:    req.DesiredDomain,
		Reason:    reason,
	})
	return s.requests.GetByID(ctx, id)
}

// Delete tears down a tenant as a best-effort saga across the branch, the
// domain binding, and the request row. Each resource succeeds or fails on its
// own; the report says exactly what is left. Successfully cleaned resources
// are unrecorded from the row, so a repeated delete retries only residuals.
func (s *LifecycleService) Delete(ctx context.Context, id uint) (*models.CleanupReport, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	report := &models.CleanupReport{RequestID: id}

	if req.BranchName == "" {
		report.Branch = models.CleanupStep{Outcome: models.ResourceSkipped}
	} else if err := s.branches.DeleteBranch(ctx, req.BranchName); err != nil {
		report.Branch = models.CleanupStep{Outcome: models.ResourceFailed, Error: err.Error()}
	} else {
		report.Branch = models.CleanupStep{Outcome: models.ResourceOK}
		req.BranchName = ""
		req.BranchHost = ""
	}

	if req.DomainBoundAt == nil {
		report.Domain = models.CleanupStep{Outcome: models.ResourceSkipped}
	} else if err := s.domains.Teardown(ctx, req.DesiredDomain); err != nil {
		report.Domain = models.CleanupStep{Outcome: models.ResourceFailed, Error: err.Error()}
	} else {
		report.Domain = models.CleanupStep{Outcome: models.ResourceOK}
		req.DomainBoundAt = nil
	}

	alreadyDeleted := req.Status == models.TenantRequestStatusDeleted
	req.Status = models.TenantRequestStatusDeleted
	if err := s.requests.Update(ctx, req); err != nil {
		report.Request = models.CleanupStep{Outcome: models.ResourceFailed, Error: err.Error()}
	} else if alreadyDeleted {
		report.Request = models.CleanupStep{Outcome: models.ResourceSkipped}
	} else {
		report.Request = models.CleanupStep{Outcome: models.ResourceOK}
	}

	cache.InvalidateTenantHost(ctx, req.DesiredDomain)
	if req.PlatformDomain != "" {
		cache.InvalidateTenantHost(ctx, req.PlatformDomain)
	}

	if !alreadyDeleted && report.Request.Outcome == models.ResourceOK {
		s.notify(ctx, notifications.Event{
			Type:      notifications.EventRequestDeleted,
			RequestID: req.ID,
			OwnerID:   req.OwnerProfileID,
			Domain:    req.DesiredDomain,
		})
	}
	return report, nil
}

// BindDomain registers the custom domain of an active tenant with the
// hosting layer.
func (s *LifecycleService) BindDomain(ctx context.Context, id uint) (*models.TenantRequest, error) {
	req, err := s.activeRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.domains.Bind(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// VerifyDomain checks DNS/certificate state for an active tenant's domain.
func (s *LifecycleService) VerifyDomain(ctx context.Context, id uint) (*provider.VerifyResult, error) {
	req, err := s.activeRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.domains.Verify(ctx, req)
}

// CheckConnectivity probes both of an active tenant's domains.
func (s *LifecycleService) CheckConnectivity(ctx context.Context, id uint) (*ConnectivityReport, error) {
	req, err := s.activeRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.domains.Connectivity(ctx, req), nil
}

func (s *LifecycleService) activeRequest(ctx context.Context, id uint) (*models.TenantRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.TenantRequestStatusActive {
		return nil, models.NewConflictError(
			fmt.Sprintf("tenant request is %s, not active", req.Status))
	}
	return req, nil
}

// notify publishes best-effort. A lost notification must never fail the
// state transition that triggered it.
func (s *LifecycleService) notify(ctx context.Context, event notifications.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishLifecycle(ctx, event); err != nil {
		middleware.Logger.WarnContext(ctx, "lifecycle notification dropped",
			"event", event.Type, "request_id", event.RequestID, "error", err)
	}
}
