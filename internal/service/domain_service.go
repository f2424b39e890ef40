package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"arbor/internal/cache"
	"arbor/internal/middleware"
	"arbor/internal/models"
	"arbor/internal/provider"
	"arbor/internal/repository"
)

// domainPattern accepts lowercase hostnames with at least two labels.
// Syntax only; ownership is the hosting layer's call during verification.
var domainPattern = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,}$`)

// ConnectivityReport carries the two independent probe results for a tenant.
// Either domain can be down while the other works; the report never collapses
// them into one verdict.
type ConnectivityReport struct {
	Custom   provider.ProbeResult `json:"custom"`
	Platform provider.ProbeResult `json:"platform"`
}

// DomainService manages a tenant's custom domain binding at the hosting
// layer, plus live reachability checks.
type DomainService struct {
	api      provider.DomainAPI
	prober   provider.Prober
	requests repository.TenantRequestRepository
}

// NewDomainService creates a DomainService.
func NewDomainService(api provider.DomainAPI, prober provider.Prober, requests repository.TenantRequestRepository) *DomainService {
	return &DomainService{api: api, prober: prober, requests: requests}
}

// ValidDomainSyntax reports whether the hostname is syntactically acceptable.
func ValidDomainSyntax(domain string) bool {
	return domainPattern.MatchString(strings.ToLower(domain))
}

// Bind registers the tenant's custom domain with the hosting layer and
// records the binding on the request. Re-binding the same domain is a no-op
// at the hosting layer (registration is idempotent there), so retries after a
// partial failure are safe.
func (s *DomainService) Bind(ctx context.Context, req *models.TenantRequest) error {
	domain := strings.ToLower(req.DesiredDomain)
	if !ValidDomainSyntax(domain) {
		return models.NewValidationError("domain has invalid syntax: " + domain)
	}

	err := s.api.AddDomain(ctx, domain)
	switch {
	case errors.Is(err, provider.ErrDomainTaken):
		middleware.ProvisionOutcomes.WithLabelValues("bind_domain", "taken").Inc()
		return models.NewConflictError("domain is already bound to another project: " + domain)
	case errors.Is(err, provider.ErrInvalidDomain):
		return models.NewValidationError("hosting layer rejected domain: " + domain)
	case err != nil:
		middleware.ProvisionOutcomes.WithLabelValues("bind_domain", "error").Inc()
		return models.NewProvisioningError("domain binding failed", err)
	}

	now := time.Now().UTC()
	req.DomainBoundAt = &now
	if err := s.requests.Update(ctx, req); err != nil {
		return err
	}

	cache.InvalidateTenantHost(ctx, domain)
	middleware.ProvisionOutcomes.WithLabelValues("bind_domain", "ok").Inc()
	return nil
}

// Verify asks the hosting layer whether DNS and certificate issuance for the
// bound domain have completed. Verification is read-only and repeatable.
func (s *DomainService) Verify(ctx context.Context, req *models.TenantRequest) (*provider.VerifyResult, error) {
	if req.DomainBoundAt == nil {
		return nil, models.NewValidationError("domain is not bound; bind it before verifying")
	}

	result, err := s.api.VerifyDomain(ctx, strings.ToLower(req.DesiredDomain))
	if errors.Is(err, provider.ErrDomainNotFound) {
		return nil, models.NewNotFoundError("Domain binding", req.DesiredDomain)
	}
	if err != nil {
		return nil, models.NewProvisioningError("domain verification failed", err)
	}
	return result, nil
}

// Connectivity probes the custom domain and the platform domain concurrently.
// The probes are independent; one failing never hides the other's result.
func (s *DomainService) Connectivity(ctx context.Context, req *models.TenantRequest) *ConnectivityReport {
	report := &ConnectivityReport{}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		report.Custom = s.prober.Probe(ctx, "https://"+strings.ToLower(req.DesiredDomain))
	}()
	go func() {
		defer wg.Done()
		report.Platform = s.prober.Probe(ctx, "https://"+strings.ToLower(req.PlatformDomain))
	}()
	wg.Wait()

	return report
}

// Teardown removes the custom domain binding from the hosting layer. A
// binding that is already gone counts as removed.
func (s *DomainService) Teardown(ctx context.Context, domain string) error {
	err := s.api.RemoveDomain(ctx, strings.ToLower(domain))
	if errors.Is(err, provider.ErrDomainNotFound) {
		middleware.ProvisionOutcomes.WithLabelValues("teardown_domain", "already_gone").Inc()
		return nil
	}
	if err != nil {
		middleware.ProvisionOutcomes.WithLabelValues("teardown_domain", "error").Inc()
		return models.NewProvisioningError("domain removal failed", err)
	}
	middleware.ProvisionOutcomes.WithLabelValues("teardown_domain", "ok").Inc()
	cache.InvalidateTenantHost(ctx, domain)
	return nil
}
