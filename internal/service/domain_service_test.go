package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"arbor/internal/models"
	"arbor/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type domainAPIStub struct {
	addFn    func(context.Context, string) error
	verifyFn func(context.Context, string) (*provider.VerifyResult, error)
	removeFn func(context.Context, string) error
}

func (s *domainAPIStub) AddDomain(ctx context.Context, domain string) error {
	return s.addFn(ctx, domain)
}
func (s *domainAPIStub) VerifyDomain(ctx context.Context, domain string) (*provider.VerifyResult, error) {
	return s.verifyFn(ctx, domain)
}
func (s *domainAPIStub) RemoveDomain(ctx context.Context, domain string) error {
	return s.removeFn(ctx, domain)
}

func noopDomainAPI() *domainAPIStub {
	return &domainAPIStub{
		addFn: func(context.Context, string) error { return nil },
		verifyFn: func(context.Context, string) (*provider.VerifyResult, error) {
			return &provider.VerifyResult{Verified: true}, nil
		},
		removeFn: func(context.Context, string) error { return nil },
	}
}

type proberStub struct {
	probeFn func(context.Context, string) provider.ProbeResult
}

func (s *proberStub) Probe(ctx context.Context, url string) provider.ProbeResult {
	return s.probeFn(ctx, url)
}

func TestValidDomainSyntax(t *testing.T) {
	valid := []string{"shop.example.com", "a.io", "deep.sub.domain.example.co.uk", "UPPER.Example.COM"}
	for _, d := range valid {
		assert.True(t, ValidDomainSyntax(d), d)
	}
	invalid := []string{"", "nodots", "-lead.example.com", "trail-.example.com", "under_score.example.com", "example.c0m!"}
	for _, d := range invalid {
		assert.False(t, ValidDomainSyntax(d), d)
	}
}

func TestDomainBindRecordsBinding(t *testing.T) {
	repo := newMemRequestRepo()
	req := &models.TenantRequest{DesiredDomain: "shop.example.com", Status: models.TenantRequestStatusActive}
	require.NoError(t, repo.Create(context.Background(), req))

	svc := NewDomainService(noopDomainAPI(), &proberStub{}, repo)
	require.NoError(t, svc.Bind(context.Background(), req))
	require.NotNil(t, req.DomainBoundAt)

	stored, err := repo.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.DomainBoundAt)
}

func TestDomainBindTaken(t *testing.T) {
	api := noopDomainAPI()
	api.addFn = func(context.Context, string) error { return provider.ErrDomainTaken }
	svc := NewDomainService(api, &proberStub{}, newMemRequestRepo())

	req := &models.TenantRequest{ID: 1, DesiredDomain: "shop.example.com"}
	err := svc.Bind(context.Background(), req)
	assertAppError(t, err, "CONFLICT")
	assert.Nil(t, req.DomainBoundAt)
}

func TestDomainVerifyRequiresBinding(t *testing.T) {
	svc := NewDomainService(noopDomainAPI(), &proberStub{}, newMemRequestRepo())

	req := &models.TenantRequest{ID: 1, DesiredDomain: "shop.example.com"}
	_, err := svc.Verify(context.Background(), req)
	assertAppError(t, err, "VALIDATION_ERROR")
}

func TestDomainVerifyReportsDiagnostic(t *testing.T) {
	api := noopDomainAPI()
	api.verifyFn = func(context.Context, string) (*provider.VerifyResult, error) {
		return &provider.VerifyResult{Verified: false, Code: "dns-not-propagated"}, nil
	}
	svc := NewDomainService(api, &proberStub{}, newMemRequestRepo())

	req := &models.TenantRequest{ID: 1, DesiredDomain: "shop.example.com"}
	now := req.CreatedAt
	req.DomainBoundAt = &now

	result, err := svc.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Equal(t, "dns-not-propagated", result.Code)
}

func TestDomainConnectivityIndependentProbes(t *testing.T) {
	prober := &proberStub{probeFn: func(_ context.Context, url string) provider.ProbeResult {
		if strings.Contains(url, "shop.example.com") {
			return provider.ProbeResult{URL: url, OK: false, Error: "dial timeout"}
		}
		return provider.ProbeResult{URL: url, OK: true, Status: 200}
	}}
	svc := NewDomainService(noopDomainAPI(), prober, newMemRequestRepo())

	req := &models.TenantRequest{
		ID:             1,
		DesiredDomain:  "shop.example.com",
		PlatformDomain: "tenant-1.arbor.app",
	}
	report := svc.Connectivity(context.Background(), req)

	assert.False(t, report.Custom.OK)
	assert.Equal(t, "dial timeout", report.Custom.Error)
	assert.True(t, report.Platform.OK, "one failing probe must not hide the other")
	assert.Equal(t, "https://tenant-1.arbor.app", report.Platform.URL)
}

func TestDomainTeardownAlreadyGone(t *testing.T) {
	api := noopDomainAPI()
	api.removeFn = func(context.Context, string) error { return provider.ErrDomainNotFound }
	svc := NewDomainService(api, &proberStub{}, newMemRequestRepo())

	assert.NoError(t, svc.Teardown(context.Background(), "shop.example.com"))
}

func TestDomainTeardownFailure(t *testing.T) {
	api := noopDomainAPI()
	api.removeFn = func(context.Context, string) error { return errors.New("provider 500") }
	svc := NewDomainService(api, &proberStub{}, newMemRequestRepo())

	err := svc.Teardown(context.Background(), "shop.example.com")
	assertAppError(t, err, "PROVISIONING_ERROR")
}
