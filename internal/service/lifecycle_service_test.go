package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"arbor/internal/models"
	"arbor/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRequestRepo is an in-memory TenantRequestRepository with the same
// conditional-transition semantics as the real one, safe for concurrent use.
type memRequestRepo struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*models.TenantRequest
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{nextID: 1, rows: map[uint]*models.TenantRequest{}}
}

func (r *memRequestRepo) Create(_ context.Context, req *models.TenantRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Same backstop the database's partial unique index provides.
	for _, row := range r.rows {
		if row.Status != models.TenantRequestStatusDeleted &&
			strings.EqualFold(row.DesiredDomain, req.DesiredDomain) {
			return models.NewConflictError("domain is already requested or in use: " + req.DesiredDomain)
		}
	}
	req.ID = r.nextID
	r.nextID++
	clone := *req
	r.rows[req.ID] = &clone
	return nil
}

func (r *memRequestRepo) GetByID(_ context.Context, id uint) (*models.TenantRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, models.NewNotFoundError("Tenant request", id)
	}
	clone := *row
	return &clone, nil
}

func (r *memRequestRepo) List(_ context.Context, status models.TenantRequestStatus, limit, offset int) ([]models.TenantRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TenantRequest
	for _, row := range r.rows {
		if status == "" || row.Status == status {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *memRequestRepo) ListNonDeleted(_ context.Context) ([]models.TenantRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TenantRequest
	for _, row := range r.rows {
		if row.Status != models.TenantRequestStatusDeleted {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *memRequestRepo) DomainTaken(_ context.Context, domain string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.DesiredDomain == domain && row.Status != models.TenantRequestStatusDeleted {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRequestRepo) Update(_ context.Context, req *models.TenantRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *req
	r.rows[req.ID] = &clone
	return nil
}

func (r *memRequestRepo) TransitionStatus(_ context.Context, id uint, from, to models.TenantRequestStatus, updates map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Status != from {
		return false, nil
	}
	row.Status = to
	for col, v := range updates {
		switch col {
		case "platform_domain":
			row.PlatformDomain = v.(string)
		case "branch_name":
			row.BranchName = v.(string)
		case "branch_host":
			row.BranchHost = v.(string)
		case "rejection_reason":
			row.RejectionReason = v.(string)
		}
	}
	return true, nil
}

func (r *memRequestRepo) ClearBranchMapping(_ context.Context, branchName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.BranchName == branchName && row.Status != models.TenantRequestStatusDeleted {
			row.BranchName = ""
			row.BranchHost = ""
		}
	}
	return nil
}

func (r *memRequestRepo) ResolveActiveDomain(_ context.Context, hostname string) (uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Status != models.TenantRequestStatusActive {
			continue
		}
		if row.DesiredDomain == hostname || row.PlatformDomain == hostname {
			return row.ID, nil
		}
	}
	return 0, nil
}

type profileRepoStub struct {
	getByIDFn func(context.Context, uint) (*models.Profile, error)
	createFn  func(context.Context, *models.Profile) error
	updateFn  func(context.Context, *models.Profile) error
	listFn    func(context.Context) ([]models.Profile, error)
}

func (s *profileRepoStub) GetByID(ctx context.Context, id uint) (*models.Profile, error) {
	return s.getByIDFn(ctx, id)
}
func (s *profileRepoStub) Create(ctx context.Context, p *models.Profile) error {
	return s.createFn(ctx, p)
}
func (s *profileRepoStub) Update(ctx context.Context, p *models.Profile) error {
	return s.updateFn(ctx, p)
}
func (s *profileRepoStub) List(ctx context.Context) ([]models.Profile, error) {
	return s.listFn(ctx)
}

func noopProfileRepo() *profileRepoStub {
	return &profileRepoStub{
		getByIDFn: func(_ context.Context, id uint) (*models.Profile, error) {
			return &models.Profile{ID: id, Username: "owner"}, nil
		},
		createFn: func(_ context.Context, p *models.Profile) error {
			p.ID = 42
			return nil
		},
		updateFn: func(context.Context, *models.Profile) error { return nil },
		listFn:   func(context.Context) ([]models.Profile, error) { return nil, nil },
	}
}

type branchStub struct {
	createFn func(context.Context, uint) (*models.DatabaseBranch, error)
	deleteFn func(context.Context, string) error
}

func (s *branchStub) CreateBranch(ctx context.Context, tenantID uint) (*models.DatabaseBranch, error) {
	return s.createFn(ctx, tenantID)
}
func (s *branchStub) DeleteBranch(ctx context.Context, name string) error {
	return s.deleteFn(ctx, name)
}

func noopBranches() *branchStub {
	return &branchStub{
		createFn: func(_ context.Context, tenantID uint) (*models.DatabaseBranch, error) {
			name := BranchNameFor(tenantID)
			return &models.DatabaseBranch{Name: name, Hostname: name + ".db.internal"}, nil
		},
		deleteFn: func(context.Context, string) error { return nil },
	}
}

type domainStub struct {
	bindFn         func(context.Context, *models.TenantRequest) error
	verifyFn       func(context.Context, *models.TenantRequest) (*provider.VerifyResult, error)
	connectivityFn func(context.Context, *models.TenantRequest) *ConnectivityReport
	teardownFn     func(context.Context, string) error
}

func (s *domainStub) Bind(ctx context.Context, req *models.TenantRequest) error {
	return s.bindFn(ctx, req)
}
func (s *domainStub) Verify(ctx context.Context, req *models.TenantRequest) (*provider.VerifyResult, error) {
	return s.verifyFn(ctx, req)
}
func (s *domainStub) Connectivity(ctx context.Context, req *models.TenantRequest) *ConnectivityReport {
	return s.connectivityFn(ctx, req)
}
func (s *domainStub) Teardown(ctx context.Context, domain string) error {
	return s.teardownFn(ctx, domain)
}

func noopDomains() *domainStub {
	return &domainStub{
		bindFn: func(context.Context, *models.TenantRequest) error { return nil },
		verifyFn: func(context.Context, *models.TenantRequest) (*provider.VerifyResult, error) {
			return &provider.VerifyResult{Verified: true}, nil
		},
		connectivityFn: func(context.Context, *models.TenantRequest) *ConnectivityReport {
			return &ConnectivityReport{}
		},
		teardownFn: func(context.Context, string) error { return nil },
	}
}

func newLifecycle(repo *memRequestRepo) *LifecycleService {
	return NewLifecycleService(repo, noopProfileRepo(), noopBranches(), noopDomains(), nil, "arbor.app")
}

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *models.AppError
	if !errors.As(err, &appErr) || appErr.Code != code {
		t.Fatalf("expected %s app error, got %#v", code, err)
	}
}

func TestLifecycleSubmitDuplicateDomain(t *testing.T) {
	repo := newMemRequestRepo()
	svc := newLifecycle(repo)

	_, err := svc.Submit(context.Background(), "shop.example.com", 7, "")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), "Shop.Example.COM", 8, "")
	assertAppError(t, err, "CONFLICT")
}

func TestLifecycleSubmitConcurrent(t *testing.T) {
	repo := newMemRequestRepo()
	svc := newLifecycle(repo)

	// Every racer passes the DomainTaken pre-check before any insert lands;
	// the store's uniqueness guarantee must still let only one through.
	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Submit(context.Background(), "shop.example.com", 7, "")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assertAppError(t, err, "CONFLICT")
	}
	assert.Equal(t, 1, wins, "exactly one submit must win")

	rows, err := repo.ListNonDeleted(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 1, "no duplicate non-deleted rows for one domain")
}

func TestLifecycleSubmitInvalidDomain(t *testing.T) {
	svc := newLifecycle(newMemRequestRepo())

	for _, domain := range []string{"", "no_dots", "-bad.example.com", "spaces in.example.com"} {
		_, err := svc.Submit(context.Background(), domain, 7, "")
		assertAppError(t, err, "VALIDATION_ERROR")
	}
}

func TestLifecycleSubmitAutoCreatesOwner(t *testing.T) {
	repo := newMemRequestRepo()
	profiles := noopProfileRepo()
	var created *models.Profile
	profiles.createFn = func(_ context.Context, p *models.Profile) error {
		p.ID = 99
		created = p
		return nil
	}
	svc := NewLifecycleService(repo, profiles, noopBranches(), noopDomains(), nil, "arbor.app")

	req, err := svc.Submit(context.Background(), "shop.example.com", 0, "newowner")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "newowner", created.Username)
	assert.Equal(t, uint(99), req.OwnerProfileID)
}

func TestLifecycleDomainReusableAfterDeletion(t *testing.T) {
	repo := newMemRequestRepo()
	svc := newLifecycle(repo)

	first, err := svc.Submit(context.Background(), "shop.example.com", 7, "")
	require.NoError(t, err)
	_, err = svc.Delete(context.Background(), first.ID)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), "shop.example.com", 8, "")
	assert.NoError(t, err)
}

func TestLifecycleApprove(t *testing.T) {
	repo := newMemRequestRepo()
	svc := newLifecycle(repo)

	req, err := svc.Submit(context.Background(), "shop.example.com", 7, "")
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantRequestStatusActive, approved.Status)
	assert.Equal(t, fmt.Sprintf("tenant-%d.arbor.app", req.ID), approved.PlatformDomain)
	assert.Equal(t, BranchNameFor(req.ID), approved.BranchName)
	assert.NotEmpty(t, approved.BranchHost)
}

func TestLifecycleApproveConcurrent(t *testing.T) {
	repo := newMemRequestRepo()

	branches := noopBranches()
	var createCalls sync.Map
	branches.createFn = func(_ context.Context, tenantID uint) (*models.DatabaseBranch, error) {
		// Both racers may provision; the branch layer is idempotent, so the
		// second call converges on the same branch.
		createCalls.Store(tenantID, true)
		name := BranchNameFor(tenantID)
		return &models.DatabaseBranch{Name: name, Hostname: name + ".db.internal"}, nil
	}
	svc := NewLifecycleService(repo, noopProfileRepo(), branches, noopDomains(), nil, "arbor.app")

	req, err := svc.Submit(context.Background(), "shop.example.com", 7, "")
	require.NoError(t, err)

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Approve(context.Background(), req.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assertAppError(t, err, "CONFLICT")
	}
	assert.Equal(t, 1, wins, "exactly one approval must win")

	final, err := repo.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantRequestStatusActive, final.Status)
	assert.Equal(t, BranchNameFor(req.ID), final.BranchName)
}

func TestLifecycleApproveNonPending(t *testing.T) {
	repo := newMemRequestRepo()
	svc := newLifecycle(repo)

	req, err := svc.Submit(context.Background(), "shop.example.com", 7, "")
	require.NoError(t, err)
	_, err = svc.Reject(context.Background(), req.ID, "not a fit")
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), req.ID)
	assertAppError(t, err, "CONFLICT")
}

func TestLifecycleApproveBranchFailureKeepsPending(t *testing.T) {
	repo := newMemRequestRepo()
	branches := noopBranches()
	branches.createFn = func(context.Context, uint) (*models.DatabaseBranch, error) {
		return nil, models.NewProvisioningError("branch creation failed", errors.New("quota exceeded"))
	}
	svc := NewLifecycleService(repo, noopProfileRepo(), branches, noopDomains(), nil, "arbor.app")

	req, err := svc.Submit(context.Background(), "shop.example.com", 7, "")
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), req.ID)
	assertAppError(t, err, "PROVISIONING_ERROR")

	// The request stays approvable; a later retry may succeed.
	current, err := repo.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantRequestStatusPending, current.Status)
}

func TestLifecycleRejectRequiresReason(t *testing.T) {
	repo := newMemRequestRepo()
	svc := newLifecycle(repo)

	req, err := svc.Submit(context.Background(), "shop.example.com", 7, "")
	require.NoError(t, err)

	_, err = svc.Reject(context.Background(), req.ID, "   ")
	assertAppError(t, err, "VALIDATION_ERROR")

	rejected, err := svc.Reject(context.Background(), req.ID, "domain looks parked")
	require.NoError(t, err)
	assert.Equal(t, models.TenantRequestStatusRejected, rejected.Status)
	assert.Equal(t, "domain looks parked", rejected.RejectionReason)
}

func TestLifecycleRejectedIsTerminal(t *testing.T) {
	repo := newMemRequestRepo()
	svc := newLifecycle(repo)

	req, err := svc.Submit(context.Background(), "shop.example.com", 7, "")
	require.NoError(t, err)
	_, err = svc.Reject(context.Background(), req.ID, "nope")
	require.NoError(t, err)

	_, err = svc.Reject(context.Background(), req.ID, "again")
	assertAppError(t, err, "CONFLICT")
	_, err = svc.Approve(context.Background(), req.ID)
	assertAppError(t, err, "CONFLICT")
}

func TestLifecycleDeletePartialFailureRetriesOnlyResiduals(t *testing.T) {
	repo := newMemRequestRepo()
	branches := noopBranches()
	branchDeletes := 0
	branches.deleteFn = func(context.Context, string) error {
		branchDeletes++
		if branchDeletes == 1 {
			return models.NewProvisioningError("branch deletion failed", errors.New("provider 503"))
		}
		return nil
	}
	domains := noopDomains()
	domainTeardowns := 0
	domains.teardownFn = func(context.Context, string) error {
		domainTeardowns++
		return nil
	}
	svc := NewLifecycleService(repo, noopProfileRepo(), branches, domains, nil, "arbor.app")

	req, err := svc.Submit(context.Background(), "shop.example.com", 7, "")
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), req.ID)
	require.NoError(t, err)
	_, err = svc.BindDomain(context.Background(), req.ID)
	require.NoError(t, err)

	report, err := svc.Delete(context.Background(), req.ID)
	require.NoError(t, err)
	assert.False(t, report.Clean())
	assert.Equal(t, models.ResourceFailed, report.Branch.Outcome)
	assert.Equal(t, models.ResourceOK, report.Domain.Outcome)
	assert.Equal(t, models.ResourceOK, report.Request.Outcome)

	// The row is deleted but still remembers the residual branch.
	current, err := repo.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantRequestStatusDeleted, current.Status)
	assert.NotEmpty(t, current.BranchName)
	assert.Nil(t, current.DomainBoundAt)

	report, err = svc.Delete(context.Background(), req.ID)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, models.ResourceOK, report.Branch.Outcome)
	assert.Equal(t, models.ResourceSkipped, report.Domain.Outcome)
	assert.Equal(t, 1, domainTeardowns, "cleaned-up domain must not be torn down twice")
	assert.Equal(t, 2, branchDeletes)
}

func TestLifecycleDeletePendingSkipsResources(t *testing.T) {
	repo := newMemRequestRepo()
	svc := newLifecycle(repo)

	req, err := svc.Submit(context.Background(), "shop.example.com", 7, "")
	require.NoError(t, err)

	report, err := svc.Delete(context.Background(), req.ID)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, models.ResourceSkipped, report.Branch.Outcome)
	assert.Equal(t, models.ResourceSkipped, report.Domain.Outcome)
	assert.Equal(t, models.ResourceOK, report.Request.Outcome)
}

func TestLifecycleDomainOpsRequireActive(t *testing.T) {
	repo := newMemRequestRepo()
	svc := newLifecycle(repo)

	req, err := svc.Submit(context.Background(), "shop.example.com", 7, "")
	require.NoError(t, err)

	_, err = svc.BindDomain(context.Background(), req.ID)
	assertAppError(t, err, "CONFLICT")
	_, err = svc.VerifyDomain(context.Background(), req.ID)
	assertAppError(t, err, "CONFLICT")
	_, err = svc.CheckConnectivity(context.Background(), req.ID)
	assertAppError(t, err, "CONFLICT")
}
