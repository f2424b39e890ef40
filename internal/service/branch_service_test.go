package service

import (
	"context"
	"errors"
	"testing"

	"arbor/internal/models"
	"arbor/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type branchAPIStub struct {
	createFn func(context.Context, string) (*provider.Branch, error)
	getFn    func(context.Context, string) (*provider.Branch, error)
	listFn   func(context.Context) ([]provider.Branch, error)
	deleteFn func(context.Context, string) error
}

func (s *branchAPIStub) CreateBranch(ctx context.Context, name string) (*provider.Branch, error) {
	return s.createFn(ctx, name)
}
func (s *branchAPIStub) GetBranch(ctx context.Context, name string) (*provider.Branch, error) {
	return s.getFn(ctx, name)
}
func (s *branchAPIStub) ListBranches(ctx context.Context) ([]provider.Branch, error) {
	return s.listFn(ctx)
}
func (s *branchAPIStub) DeleteBranch(ctx context.Context, name string) error {
	return s.deleteFn(ctx, name)
}

func noopBranchAPI() *branchAPIStub {
	return &branchAPIStub{
		createFn: func(_ context.Context, name string) (*provider.Branch, error) {
			return &provider.Branch{Name: name, Hostname: name + ".db.internal"}, nil
		},
		getFn: func(_ context.Context, name string) (*provider.Branch, error) {
			return &provider.Branch{Name: name, Hostname: name + ".db.internal"}, nil
		},
		listFn:   func(context.Context) ([]provider.Branch, error) { return nil, nil },
		deleteFn: func(context.Context, string) error { return nil },
	}
}

type inspectorStub struct {
	tablesFn     func(context.Context, models.DatabaseBranch) ([]string, error)
	initSchemaFn func(context.Context, models.DatabaseBranch) error
}

func (s *inspectorStub) Tables(ctx context.Context, b models.DatabaseBranch) ([]string, error) {
	return s.tablesFn(ctx, b)
}
func (s *inspectorStub) InitSchema(ctx context.Context, b models.DatabaseBranch) error {
	return s.initSchemaFn(ctx, b)
}

func noopInspector() *inspectorStub {
	return &inspectorStub{
		tablesFn: func(context.Context, models.DatabaseBranch) ([]string, error) {
			return []string{"profiles", "settings"}, nil
		},
		initSchemaFn: func(context.Context, models.DatabaseBranch) error { return nil },
	}
}

func TestBranchNameDeterminism(t *testing.T) {
	assert.Equal(t, "tenant-7", BranchNameFor(7))

	id, ok := ParseBranchTenantID("tenant-7")
	require.True(t, ok)
	assert.Equal(t, uint(7), id)

	for _, name := range []string{"tenant-", "tenant-x", "main", "tenant-0", "tenant-7-old"} {
		_, ok := ParseBranchTenantID(name)
		assert.False(t, ok, name)
	}
}

func TestBranchCreateIdempotent(t *testing.T) {
	api := noopBranchAPI()
	api.createFn = func(context.Context, string) (*provider.Branch, error) {
		return nil, provider.ErrBranchExists
	}
	svc := NewBranchService(api, noopInspector(), newMemRequestRepo(), []string{"profiles", "settings"})

	branch, err := svc.CreateBranch(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "tenant-7", branch.Name)
	assert.Equal(t, "tenant-7.db.internal", branch.Hostname)
}

func TestBranchCreateProviderFailure(t *testing.T) {
	api := noopBranchAPI()
	api.createFn = func(context.Context, string) (*provider.Branch, error) {
		return nil, provider.ErrQuotaExceeded
	}
	svc := NewBranchService(api, noopInspector(), newMemRequestRepo(), []string{"profiles"})

	_, err := svc.CreateBranch(context.Background(), 7)
	assertAppError(t, err, "PROVISIONING_ERROR")
}

func TestBranchHealthCheck(t *testing.T) {
	t.Run("missing table fails", func(t *testing.T) {
		inspector := noopInspector()
		inspector.tablesFn = func(context.Context, models.DatabaseBranch) ([]string, error) {
			return []string{"profiles"}, nil
		}
		svc := NewBranchService(noopBranchAPI(), inspector, newMemRequestRepo(), []string{"profiles", "settings"})

		health, err := svc.HealthCheck(context.Background(), "tenant-7")
		require.NoError(t, err)
		assert.False(t, health.Pass)
		assert.Equal(t, []string{"settings"}, health.Missing)
	})

	t.Run("extra tables pass", func(t *testing.T) {
		inspector := noopInspector()
		inspector.tablesFn = func(context.Context, models.DatabaseBranch) ([]string, error) {
			return []string{"profiles", "settings", "scratch"}, nil
		}
		svc := NewBranchService(noopBranchAPI(), inspector, newMemRequestRepo(), []string{"profiles", "settings"})

		health, err := svc.HealthCheck(context.Background(), "tenant-7")
		require.NoError(t, err)
		assert.True(t, health.Pass)
		assert.Equal(t, []string{"scratch"}, health.Extra)
	})

	t.Run("unknown branch", func(t *testing.T) {
		api := noopBranchAPI()
		api.getFn = func(context.Context, string) (*provider.Branch, error) {
			return nil, provider.ErrBranchNotFound
		}
		svc := NewBranchService(api, noopInspector(), newMemRequestRepo(), []string{"profiles"})

		_, err := svc.HealthCheck(context.Background(), "tenant-404")
		assertAppError(t, err, "NOT_FOUND")
	})
}

func TestBranchListAnnotatesMapping(t *testing.T) {
	repo := newMemRequestRepo()
	req := &models.TenantRequest{
		DesiredDomain:  "shop.example.com",
		Status:         models.TenantRequestStatusActive,
		OwnerProfileID: 7,
		Owner:          &models.Profile{ID: 7, Username: "alice"},
		BranchName:     "tenant-1",
	}
	require.NoError(t, repo.Create(context.Background(), req))

	api := noopBranchAPI()
	api.listFn = func(context.Context) ([]provider.Branch, error) {
		return []provider.Branch{
			{Name: "tenant-1", Hostname: "tenant-1.db.internal"},
			{Name: "tenant-9", Hostname: "tenant-9.db.internal"},
		}, nil
	}
	svc := NewBranchService(api, noopInspector(), repo, []string{"profiles"})

	branches, err := svc.ListBranches(context.Background())
	require.NoError(t, err)
	require.Len(t, branches, 2)

	assert.True(t, branches[0].Mapped)
	require.NotNil(t, branches[0].TenantID)
	assert.Equal(t, req.ID, *branches[0].TenantID)
	assert.Equal(t, "alice", branches[0].OwnerUsername)

	assert.False(t, branches[1].Mapped, "orphaned branch must be flagged")
	assert.Nil(t, branches[1].TenantID)
}

func TestBranchDeleteAlreadyGone(t *testing.T) {
	api := noopBranchAPI()
	api.deleteFn = func(context.Context, string) error { return provider.ErrBranchNotFound }
	svc := NewBranchService(api, noopInspector(), newMemRequestRepo(), []string{"profiles"})

	err := svc.DeleteBranch(context.Background(), "tenant-7")
	assert.NoError(t, err)
}

func TestBranchDeleteProviderFailure(t *testing.T) {
	api := noopBranchAPI()
	api.deleteFn = func(context.Context, string) error { return errors.New("provider 503") }
	svc := NewBranchService(api, noopInspector(), newMemRequestRepo(), []string{"profiles"})

	err := svc.DeleteBranch(context.Background(), "tenant-7")
	assertAppError(t, err, "PROVISIONING_ERROR")
}
