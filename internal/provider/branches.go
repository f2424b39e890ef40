package provider

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

// Branch is a provider-known database branch.
type Branch struct {
	Name      string    `json:"name"`
	Hostname  string    `json:"hostname"`
	CreatedAt time.Time `json:"created_at"`
}

// BranchAPI is the hosting platform's database branch provisioning surface.
type BranchAPI interface {
	CreateBranch(ctx context.Context, name string) (*Branch, error)
	GetBranch(ctx context.Context, name string) (*Branch, error)
	ListBranches(ctx context.Context) ([]Branch, error)
	DeleteBranch(ctx context.Context, name string) error
}

type httpBranchAPI struct {
	client *resty.Client
}

// NewBranchAPI returns a BranchAPI backed by the platform's HTTP API.
func NewBranchAPI(baseURL, token string) BranchAPI {
	return &httpBranchAPI{client: newRestyClient(baseURL, token, 30*time.Second)}
}

func (a *httpBranchAPI) CreateBranch(ctx context.Context, name string) (*Branch, error) {
	var out Branch
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"name": name}).
		SetResult(&out).
		SetError(&apiError{}).
		Post("/v1/branches")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, decodeError(resp, "create branch")
	}
	return &out, nil
}

func (a *httpBranchAPI) GetBranch(ctx context.Context, name string) (*Branch, error) {
	var out Branch
	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiError{}).
		Get("/v1/branches/" + name)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, decodeError(resp, "get branch")
	}
	return &out, nil
}

func (a *httpBranchAPI) ListBranches(ctx context.Context) ([]Branch, error) {
	var out struct {
		Branches []Branch `json:"branches"`
	}
	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiError{}).
		Get("/v1/branches")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, decodeError(resp, "list branches")
	}
	return out.Branches, nil
}

func (a *httpBranchAPI) DeleteBranch(ctx context.Context, name string) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetError(&apiError{}).
		Delete("/v1/branches/" + name)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return decodeError(resp, "delete branch")
	}
	return nil
}
