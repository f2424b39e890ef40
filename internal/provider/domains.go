package provider

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

// VerifyResult reports DNS/ownership verification for a bound domain.
// When Verified is false, Code carries a machine-readable diagnostic
// (dns-not-propagated, cert-pending, ...) that callers must surface.
type VerifyResult struct {
	Verified bool   `json:"verified"`
	Code     string `json:"code,omitempty"`
}

// DomainAPI is the hosting layer's custom domain management surface.
type DomainAPI interface {
	AddDomain(ctx context.Context, domain string) error
	VerifyDomain(ctx context.Context, domain string) (*VerifyResult, error)
	RemoveDomain(ctx context.Context, domain string) error
}

type httpDomainAPI struct {
	client *resty.Client
}

// NewDomainAPI returns a DomainAPI backed by the hosting layer's HTTP API.
func NewDomainAPI(baseURL, token string) DomainAPI {
	return &httpDomainAPI{client: newRestyClient(baseURL, token, 15*time.Second)}
}

func (a *httpDomainAPI) AddDomain(ctx context.Context, domain string) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"name": domain}).
		SetError(&apiError{}).
		Post("/v1/domains")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return decodeError(resp, "add domain")
	}
	return nil
}

func (a *httpDomainAPI) VerifyDomain(ctx context.Context, domain string) (*VerifyResult, error) {
	var out VerifyResult
	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiError{}).
		Get("/v1/domains/" + domain + "/verify")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, decodeError(resp, "verify domain")
	}
	return &out, nil
}

func (a *httpDomainAPI) RemoveDomain(ctx context.Context, domain string) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetError(&apiError{}).
		Delete("/v1/domains/" + domain)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return decodeError(resp, "remove domain")
	}
	return nil
}
