// Package provider contains clients for the hosting platform's external
// APIs: database branch provisioning, custom domain management, and live
// connectivity probes. All three are independent systems; each client is
// defined behind an interface so the controller can be tested without the
// platform.
package provider

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Sentinel errors mapped from provider error codes.
var (
	ErrBranchExists   = errors.New("branch already exists")
	ErrBranchNotFound = errors.New("branch not found")
	ErrQuotaExceeded  = errors.New("branch quota exceeded")
	ErrDomainTaken    = errors.New("domain already bound elsewhere")
	ErrInvalidDomain  = errors.New("invalid domain")
	ErrDomainNotFound = errors.New("domain not found")
)

// apiError is the provider's JSON error envelope.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *apiError) toErr() error {
	switch e.Error.Code {
	case "already_exists":
		return ErrBranchExists
	case "not_found":
		return ErrBranchNotFound
	case "quota_exceeded":
		return ErrQuotaExceeded
	case "domain_taken":
		return ErrDomainTaken
	case "invalid_domain":
		return ErrInvalidDomain
	case "domain_not_found":
		return ErrDomainNotFound
	default:
		return fmt.Errorf("provider error %s: %s", e.Error.Code, e.Error.Message)
	}
}

func newRestyClient(baseURL, token string, timeout time.Duration) *resty.Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return client
}

// decodeError extracts a provider error from a non-2xx response.
func decodeError(resp *resty.Response, fallback string) error {
	if e, ok := resp.Error().(*apiError); ok && e.Error.Code != "" {
		return e.toErr()
	}
	return fmt.Errorf("%s: status %d: %s", fallback, resp.StatusCode(), resp.String())
}
