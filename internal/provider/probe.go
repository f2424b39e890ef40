package provider

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/go-resty/resty/v2"
)

// ProbeResult is the outcome of one live reachability probe.
type ProbeResult struct {
	URL    string `json:"url"`
	OK     bool   `json:"ok"`
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Prober performs live HTTP reachability probes against tenant domains.
type Prober interface {
	Probe(ctx context.Context, url string) ProbeResult
}

type httpProber struct {
	client *resty.Client
}

// NewProber returns a Prober with a short timeout. Probes are connectivity
// checks, not DNS propagation waits; a few seconds is enough.
func NewProber() Prober {
	client := resty.New().
		SetTimeout(5 * time.Second).
		// A tenant mid-provisioning may present a mismatched certificate;
		// the probe cares about reachability, not trust.
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	return &httpProber{client: client}
}

func (p *httpProber) Probe(ctx context.Context, url string) ProbeResult {
	resp, err := p.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return ProbeResult{URL: url, OK: false, Error: err.Error()}
	}
	return ProbeResult{
		URL:    url,
		OK:     resp.StatusCode() >= 200 && resp.StatusCode() < 400,
		Status: resp.StatusCode(),
	}
}
