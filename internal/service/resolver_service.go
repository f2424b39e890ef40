package service

import (
	"context"
	"strings"
	"time"

	"arbor/internal/cache"
	"arbor/internal/middleware"
	"arbor/internal/repository"
)

// Resolution maps one hostname to a tenant id. Tenant 0 is the global
// instance, which also serves as the fail-open answer: a hostname nothing
// claims, or a lookup that errors out, lands on the default site instead of
// breaking the request.
type Resolution struct {
	Hostname string `json:"hostname"`
	TenantID uint   `json:"tenant_id"`
	// Source records where the answer came from: static, cache, db, or
	// fallback when the lookup failed or timed out.
	Source string `json:"source"`
}

// ResolverService answers "which tenant owns this hostname" on the hot path
// of every incoming request. It must stay fast and must never fail closed.
type ResolverService struct {
	requests   repository.TenantRequestRepository
	rootDomain string
	timeout    time.Duration
}

// NewResolverService creates a ResolverService. timeout bounds the whole
// lookup, cache and database together.
func NewResolverService(requests repository.TenantRequestRepository, rootDomain string, timeout time.Duration) *ResolverService {
	return &ResolverService{requests: requests, rootDomain: rootDomain, timeout: timeout}
}

// Resolve maps a hostname to its tenant. Local and bare root-domain hosts
// short-circuit to tenant 0 without touching cache or database. Everything
// else goes cache first, then the directory, and any failure along the way
// degrades to tenant 0 rather than an error.
func (s *ResolverService) Resolve(ctx context.Context, hostname string) Resolution {
	host := normalizeHost(hostname)

	if s.isStatic(host) {
		middleware.HostnameResolutions.WithLabelValues("static").Inc()
		return Resolution{Hostname: host, TenantID: 0, Source: "static"}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Redis failures count through the client hook; here they just mean a
	// cache miss.
	var cached uint
	found, err := cache.GetJSON(ctx, cache.TenantHostKey(host), &cached)
	if err == nil && found {
		middleware.HostnameResolutions.WithLabelValues("cache").Inc()
		return Resolution{Hostname: host, TenantID: cached, Source: "cache"}
	}

	tenantID, err := s.requests.ResolveActiveDomain(ctx, host)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "hostname resolution degraded to default tenant",
			"hostname", host, "error", err)
		middleware.HostnameResolutions.WithLabelValues("fallback").Inc()
		return Resolution{Hostname: host, TenantID: 0, Source: "fallback"}
	}

	// Negative answers are cached too; unknown hostnames are the common
	// case for scanner traffic.
	_ = cache.SetJSON(ctx, cache.TenantHostKey(host), tenantID, cache.TenantHostTTL)

	middleware.HostnameResolutions.WithLabelValues("db").Inc()
	return Resolution{Hostname: host, TenantID: tenantID, Source: "db"}
}

// isStatic reports hostnames that always belong to the global instance.
func (s *ResolverService) isStatic(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	return host == s.rootDomain || host == "www."+s.rootDomain
}

// normalizeHost lowercases and strips a port suffix. Bracketed IPv6
// literals keep their colons.
func normalizeHost(hostname string) string {
	host := strings.ToLower(strings.TrimSpace(hostname))
	host = strings.TrimSuffix(host, ".")
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end > 0 {
			return host[1:end]
		}
	}
	if i := strings.LastIndex(host, ":"); i >= 0 && strings.Count(host, ":") == 1 {
		host = host[:i]
	}
	return host
}
