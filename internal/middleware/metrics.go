package middleware

import (
	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis command failures by operation.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbor_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// ProvisionOutcomes counts branch provisioning attempts by operation and outcome.
	ProvisionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbor_branch_provision_total",
		Help: "Branch provisioning operations by operation and outcome",
	}, []string{"operation", "outcome"})

	// HostnameResolutions counts tenant hostname resolutions by source.
	HostnameResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbor_hostname_resolutions_total",
		Help: "Hostname resolutions by source (static, cache, db, fallback)",
	}, []string{"source"})

	// ReconcileRows counts identity reconciliation row outcomes.
	ReconcileRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbor_reconcile_rows_total",
		Help: "Identity reconciliation rows by outcome (written, skipped, missing_global)",
	}, []string{"outcome"})
)

// InitMetrics creates the fiberprometheus middleware for HTTP metrics.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	return fiberprometheus.New(serviceName)
}

// MetricsMiddleware wraps the prometheus middleware as a Fiber handler.
func MetricsMiddleware(prom *fiberprometheus.FiberPrometheus) fiber.Handler {
	return prom.Middleware
}
