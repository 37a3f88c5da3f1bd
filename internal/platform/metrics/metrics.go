package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gin-gonic/gin"
)

// Cross-service health signals. Breaker transitions and fallback hits mean a
// remote dependency is degraded; rejected mutations are business rejections.
var (
	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reference_breaker_transitions_total",
		Help: "Circuit breaker state transitions per entity kind.",
	}, []string{"kind", "to"})

	FallbackInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reference_fallback_invocations_total",
		Help: "Reference validations resolved by the fallback policy.",
	}, []string{"kind", "policy"})

	LookupFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reference_lookup_failures_total",
		Help: "Remote existence lookups that errored or timed out.",
	}, []string{"kind"})

	RejectedMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_rejected_mutations_total",
		Help: "Ledger mutations rejected by code (capacity, stock, inconsistency).",
	}, []string{"code"})
)

// Handler exposes the default registry, mounted as GET /metrics on each
// service.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
