// Package metrics defines and registers all custom Prometheus metrics of the
// identity service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics register with the default Prometheus registry on package init via
// promauto; HTTP request metrics come from the echoprometheus middleware.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/learnhub/identity-service/internal/core/domain"
	"github.com/learnhub/identity-service/internal/core/ports"
)

const namespace = "auth"

// ── Session lifecycle ─────────────────────────────────────────────────────────

// LoginsTotal counts login outcomes.
// Labels:
//   - audience: "user" or "admin"
//   - result: "success", "failure" or "rejected" (locked / inactive)
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts by audience and result.",
	},
	[]string{"audience", "result"},
)

// RefreshTotal counts refresh outcomes.
// Label:
//   - result: "rotated" or "reused"
var RefreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_total",
		Help:      "Total number of refresh token rotations and rejected reuses.",
	},
	[]string{"result"},
)

// LockoutsTotal counts accounts that entered the locked state.
var LockoutsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lockouts_total",
		Help:      "Total number of account lockouts engaged.",
	},
)

// RateLimitedTotal counts attempts rejected by the per-source limiter.
var RateLimitedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Total number of login attempts rejected by the rate limiter.",
	},
)

// LogoutsTotal counts logouts.
// Label:
//   - scope: "single" or "all"
var LogoutsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logouts_total",
		Help:      "Total number of logouts by revocation scope.",
	},
	[]string{"scope"},
)

// ── Audit pipeline ────────────────────────────────────────────────────────────

// AuditQueueDepth tracks the number of events waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var AuditQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_queue_depth",
		Help:      "Current number of audit events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// AuditDroppedTotal counts audit events dropped because a queue was full.
var AuditDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_dropped_total",
		Help:      "Total number of audit events dropped on a full queue.",
	},
)

// Observe updates the lifecycle counters for one audit event.
func Observe(event domain.AuthEvent) {
	audience := string(event.Kind)
	switch event.Type {
	case domain.EventLoginSucceeded:
		LoginsTotal.WithLabelValues(audience, "success").Inc()
	case domain.EventLoginFailed:
		LoginsTotal.WithLabelValues(audience, "failure").Inc()
	case domain.EventLoginRejected:
		LoginsTotal.WithLabelValues(audience, "rejected").Inc()
	case domain.EventAccountLocked:
		LockoutsTotal.Inc()
	case domain.EventRateLimited:
		RateLimitedTotal.Inc()
	case domain.EventTokenRefreshed:
		RefreshTotal.WithLabelValues("rotated").Inc()
	case domain.EventRefreshReused:
		RefreshTotal.WithLabelValues("reused").Inc()
	case domain.EventLoggedOut:
		LogoutsTotal.WithLabelValues("single").Inc()
	case domain.EventLoggedOutAll:
		LogoutsTotal.WithLabelValues("all").Inc()
	}
}

// Publisher observes every event before handing it to Next, which may be nil.
type Publisher struct {
	Next ports.AuthEventPublisher
}

func (p Publisher) Publish(event domain.AuthEvent) {
	Observe(event)
	if p.Next != nil {
		p.Next.Publish(event)
	}
}
