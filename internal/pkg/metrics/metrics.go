// Package metrics defines and registers all custom Prometheus metrics for the
// access-control service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry at package
// initialisation (promauto) and exposed by the router on GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "access"

// ── Authorization metrics ─────────────────────────────────────────────────────

// AuthorizationDecisionsTotal counts gate decisions.
// Labels:
//   - result: "accept" or "reject"
//   - kind: rejection kind ("authentication_required", "forbidden"), empty on accept
var AuthorizationDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authorization_decisions_total",
		Help:      "Total number of authorization decisions, by result and rejection kind.",
	},
	[]string{"result", "kind"},
)

// AuthorizationDuration measures the full request pipeline of the gate
// (session lookup, user load, checks, touch).
var AuthorizationDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "authorization_duration_seconds",
		Help:      "Duration of the authorization pipeline per request.",
		Buckets:   prometheus.DefBuckets,
	},
)

// ── Session metrics ───────────────────────────────────────────────────────────

// SessionsCreatedTotal counts sessions issued at login.
var SessionsCreatedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Total number of sessions issued.",
	},
)

// SessionsInvalidatedTotal counts sessions removed before their natural expiry.
// Label:
//   - reason: "superseded", "logout", "forced", "other_devices"
var SessionsInvalidatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_invalidated_total",
		Help:      "Total number of sessions invalidated, by reason.",
	},
	[]string{"reason"},
)

// SessionsSweptTotal counts expired sessions removed by the periodic sweep.
var SessionsSweptTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_swept_total",
		Help:      "Total number of expired sessions removed by the sweeper.",
	},
)

// SessionStoreErrorsTotal counts session store failures degraded to "no session".
// Label:
//   - operation: registry operation name (e.g. "lookup", "touch", "create")
var SessionStoreErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_store_errors_total",
		Help:      "Total number of session store errors, by operation.",
	},
	[]string{"operation"},
)

// ── Account metrics ───────────────────────────────────────────────────────────

// AccountsCreatedTotal counts provisioned accounts.
// Label:
//   - user_type: "owner", "tenant" or "manager"
var AccountsCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "accounts_created_total",
		Help:      "Total number of accounts created, by user type.",
	},
	[]string{"user_type"},
)

// EmailsTotal counts notification deliveries.
// Labels:
//   - template: e.g. "credentials", "password_reset"
//   - result: "sent" or "failed"
var EmailsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emails_total",
		Help:      "Total number of notification emails, by template and result.",
	},
	[]string{"template", "result"},
)

// MailQueueDepth tracks the number of messages waiting in each mail worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var MailQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mail_queue_depth",
		Help:      "Current number of messages pending in each mail worker channel.",
	},
	[]string{"worker_id"},
)
