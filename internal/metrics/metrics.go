// Package metrics exposes the trust-and-safety counters served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ThreatsDetected counts positive detections by threat type
	// (sql_injection, xss, blocked_pattern, bruteforce, ddos, bot, file, ...).
	ThreatsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teender",
		Subsystem: "security",
		Name:      "threats_detected_total",
		Help:      "Positive threat detections by type.",
	}, []string{"type"})

	// RateLimitDenied counts denied requests by rate-limit bucket.
	RateLimitDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teender",
		Subsystem: "security",
		Name:      "rate_limit_denied_total",
		Help:      "Requests denied by the per-endpoint rate limiter.",
	}, []string{"bucket"})

	// AlertsGenerated counts security alerts by severity.
	AlertsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teender",
		Subsystem: "security",
		Name:      "alerts_generated_total",
		Help:      "Security alerts by severity.",
	}, []string{"severity"})

	// ModerationActions counts enforcement decisions by action tier.
	ModerationActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teender",
		Subsystem: "moderation",
		Name:      "actions_total",
		Help:      "Moderation enforcement decisions by action.",
	}, []string{"action"})
)
