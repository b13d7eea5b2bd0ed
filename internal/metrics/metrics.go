// Package metrics holds the client's Prometheus counters.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "billix"

// Registry collects every metric in this package.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// Quota metrics
var (
	QuotaChecksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_checks_total",
			Help:      "Weekly quota consumption attempts by outcome",
		},
		[]string{"result"},
	)

	QuotaPointsConsumed = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_points_consumed_total",
			Help:      "Points accepted by the remote usage counter",
		},
	)
)

// Token ledger metrics
var (
	TokenOpsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_ops_total",
			Help:      "Token ledger operations by kind and funding source",
		},
		[]string{"op", "source"},
	)

	MonthlyResetsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_monthly_resets_total",
			Help:      "Free allowance resets performed by this client",
		},
	)
)

// Entitlement metrics
var (
	EntitlementChecksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_checks_total",
			Help:      "Membership checks by deciding source",
		},
		[]string{"source"},
	)

	EntitlementFallbacksTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_server_fallbacks_total",
			Help:      "Membership checks that fell back to the platform signal",
		},
	)
)

// Backend API metrics
var (
	APIRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Backend REST requests by endpoint and status code",
		},
		[]string{"endpoint", "status_code"},
	)

	APIRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Backend REST latency distribution",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"endpoint"},
	)

	RetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retry attempts by operation",
		},
		[]string{"op"},
	)

	FallbacksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Reads answered with fallback data by operation",
		},
		[]string{"op"},
	)
)

// Push sends the registry to a Pushgateway under job.
func Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(Registry).PushContext(ctx)
}
