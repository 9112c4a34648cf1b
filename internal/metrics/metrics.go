// Package metrics defines the gateway's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	// AuthFlowsStarted counts authorization flows begun.
	AuthFlowsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "askgate_auth_flows_started_total",
		Help: "Number of authorization flows begun.",
	})

	// AuthFlowsCompleted counts callback outcomes.
	AuthFlowsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "askgate_auth_flows_completed_total",
		Help: "Number of authorization callbacks by outcome.",
	}, []string{"outcome"})

	// TokenRefreshes counts refresh grant attempts.
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "askgate_token_refreshes_total",
		Help: "Number of refresh grant attempts by outcome.",
	}, []string{"outcome"})

	// AskRequests counts proxied question calls by upstream status class.
	AskRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "askgate_ask_requests_total",
		Help: "Number of proxied question requests by result.",
	}, []string{"result"})
)
