// Package metrics exposes Prometheus counters for the token lifecycle and
// authorization decisions. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "realmgate"

// Admin token cache outcomes.
const (
	AdminTokenHit     = "hit"
	AdminTokenRefresh = "refresh"
	AdminTokenError   = "error"
)

// RPT exchange outcomes.
const (
	ExchangeOK     = "ok"
	ExchangeFailed = "failed"
	ExchangeEmpty  = "empty"
)

// Metrics holds the gateway's collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	adminToken   *prometheus.CounterVec
	rptExchanges *prometheus.CounterVec
	decisions    *prometheus.CounterVec
	claimSkips   *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves gatherer.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: gatherer,
		adminToken: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_token_requests_total",
			Help:      "Admin token requests by outcome (hit, refresh, error).",
		}, []string{"result"}),
		rptExchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpt_exchanges_total",
			Help:      "UMA ticket exchanges by outcome (ok, failed, empty).",
		}, []string{"result"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_decisions_total",
			Help:      "Authorization decisions by requirement kind and outcome.",
		}, []string{"kind", "allowed"}),
		claimSkips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claim_parse_skipped_total",
			Help:      "Malformed claims skipped or rejected during augmentation.",
		}, []string{"claim"}),
	}
}

// AdminToken records an admin token cache outcome.
func (m *Metrics) AdminToken(result string) {
	if m == nil {
		return
	}
	m.adminToken.WithLabelValues(result).Inc()
}

// RPTExchange records an RPT exchange outcome.
func (m *Metrics) RPTExchange(result string) {
	if m == nil {
		return
	}
	m.rptExchanges.WithLabelValues(result).Inc()
}

// Decision records a policy decision.
func (m *Metrics) Decision(kind string, allowed bool) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(kind, strconv.FormatBool(allowed)).Inc()
}

// ClaimSkipped records a malformed claim.
func (m *Metrics) ClaimSkipped(claim string) {
	if m == nil {
		return
	}
	m.claimSkips.WithLabelValues(claim).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
