// Package metrics collects coordinator counters and exposes them to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is implemented by anything that wants to observe coordinator activity.
type Recorder interface {
	RecordSignIn(method string)
	RecordSignOut(reason string)
	RecordRefresh(outcome string)
	RecordBroadcast(outcome string)
	RecordEntitlement(result string)
}

// Nop discards everything.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordSignIn(string)      {}
func (Nop) RecordSignOut(string)     {}
func (Nop) RecordRefresh(string)     {}
func (Nop) RecordBroadcast(string)   {}
func (Nop) RecordEntitlement(string) {}

// Collector is the Prometheus backed Recorder.
type Collector struct {
	signIns      *prometheus.CounterVec
	signOuts     *prometheus.CounterVec
	refreshes    *prometheus.CounterVec
	broadcasts   *prometheus.CounterVec
	entitlements *prometheus.CounterVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_sign_ins_total",
			Help: "Successful sign-ins by method.",
		}, []string{"method"}),
		signOuts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_sign_outs_total",
			Help: "Sign-outs by reason.",
		}, []string{"reason"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_token_refreshes_total",
			Help: "Token refresh attempts by outcome.",
		}, []string{"outcome"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_broadcasts_total",
			Help: "Auth state broadcasts by outcome.",
		}, []string{"outcome"}),
		entitlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_entitlement_checks_total",
			Help: "Entitlement checks by cache result.",
		}, []string{"result"}),
	}

	reg.MustRegister(c.signIns, c.signOuts, c.refreshes, c.broadcasts, c.entitlements)
	return c
}

func (c *Collector) RecordSignIn(method string) {
	c.signIns.WithLabelValues(method).Inc()
}

func (c *Collector) RecordSignOut(reason string) {
	c.signOuts.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordRefresh(outcome string) {
	c.refreshes.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordBroadcast(outcome string) {
	c.broadcasts.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordEntitlement(result string) {
	c.entitlements.WithLabelValues(result).Inc()
}

// Handler serves the registry for Prometheus scraping.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}
