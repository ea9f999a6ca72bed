// Package metrics exposes the client's Prometheus instrumentation, in the
// style of adred-codev-ws_poc/go-server/internal/metrics: one struct of
// promauto-registered collectors, constructed once per Client.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the RPC client and its subsystems emit.
type Metrics struct {
	registry *prometheus.Registry

	reconnectsTotal        prometheus.Counter
	reconnectFailuresTotal prometheus.Counter
	rpcLatency             *prometheus.HistogramVec
	subscribeFailuresTotal *prometheus.CounterVec
	gapRecoveriesTotal     *prometheus.CounterVec
	healthyGauge           *prometheus.GaugeVec
	uptimeGauge            *prometheus.GaugeVec
}

// New constructs a Metrics backed by its own Prometheus registry, so that
// multiple Clients in one process (or one test binary) don't collide over
// collector names on the global DefaultRegisterer.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "metaapi_client_reconnects_total",
			Help: "Number of times the transport reconnected after the initial connect.",
		}),
		reconnectFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "metaapi_client_reconnect_failures_total",
			Help: "Number of failed dial attempts, including the initial connect.",
		}),
		rpcLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "metaapi_client_rpc_latency_seconds",
			Help:    "Latency between issuing a request and its response arriving.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		subscribeFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metaapi_client_subscribe_failures_total",
			Help: "Number of subscribe RPCs that failed with anything other than a timeout.",
		}, []string{"kind"}),
		gapRecoveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metaapi_client_gap_recoveries_total",
			Help: "Number of per-account synchronization sequence gaps that exceeded the gap timeout.",
		}, []string{"accountId"}),
		healthyGauge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "metaapi_client_connection_healthy",
			Help: "1 if the account's connection is fully healthy, 0 otherwise.",
		}, []string{"accountId"}),
		uptimeGauge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "metaapi_client_uptime_percent",
			Help: "Rolling 7-day uptime percentage for the account.",
		}, []string{"accountId"}),
	}
}

// Registry returns the Prometheus registry this Metrics was built against,
// so a host process can expose it via promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) IncReconnect()        { m.reconnectsTotal.Inc() }
func (m *Metrics) IncReconnectFailure() { m.reconnectFailuresTotal.Inc() }

func (m *Metrics) ObserveRPCLatency(reqType string, d time.Duration) {
	m.rpcLatency.WithLabelValues(reqType).Observe(d.Seconds())
}

func (m *Metrics) IncSubscribeFailure(kind string) {
	m.subscribeFailuresTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncGapRecovery(accountID string) {
	m.gapRecoveriesTotal.WithLabelValues(accountID).Inc()
}

func (m *Metrics) SetHealthy(accountID string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	m.healthyGauge.WithLabelValues(accountID).Set(v)
}

func (m *Metrics) SetUptime(accountID string, percent float64) {
	m.uptimeGauge.WithLabelValues(accountID).Set(percent)
}
