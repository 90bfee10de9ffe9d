package p2p

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// networkMetrics exports per-peer reputation gauges and handshake/gossip
// counters, grounded on the teacher's p2p/metrics.go. Unlike the teacher's
// version this omits the otel meter half: nothing in this module reads an
// otel exporter, and the spec carries no tracing requirement, so the extra
// dependency and noop-fallback plumbing would sit unused (see DESIGN.md).
type networkMetrics struct {
	peerScore       *prometheus.GaugeVec
	peerLatency     *prometheus.GaugeVec
	peerUseful      *prometheus.GaugeVec
	peerMisbehavior *prometheus.GaugeVec

	handshake *prometheus.CounterVec
	gossip    *prometheus.CounterVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *networkMetrics
)

func newNetworkMetrics() *networkMetrics {
	metricsOnce.Do(func() {
		m := &networkMetrics{
			peerScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "mnbudget",
				Subsystem: "p2p",
				Name:      "peer_score",
				Help:      "Current reputation score per peer.",
			}, []string{"peer"}),
			peerLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "mnbudget",
				Subsystem: "p2p",
				Name:      "peer_latency_ms",
				Help:      "EWMA round-trip latency per peer, in milliseconds.",
			}, []string{"peer"}),
			peerUseful: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "mnbudget",
				Subsystem: "p2p",
				Name:      "peer_useful_total",
				Help:      "Count of useful messages received per peer.",
			}, []string{"peer"}),
			peerMisbehavior: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "mnbudget",
				Subsystem: "p2p",
				Name:      "peer_misbehavior_total",
				Help:      "Count of misbehavior incidents per peer.",
			}, []string{"peer"}),
			handshake: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mnbudget",
				Subsystem: "p2p",
				Name:      "handshake_total",
				Help:      "Handshake attempts by result.",
			}, []string{"result"}),
			gossip: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mnbudget",
				Subsystem: "p2p",
				Name:      "gossip_messages_total",
				Help:      "Budget gossip messages sent by command.",
			}, []string{"command"}),
		}
		prometheus.MustRegister(m.peerScore, m.peerLatency, m.peerUseful, m.peerMisbehavior, m.handshake, m.gossip)
		sharedMetrics = m
	})
	return sharedMetrics
}

// observePeerStatus publishes a peer's latest reputation snapshot to the
// gauges so it is always the last-observed value, not an accumulating sum.
func (m *networkMetrics) observePeerStatus(id string, status ReputationStatus) {
	if m == nil || id == "" {
		return
	}
	m.peerScore.WithLabelValues(id).Set(float64(status.Score))
	if status.LatencyMS > 0 {
		m.peerLatency.WithLabelValues(id).Set(status.LatencyMS)
	}
	m.peerUseful.WithLabelValues(id).Set(float64(status.Useful))
	m.peerMisbehavior.WithLabelValues(id).Set(float64(status.Misbehavior))
}

func (m *networkMetrics) recordHandshake(result string) {
	if m == nil {
		return
	}
	m.handshake.WithLabelValues(result).Inc()
}

func (m *networkMetrics) recordGossip(command string) {
	if m == nil {
		return
	}
	m.gossip.WithLabelValues(command).Inc()
}

// removePeer deletes a disconnected peer's gauge series so a long-lived node
// does not accumulate unbounded label cardinality from churned peer IDs.
func (m *networkMetrics) removePeer(id string) {
	if m == nil || id == "" {
		return
	}
	m.peerScore.DeleteLabelValues(id)
	m.peerLatency.DeleteLabelValues(id)
	m.peerUseful.DeleteLabelValues(id)
	m.peerMisbehavior.DeleteLabelValues(id)
}
