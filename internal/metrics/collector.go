// Package fibremetrics exposes Prometheus instrumentation for a Fibre
// node's domain directory, connections, and multiplexer.
package fibremetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const namespace = "fibre"

const (
	subsystemDomain      = "domain"
	subsystemConnection  = "connection"
	subsystemMultiplexer = "multiplexer"
)

// Label names.
const (
	labelNodeID     = "node_id"
	labelDirection  = "direction" // "server" or "client"
	labelEndpointID = "endpoint_id"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Fibre Metrics
// -------------------------------------------------------------------------

// Collector holds all Fibre Prometheus metrics.
//
// Metrics span three subsystems:
//   - domain: size of the node/connection directory.
//   - connection: per-connection packet and byte accounting.
//   - multiplexer: TxPipe arbitration fairness.
type Collector struct {
	// KnownNodes tracks the number of nodes currently registered in a
	// domain's directory.
	KnownNodes *prometheus.GaugeVec

	// OpenConnections tracks the number of currently open Connections,
	// labeled by direction (server/client).
	OpenConnections *prometheus.GaugeVec

	// PacketsSent counts LowLevelProtocol packets transmitted per connection.
	PacketsSent *prometheus.CounterVec

	// PacketsReceived counts LowLevelProtocol packets received per connection.
	PacketsReceived *prometheus.CounterVec

	// PacketsDropped counts packets dropped by a Connection (checksum
	// failure, out-of-window frame ID, malformed header).
	PacketsDropped *prometheus.CounterVec

	// BytesAcked counts payload bytes a Connection's peer has acknowledged.
	BytesAcked *prometheus.CounterVec

	// Retransmits counts frames a Connection resent after a retransmit
	// timeout or a duplicate-ack signal.
	Retransmits *prometheus.CounterVec

	// DispatchFairnessViolations counts times the Multiplexer's
	// round-robin arbitration skipped a ready TxPipe out of turn. This
	// should never fire; it is exported so tests and operators can
	// assert it stays at zero.
	DispatchFairnessViolations *prometheus.CounterVec
}

// NewCollector creates a Collector with all Fibre metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.KnownNodes,
		c.OpenConnections,
		c.PacketsSent,
		c.PacketsReceived,
		c.PacketsDropped,
		c.BytesAcked,
		c.Retransmits,
		c.DispatchFairnessViolations,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	domainLabels := []string{labelNodeID}
	connLabels := []string{labelNodeID, labelDirection, labelEndpointID}
	muxLabels := []string{labelNodeID}

	return &Collector{
		KnownNodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemDomain,
			Name:      "known_nodes",
			Help:      "Number of nodes currently registered in the domain directory.",
		}, domainLabels),

		OpenConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemConnection,
			Name:      "open",
			Help:      "Number of currently open connections.",
		}, []string{labelNodeID, labelDirection}),

		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemConnection,
			Name:      "packets_sent_total",
			Help:      "Total LowLevelProtocol packets transmitted.",
		}, connLabels),

		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemConnection,
			Name:      "packets_received_total",
			Help:      "Total LowLevelProtocol packets received.",
		}, connLabels),

		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemConnection,
			Name:      "packets_dropped_total",
			Help:      "Total packets dropped due to checksum failure, out-of-window frame id, or malformed header.",
		}, connLabels),

		BytesAcked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemConnection,
			Name:      "bytes_acked_total",
			Help:      "Total payload bytes acknowledged by the remote peer.",
		}, connLabels),

		Retransmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemConnection,
			Name:      "retransmits_total",
			Help:      "Total frames resent after a retransmit timeout or duplicate ack.",
		}, connLabels),

		DispatchFairnessViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemMultiplexer,
			Name:      "dispatch_fairness_violations_total",
			Help:      "Total times round-robin TxPipe arbitration skipped a ready pipe out of turn. Should remain zero.",
		}, muxLabels),
	}
}

// -------------------------------------------------------------------------
// Domain Directory
// -------------------------------------------------------------------------

// SetKnownNodes sets the known-nodes gauge for a domain.
func (c *Collector) SetKnownNodes(nodeID string, n int) {
	c.KnownNodes.WithLabelValues(nodeID).Set(float64(n))
}

// -------------------------------------------------------------------------
// Connection Lifecycle
// -------------------------------------------------------------------------

// RegisterConnection increments the open-connections gauge for a direction.
func (c *Collector) RegisterConnection(nodeID, direction string) {
	c.OpenConnections.WithLabelValues(nodeID, direction).Inc()
}

// UnregisterConnection decrements the open-connections gauge for a direction.
func (c *Collector) UnregisterConnection(nodeID, direction string) {
	c.OpenConnections.WithLabelValues(nodeID, direction).Dec()
}

// -------------------------------------------------------------------------
// Packet Counters
// -------------------------------------------------------------------------

// IncPacketsSent increments the transmitted-packets counter for a connection.
func (c *Collector) IncPacketsSent(nodeID, direction, endpointID string) {
	c.PacketsSent.WithLabelValues(nodeID, direction, endpointID).Inc()
}

// IncPacketsReceived increments the received-packets counter for a connection.
func (c *Collector) IncPacketsReceived(nodeID, direction, endpointID string) {
	c.PacketsReceived.WithLabelValues(nodeID, direction, endpointID).Inc()
}

// IncPacketsDropped increments the dropped-packets counter for a connection.
func (c *Collector) IncPacketsDropped(nodeID, direction, endpointID string) {
	c.PacketsDropped.WithLabelValues(nodeID, direction, endpointID).Inc()
}

// AddBytesAcked adds n to the acked-bytes counter for a connection.
func (c *Collector) AddBytesAcked(nodeID, direction, endpointID string, n int) {
	c.BytesAcked.WithLabelValues(nodeID, direction, endpointID).Add(float64(n))
}

// IncRetransmits increments the retransmit counter for a connection.
func (c *Collector) IncRetransmits(nodeID, direction, endpointID string) {
	c.Retransmits.WithLabelValues(nodeID, direction, endpointID).Inc()
}

// -------------------------------------------------------------------------
// Multiplexer
// -------------------------------------------------------------------------

// IncDispatchFairnessViolations increments the multiplexer fairness-violation
// counter for a domain. Tests and operators expect this to stay at zero.
func (c *Collector) IncDispatchFairnessViolations(nodeID string) {
	c.DispatchFairnessViolations.WithLabelValues(nodeID).Inc()
}
