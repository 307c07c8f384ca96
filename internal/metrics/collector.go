// Package metrics exposes the relay daemon's Prometheus instrumentation.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dantte-lp/relayd/internal/relay"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "relayd"
	subsystem = "relay"
)

// Label names.
const (
	labelDirection = "direction"
	labelVerb      = "verb"
	labelCode      = "code"
)

// -------------------------------------------------------------------------
// Collector -- Prometheus relay metrics
// -------------------------------------------------------------------------

// Collector holds all relay daemon Prometheus metrics.
//
//   - Sessions tracks currently active media sessions.
//   - Packets{In,Relayed,Dropped} track forwarding volume, In labeled per
//     direction.
//   - Commands{OK,Errors} track control-dispatcher throughput and failure
//     classes, labeled by verb (and error code for failures).
//   - SessionsExpired counts TTL reaper teardowns.
type Collector struct {
	Sessions        prometheus.Gauge
	PacketsIn       *prometheus.CounterVec
	PacketsRelayed  prometheus.Counter
	PacketsDropped  prometheus.Counter
	CommandsOK      *prometheus.CounterVec
	CommandsErrors  *prometheus.CounterVec
	SessionsExpired prometheus.Counter
}

// NewCollector creates a Collector with all metrics registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Sessions,
		c.PacketsIn,
		c.PacketsRelayed,
		c.PacketsDropped,
		c.CommandsOK,
		c.CommandsErrors,
		c.SessionsExpired,
	)

	return c
}

// newMetrics creates all Prometheus metrics without registering them.
func newMetrics() *Collector {
	return &Collector{
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions",
			Help:      "Number of currently active media sessions.",
		}),

		PacketsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_in_total",
			Help:      "Total inbound packets accepted per direction.",
		}, []string{labelDirection}),

		PacketsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_relayed_total",
			Help:      "Total packets forwarded to the opposite leg.",
		}),

		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dropped_total",
			Help:      "Total packets dropped by the authenticity check or relay suppression.",
		}),

		CommandsOK: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_total",
			Help:      "Total control commands executed successfully, by verb.",
		}, []string{labelVerb}),

		CommandsErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "command_errors_total",
			Help:      "Total control command failures, by verb and error code.",
		}, []string{labelVerb, labelCode}),

		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_expired_total",
			Help:      "Total sessions torn down by TTL expiry.",
		}),
	}
}

// -------------------------------------------------------------------------
// Session lifecycle
// -------------------------------------------------------------------------

// SessionCreated increments the active session gauge.
func (c *Collector) SessionCreated() {
	c.Sessions.Inc()
}

// SessionDestroyed decrements the active session gauge.
func (c *Collector) SessionDestroyed() {
	c.Sessions.Dec()
}

// SessionExpired records a TTL-driven teardown.
func (c *Collector) SessionExpired() {
	c.SessionsExpired.Inc()
}

// -------------------------------------------------------------------------
// Packet counters
// -------------------------------------------------------------------------

// PacketIn records one accepted inbound packet on direction d.
func (c *Collector) PacketIn(d relay.Direction) {
	c.PacketsIn.WithLabelValues(strconv.Itoa(int(d))).Inc()
}

// PacketRelayed records one packet successfully forwarded.
func (c *Collector) PacketRelayed() {
	c.PacketsRelayed.Inc()
}

// PacketDropped records one packet dropped by authenticity or suppression.
func (c *Collector) PacketDropped() {
	c.PacketsDropped.Inc()
}

// -------------------------------------------------------------------------
// Control dispatcher
// -------------------------------------------------------------------------

// CommandOK records one successfully executed command for verb.
func (c *Collector) CommandOK(verb string) {
	c.CommandsOK.WithLabelValues(verb).Inc()
}

// CommandError records one failed command for verb with its error code.
func (c *Collector) CommandError(verb string, code relay.ErrCode) {
	c.CommandsErrors.WithLabelValues(verb, strconv.Itoa(int(code))).Inc()
}
