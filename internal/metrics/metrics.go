// Package metrics implements the ingestion pipeline's counters (spec.md
// §4.8): atomic counters for the hot path, mirrored into Prometheus
// CounterVec/GaugeVec so the optional metrics server (server.go) can expose
// them alongside the snapshot logged at shutdown.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	datagramsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syslogd_datagrams_received_total",
			Help: "Total number of UDP datagrams delivered to the decode worker",
		},
		[]string{"bind"},
	)
	bytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syslogd_bytes_received_total",
			Help: "Total number of bytes received at the IP layer",
		},
		[]string{"bind"},
	)
	parseErrorsIP = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syslogd_parse_errors_ip_total",
			Help: "Total number of IP-layer parse failures",
		},
		[]string{"bind"},
	)
	parseErrorsUDP = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syslogd_parse_errors_udp_total",
			Help: "Total number of UDP-layer parse failures",
		},
		[]string{"bind"},
	)
	parseErrorsSyslog = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syslogd_parse_errors_syslog_total",
			Help: "Total number of syslog parse failures",
		},
		[]string{"bind"},
	)
	dispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syslogd_dispatched_total",
			Help: "Total number of SyslogEvents handed to sinks",
		},
		[]string{"bind"},
	)
	inFlightBuffers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "syslogd_inflight_buffers",
			Help: "Number of leased buffers not yet returned to the pool",
		},
		[]string{"bind"},
	)
)

// Counters holds the atomic counters spec.md §4.8 requires, scoped to one
// collector instance (bind address). Updated with atomic increments (in the
// pipeline, by the decode worker and the dispatcher it calls), so Snapshot
// may read them from any goroutine.
type Counters struct {
	bind string

	DatagramsReceived atomic.Uint64
	BytesReceived     atomic.Uint64
	ParseErrorsIP     atomic.Uint64
	ParseErrorsUDP    atomic.Uint64
	ParseErrorsSyslog atomic.Uint64
	Dispatched        atomic.Uint64

	startedAt time.Time
}

// NewCounters creates a Counters scoped to bind (used as the Prometheus
// label so multiple collectors in one process don't collide).
func NewCounters(bind string) *Counters {
	return &Counters{bind: bind, startedAt: time.Now()}
}

// AddDatagram records one delivered datagram of n bytes.
func (c *Counters) AddDatagram(n int) {
	c.DatagramsReceived.Add(1)
	c.BytesReceived.Add(uint64(n))
	datagramsTotal.WithLabelValues(c.bind).Inc()
	bytesTotal.WithLabelValues(c.bind).Add(float64(n))
}

// AddParseErrorIP records an IP-layer parse failure.
func (c *Counters) AddParseErrorIP() {
	c.ParseErrorsIP.Add(1)
	parseErrorsIP.WithLabelValues(c.bind).Inc()
}

// AddParseErrorUDP records a UDP-layer parse failure.
func (c *Counters) AddParseErrorUDP() {
	c.ParseErrorsUDP.Add(1)
	parseErrorsUDP.WithLabelValues(c.bind).Inc()
}

// AddParseErrorSyslog records a syslog parse failure.
func (c *Counters) AddParseErrorSyslog() {
	c.ParseErrorsSyslog.Add(1)
	parseErrorsSyslog.WithLabelValues(c.bind).Inc()
}

// AddDispatched records one event handed to the sink dispatcher.
func (c *Counters) AddDispatched() {
	c.Dispatched.Add(1)
	dispatchedTotal.WithLabelValues(c.bind).Inc()
}

// SetInFlightBuffers mirrors the buffer pool's in-flight lease count into the
// Prometheus gauge.
func (c *Counters) SetInFlightBuffers(n int32) {
	inFlightBuffers.WithLabelValues(c.bind).Set(float64(n))
}

// Snapshot is the point-in-time view logged on shutdown (spec.md §4.8).
type Snapshot struct {
	DatagramsReceived uint64
	BytesReceived     uint64
	ParseErrorsIP     uint64
	ParseErrorsUDP    uint64
	ParseErrorsSyslog uint64
	Dispatched        uint64
	Elapsed           time.Duration
}

// Snapshot reads all counters and the elapsed wall-clock time since creation.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		DatagramsReceived: c.DatagramsReceived.Load(),
		BytesReceived:     c.BytesReceived.Load(),
		ParseErrorsIP:     c.ParseErrorsIP.Load(),
		ParseErrorsUDP:    c.ParseErrorsUDP.Load(),
		ParseErrorsSyslog: c.ParseErrorsSyslog.Load(),
		Dispatched:        c.Dispatched.Load(),
		Elapsed:           time.Since(c.startedAt),
	}
}
