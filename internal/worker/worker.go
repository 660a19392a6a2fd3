// Package worker implements the decode worker (spec.md §4.6): a single
// goroutine draining the receiver's bounded channel in FIFO order, chaining
// IP → UDP → syslog decode, filtering by bind address/port, and handing the
// result to the sink dispatcher.
package worker

import (
	"context"
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sylogd/agent/internal/core"
	"github.com/sylogd/agent/internal/core/decoder"
	"github.com/sylogd/agent/internal/dispatch"
	"github.com/sylogd/agent/internal/metrics"
)

// Filter selects which decoded UDP datagrams are worth syslog-parsing:
// destination IP must match BindAddress (unless BindAny), and destination
// port must equal Port (spec.md §4.6 step 5).
type Filter struct {
	BindAddress netip.Addr
	BindAny     bool
	Port        uint16
}

// matches reports whether a datagram sent to dstIP:dstPort was addressed to
// this worker's configured endpoint.
func (f Filter) matches(dstIP netip.Addr, dstPort uint16) bool {
	if dstPort != f.Port {
		return false
	}
	if f.BindAny {
		return true
	}
	return dstIP == f.BindAddress
}

// Worker drains frames from a channel, decodes them, and dispatches
// SyslogEvents. Exactly one Worker runs per collector, preserving FIFO
// delivery order to sinks (spec.md §5).
type Worker struct {
	filter     Filter
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Counters
	log        logrus.FieldLogger
}

// New constructs a Worker.
func New(filter Filter, dispatcher *dispatch.Dispatcher, counters *metrics.Counters, log logrus.FieldLogger) *Worker {
	return &Worker{filter: filter, dispatcher: dispatcher, metrics: counters, log: log}
}

// Run drains frames until the channel is closed and empty. Cancelling ctx
// does not stop it directly: the receiver closes the channel once its
// receive operations have returned, and Run still processes every frame
// already buffered (spec.md §4.9: the decoder drains remaining items on
// cancellation).
func (w *Worker) Run(ctx context.Context, frames <-chan core.ReceivedFrame) {
	for frame := range frames {
		w.processFrame(ctx, frame)
	}
}

// processFrame implements spec.md §4.6 steps 1-8 for one frame. The leased
// buffer is released exactly once, along every exit path.
func (w *Worker) processFrame(ctx context.Context, frame core.ReceivedFrame) {
	defer frame.Release()

	w.metrics.AddDatagram(frame.Length)

	pkt, err := decoder.DecodeIP(frame.Data(), frame.ReceivedAt, true)
	if err != nil {
		w.metrics.AddParseErrorIP()
		w.log.WithError(err).Debug("ip decode failed")
		return
	}

	if pkt.Protocol() != core.ProtoUDP {
		return
	}

	// Fragments and non-empty IPv6 extension chains are surfaced as opaque:
	// this implementation never reassembles (spec.md §4.6 step 3, §9 (i)).
	if pkt.IsFragment() || pkt.HasExtensionChain() {
		w.metrics.AddParseErrorIP()
		return
	}

	dg, err := decoder.DecodeUDP(pkt.Payload(), true)
	if err != nil {
		w.metrics.AddParseErrorUDP()
		w.log.WithError(err).Debug("udp decode failed")
		return
	}

	if !w.filter.matches(pkt.DstIP(), dg.DstPort) {
		return
	}

	event, err := decoder.ParseSyslog(dg.Payload, frame.ReceivedAt, pkt.SrcIP().String())
	if err != nil {
		w.metrics.AddParseErrorSyslog()
		w.log.WithError(err).Debug("syslog parse failed")
		return
	}

	w.dispatcher.Dispatch(ctx, event)
}

// BuildMessage constructs the owned DecodedMessage for callers (e.g. tests
// or alternate sinks) that want the full envelope including a copy of the
// original payload, decoupled from the leased buffer (spec.md §4.6 step 7,
// §9 "Payload sub-slice ownership").
func BuildMessage(payload []byte, receivedAt time.Time, event core.SyslogEvent) core.DecodedMessage {
	owned := make([]byte, len(payload))
	copy(owned, payload)
	return core.DecodedMessage{
		OccurredAt: receivedAt,
		ReceivedAt: receivedAt,
		Payload:    owned,
		Event:      event,
	}
}
