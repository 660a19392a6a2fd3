// Package dispatch implements event dispatch to registered sinks (spec.md
// §4.7): sequential invocation in registration order, with every sink fault
// logged and suppressed so one failing sink can't destabilize delivery to
// the others.
package dispatch

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/sylogd/agent/internal/core"
	"github.com/sylogd/agent/internal/metrics"
)

// Dispatcher invokes every registered core.Sink with each decoded event.
type Dispatcher struct {
	sinks   []core.Sink
	log     logrus.FieldLogger
	metrics *metrics.Counters
}

// New creates a Dispatcher. sinks are invoked in the order given, every call.
func New(log logrus.FieldLogger, counters *metrics.Counters, sinks ...core.Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, log: log, metrics: counters}
}

// Register appends a sink, invoked after all previously-registered sinks.
func (d *Dispatcher) Register(sink core.Sink) {
	d.sinks = append(d.sinks, sink)
}

// Dispatch invokes every sink with event, in registration order. A sink
// returning an error is logged and does not prevent the remaining sinks
// from being called.
func (d *Dispatcher) Dispatch(ctx context.Context, event core.SyslogEvent) {
	for i, sink := range d.sinks {
		if err := sink.Emit(ctx, event); err != nil {
			d.log.WithError(err).WithField("sink_index", i).Debug("sink emit failed")
		}
	}
	if d.metrics != nil {
		d.metrics.AddDispatched()
	}
}
