package core

import "context"

// Sink is the pluggable destination for decoded syslog events (spec.md §4.7,
// §6). Concrete sinks (file, Kafka, HTTP forwarder, ...) are out of this
// module's scope; the decode worker only ever calls this interface.
//
// Implementations must be non-blocking or yield promptly — Emit is called
// synchronously from the single decode worker goroutine, so a slow sink
// stalls the whole pipeline's delivery order.
type Sink interface {
	Emit(ctx context.Context, event SyslogEvent) error
}

// SinkFunc adapts a plain function to the Sink interface, the same pattern
// the teacher uses for its single-method plugin interfaces.
type SinkFunc func(ctx context.Context, event SyslogEvent) error

// Emit calls f(ctx, event).
func (f SinkFunc) Emit(ctx context.Context, event SyslogEvent) error {
	return f(ctx, event)
}
