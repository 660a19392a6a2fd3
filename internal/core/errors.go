// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors for the ingestion/decode pipeline (spec.md §7). Per-datagram
// errors (everything but ErrBindFailure and ErrSinkFault) are strictly local:
// callers count them, log at debug, and drop the frame — they never abort the
// pipeline.
var (
	// ErrUnsupportedVersion: the IP header's version nibble is neither 4 nor 6.
	ErrUnsupportedVersion = errors.New("syslogd: unsupported ip version")
	// ErrMalformedHeader: a header is too short or internally inconsistent
	// (input shorter than the fixed header, IHL too small, and similar). An
	// IPv6 extension header that runs past the input is not an error: the
	// decoder marks the packet Truncated and surfaces the rest as opaque.
	ErrMalformedHeader = errors.New("syslogd: malformed header")
	// ErrTruncatedPayload: the input is shorter than a length field implies.
	ErrTruncatedPayload = errors.New("syslogd: truncated payload")
	// ErrEmptyInput: the syslog parser was given zero bytes.
	ErrEmptyInput = errors.New("syslogd: empty syslog input")
	// ErrInvalidFormat: no leading "<PRI>" found in the syslog input.
	ErrInvalidFormat = errors.New("syslogd: missing pri")
	// ErrInvalidPriority: a "<...>" prefix was found but its contents aren't
	// a valid decimal priority.
	ErrInvalidPriority = errors.New("syslogd: invalid priority")
	// ErrBindFailure: raw/UDP socket creation or bind failed. Fatal at
	// startup — it bubbles to the lifecycle's Start caller.
	ErrBindFailure = errors.New("syslogd: bind failure")
	// ErrSinkFault: a sink's Emit returned an error. Logged and suppressed;
	// never propagated to other sinks or back into the pipeline.
	ErrSinkFault = errors.New("syslogd: sink fault")
)
