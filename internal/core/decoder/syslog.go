package decoder

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sylogd/agent/internal/core"
)

// priPattern matches a leading "<...>" exactly at the start of the message
// (spec.md §4.4's strict baseline rule: byte 0 must be '<'). The bracket
// contents are validated as a decimal integer separately, so a present but
// non-numeric PRI is distinguishable from a wholly absent one.
var priPattern = regexp.MustCompile(`^<([^>]{0,5})>`)

// rfc5424Pattern matches `<PRI>VERSION TIMESTAMP HOSTNAME APP-NAME PROCID
// MSGID SD MSG`, any field may be "-" meaning absent. SD (structured data) is
// captured as an opaque token — a run of bracketed SD elements, or else one
// whitespace-free token such as "-" — without validating its inner grammar;
// everything after it is MSG. This intentionally uses a single timestamp
// alternative rather than the duplicated-looking alternation some RFC 5424
// parsers carry (spec.md §9, Open Question ii).
var rfc5424Pattern = regexp.MustCompile(
	`^<[0-9]{1,3}>([0-9]{1,2})\s([^\s]+)\s([^\s]+)\s([^\s]+)\s([^\s]+)\s([^\s]+)\s(\[.*?\](?:\[.*?\])*|\S+)(?:\s(.*))?$`,
)

// rfc3164Pattern matches `<PRI>Mmm DD HH:MM:SS HOSTNAME MSG`.
var rfc3164Pattern = regexp.MustCompile(
	`^<[0-9]{1,3}>([A-Z][a-z]{2}\s+\d{1,2}\s\d{2}:\d{2}:\d{2})\s([^\s]+)\s(.*)$`,
)

// ParseSyslog extracts PRI/severity/facility and the message body from raw,
// then attempts the optional RFC 5424, then RFC 3164, structured capture.
// Baseline parsing is mandatory: a missing or non-numeric PRI fails outright.
// Structured-capture failure is non-fatal — only the baseline fields are
// ever required (spec.md §4.4).
func ParseSyslog(raw []byte, receivedAt time.Time, sourceIP string) (core.SyslogEvent, error) {
	if len(raw) == 0 {
		return core.SyslogEvent{}, core.ErrEmptyInput
	}

	m := priPattern.FindSubmatch(raw)
	if m == nil {
		return core.SyslogEvent{}, core.ErrInvalidFormat
	}

	priority, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return core.SyslogEvent{}, core.ErrInvalidPriority
	}
	// Valid PRI values are facility 0-23 combined with severity 0-7, i.e.
	// 0-191 (RFC 3164 §4.1.1, RFC 5424 §6.2.1). Larger values would yield
	// facilities above 23 (and from 2048 up would overflow the uint8
	// Facility on the >>3 below), so they are rejected.
	if priority < 0 || priority > 191 {
		return core.SyslogEvent{}, core.ErrInvalidPriority
	}

	body := raw[len(m[0]):]
	message := strings.TrimLeft(string(body), " \t")

	event := core.SyslogEvent{
		ReceivedAt: receivedAt,
		SourceIP:   sourceIP,
		Severity:   uint8(priority & 0x7),
		Facility:   uint8(priority >> 3),
		Message:    message,
	}

	if captures, ok := captureRFC5424(raw); ok {
		event.Captures = captures
	} else if captures, ok := captureRFC3164(raw); ok {
		event.Captures = captures
	}

	return event, nil
}

// setCapture writes key=value into m with a case-insensitive key, last write
// wins (spec.md §3).
func setCapture(m map[string]string, key, value string) {
	m[strings.ToUpper(key)] = value
}

func captureRFC5424(raw []byte) (map[string]string, bool) {
	sub := rfc5424Pattern.FindStringSubmatch(string(raw))
	if sub == nil {
		return nil, false
	}
	captures := make(map[string]string, 7)
	setCapture(captures, "VER", sub[1])
	setCapture(captures, "TIMESTAMP", sub[2])
	setCapture(captures, "HOSTNAME", sub[3])
	setCapture(captures, "APPNAME", sub[4])
	setCapture(captures, "PROCID", sub[5])
	setCapture(captures, "MSGID", sub[6])
	setCapture(captures, "SD", sub[7])
	if len(sub) > 8 {
		setCapture(captures, "MSG", sub[8])
	}
	return captures, true
}

func captureRFC3164(raw []byte) (map[string]string, bool) {
	sub := rfc3164Pattern.FindStringSubmatch(string(raw))
	if sub == nil {
		return nil, false
	}
	captures := make(map[string]string, 3)
	setCapture(captures, "TIMESTAMP", sub[1])
	setCapture(captures, "HOSTNAME", sub[2])
	setCapture(captures, "MSG", sub[3])
	return captures, true
}
