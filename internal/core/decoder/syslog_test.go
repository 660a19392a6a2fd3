package decoder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sylogd/agent/internal/core"
)

func TestParseSyslog_Baseline(t *testing.T) {
	event, err := ParseSyslog([]byte("<13>Hello"), time.Now(), "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, uint8(5), event.Severity)
	assert.Equal(t, uint8(1), event.Facility)
	assert.Equal(t, "Hello", event.Message)
}

func TestParseSyslog_TrimsLeadingWhitespace(t *testing.T) {
	event, err := ParseSyslog([]byte("<13>   Hello"), time.Now(), "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", event.Message)
}

func TestParseSyslog_RFC3164Capture(t *testing.T) {
	raw := []byte("<165>Aug 24 05:34:00 host1 app: msg")
	event, err := ParseSyslog(raw, time.Now(), "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, uint8(5), event.Severity)
	assert.Equal(t, uint8(20), event.Facility)
	assert.True(t, len(event.Message) > 0 && event.Message[:3] == "Aug")
	require.NotNil(t, event.Captures)
	assert.Equal(t, "host1", event.Captures["HOSTNAME"])
}

func TestParseSyslog_RFC5424Capture(t *testing.T) {
	raw := []byte("<34>1 2003-10-11T22:14:15.003Z host app - ID47 - BOM'Hello")
	event, err := ParseSyslog(raw, time.Now(), "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, uint8(2), event.Severity)
	assert.Equal(t, uint8(4), event.Facility)
	require.NotNil(t, event.Captures)
	assert.Equal(t, "1", event.Captures["VER"])
	assert.Equal(t, "host", event.Captures["HOSTNAME"])
	assert.Equal(t, "app", event.Captures["APPNAME"])
	assert.Equal(t, "ID47", event.Captures["MSGID"])
}

func TestParseSyslog_InvalidFormat(t *testing.T) {
	_, err := ParseSyslog([]byte("no-pri-here"), time.Now(), "192.0.2.1")
	assert.ErrorIs(t, err, core.ErrInvalidFormat)
}

func TestParseSyslog_InvalidPriority(t *testing.T) {
	_, err := ParseSyslog([]byte("<abc>Hello"), time.Now(), "192.0.2.1")
	assert.ErrorIs(t, err, core.ErrInvalidPriority)
}

func TestParseSyslog_PriorityOutOfRange(t *testing.T) {
	_, err := ParseSyslog([]byte("<999>Hello"), time.Now(), "192.0.2.1")
	assert.ErrorIs(t, err, core.ErrInvalidPriority)
}

func TestParseSyslog_MaxValidPriority(t *testing.T) {
	event, err := ParseSyslog([]byte("<191>Hello"), time.Now(), "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, uint8(7), event.Severity)
	assert.Equal(t, uint8(23), event.Facility)
}

func TestParseSyslog_EmptyInput(t *testing.T) {
	_, err := ParseSyslog(nil, time.Now(), "192.0.2.1")
	assert.ErrorIs(t, err, core.ErrEmptyInput)
}

func TestParseSyslog_Idempotent(t *testing.T) {
	raw := []byte("<13>Hello")
	now := time.Now()
	a, err := ParseSyslog(raw, now, "192.0.2.1")
	require.NoError(t, err)
	b, err := ParseSyslog(raw, now, "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, a.Severity, b.Severity)
	assert.Equal(t, a.Facility, b.Facility)
	assert.Equal(t, a.Message, b.Message)
	assert.Equal(t, a.SourceIP, b.SourceIP)
}
