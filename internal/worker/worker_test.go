package worker

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sylogd/agent/internal/core"
	"github.com/sylogd/agent/internal/dispatch"
	"github.com/sylogd/agent/internal/metrics"
)

func buildUDPFrame(t *testing.T, dstIP [4]byte, dstPort uint16, body []byte) []byte {
	t.Helper()
	udp := make([]byte, 8+len(body))
	udp[0], udp[1] = 0x13, 0x88
	udp[2] = byte(dstPort >> 8)
	udp[3] = byte(dstPort)
	length := uint16(8 + len(body))
	udp[4] = byte(length >> 8)
	udp[5] = byte(length)
	copy(udp[8:], body)

	ip := make([]byte, 20)
	ip[0] = 0x45
	totalLen := uint16(20 + len(udp))
	ip[2] = byte(totalLen >> 8)
	ip[3] = byte(totalLen)
	ip[8] = 64
	ip[9] = core.ProtoUDP
	copy(ip[12:16], []byte{10, 0, 0, 1})
	copy(ip[16:20], dstIP[:])
	return append(ip, udp...)
}

func newTestWorker(t *testing.T, bindAny bool, bindAddr netip.Addr, port uint16) (*Worker, *[]core.SyslogEvent) {
	t.Helper()
	var received []core.SyslogEvent
	sink := core.SinkFunc(func(ctx context.Context, e core.SyslogEvent) error {
		received = append(received, e)
		return nil
	})
	d := dispatch.New(logrus.New(), metrics.NewCounters(t.Name()), sink)
	w := New(Filter{BindAddress: bindAddr, BindAny: bindAny, Port: port}, d, metrics.NewCounters(t.Name()+"-worker"), logrus.New())
	return w, &received
}

func frameOf(data []byte) core.ReceivedFrame {
	released := false
	return core.ReceivedFrame{
		Buffer:     data,
		Length:     len(data),
		ReceivedAt: time.Now(),
		Release:    func() { released = true; _ = released },
	}
}

func TestWorker_DeliversMatchingDatagram(t *testing.T) {
	w, received := newTestWorker(t, true, netip.Addr{}, 514)
	data := buildUDPFrame(t, [4]byte{10, 0, 0, 2}, 514, []byte("<13>Hello"))

	ch := make(chan core.ReceivedFrame, 1)
	ch <- frameOf(data)
	close(ch)
	w.Run(context.Background(), ch)

	require.Len(t, *received, 1)
	assert.Equal(t, uint8(5), (*received)[0].Severity)
	assert.Equal(t, uint8(1), (*received)[0].Facility)
	assert.Equal(t, "Hello", (*received)[0].Message)
}

func TestWorker_DropsWrongPort(t *testing.T) {
	w, received := newTestWorker(t, true, netip.Addr{}, 514)
	data := buildUDPFrame(t, [4]byte{10, 0, 0, 2}, 515, []byte("<13>Hello"))

	ch := make(chan core.ReceivedFrame, 1)
	ch <- frameOf(data)
	close(ch)
	w.Run(context.Background(), ch)

	assert.Empty(t, *received)
}

func TestWorker_FiltersOnBindAddress(t *testing.T) {
	bindAddr := netip.MustParseAddr("10.0.0.9")
	w, received := newTestWorker(t, false, bindAddr, 514)
	data := buildUDPFrame(t, [4]byte{10, 0, 0, 2}, 514, []byte("<13>Hello"))

	ch := make(chan core.ReceivedFrame, 1)
	ch <- frameOf(data)
	close(ch)
	w.Run(context.Background(), ch)

	assert.Empty(t, *received)
}

func TestWorker_ReleasesBufferOnParseFailure(t *testing.T) {
	w, received := newTestWorker(t, true, netip.Addr{}, 514)
	garbage := []byte{0x00, 0x01, 0x02}

	var released bool
	ch := make(chan core.ReceivedFrame, 1)
	ch <- core.ReceivedFrame{
		Buffer:     garbage,
		Length:     len(garbage),
		ReceivedAt: time.Now(),
		Release:    func() { released = true },
	}
	close(ch)
	w.Run(context.Background(), ch)

	assert.True(t, released)
	assert.Empty(t, *received)
}

func TestBuildMessage_CopiesPayload(t *testing.T) {
	payload := []byte("hello")
	msg := BuildMessage(payload, time.Now(), core.SyslogEvent{Message: "hello"})
	payload[0] = 'X'
	assert.Equal(t, byte('h'), msg.Payload[0])
}
