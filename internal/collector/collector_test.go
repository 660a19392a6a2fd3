package collector

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sylogd/agent/internal/buffer"
	"github.com/sylogd/agent/internal/core"
)

type staticSettings struct {
	port uint16
	addr string
}

func (s staticSettings) UDPPort() uint16   { return s.port }
func (s staticSettings) IPAddress() string { return s.addr }

type collectingSink struct {
	mu     sync.Mutex
	events []core.SyslogEvent
}

func (c *collectingSink) Emit(ctx context.Context, e core.SyslogEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collectingSink) snapshot() []core.SyslogEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.SyslogEvent, len(c.events))
	copy(out, c.events)
	return out
}

func TestCollector_LifecycleStates(t *testing.T) {
	sink := &collectingSink{}
	c := New(Config{
		Settings:        staticSettings{port: 0, addr: "127.0.0.1"},
		UseRawSocket:    false,
		Concurrency:     2,
		ChannelCapacity: 8,
		BufferPool:      buffer.Config{BufferSize: core.DefaultBufSize, WarmBuffers: 4, MaxBuffers: 4},
		Log:             logrus.New(),
		Sinks:           []core.Sink{sink},
	})

	assert.Equal(t, StateCreated, c.State())
	// Stop from Created is a no-op.
	c.Stop()
	assert.Equal(t, StateCreated, c.State())

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, StateRunning, c.State())

	// Double-start is a no-op.
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, StateRunning, c.State())

	c.Stop()
	assert.Equal(t, StateStopped, c.State())
}

func TestCollector_DeliversEndToEnd(t *testing.T) {
	sink := &collectingSink{}
	settings := staticSettings{port: 0, addr: "127.0.0.1"}
	c := New(Config{
		Settings:        settings,
		UseRawSocket:    false,
		Concurrency:     2,
		ChannelCapacity: 8,
		BufferPool:      buffer.Config{BufferSize: core.DefaultBufSize, WarmBuffers: 4, MaxBuffers: 4},
		Log:             logrus.New(),
		Sinks:           []core.Sink{sink},
	})

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	localAddr := c.udpReceiver.LocalAddr()
	require.NotNil(t, localAddr)

	client, err := net.DialUDP("udp4", nil, localAddr)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("<13>Hello"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	events := sink.snapshot()
	assert.Equal(t, uint8(5), events[0].Severity)
	assert.Equal(t, "Hello", events[0].Message)
}
