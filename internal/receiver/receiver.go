// Package receiver implements the raw-socket receiver (spec.md §4.5): a
// fixed set of concurrent in-flight receive operations, each leasing a
// buffer from the pool, issuing a receive, and enqueuing (buffer, length,
// received_at) onto a bounded channel before immediately issuing its next
// receive. The hot loop performs no parsing; apart from pool interaction, its
// only per-frame allocation is the frame's release closure.
package receiver

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/sylogd/agent/internal/buffer"
	"github.com/sylogd/agent/internal/core"
	"github.com/sylogd/agent/internal/metrics"
)

// DefaultConcurrency is N, the default number of in-flight receive
// operations (spec.md §4.5).
const DefaultConcurrency = 10

// DefaultChannelCapacity is the bounded channel's default capacity.
const DefaultChannelCapacity = 1024

// Config configures a Receiver.
type Config struct {
	BindAddress     string // empty => 0.0.0.0
	Concurrency     int
	ChannelCapacity int
	RecvBufferBytes int // SO_RCVBUF size; 0 = leave at OS default
	Pool            *buffer.Pool
	Metrics         *metrics.Counters
	Log             logrus.FieldLogger
}

func (c *Config) setDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.ChannelCapacity <= 0 {
		c.ChannelCapacity = DefaultChannelCapacity
	}
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
}

// Receiver owns a raw IPv4 socket bound to Config.BindAddress and drives
// Config.Concurrency concurrent receive operations feeding a single bounded
// channel of core.ReceivedFrame.
type Receiver struct {
	cfg  Config
	conn *net.IPConn
	out  chan core.ReceivedFrame
	wg   sync.WaitGroup
}

// New binds a raw IPv4 socket (protocol = UDP, per spec.md §4.5) to
// cfg.BindAddress. Bind failure is fatal and returned wrapped in
// core.ErrBindFailure (spec.md §7).
func New(cfg Config) (*Receiver, error) {
	cfg.setDefaults()

	addr := cfg.BindAddress
	if addr == "" {
		addr = "0.0.0.0"
	}
	ipAddr, err := net.ResolveIPAddr("ip4", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", core.ErrBindFailure, addr, err)
	}

	conn, err := net.ListenIP("ip4:17", ipAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen ip4:17 on %s: %v", core.ErrBindFailure, addr, err)
	}

	// golang.org/x/net/ipv4 validates the conn supports raw IPv4 framing;
	// constructed purely to fail fast if the platform can't give us one.
	if _, err := ipv4.NewRawConn(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: raw conn: %v", core.ErrBindFailure, err)
	}

	if cfg.RecvBufferBytes > 0 {
		if err := setRecvBuffer(conn, cfg.RecvBufferBytes); err != nil {
			cfg.Log.WithError(err).Warn("failed to size SO_RCVBUF, continuing with OS default")
		}
	}

	return &Receiver{
		cfg:  cfg,
		conn: conn,
		out:  make(chan core.ReceivedFrame, cfg.ChannelCapacity),
	}, nil
}

// setRecvBuffer sizes the socket's receive buffer via SO_RCVBUF, sized to
// avoid kernel-side drops under burst (spec.md §4.5 is silent on this; see
// SPEC_FULL.md §4.5).
func setRecvBuffer(conn *net.IPConn, bytes int) error {
	sc, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var setErr error
	if err := sc.Control(func(fd uintptr) {
		setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bytes)
	}); err != nil {
		return err
	}
	return setErr
}

// Frames returns the channel receive operations enqueue onto. It is closed
// once every receive operation has returned.
func (r *Receiver) Frames() <-chan core.ReceivedFrame {
	return r.out
}

// Run spawns Config.Concurrency receive operations and blocks until ctx is
// cancelled and every operation has unwound, then closes the frame channel.
func (r *Receiver) Run(ctx context.Context) {
	for i := 0; i < r.cfg.Concurrency; i++ {
		r.wg.Add(1)
		go r.receiveLoop(ctx)
	}
	r.wg.Wait()
	close(r.out)
}

// Close releases the underlying socket. Run must have returned first.
func (r *Receiver) Close() error {
	return r.conn.Close()
}

// receiveLoop is one of the N concurrent in-flight receive operations.
// Cancellation is checked on every iteration so outstanding leases are
// released promptly (spec.md §4.5 "Cancellation").
func (r *Receiver) receiveLoop(ctx context.Context) {
	defer r.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		buf, err := r.cfg.Pool.Lease(ctx)
		if err != nil {
			// Context cancelled while waiting for a buffer.
			return
		}

		// A short read deadline lets the loop notice cancellation promptly
		// without abandoning the kernel receive indefinitely.
		_ = r.conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
		n, _, err := r.conn.ReadFrom(buf)
		if err != nil {
			r.cfg.Pool.Release(buf)
			if ctx.Err() != nil {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			r.cfg.Log.WithError(err).Debug("raw socket receive failed")
			continue
		}

		frame := core.ReceivedFrame{
			Buffer:     buf,
			Length:     n,
			ReceivedAt: time.Now(),
			Release: func() {
				r.cfg.Pool.Release(buf)
				if r.cfg.Metrics != nil {
					r.cfg.Metrics.SetInFlightBuffers(r.cfg.Pool.InFlight())
				}
			},
		}

		select {
		case r.out <- frame:
		case <-ctx.Done():
			frame.Release()
			return
		}
	}
}

// NewUDP builds an alternative receiver for platforms without raw-socket
// privileges (spec.md §9 "Raw socket privileges"): a plain kernel-
// demultiplexed UDP socket. Since the decode worker's IP-parse step always
// runs first, each received UDP payload is wrapped in a synthesized minimal
// IPv4 frame built from the peer endpoint, so the rest of the pipeline
// (UDP parse, bind/port filter, syslog parse) runs completely unmodified.
func NewUDP(cfg Config, listenPort uint16) (*UDPReceiver, error) {
	cfg.setDefaults()

	addr := cfg.BindAddress
	if addr == "" {
		addr = "0.0.0.0"
	}
	udpAddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", addr, listenPort))
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s:%d: %v", core.ErrBindFailure, addr, listenPort, err)
	}

	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen udp4 on %s:%d: %v", core.ErrBindFailure, addr, listenPort, err)
	}

	localPort := uint16(conn.LocalAddr().(*net.UDPAddr).Port)

	return &UDPReceiver{
		cfg:       cfg,
		conn:      conn,
		localPort: localPort,
		out:       make(chan core.ReceivedFrame, cfg.ChannelCapacity),
	}, nil
}

// UDPReceiver is the kernel-demultiplexed fallback transport.
type UDPReceiver struct {
	cfg       Config
	conn      *net.UDPConn
	localPort uint16
	out       chan core.ReceivedFrame
	wg        sync.WaitGroup
}

func (r *UDPReceiver) Frames() <-chan core.ReceivedFrame { return r.out }

func (r *UDPReceiver) Close() error { return r.conn.Close() }

// LocalAddr returns the UDP socket's bound local address, primarily useful
// in tests that need to dial the ephemeral port chosen when listenPort is 0.
func (r *UDPReceiver) LocalAddr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Run spawns Config.Concurrency receive operations reading whole UDP
// datagrams and synthesizing the minimal IPv4+UDP framing the decode worker
// expects.
func (r *UDPReceiver) Run(ctx context.Context) {
	for i := 0; i < r.cfg.Concurrency; i++ {
		r.wg.Add(1)
		go r.receiveLoop(ctx)
	}
	r.wg.Wait()
	close(r.out)
}

func (r *UDPReceiver) receiveLoop(ctx context.Context) {
	defer r.wg.Done()

	payloadBuf := make([]byte, core.DefaultBufSize)
	localIP := r.LocalAddr().IP.To4()
	for {
		if ctx.Err() != nil {
			return
		}

		leased, err := r.cfg.Pool.Lease(ctx)
		if err != nil {
			return
		}

		_ = r.conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
		n, peer, err := r.conn.ReadFromUDP(payloadBuf)
		if err != nil {
			r.cfg.Pool.Release(leased)
			if ctx.Err() != nil {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			r.cfg.Log.WithError(err).Debug("udp socket receive failed")
			continue
		}

		srcAddr, ok := netip.AddrFromSlice(peer.IP.To4())
		if !ok {
			r.cfg.Pool.Release(leased)
			continue
		}

		frameLen := synthesizeIPv4UDPFrame(leased, srcAddr, uint16(peer.Port), r.localPort, payloadBuf[:n])
		// The socket only receives datagrams addressed to its bound local
		// address, so that is the frame's destination for the worker's filter.
		copy(leased[16:20], localIP)

		frame := core.ReceivedFrame{
			Buffer:     leased,
			Length:     frameLen,
			ReceivedAt: time.Now(),
			Release: func() {
				r.cfg.Pool.Release(leased)
				if r.cfg.Metrics != nil {
					r.cfg.Metrics.SetInFlightBuffers(r.cfg.Pool.InFlight())
				}
			},
		}

		select {
		case r.out <- frame:
		case <-ctx.Done():
			frame.Release()
			return
		}
	}
}

// synthesizeIPv4UDPFrame writes a minimal valid IPv4 header followed by a
// UDP header and payload into dst, returning the total frame length. The
// destination address is left as 0.0.0.0; UDPReceiver's receive loop then
// writes the socket's bound local address into it.
func synthesizeIPv4UDPFrame(dst []byte, srcIP netip.Addr, srcPort, dstPort uint16, payload []byte) int {
	const ipLen = 20
	const udpLen = 8

	dst[0] = 0x45
	dst[1] = 0
	totalLength := uint16(ipLen + udpLen + len(payload))
	binary.BigEndian.PutUint16(dst[2:4], totalLength)
	dst[8] = 64
	dst[9] = core.ProtoUDP
	src4 := srcIP.As4()
	copy(dst[12:16], src4[:])
	// Destination left as 0.0.0.0 (filled in by the caller).

	binary.BigEndian.PutUint16(dst[20:22], srcPort)
	binary.BigEndian.PutUint16(dst[22:24], dstPort)
	binary.BigEndian.PutUint16(dst[24:26], uint16(udpLen+len(payload)))

	n := copy(dst[28:], payload)
	return ipLen + udpLen + n
}
