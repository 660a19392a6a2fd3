// Package collector implements the lifecycle state machine (spec.md §4.9):
// Created → Running → Stopping → Stopped, orchestrating the receiver and
// decode worker and emitting a final metrics snapshot on shutdown.
package collector

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sylogd/agent/internal/buffer"
	"github.com/sylogd/agent/internal/core"
	"github.com/sylogd/agent/internal/dispatch"
	"github.com/sylogd/agent/internal/metrics"
	"github.com/sylogd/agent/internal/receiver"
	"github.com/sylogd/agent/internal/worker"
)

// State is the collector's lifecycle state.
type State string

const (
	StateCreated  State = "created"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// Settings is the subset of the external configuration provider the
// collector depends on (spec.md §6's Settings interface).
type Settings interface {
	UDPPort() uint16
	IPAddress() string
}

// Config configures a Collector.
type Config struct {
	Settings        Settings
	UseRawSocket    bool // false selects the UDP-socket fallback transport
	Concurrency     int
	ChannelCapacity int
	BufferPool      buffer.Config
	RecvBufferBytes int
	Log             logrus.FieldLogger
	Sinks           []core.Sink
}

// Collector orchestrates the buffer pool, receiver, decode worker, and sink
// dispatcher behind the Created → Running → Stopping → Stopped state
// machine.
type Collector struct {
	cfg     Config
	log     logrus.FieldLogger
	metrics *metrics.Counters
	pool    *buffer.Pool

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	rawReceiver *receiver.Receiver
	udpReceiver *receiver.UDPReceiver
}

// New constructs a Collector in the Created state.
func New(cfg Config) *Collector {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Collector{cfg: cfg, log: cfg.Log, state: StateCreated}
}

// State returns the current lifecycle state.
func (c *Collector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start binds the socket, allocates the pool, and spawns the receive
// operations and decode worker. A bind failure is returned synchronously and
// the collector remains Created (spec.md §4.9, §7 BindFailure propagation).
// Calling Start while already Running is a no-op with a warning.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateRunning || c.state == StateStarting {
		c.mu.Unlock()
		c.log.Warn("start called while already running; ignoring")
		return nil
	}
	c.state = StateStarting
	c.mu.Unlock()

	bindAddr := c.cfg.Settings.IPAddress()
	port := c.cfg.Settings.UDPPort()
	if port == 0 {
		port = core.DefaultUDPPort
	}

	c.pool = buffer.New(c.cfg.BufferPool)
	c.metrics = metrics.NewCounters(bindOrAny(bindAddr))

	filter, err := buildFilter(bindAddr, port)
	if err != nil {
		c.mu.Lock()
		c.state = StateCreated
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", core.ErrBindFailure, err)
	}

	dispatcher := dispatch.New(c.log, c.metrics, c.cfg.Sinks...)
	w := worker.New(filter, dispatcher, c.metrics, c.log)

	recvCfg := receiver.Config{
		BindAddress:     bindAddr,
		Concurrency:     c.cfg.Concurrency,
		ChannelCapacity: c.cfg.ChannelCapacity,
		RecvBufferBytes: c.cfg.RecvBufferBytes,
		Pool:            c.pool,
		Metrics:         c.metrics,
		Log:             c.log,
	}

	runCtx, cancel := context.WithCancel(ctx)

	var frames <-chan core.ReceivedFrame
	if c.cfg.UseRawSocket {
		r, err := receiver.New(recvCfg)
		if err != nil {
			cancel()
			c.mu.Lock()
			c.state = StateCreated
			c.mu.Unlock()
			return err
		}
		c.rawReceiver = r
		frames = r.Frames()
	} else {
		r, err := receiver.NewUDP(recvCfg, port)
		if err != nil {
			cancel()
			c.mu.Lock()
			c.state = StateCreated
			c.mu.Unlock()
			return err
		}
		c.udpReceiver = r
		frames = r.Frames()
	}

	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if c.rawReceiver != nil {
				c.rawReceiver.Run(runCtx)
			} else {
				c.udpReceiver.Run(runCtx)
			}
		}()
		go func() {
			defer wg.Done()
			w.Run(runCtx, frames)
		}()
		wg.Wait()

		snap := c.metrics.Snapshot()
		c.log.WithFields(logrus.Fields{
			"datagrams_received":  snap.DatagramsReceived,
			"bytes_received":      snap.BytesReceived,
			"parse_errors_ip":     snap.ParseErrorsIP,
			"parse_errors_udp":    snap.ParseErrorsUDP,
			"parse_errors_syslog": snap.ParseErrorsSyslog,
			"dispatched":          snap.Dispatched,
			"elapsed":             snap.Elapsed,
		}).Info("collector stopped, final metrics snapshot")
	}()

	c.mu.Lock()
	c.state = StateRunning
	c.mu.Unlock()
	return nil
}

// Stop signals cancellation and blocks until the receiver has fully drained
// and the decode worker has exited. Calling Stop from Created is a no-op.
func (c *Collector) Stop() {
	c.mu.Lock()
	if c.state == StateCreated || c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done

	if c.rawReceiver != nil {
		_ = c.rawReceiver.Close()
	}
	if c.udpReceiver != nil {
		_ = c.udpReceiver.Close()
	}

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()
}

// Snapshot returns the current metrics snapshot.
func (c *Collector) Snapshot() metrics.Snapshot {
	if c.metrics == nil {
		return metrics.Snapshot{}
	}
	return c.metrics.Snapshot()
}

func bindOrAny(addr string) string {
	if addr == "" {
		return "0.0.0.0"
	}
	return addr
}

func buildFilter(bindAddr string, port uint16) (worker.Filter, error) {
	if bindAddr == "" {
		return worker.Filter{BindAny: true, Port: port}, nil
	}
	addr, err := netip.ParseAddr(bindAddr)
	if err != nil {
		return worker.Filter{}, fmt.Errorf("invalid bind address %q: %w", bindAddr, err)
	}
	return worker.Filter{BindAddress: addr, Port: port}, nil
}
