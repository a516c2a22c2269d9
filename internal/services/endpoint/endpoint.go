// Package endpoint composes the Art-Net codec, the universe buffer and the
// transport poller behind one bound UDP port.
package endpoint

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openlumen/artnode/internal/services/dmx"
	"github.com/openlumen/artnode/internal/services/transport"
	"github.com/openlumen/artnode/pkg/artnet"
)

// BindError reports that the endpoint could not be bound; fatal for this
// endpoint instance.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("artnet: bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// SendError reports a single failed send attempt. Non-fatal: endpoint state
// is unchanged and later sends may succeed.
type SendError struct {
	Target string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("artnet: send to %s: %v", e.Target, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// ErrClosed is returned from send operations after Close.
var ErrClosed = net.ErrClosed

// Config holds endpoint settings.
type Config struct {
	// BindAddr is the local IPv4 address to bind; empty binds all
	// interfaces.
	BindAddr string
	// Port is the UDP port, normally artnet.DefaultPort; zero binds an
	// ephemeral port.
	Port int
	// BroadcastAddr enables native broadcast when set (for example
	// "10.0.0.255" or "255.255.255.255"). When empty, Broadcast fans out
	// over SubnetPrefix instead.
	BroadcastAddr string
	// SubnetPrefix is the first three octets of the local /24, for example
	// "10.0.0"; used for the simulated broadcast fan-out.
	SubnetPrefix string
	// PollInterval bounds the receive loop's idle wait.
	PollInterval time.Duration
	// EventBuffer sizes the decoded-event channel.
	EventBuffer int
}

// Endpoint owns a bound UDP socket, one universe buffer, and the background
// poller draining the socket. Decoded traffic is delivered on Events(),
// written only by the poller worker and read only by the owner.
//
// The universe buffer and the outbound operations belong to the owning
// goroutine; only the event channel crosses goroutines.
type Endpoint struct {
	log    *logrus.Entry
	cfg    Config
	conn   *net.UDPConn
	poller *transport.Poller
	buffer *dmx.Buffer

	sequence byte

	events    chan Event
	closeOnce sync.Once
	closed    atomic.Bool
	dropped   atomic.Uint64
}

// New creates an unbound endpoint.
func New(cfg Config, log *logrus.Entry) *Endpoint {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	return &Endpoint{
		log:    log,
		cfg:    cfg,
		buffer: dmx.NewBuffer(),
		events: make(chan Event, cfg.EventBuffer),
	}
}

// Bind opens the UDP socket and starts the receive poller.
func (e *Endpoint) Bind() error {
	addr := &net.UDPAddr{Port: e.cfg.Port}
	if e.cfg.BindAddr != "" {
		ip := net.ParseIP(e.cfg.BindAddr)
		if ip == nil {
			return &BindError{Addr: e.cfg.BindAddr, Err: fmt.Errorf("invalid address")}
		}
		addr.IP = ip
	}

	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return &BindError{Addr: addr.String(), Err: err}
	}
	e.conn = conn

	e.poller = transport.NewPoller(conn, (*receiveSink)(e), e.log, e.cfg.PollInterval)
	e.poller.Start()

	e.log.WithFields(logrus.Fields{
		"addr": conn.LocalAddr().String(),
	}).Info("art-net endpoint bound")
	return nil
}

// Buffer exposes the endpoint's universe buffer. It is confined to the
// owning goroutine; the poller never touches it.
func (e *Endpoint) Buffer() *dmx.Buffer { return e.buffer }

// Events returns the decoded-event channel. Receive order matches socket
// arrival order.
func (e *Endpoint) Events() <-chan Event { return e.events }

// Done is closed when the receive worker has exited and no further data
// events will arrive.
func (e *Endpoint) Done() <-chan struct{} {
	if e.poller == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return e.poller.Done()
}

// LocalAddr returns the bound address, or nil before Bind.
func (e *Endpoint) LocalAddr() *net.UDPAddr {
	if e.conn == nil {
		return nil
	}
	return e.conn.LocalAddr().(*net.UDPAddr)
}

// Dropped reports how many events were discarded because the consumer fell
// behind the event buffer.
func (e *Endpoint) Dropped() uint64 { return e.dropped.Load() }

// Send transmits raw bytes to a single host. Failures come back as a
// *SendError and leave the endpoint unchanged.
func (e *Endpoint) Send(data []byte, host string, port int) error {
	if e.closed.Load() || e.conn == nil {
		return &SendError{Target: host, Err: ErrClosed}
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return &SendError{Target: host, Err: fmt.Errorf("invalid host")}
	}
	if _, err := e.conn.WriteToUDP(data, &net.UDPAddr{IP: ip, Port: port}); err != nil {
		return &SendError{Target: fmt.Sprintf("%s:%d", host, port), Err: err}
	}
	return nil
}

// SendDMXTo encodes and unicasts an ArtDMX packet.
func (e *Endpoint) SendDMXTo(pkt *artnet.DMXPacket, host string, port int) error {
	return e.Send(artnet.EncodeDMX(pkt), host, port)
}

// SendDMX broadcasts an ArtDMX packet; this satisfies dmx.Sender so a
// Transmitter can drive the endpoint.
func (e *Endpoint) SendDMX(pkt *artnet.DMXPacket) error {
	_, err := e.Broadcast(artnet.EncodeDMX(pkt))
	return err
}

// SendUniverse builds an ArtDMX frame from the endpoint's buffer, stamps
// the next sequence number, and broadcasts it.
func (e *Endpoint) SendUniverse(universe uint16, length int) error {
	e.sequence++
	pkt := e.buffer.BuildPacket(universe, length)
	pkt.Sequence = e.sequence
	return e.SendDMX(pkt)
}

// SendPoll broadcasts an ArtPoll discovery request.
func (e *Endpoint) SendPoll() error {
	_, err := e.Broadcast(artnet.EncodePoll())
	return err
}

// Broadcast delivers data to every node on the subnet. With a configured
// broadcast address it is a single native send; otherwise it fans out to
// {prefix}.1 through {prefix}.254, skipping the endpoint's own address.
// Per-target failures during the fan-out are logged and swallowed so one
// unreachable host never aborts the rest. The returned count is the number
// of successful sends.
func (e *Endpoint) Broadcast(data []byte) (int, error) {
	if e.closed.Load() || e.conn == nil {
		return 0, &SendError{Target: "broadcast", Err: ErrClosed}
	}

	if e.cfg.BroadcastAddr != "" {
		if err := e.Send(data, e.cfg.BroadcastAddr, e.cfg.Port); err != nil {
			return 0, err
		}
		return 1, nil
	}

	if e.cfg.SubnetPrefix == "" {
		return 0, &SendError{Target: "broadcast", Err: fmt.Errorf("no broadcast address or subnet prefix configured")}
	}

	sent := 0
	for _, host := range broadcastTargets(e.cfg.SubnetPrefix, e.cfg.BindAddr) {
		if err := e.Send(data, host, e.cfg.Port); err != nil {
			e.log.WithError(err).WithField("host", host).Debug("broadcast target unreachable")
			continue
		}
		sent++
	}
	return sent, nil
}

// broadcastTargets enumerates {prefix}.1 .. {prefix}.254 without self.
func broadcastTargets(prefix, self string) []string {
	targets := make([]string, 0, 254)
	for i := 1; i <= 254; i++ {
		host := fmt.Sprintf("%s.%d", prefix, i)
		if host == self {
			continue
		}
		targets = append(targets, host)
	}
	return targets
}

// Close stops the poller, closes the socket and drops the endpoint into a
// terminal state where every send returns ErrClosed. Idempotent.
func (e *Endpoint) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if e.poller != nil {
			e.poller.Stop()
		} else if e.conn != nil {
			_ = e.conn.Close()
		}
		e.log.Info("art-net endpoint closed")
	})
}

// receiveSink adapts the endpoint to transport.Sink. Its methods run on the
// poller worker, making the worker the event channel's only writer.
type receiveSink Endpoint

func (s *receiveSink) Receive(data []byte, addr *net.UDPAddr) {
	e := (*Endpoint)(s)
	e.dispatch(e.onReceive(data, addr))
}

func (s *receiveSink) Error(err error) {
	e := (*Endpoint)(s)
	e.dispatch(Event{Type: EventError, Err: err})
}

// onReceive classifies one datagram. Unrecognized traffic degrades to a raw
// event; it never fails.
func (e *Endpoint) onReceive(data []byte, addr *net.UDPAddr) Event {
	pkt := artnet.Detect(data)
	switch pkt.Kind {
	case artnet.KindDMX:
		return Event{Type: EventDMX, DMX: pkt.DMX, Addr: addr}
	case artnet.KindPollReply:
		return Event{Type: EventPollReply, PollReply: pkt.PollReply, Addr: addr}
	default:
		return Event{Type: EventRaw, Raw: data, Addr: addr}
	}
}

// dispatch never blocks the worker: when the consumer lags, events are
// dropped and counted.
func (e *Endpoint) dispatch(ev Event) {
	select {
	case e.events <- ev:
	default:
		if e.dropped.Add(1)%100 == 1 {
			e.log.WithField("dropped", e.dropped.Load()).Warn("event consumer lagging, dropping events")
		}
	}
}
