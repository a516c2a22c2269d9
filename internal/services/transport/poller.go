// Package transport turns a UDP socket into an event source: a background
// worker drains incoming datagrams and hands them to the owner in arrival
// order.
package transport

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultPollInterval bounds how long the worker waits on an idle socket
// before re-checking for cancellation.
const DefaultPollInterval = 10 * time.Millisecond

// maxDatagram covers the largest Art-Net packet (ArtDMX with a full
// universe is 530 bytes) with room for foreign traffic.
const maxDatagram = 1024

// Sink receives everything the worker produces. Both methods are invoked
// from the worker goroutine, one call at a time, in socket receive order.
type Sink interface {
	// Receive is called once per datagram. The data slice is owned by the
	// callee.
	Receive(data []byte, addr *net.UDPAddr)
	// Error is called for receive failures that are neither a deadline
	// timeout nor a closed socket. The loop continues after reporting.
	Error(err error)
}

// Conn is the socket surface the poller drives. *net.UDPConn satisfies it.
type Conn interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// State is the poller lifecycle phase.
type State int

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

// Poller runs one worker goroutine that drains a UDP socket. The socket is
// owned by the caller; the poller only closes it as part of Stop. A stopped
// poller may be started again, which spawns a fresh worker.
type Poller struct {
	mu sync.Mutex

	log      *logrus.Entry
	conn     Conn
	sink     Sink
	interval time.Duration

	state State
	done  chan struct{}
}

// NewPoller wraps conn. The poll interval falls back to DefaultPollInterval
// when interval is not positive.
func NewPoller(conn Conn, sink Sink, log *logrus.Entry, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	closed := make(chan struct{})
	close(closed)
	return &Poller{
		log:      log,
		conn:     conn,
		sink:     sink,
		interval: interval,
		done:     closed,
	}
}

// Start spawns the worker. Calling Start while the poller is already
// running is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateRunning {
		return
	}
	p.state = StateRunning
	done := make(chan struct{})
	p.done = done
	go p.run(done)
}

// Stop cancels the worker, closes the socket and waits for the worker to
// exit. Idempotent, and safe to call concurrently with an independent close
// of the same socket: a second close of a *net.UDPConn returns an error
// without side effects.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state == StateRunning {
		p.state = StateStopping
	}
	done := p.done
	// Closing the socket unblocks the worker's pending read immediately.
	_ = p.conn.Close()
	p.mu.Unlock()

	<-done
}

// Done returns a channel that is closed exactly once when the current
// worker exits, for any reason. No data or error callbacks follow the
// close.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Running reports whether a worker is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateRunning
}

func (p *Poller) run(done chan struct{}) {
	defer func() {
		p.mu.Lock()
		p.state = StateStopped
		p.mu.Unlock()
		close(done)
	}()

	buf := make([]byte, maxDatagram)
	for {
		if p.stopping() {
			return
		}

		// The deadline doubles as the poll sleep: an idle socket parks the
		// worker in the runtime's netpoller for at most one interval, while
		// back-to-back datagrams are drained without delay.
		_ = p.conn.SetReadDeadline(time.Now().Add(p.interval))
		n, addr, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				// Expected during shutdown; ends this worker only.
				p.log.Debug("socket closed, receive loop exiting")
				return
			}
			if p.stopping() {
				return
			}
			p.sink.Error(err)
			// A persistently failing socket must not spin the worker; back
			// off for one poll interval before retrying.
			time.Sleep(p.interval)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		p.sink.Receive(data, addr)
	}
}

func (p *Poller) stopping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateStopping
}
