package dmx

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openlumen/artnode/pkg/artnet"
)

// Sender delivers an ArtDMX packet to the network. The endpoint's Broadcast
// satisfies this.
type Sender interface {
	SendDMX(pkt *artnet.DMXPacket) error
}

// TransmitterConfig controls the adaptive output rates.
type TransmitterConfig struct {
	Universe   uint16
	ActiveHz   int           // transmission rate while changes are flowing
	IdleHz     int           // keep-alive rate when the universe is quiet
	ActiveHold time.Duration // how long after the last change to stay at ActiveHz
}

// DefaultTransmitterConfig returns the standard rates: 44Hz active (the DMX
// line rate), 1Hz keep-alive, two seconds of hold.
func DefaultTransmitterConfig() TransmitterConfig {
	return TransmitterConfig{
		ActiveHz:   44,
		IdleHz:     1,
		ActiveHold: 2 * time.Second,
	}
}

// Transmitter owns one universe Buffer and retransmits it over Art-Net at an
// adaptive rate: fast while merges are arriving, slow keep-alive otherwise.
// All buffer access goes through the Transmitter's locked methods.
type Transmitter struct {
	mu sync.Mutex

	log    *logrus.Entry
	sender Sender
	buffer *Buffer
	cfg    TransmitterConfig

	sequence   byte
	dirty      bool
	lastChange time.Time
	activeMode bool
	rate       int

	running  bool
	stopChan chan struct{}
	rateKick chan struct{}
}

// NewTransmitter creates a stopped transmitter around a fresh buffer.
func NewTransmitter(sender Sender, log *logrus.Entry, cfg TransmitterConfig) *Transmitter {
	if cfg.ActiveHz <= 0 {
		cfg.ActiveHz = 44
	}
	if cfg.IdleHz <= 0 {
		cfg.IdleHz = 1
	}
	if cfg.ActiveHold <= 0 {
		cfg.ActiveHold = 2 * time.Second
	}
	return &Transmitter{
		log:      log,
		sender:   sender,
		buffer:   NewBuffer(),
		cfg:      cfg,
		rate:     cfg.IdleHz,
		rateKick: make(chan struct{}, 1),
	}
}

// Start launches the transmit loop. Calling Start on a running transmitter
// is a no-op.
func (t *Transmitter) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.stopChan = make(chan struct{})
	go t.loop(t.stopChan)
}

// Stop halts the transmit loop. Idempotent.
func (t *Transmitter) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stopChan)
}

// Merge applies an update to the universe buffer and marks it for
// accelerated transmission.
func (t *Transmitter) Merge(update Update) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buffer.Merge(update)
	t.markDirty()
}

// SetChannel sets a single 1-based channel.
func (t *Transmitter) SetChannel(channel, value int) {
	t.Merge(Sparse{channel: value})
}

// SetPersistent switches the buffer's merge policy.
func (t *Transmitter) SetPersistent(persistent bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buffer.SetPersistent(persistent)
}

// Blackout zeroes the universe and transmits the change.
func (t *Transmitter) Blackout() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buffer.Clear()
	t.markDirty()
}

// Snapshot returns a copy of the current universe state.
func (t *Transmitter) Snapshot() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buffer.Snapshot()
}

// markDirty flags pending changes and switches to the active rate.
// Callers hold t.mu.
func (t *Transmitter) markDirty() {
	t.dirty = true
	t.lastChange = time.Now()
	if !t.activeMode {
		t.activeMode = true
		t.rate = t.cfg.ActiveHz
		select {
		case t.rateKick <- struct{}{}:
		default:
		}
	}
}

func (t *Transmitter) loop(stop <-chan struct{}) {
	t.mu.Lock()
	interval := time.Second / time.Duration(t.rate)
	t.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	lastRate := 0

	for {
		select {
		case <-stop:
			return
		case <-t.rateKick:
			// Rate changed mid-interval; restart the ticker so the first
			// active-rate frame is not delayed by a full idle interval.
		case <-ticker.C:
			t.transmit()
		}

		t.mu.Lock()
		rate := t.rate
		t.mu.Unlock()
		if rate != lastRate {
			ticker.Reset(time.Second / time.Duration(rate))
			lastRate = rate
		}
	}
}

// transmit sends one frame and updates the rate state.
func (t *Transmitter) transmit() {
	t.mu.Lock()
	if t.activeMode && !t.dirty && time.Since(t.lastChange) > t.cfg.ActiveHold {
		t.activeMode = false
		t.rate = t.cfg.IdleHz
		t.log.WithField("rate_hz", t.rate).Debug("dmx output idle, dropping to keep-alive rate")
	}
	t.sequence++
	pkt := t.buffer.BuildPacket(t.cfg.Universe, artnet.UniverseSize)
	pkt.Sequence = t.sequence
	t.dirty = false
	t.mu.Unlock()

	if err := t.sender.SendDMX(pkt); err != nil {
		t.log.WithError(err).Warn("dmx frame transmission failed")
	}
}
