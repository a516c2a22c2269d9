package dmx

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlumen/artnode/pkg/artnet"
)

type captureSender struct {
	mu      sync.Mutex
	packets []*artnet.DMXPacket
}

func (c *captureSender) SendDMX(pkt *artnet.DMXPacket) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, pkt)
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets)
}

func (c *captureSender) last() *artnet.DMXPacket {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.packets) == 0 {
		return nil
	}
	return c.packets[len(c.packets)-1]
}

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log.WithField("component", "test")
}

func TestTransmitter_SendsFrames(t *testing.T) {
	sender := &captureSender{}
	tx := NewTransmitter(sender, testLog(), TransmitterConfig{
		Universe: 2,
		ActiveHz: 200,
		IdleHz:   100,
	})

	tx.SetChannel(1, 128)
	tx.Start()
	defer tx.Stop()

	require.Eventually(t, func() bool { return sender.count() >= 3 }, time.Second, 5*time.Millisecond)

	pkt := sender.last()
	require.NotNil(t, pkt)
	assert.Equal(t, uint16(2), pkt.Universe)
	assert.Equal(t, uint16(artnet.UniverseSize), pkt.Length)
	assert.Equal(t, byte(128), pkt.Data[0])
	assert.NotZero(t, pkt.Sequence)
}

func TestTransmitter_SequenceIncrements(t *testing.T) {
	sender := &captureSender{}
	tx := NewTransmitter(sender, testLog(), TransmitterConfig{ActiveHz: 500, IdleHz: 500})

	tx.Start()
	require.Eventually(t, func() bool { return sender.count() >= 4 }, time.Second, time.Millisecond)
	tx.Stop()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	for i := 1; i < len(sender.packets); i++ {
		assert.Equal(t, sender.packets[i-1].Sequence+1, sender.packets[i].Sequence,
			"sequence must increment per frame")
	}
}

func TestTransmitter_MergeVisibleInOutput(t *testing.T) {
	sender := &captureSender{}
	tx := NewTransmitter(sender, testLog(), TransmitterConfig{ActiveHz: 500, IdleHz: 500})
	tx.Start()
	defer tx.Stop()

	tx.Merge(Sparse{10: 255})
	before := sender.count()
	require.Eventually(t, func() bool { return sender.count() > before+1 }, time.Second, time.Millisecond)

	assert.Equal(t, byte(255), sender.last().Data[9])

	tx.Blackout()
	before = sender.count()
	require.Eventually(t, func() bool { return sender.count() > before+1 }, time.Second, time.Millisecond)
	assert.Equal(t, byte(0), sender.last().Data[9])
}

func TestTransmitter_StartStopIdempotent(t *testing.T) {
	sender := &captureSender{}
	tx := NewTransmitter(sender, testLog(), TransmitterConfig{ActiveHz: 100, IdleHz: 100})

	tx.Start()
	tx.Start() // second start is a no-op
	tx.Stop()
	tx.Stop() // second stop is a no-op

	// Restart after stop is legal.
	tx.Start()
	require.Eventually(t, func() bool { return sender.count() >= 1 }, time.Second, time.Millisecond)
	tx.Stop()
}

func TestTransmitter_DropsToIdleRate(t *testing.T) {
	sender := &captureSender{}
	tx := NewTransmitter(sender, testLog(), TransmitterConfig{
		ActiveHz:   200,
		IdleHz:     20,
		ActiveHold: 30 * time.Millisecond,
	})
	tx.Start()
	defer tx.Stop()

	tx.SetChannel(1, 10)

	// During the hold window the active rate applies.
	require.Eventually(t, func() bool {
		tx.mu.Lock()
		defer tx.mu.Unlock()
		return tx.activeMode
	}, time.Second, time.Millisecond)

	// Once the hold expires with no further merges, the rate falls back.
	require.Eventually(t, func() bool {
		tx.mu.Lock()
		defer tx.mu.Unlock()
		return !tx.activeMode && tx.rate == 20
	}, time.Second, 5*time.Millisecond)
}
