// Package dmx maintains per-universe channel state and drives Art-Net
// output from it.
package dmx

import (
	"github.com/openlumen/artnode/pkg/artnet"
)

// NoChange is the sentinel channel value in Dense and Sparse updates.
// Under the persistent policy it leaves the channel untouched; under the
// non-persistent policy it resolves to zero like every unlisted channel.
const NoChange = -1

// Update is the closed set of input shapes accepted by Buffer.Merge.
type Update interface {
	isUpdate()
}

// Dense addresses channels positionally: element i targets channel i+1.
// Values are 0-255 or NoChange.
type Dense []int

// Sparse maps 1-based channel numbers to values 0-255 or NoChange.
// Channels outside [1,512] are ignored.
type Sparse map[int]int

// Raw writes bytes verbatim into the buffer starting at Offset (0-based),
// clamped to the buffer bounds. No sentinel interpretation.
type Raw struct {
	Data   []byte
	Offset int
}

func (Dense) isUpdate()  {}
func (Sparse) isUpdate() {}
func (Raw) isUpdate()    {}

// Buffer holds the last-known state of one DMX universe and applies channel
// updates under an explicit merge policy. A Buffer is owned by a single
// goroutine; it performs no locking of its own.
type Buffer struct {
	channels   [artnet.UniverseSize]byte
	persistent bool
}

// NewBuffer returns a zero-filled buffer in persistent mode.
func NewBuffer() *Buffer {
	return &Buffer{persistent: true}
}

// SetPersistent switches the merge policy for all future Merge calls. It
// does not retroactively alter buffer contents.
func (b *Buffer) SetPersistent(persistent bool) {
	b.persistent = persistent
}

// Persistent reports the current merge policy.
func (b *Buffer) Persistent() bool {
	return b.persistent
}

// Clear zeroes all 512 channels.
func (b *Buffer) Clear() {
	b.channels = [artnet.UniverseSize]byte{}
}

// Snapshot returns a copy of the channel state. Mutating the returned slice
// does not affect the buffer.
func (b *Buffer) Snapshot() []byte {
	out := make([]byte, artnet.UniverseSize)
	copy(out, b.channels[:])
	return out
}

// Merge applies one update under the current policy. Under the
// non-persistent policy the whole buffer resets to zero before the update
// is applied; the policy is buffer-wide, not per-channel.
func (b *Buffer) Merge(update Update) {
	if !b.persistent {
		b.Clear()
	}

	switch u := update.(type) {
	case Dense:
		for i, v := range u {
			if i >= artnet.UniverseSize {
				break
			}
			if v == NoChange {
				continue // already zero when non-persistent
			}
			b.channels[i] = clampValue(v)
		}
	case Sparse:
		for ch, v := range u {
			if ch < 1 || ch > artnet.UniverseSize {
				continue
			}
			if v == NoChange {
				continue
			}
			b.channels[ch-1] = clampValue(v)
		}
	case Raw:
		data, offset := u.Data, u.Offset
		if offset < 0 {
			if -offset >= len(data) {
				return
			}
			data = data[-offset:]
			offset = 0
		}
		if offset >= artnet.UniverseSize {
			return
		}
		copy(b.channels[offset:], data)
	}
}

// BuildPacket snapshots the first length channels into an ArtDMX packet.
// The requested length is clamped to [0,512]. Sequence and Physical default
// to zero; callers override them on the returned packet as needed.
func (b *Buffer) BuildPacket(universe uint16, length int) *artnet.DMXPacket {
	if length < 0 {
		length = 0
	}
	if length > artnet.UniverseSize {
		length = artnet.UniverseSize
	}
	data := make([]byte, length)
	copy(data, b.channels[:length])
	return &artnet.DMXPacket{
		ProtocolVersion: artnet.ProtocolVersion,
		Universe:        universe,
		Length:          uint16(length),
		Data:            data,
	}
}

func clampValue(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
