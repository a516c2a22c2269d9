package endpoint

import (
	"net"

	"github.com/openlumen/artnode/pkg/artnet"
)

// EventType discriminates the closed set of receive-path events.
type EventType int

const (
	// EventDMX carries a decoded ArtDMX packet.
	EventDMX EventType = iota
	// EventPollReply carries a decoded ArtPollReply packet.
	EventPollReply
	// EventRaw carries a datagram that is not recognizable Art-Net;
	// foreign traffic on the port is normal and non-fatal.
	EventRaw
	// EventError carries a non-fatal receive-path failure.
	EventError
)

// Event is one receive-path occurrence. The field matching Type is set;
// Addr identifies the datagram source for the data kinds.
type Event struct {
	Type      EventType
	DMX       *artnet.DMXPacket
	PollReply *artnet.PollReplyPacket
	Raw       []byte
	Addr      *net.UDPAddr
	Err       error
}
