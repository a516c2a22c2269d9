// Package artnet implements the Art-Net wire format for DMX transport
// and node discovery: ArtDMX, ArtPoll and ArtPollReply.
package artnet

import "net"

const (
	// OpCodeDMX is the Art-Net operation code for DMX channel data.
	OpCodeDMX uint16 = 0x5000
	// OpCodePoll is the Art-Net operation code for node discovery requests.
	OpCodePoll uint16 = 0x2000
	// OpCodePollReply is the Art-Net operation code for discovery responses.
	OpCodePollReply uint16 = 0x2100

	// ProtocolVersion is the Art-Net protocol revision carried in packets.
	ProtocolVersion uint16 = 14

	// UniverseSize is the number of DMX channels in one universe.
	UniverseSize = 512

	// DMXHeaderSize is the fixed ArtDMX header length; channel data follows.
	DMXHeaderSize = 18
	// PollPacketSize is the fixed size of an ArtPoll packet.
	PollPacketSize = 14
	// PollReplyMinSize is the minimum length of a decodable ArtPollReply.
	PollReplyMinSize = 239

	// DefaultPort is the standard Art-Net UDP port.
	DefaultPort = 6454
)

// ID is the eight-byte packet signature that opens every Art-Net packet.
var ID = []byte{'A', 'r', 't', '-', 'N', 'e', 't', 0x00}

// DMXPacket is one universe's worth of channel data as carried by ArtDMX.
// Data holds exactly Length bytes, 1 <= Length <= 512.
type DMXPacket struct {
	ProtocolVersion uint16
	Sequence        byte
	Physical        byte
	Universe        uint16
	Length          uint16
	Data            []byte
}

// PollReplyPacket is the decoded form of an ArtPollReply. It is a read-only
// snapshot of the responding node's self-description.
type PollReplyPacket struct {
	IP         net.IP
	Port       uint16
	Version    uint16
	Oem        uint16
	ShortName  string
	LongName   string
	NodeReport string
	NumPorts   uint16
	PortTypes  [4]byte
	GoodInput  [4]byte
	GoodOutput [4]byte
	SwIn       [4]byte
	SwOut      [4]byte
	MAC        [6]byte
	BindIP     net.IP
	Style      byte
}

// PacketKind classifies the result of Detect.
type PacketKind int

const (
	// KindUnknown marks input that is not a recognized Art-Net packet.
	KindUnknown PacketKind = iota
	// KindDMX marks a decoded ArtDMX packet.
	KindDMX
	// KindPollReply marks a decoded ArtPollReply packet.
	KindPollReply
)

// Packet is the closed result variant returned by Detect. Exactly one of
// DMX and PollReply is set for the matching kind; both are nil for
// KindUnknown.
type Packet struct {
	Kind      PacketKind
	DMX       *DMXPacket
	PollReply *PollReplyPacket
}
