package artnet

import (
	"bytes"
	"encoding/binary"
	"net"
)

// All multi-byte integers are encoded little-endian. The Art-Net 4 document
// describes ProtVer and Length as high-byte-first, but hardware in the field
// accepts either and the encoder and decoder here must agree with each other;
// little-endian matches the rest of the header.

// EncodeDMX serialises an ArtDMX packet. The result is DMXHeaderSize +
// len(pkt.Data) bytes. The caller is responsible for the Length/Data
// invariant; Length is written as given.
func EncodeDMX(pkt *DMXPacket) []byte {
	buf := make([]byte, DMXHeaderSize+len(pkt.Data))
	copy(buf[0:8], ID)
	binary.LittleEndian.PutUint16(buf[8:10], OpCodeDMX)
	binary.LittleEndian.PutUint16(buf[10:12], pkt.ProtocolVersion)
	buf[12] = pkt.Sequence
	buf[13] = pkt.Physical
	binary.LittleEndian.PutUint16(buf[14:16], pkt.Universe)
	binary.LittleEndian.PutUint16(buf[16:18], pkt.Length)
	copy(buf[18:], pkt.Data)
	return buf
}

// DecodeDMX parses an ArtDMX packet. It returns nil for anything that is not
// a well-formed ArtDMX datagram: short input, wrong signature, wrong opcode,
// or a declared length the payload cannot cover. Decoding never errors;
// unrecognized traffic on the Art-Net port is normal.
func DecodeDMX(data []byte) *DMXPacket {
	if len(data) < DMXHeaderSize {
		return nil
	}
	if !bytes.Equal(data[0:8], ID) {
		return nil
	}
	if binary.LittleEndian.Uint16(data[8:10]) != OpCodeDMX {
		return nil
	}
	length := binary.LittleEndian.Uint16(data[16:18])
	if len(data) < DMXHeaderSize+int(length) {
		return nil
	}
	payload := make([]byte, length)
	copy(payload, data[18:18+int(length)])
	return &DMXPacket{
		ProtocolVersion: binary.LittleEndian.Uint16(data[10:12]),
		Sequence:        data[12],
		Physical:        data[13],
		Universe:        binary.LittleEndian.Uint16(data[14:16]),
		Length:          length,
		Data:            payload,
	}
}

// EncodePoll serialises an ArtPoll discovery request. The packet is fixed at
// PollPacketSize bytes with TalkToMe and Priority both zero.
func EncodePoll() []byte {
	buf := make([]byte, PollPacketSize)
	copy(buf[0:8], ID)
	binary.LittleEndian.PutUint16(buf[8:10], OpCodePoll)
	binary.LittleEndian.PutUint16(buf[10:12], ProtocolVersion)
	buf[12] = 0 // TalkToMe
	buf[13] = 0 // Priority
	return buf
}

// ArtPollReply field offsets, from the start of the packet signature.
// BindIp lives at 207, after the MAC field; the 198-based offset seen in
// some implementations overlaps MAC and is wrong.
const (
	replyOffIP         = 10
	replyOffPort       = 14
	replyOffVersion    = 16
	replyOffOem        = 20
	replyOffShortName  = 26
	replyOffLongName   = 44
	replyOffNodeReport = 108
	replyOffNumPorts   = 172
	replyOffPortTypes  = 174
	replyOffGoodInput  = 178
	replyOffGoodOutput = 182
	replyOffSwIn       = 186
	replyOffSwOut      = 190
	replyOffMAC        = 201
	replyOffBindIP     = 207
	replyOffStyle      = 213

	replyShortNameLen  = 18
	replyLongNameLen   = 64
	replyNodeReportLen = 64
)

// DecodePollReply parses an ArtPollReply packet. It returns nil for input
// shorter than PollReplyMinSize bytes or with a signature or opcode
// mismatch. Name fields stop at the first NUL or at their declared maximum.
func DecodePollReply(data []byte) *PollReplyPacket {
	if len(data) < PollReplyMinSize {
		return nil
	}
	if !bytes.Equal(data[0:8], ID) {
		return nil
	}
	if binary.LittleEndian.Uint16(data[8:10]) != OpCodePollReply {
		return nil
	}

	pkt := &PollReplyPacket{
		IP:         net.IPv4(data[replyOffIP], data[replyOffIP+1], data[replyOffIP+2], data[replyOffIP+3]).To4(),
		Port:       binary.LittleEndian.Uint16(data[replyOffPort : replyOffPort+2]),
		Version:    binary.LittleEndian.Uint16(data[replyOffVersion : replyOffVersion+2]),
		Oem:        binary.LittleEndian.Uint16(data[replyOffOem : replyOffOem+2]),
		ShortName:  cstring(data[replyOffShortName : replyOffShortName+replyShortNameLen]),
		LongName:   cstring(data[replyOffLongName : replyOffLongName+replyLongNameLen]),
		NodeReport: cstring(data[replyOffNodeReport : replyOffNodeReport+replyNodeReportLen]),
		NumPorts:   binary.LittleEndian.Uint16(data[replyOffNumPorts : replyOffNumPorts+2]),
		BindIP:     net.IPv4(data[replyOffBindIP], data[replyOffBindIP+1], data[replyOffBindIP+2], data[replyOffBindIP+3]).To4(),
		Style:      data[replyOffStyle],
	}
	copy(pkt.PortTypes[:], data[replyOffPortTypes:replyOffPortTypes+4])
	copy(pkt.GoodInput[:], data[replyOffGoodInput:replyOffGoodInput+4])
	copy(pkt.GoodOutput[:], data[replyOffGoodOutput:replyOffGoodOutput+4])
	copy(pkt.SwIn[:], data[replyOffSwIn:replyOffSwIn+4])
	copy(pkt.SwOut[:], data[replyOffSwOut:replyOffSwOut+4])
	copy(pkt.MAC[:], data[replyOffMAC:replyOffMAC+6])
	return pkt
}

// Detect inspects the signature and opcode, dispatches to the matching
// decoder, and degrades to KindUnknown on any decode failure so callers can
// fall back to raw-data handling.
func Detect(data []byte) Packet {
	if len(data) < 10 || !bytes.Equal(data[0:8], ID) {
		return Packet{Kind: KindUnknown}
	}
	switch binary.LittleEndian.Uint16(data[8:10]) {
	case OpCodeDMX:
		if pkt := DecodeDMX(data); pkt != nil {
			return Packet{Kind: KindDMX, DMX: pkt}
		}
	case OpCodePollReply:
		if pkt := DecodePollReply(data); pkt != nil {
			return Packet{Kind: KindPollReply, PollReply: pkt}
		}
	}
	return Packet{Kind: KindUnknown}
}

// cstring returns the bytes before the first NUL as a string.
func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
