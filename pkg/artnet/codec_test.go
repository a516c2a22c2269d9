package artnet

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestEncodeDMX_WireFormat pins the exact byte layout; this is the
// compatibility contract with third-party lighting hardware.
func TestEncodeDMX_WireFormat(t *testing.T) {
	pkt := &DMXPacket{
		ProtocolVersion: 14,
		Sequence:        0,
		Physical:        0,
		Universe:        0,
		Length:          3,
		Data:            []byte{1, 2, 3},
	}

	want := []byte{
		0x41, 0x72, 0x74, 0x2D, 0x4E, 0x65, 0x74, 0x00, // "Art-Net\0"
		0x00, 0x50, // OpCode 0x5000 LE
		0x0E, 0x00, // protocol version 14 LE
		0x00,       // sequence
		0x00,       // physical
		0x00, 0x00, // universe LE
		0x03, 0x00, // length LE
		0x01, 0x02, 0x03, // payload
	}

	got := EncodeDMX(pkt)
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeDMX() = % X, want % X", got, want)
	}
}

func TestDMX_RoundTrip(t *testing.T) {
	for length := 1; length <= UniverseSize; length++ {
		data := make([]byte, length)
		for i := range data {
			data[i] = byte((i*7 + length) % 256)
		}
		pkt := &DMXPacket{
			ProtocolVersion: ProtocolVersion,
			Sequence:        byte(length),
			Physical:        1,
			Universe:        uint16(length % 4),
			Length:          uint16(length),
			Data:            data,
		}

		got := DecodeDMX(EncodeDMX(pkt))
		if got == nil {
			t.Fatalf("length %d: DecodeDMX returned nil", length)
		}
		if diff := cmp.Diff(pkt, got); diff != "" {
			t.Fatalf("length %d: round trip mismatch (-want +got):\n%s", length, diff)
		}
	}
}

func TestDecodeDMX_Rejects(t *testing.T) {
	valid := EncodeDMX(&DMXPacket{ProtocolVersion: 14, Length: 3, Data: []byte{1, 2, 3}})

	corruptSig := append([]byte(nil), valid...)
	corruptSig[0] = 'B'

	wrongOp := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint16(wrongOp[8:10], OpCodePoll)

	truncated := append([]byte(nil), valid[:19]...)
	binary.LittleEndian.PutUint16(truncated[16:18], 300)

	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"short", valid[:17]},
		{"corrupt signature", corruptSig},
		{"wrong opcode", wrongOp},
		{"length beyond payload", truncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeDMX(tt.input); got != nil {
				t.Errorf("DecodeDMX(%s) = %+v, want nil", tt.name, got)
			}
		})
	}
}

func TestEncodePoll(t *testing.T) {
	got := EncodePoll()

	if len(got) != PollPacketSize {
		t.Fatalf("EncodePoll() length = %d, want %d", len(got), PollPacketSize)
	}
	if !bytes.Equal(got[0:8], ID) {
		t.Errorf("EncodePoll() signature = % X", got[0:8])
	}
	if op := binary.LittleEndian.Uint16(got[8:10]); op != OpCodePoll {
		t.Errorf("EncodePoll() opcode = 0x%04x, want 0x%04x", op, OpCodePoll)
	}
	if ver := binary.LittleEndian.Uint16(got[10:12]); ver != ProtocolVersion {
		t.Errorf("EncodePoll() protocol version = %d, want %d", ver, ProtocolVersion)
	}
	if got[12] != 0 || got[13] != 0 {
		t.Errorf("EncodePoll() TalkToMe/Priority = %d/%d, want 0/0", got[12], got[13])
	}
}

// buildPollReply constructs a minimal well-formed ArtPollReply for decoding.
func buildPollReply() []byte {
	buf := make([]byte, PollReplyMinSize)
	copy(buf[0:8], ID)
	binary.LittleEndian.PutUint16(buf[8:10], OpCodePollReply)
	copy(buf[replyOffIP:], []byte{10, 0, 0, 42})
	binary.LittleEndian.PutUint16(buf[replyOffPort:], DefaultPort)
	binary.LittleEndian.PutUint16(buf[replyOffVersion:], 0x0102)
	binary.LittleEndian.PutUint16(buf[replyOffOem:], 0x2755)
	copy(buf[replyOffShortName:], "node-a\x00garbage")
	copy(buf[replyOffLongName:], "A longer node name\x00")
	copy(buf[replyOffNodeReport:], "#0001 [0005] Power On Tests successful\x00")
	binary.LittleEndian.PutUint16(buf[replyOffNumPorts:], 2)
	copy(buf[replyOffPortTypes:], []byte{0x80, 0x80, 0, 0})
	copy(buf[replyOffGoodOutput:], []byte{0x80, 0x80, 0, 0})
	copy(buf[replyOffSwOut:], []byte{0, 1, 0, 0})
	copy(buf[replyOffMAC:], []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01})
	copy(buf[replyOffBindIP:], []byte{10, 0, 0, 42})
	buf[replyOffStyle] = 0x00
	return buf
}

func TestDecodePollReply(t *testing.T) {
	pkt := DecodePollReply(buildPollReply())
	if pkt == nil {
		t.Fatal("DecodePollReply returned nil for valid packet")
	}

	if got := pkt.IP.String(); got != "10.0.0.42" {
		t.Errorf("IP = %s, want 10.0.0.42", got)
	}
	if pkt.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", pkt.Port, DefaultPort)
	}
	if pkt.ShortName != "node-a" {
		t.Errorf("ShortName = %q, want %q", pkt.ShortName, "node-a")
	}
	if pkt.LongName != "A longer node name" {
		t.Errorf("LongName = %q", pkt.LongName)
	}
	if pkt.NumPorts != 2 {
		t.Errorf("NumPorts = %d, want 2", pkt.NumPorts)
	}
	if pkt.PortTypes != [4]byte{0x80, 0x80, 0, 0} {
		t.Errorf("PortTypes = %v", pkt.PortTypes)
	}
	if pkt.MAC != [6]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01} {
		t.Errorf("MAC = % X", pkt.MAC)
	}
	if got := pkt.BindIP.String(); got != "10.0.0.42" {
		t.Errorf("BindIP = %s, want 10.0.0.42", got)
	}
}

func TestDecodePollReply_Rejects(t *testing.T) {
	valid := buildPollReply()

	short := valid[:PollReplyMinSize-1]

	badSig := append([]byte(nil), valid...)
	badSig[3] = 'X'

	badOp := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint16(badOp[8:10], OpCodeDMX)

	for _, tt := range []struct {
		name  string
		input []byte
	}{
		{"short", short},
		{"bad signature", badSig},
		{"bad opcode", badOp},
	} {
		if got := DecodePollReply(tt.input); got != nil {
			t.Errorf("DecodePollReply(%s) = %+v, want nil", tt.name, got)
		}
	}
}

func TestDetect(t *testing.T) {
	dmx := EncodeDMX(&DMXPacket{ProtocolVersion: 14, Length: 1, Data: []byte{255}})

	tests := []struct {
		name string
		data []byte
		want PacketKind
	}{
		{"dmx", dmx, KindDMX},
		{"poll reply", buildPollReply(), KindPollReply},
		{"poll is not parsed", EncodePoll(), KindUnknown},
		{"garbage", []byte("not art-net at all"), KindUnknown},
		{"empty", nil, KindUnknown},
		{"truncated dmx degrades", dmx[:12], KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.data)
			if got.Kind != tt.want {
				t.Errorf("Detect() kind = %d, want %d", got.Kind, tt.want)
			}
			switch tt.want {
			case KindDMX:
				if got.DMX == nil {
					t.Error("Detect() DMX payload missing")
				}
			case KindPollReply:
				if got.PollReply == nil {
					t.Error("Detect() PollReply payload missing")
				}
			default:
				if got.DMX != nil || got.PollReply != nil {
					t.Error("Detect() unknown result carries a payload")
				}
			}
		})
	}
}
