// Package conn implements the Connection: the transport-independent,
// per-call reassembly and retransmit state machine that turns a
// Multiplexer/Sink pair and a LowLevelProtocol codec into one reliable,
// ordered byte stream, plus the two endpoint framings built on top of it
// (EndpointServerConnection, EndpointClientConnection).
package conn

import "encoding/binary"

// ConnectionPos is a Connection's read or write cursor: one (frame id,
// byte offset) pair per tracked layer. Layer 0 is the raw byte stream,
// layer 1 the argument boundary, layer 2 the call boundary, mirroring
// the layers LowLevelProtocol tracks frame IDs for.
type ConnectionPos struct {
	FrameIDs [3]uint16
	Offsets  [3]uint16
}

// posBlockSize is the wire size of an encoded ConnectionPos plus its
// one-byte kind tag: 1 + 3*(2+2).
const posBlockSize = 13

const (
	// blockKindAck tags a position block that reports how far this side
	// has received, letting the peer drop acknowledged TX Fifo data.
	blockKindAck byte = 0
	// blockKindPosHeader tags a position block an output slot writes
	// once per attach epoch, letting a newly attached sink's peer
	// resynchronize its receiver state for this Connection.
	blockKindPosHeader byte = 1
)

// encodePos serializes kind and pos into the 13-byte layer-0 block
// ConnectionInputSlot peels off the front of every inbound packet and
// ConnectionOutputSlot prepends to outbound tasks. This 13-byte framing
// is this implementation's concrete choice for what spec.md describes
// only as "protocol-specific framing" for the ack block; reusing the
// identical layout for the once-per-epoch position header keeps both
// uses of ConnectionPos going over the wire through one code path.
func encodePos(kind byte, pos ConnectionPos) [posBlockSize]byte {
	var buf [posBlockSize]byte
	buf[0] = kind
	off := 1
	for l := 0; l < 3; l++ {
		binary.BigEndian.PutUint16(buf[off:], pos.FrameIDs[l])
		binary.BigEndian.PutUint16(buf[off+2:], pos.Offsets[l])
		off += 4
	}
	return buf
}

func decodePos(buf [posBlockSize]byte) (kind byte, pos ConnectionPos) {
	kind = buf[0]
	off := 1
	for l := 0; l < 3; l++ {
		pos.FrameIDs[l] = binary.BigEndian.Uint16(buf[off:])
		pos.Offsets[l] = binary.BigEndian.Uint16(buf[off+2:])
		off += 4
	}
	return kind, pos
}
