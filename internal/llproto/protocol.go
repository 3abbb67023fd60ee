// Package llproto implements the LowLevelProtocol: the stateless transform
// between a BufChain of Chunks and the bit-packed packet payload that
// travels over a FrameStreamSink. See the connection layer's wire-format
// description for the exact byte layout this package implements.
package llproto

import "github.com/fibrefabric/fibre/internal/wire"

// SenderState holds the per-layer frame IDs and byte offsets. Pack
// advances the frame IDs as it serializes frame boundaries and resets a
// layer's offset to zero when its frame closes; it does not advance
// Offsets by the bytes it packs. Unpack sets Offsets only from a
// header's offset bytes. ReceiverState is the same shape, tracked
// independently per direction.
type SenderState struct {
	FrameIDs [wire.MaxLayers]uint16
	Offsets  [wire.MaxLayers]uint16
}

// ReceiverState is SenderState's counterpart on the unpacking side; the
// two share a representation because both only ever track frame IDs and
// byte offsets per layer.
type ReceiverState = SenderState

// inc bumps the frame ID at layer and every deeper layer, and resets
// their offsets to zero — the bookkeeping step that follows closing a
// frame boundary at layer.
func (s *SenderState) inc(layer uint8) {
	for i := int(layer); i < wire.MaxLayers; i++ {
		s.FrameIDs[i]++
		s.Offsets[i] = 0
	}
}

const (
	maxInlineChunkSize = 0x1e // 30: largest size encoded directly in the length byte
	restOfPacketSize   = 0x1f // 31: "all remaining packet bytes are payload"
)

// Pack serializes as many leading chunks of chain as fit into *packet,
// advancing state and shrinking *packet to the unused remainder. It
// returns an iterator to the first chunk/byte of chain that could not be
// packed. If the header alone does not fit, Pack makes no changes to
// *packet and returns chain.Begin() (clean failure, as spec.md requires).
func Pack(state *SenderState, chain wire.BufChain, packet *[]byte) wire.BufIt {
	if chain.NChunks() == 0 {
		return chain.Begin()
	}

	var maxLayer uint8
	var includeOffsets [wire.MaxLayers]bool
	nOffsets := 0

	scan := chain
	for scan.NChunks() > 0 {
		ch := scan.Front()
		if ch.Layer >= wire.MaxLayers {
			return chain.Begin() // illegal layer
		}
		if ch.Layer > maxLayer {
			maxLayer = ch.Layer
		}
		if ch.IsBuf() && state.Offsets[ch.Layer] != 0 && !includeOffsets[ch.Layer] {
			includeOffsets[ch.Layer] = true
			nOffsets++
		}
		scan = scan.SkipChunks(1)
	}

	out := *packet
	headerLen := 1 + int(maxLayer) + 1 + nOffsets
	if len(out) < headerLen {
		return chain.Begin() // packet too short for header
	}

	pos := 0
	out[pos] = byte((uint16(1) << (maxLayer + 1)) - 1)
	pos++

	for i := 0; i <= int(maxLayer); i++ {
		hasOffset := includeOffsets[i]
		b := byte(state.FrameIDs[i]<<1) & 0xfe
		if hasOffset {
			b |= 1
		}
		out[pos] = b
		pos++
		if hasOffset {
			if state.Offsets[i]&0x80 != 0 {
				return chain.End() // offset rollover unsupported
			}
			out[pos] = byte(state.Offsets[i] & 0x7f)
			pos++
		}
	}

	layer := maxLayer
	lengthFieldIdx := -1

	for chain.NChunks() > 0 {
		ch := chain.Front()

		if ch.IsFrameBoundary() && lengthFieldIdx >= 0 &&
			uint16(ch.Layer)+uint16(out[lengthFieldIdx]&0x3) == uint16(layer) &&
			layer-ch.Layer <= 1 {
			out[lengthFieldIdx] = (out[lengthFieldIdx] & 0x7c) | (layer - ch.Layer + 1)
			state.inc(ch.Layer)
			chain = chain.SkipChunks(1)
			continue
		}

		if ch.Layer != layer {
			if len(out)-pos < 1 {
				return chain.Begin() // packet full
			}
			layer = ch.Layer
			out[pos] = 0x80 | layer
			pos++
		}

		if ch.IsBuf() {
			if len(ch.Buf) == 0 {
				chain = chain.SkipChunks(1)
				continue
			}
			if len(out)-pos < 1 {
				return chain.Begin() // packet full
			}
			lengthFieldIdx = pos
			pos++
			avail := len(out) - pos
			var nCopy int
			if len(ch.Buf) >= avail {
				out[lengthFieldIdx] = restOfPacketSize << 2
				nCopy = avail
			} else {
				n := len(ch.Buf)
				if n > maxInlineChunkSize {
					n = maxInlineChunkSize
				}
				out[lengthFieldIdx] = byte(n) << 2
				nCopy = n
			}
			copy(out[pos:pos+nCopy], ch.Buf[:nCopy])
			pos += nCopy
			chain = chain.SkipBytes(nCopy)
		} else {
			if len(out)-pos < 1 {
				return chain.Begin() // packet full
			}
			out[pos] = 1 // close frame: size=0, n_close=1
			pos++
			state.inc(ch.Layer)
			lengthFieldIdx = -1
			chain = chain.SkipChunks(1)
		}
	}

	*packet = out[pos:]
	return chain.Begin()
}

// headerLayerBits is the number of layers a single header byte can name
// (bits 0-6; bit 7 is reserved). Layers above this range can still be
// used inside the chunk stream via explicit layer markers, but cannot
// carry a frame-ID block of their own in one packet.
const headerLayerBits = 7

// Unpack decodes packet into chunks written to it, advancing state as
// frame boundaries are crossed. reset_layer receives the shallowest layer
// whose frame ID jumped forward unexpectedly (0xff if none), per the
// connection layer's instructions for discarding stale partial state.
// Unpack returns false only for a malformed packet (reserved bit set,
// truncated field, illegal close count); running out of destination
// space in it is not an error — decoding simply stops early and true is
// returned, since spec.md treats a write-destination overflow as "ignore
// the remaining packet", not a protocol violation.
func Unpack(state *ReceiverState, packet []byte, resetLayer *uint8, it wire.WriteIterator) bool {
	if len(packet) < 1 {
		return false
	}

	flags := packet[0]
	packet = packet[1:]

	if flags&0x80 != 0 {
		return false // reserved bit set
	}

	present := flags & 0x7f
	lowestLayer := findFirstSet(present)

	var layer uint8
	*resetLayer = 0xff

	for i := 0; i < headerLayerBits; i++ {
		if present&(1<<uint(i)) == 0 {
			continue
		}
		layer = uint8(i)

		if len(packet) < 1 {
			return false
		}
		hasOffset := packet[0]&1 != 0
		newFrameID := uint16(packet[0] >> 1)
		packet = packet[1:]

		// Frame IDs travel modulo 128: compare and advance on that basis.
		delta := (newFrameID - state.FrameIDs[i]) & 0x7f
		if delta != 0 {
			if uint8(i) == lowestLayer {
				return true // insufficient information to resume
			}
			if uint8(i) < *resetLayer {
				*resetLayer = uint8(i)
			}
		}
		state.FrameIDs[i] += delta

		if hasOffset {
			if len(packet) < 1 {
				return false
			}
			if packet[0]&0x80 != 0 {
				return false // reserved bit set
			}
			state.Offsets[i] = uint16(packet[0])
			packet = packet[1:]
		}
	}

	for len(packet) > 0 {
		if packet[0]&0x80 != 0 {
			if packet[0]&0x70 != 0 {
				return false // malformed: reserved bits set in layer marker
			}
			layer = packet[0] & 0xf
			packet = packet[1:]
			continue
		}

		nClose := packet[0] & 0x03
		size := (packet[0] >> 2) & 0x1f
		packet = packet[1:]

		n := int(size)
		if size == restOfPacketSize {
			n = len(packet)
		} else if n > len(packet) {
			return false // malformed: declared size exceeds remaining packet
		}

		if int(nClose) > int(layer)+1 {
			return false // malformed: illegal close count
		}

		if n > 0 {
			if !it.HasFreeSpace() {
				return true // out of memory: ignore remaining packet
			}
			it.Write(wire.NewChunk(layer, packet[:n]))
			packet = packet[n:]
		}

		for i := 0; i < int(nClose); i++ {
			if !it.HasFreeSpace() {
				return true
			}
			it.Write(wire.FrameBoundary(layer - uint8(i)))
			state.inc(layer - uint8(i))
		}
	}

	return true
}

// findFirstSet returns the index of the lowest set bit in present, or
// headerLayerBits if present is zero.
func findFirstSet(present byte) uint8 {
	for i := 0; i < headerLayerBits; i++ {
		if present&(1<<uint(i)) != 0 {
			return uint8(i)
		}
	}
	return headerLayerBits
}
