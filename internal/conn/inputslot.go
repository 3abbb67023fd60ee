package conn

import "github.com/fibrefabric/fibre/internal/wire"

// ConnectionInputSlot is the RX-side reassembly state feeding one
// Connection: in practice at most one is ever open per Connection, since
// a reliable stream only ever has one reader, but it is kept as its own
// type (rather than fields on Connection directly) to mirror the
// reference's input_slots_ pool and keep the layer-0 position-block
// peeling logic self-contained and unit-testable.
type ConnectionInputSlot struct {
	conn   *Connection
	cache  [posBlockSize]byte
	cacheN int
}

func newConnectionInputSlot(c *Connection) *ConnectionInputSlot {
	return &ConnectionInputSlot{conn: c}
}

// ProcessSync consumes the leading 13-byte position/ack block from
// chain's layer-0 bytes once a full block has accumulated (a block may
// straddle two packets, hence the slot's own cache), dispatches it to
// the owning Connection, and hands whatever payload remains — at any
// layer — to the Connection's RX Fifo.
func (s *ConnectionInputSlot) ProcessSync(chain wire.BufChain) {
	for s.cacheN < posBlockSize && chain.NChunks() > 0 {
		ch := chain.Front()
		if ch.IsFrameBoundary() || ch.Layer != 0 {
			break
		}
		n := posBlockSize - s.cacheN
		if n > len(ch.Buf) {
			n = len(ch.Buf)
		}
		copy(s.cache[s.cacheN:], ch.Buf[:n])
		s.cacheN += n
		chain = chain.SkipBytes(n)
	}
	if s.cacheN == posBlockSize {
		kind, pos := decodePos(s.cache)
		s.conn.handlePosBlock(kind, pos)
		s.cacheN = 0
	}

	s.conn.appendRx(chain)
}
