package conn

import (
	"sync"

	"github.com/fibrefabric/fibre/internal/fifo"
	"github.com/fibrefabric/fibre/internal/transport"
	"github.com/fibrefabric/fibre/internal/wire"
)

// maxChunksPerTXTask bounds how many Fifo entries one GetTask call pulls
// out at a time, keeping a single multiplexed write bounded regardless
// of how much the TX Fifo is holding.
const maxChunksPerTXTask = 10

// ConnectionOutputSlot is the TX-side half of a Connection attached to
// one Sink: it implements mux.TxPipe, so a Multiplexer can schedule it
// fairly alongside every other Connection sharing that Sink.
type ConnectionOutputSlot struct {
	conn *Connection
	sink transport.FrameStreamSink

	mu         sync.Mutex
	headerSent bool
	sending    bool

	// sendingTxIt marks how far this slot has already handed TX Fifo
	// bytes to its Sink, independent of txFifo's own ack-driven head:
	// GetTask reads forward from here rather than from txFifo.ReadBegin(),
	// and ReleaseTask advances it by however much the Sink actually
	// packed. A Sink that never finishes a task (MTU-bound splitting)
	// keeps re-reading from where it left off instead of re-offering
	// already-sent bytes.
	sendingTxIt fifo.It

	// prefixChunks, taskChunks and fifoChain record, for the task
	// currently in flight, how many of its leading chunks are the
	// position-header/ack blocks (not TX Fifo data), how many chunks the
	// whole task chain carries, and the TX-Fifo-only chain GetTask read
	// starting at sendingTxIt — so ReleaseTask can tell how much of the
	// task's TX Fifo portion its wire.BufIt actually covers. A BufIt's
	// Idx is only ever relative to its own (possibly already-trimmed)
	// chunk slice, never an absolute offset into the chain GetTask
	// returned, so the chunk count still remaining at end is what
	// ReleaseTask has to work back from.
	prefixChunks int
	taskChunks   int
	fifoChain    wire.BufChain
}

func newConnectionOutputSlot(c *Connection, sink transport.FrameStreamSink) *ConnectionOutputSlot {
	return &ConnectionOutputSlot{conn: c, sink: sink, sendingTxIt: c.txFifo.ReadBegin()}
}

// HasData reports whether this slot has anything to send: an
// unsent position header, a pending ack, or live TX Fifo data.
func (s *ConnectionOutputSlot) HasData() bool {
	s.mu.Lock()
	headerPending := !s.headerSent
	s.mu.Unlock()
	if headerPending {
		return true
	}
	return s.conn.ackPending() || s.conn.txFifo.HasData()
}

// GetTask builds the next outbound BufChain: the once-per-epoch position
// header if not yet sent, the ack block if one is owed, then up to
// maxChunksPerTXTask entries read from the TX Fifo starting at this
// slot's own sendingTxIt — not txFifo's ack-driven head, which only
// advances once the peer acks.
func (s *ConnectionOutputSlot) GetTask() wire.BufChain {
	s.mu.Lock()
	defer s.mu.Unlock()

	builder := wire.NewBuilder(maxChunksPerTXTask + 2)
	s.prefixChunks = 0

	if !s.headerSent {
		block := encodePos(blockKindPosHeader, s.conn.currentTxHead())
		builder.Append(wire.NewChunk(0, append([]byte(nil), block[:]...)))
		s.headerSent = true
		s.prefixChunks++
	}

	if ack, ok := s.conn.takeAck(); ok {
		block := encodePos(blockKindAck, ack)
		builder.Append(wire.NewChunk(0, append([]byte(nil), block[:]...)))
		s.prefixChunks++
	}

	fifoBuilder := wire.NewBuilder(maxChunksPerTXTask)
	s.conn.txFifo.Read(s.sendingTxIt, wire.NewWriteIterator(fifoBuilder))
	s.fifoChain = fifoBuilder.Chain()
	s.taskChunks = s.prefixChunks + s.fifoChain.NChunks()
	s.sending = true

	walk := s.fifoChain
	for walk.NChunks() > 0 {
		builder.Append(walk.Front())
		walk = walk.SkipChunks(1)
	}

	return builder.Chain()
}

// ReleaseTask advances sendingTxIt by however much of this task's TX
// Fifo portion end (a position in the task chain GetTask built) actually
// covers, so a slot that could only fit part of its data into one packet
// resumes from there next time instead of re-offering bytes it already
// sent. It deliberately does not drop TX Fifo data: that only happens
// once the peer's own ack block reaches Connection.onAck, so a failed
// Sink and reattachment to another one (spec.md's failure-handling
// clause for this layer) can resend unacknowledged bytes rather than
// losing them to a merely locally-successful send.
func (s *ConnectionOutputSlot) ReleaseTask(end wire.BufIt) {
	s.mu.Lock()
	defer func() {
		s.sending = false
		s.mu.Unlock()
	}()

	// end.Idx is only ever 0 or a length relative to end's own (already
	// trimmed) chunk slice, never an absolute position in the chain
	// GetTask returned — so work back from how many chunks are still
	// unconsumed rather than trusting Idx directly.
	remaining := wire.NewBufChain(nil).From(end).NChunks()
	consumed := s.taskChunks - remaining
	fifoEnd := consumed - s.prefixChunks
	if fifoEnd <= 0 {
		return
	}
	nConsumed := fifoEnd
	if nConsumed > s.fifoChain.NChunks() {
		nConsumed = s.fifoChain.NChunks()
	}

	var nFrames, nBytes [3]uint16
	walk := s.fifoChain
	for i := 0; i < nConsumed; i++ {
		ch := walk.Front()
		if l := ch.Layer; l < 3 {
			if ch.IsFrameBoundary() {
				nFrames[l]++
			} else {
				nBytes[l] += uint16(ch.Len())
			}
		}
		walk = walk.SkipChunks(1)
	}
	if fifoEnd < s.fifoChain.NChunks() && end.Byte > 0 {
		ch := walk.Front()
		if l := ch.Layer; l < 3 && !ch.IsFrameBoundary() {
			nBytes[l] += uint16(end.Byte)
		}
	}

	s.sendingTxIt = s.conn.txFifo.AdvanceIt(s.sendingTxIt, nFrames, nBytes)
}
