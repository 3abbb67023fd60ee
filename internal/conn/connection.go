package conn

import (
	"sync"

	"github.com/fibrefabric/fibre/internal/domain"
	"github.com/fibrefabric/fibre/internal/fifo"
	"github.com/fibrefabric/fibre/internal/llproto"
	"github.com/fibrefabric/fibre/internal/mux"
	"github.com/fibrefabric/fibre/internal/socket"
	"github.com/fibrefabric/fibre/internal/status"
	"github.com/fibrefabric/fibre/internal/transport"
	"github.com/fibrefabric/fibre/internal/wire"
)

// maxUpcallChunksPerPump bounds how many RX Fifo entries one pump cycle
// hands to the upstream Socket at a time, the RX-direction twin of
// maxChunksPerTXTask.
const maxUpcallChunksPerPump = 8

// Connection is the reliable, ordered, transport-independent byte stream
// shared by EndpointServerConnection and EndpointClientConnection: it
// owns the RX/TX Fifos, the per-layer receiver state LowLevelProtocol
// needs, the ack/position-header bookkeeping, and the pool of output
// slots attached across however many Sinks currently reach the remote
// Node. It is deliberately not exported as directly constructible — the
// two endpoint framings are the only legal ways to open one, matching
// the reference where Connection is always a base of one of them.
type Connection struct {
	dom        *domain.Domain
	callID     domain.CallId
	txProtocol byte

	mu      sync.Mutex
	sendAck bool
	rxBusy  bool
	rxTail  ConnectionPos // this side's receive position, reported to the peer
	txHead  ConnectionPos // oldest byte in txFifo not yet acked by the peer

	rxState llproto.ReceiverState

	rxFifo *fifo.Fifo
	txFifo *fifo.Fifo

	input   *ConnectionInputSlot
	outputs map[transport.FrameStreamSink]*ConnectionOutputSlot

	upstream     socket.Socket
	pendingRxEnd fifo.It

	closedLocal  bool
	closedRemote bool
}

func newConnection(dom *domain.Domain, callID domain.CallId, txProtocol byte) *Connection {
	c := &Connection{
		dom:        dom,
		callID:     callID,
		txProtocol: txProtocol,
		rxFifo:     fifo.New(),
		txFifo:     fifo.New(),
		outputs:    make(map[transport.FrameStreamSink]*ConnectionOutputSlot),
	}
	c.input = newConnectionInputSlot(c)
	return c
}

// CallID satisfies domain.Connection.
func (c *Connection) CallID() domain.CallId { return c.callID }

// Closed satisfies domain.Connection: true once the upcall direction has
// been shut down locally and the peer has reported its own side closed.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedLocal && c.closedRemote
}

// MarkRemoteClosed records that the peer's own direction has shut down
// cleanly. The wire-level signal for this (a close chunk reaching
// layer 0 of the RX Fifo) is consumed by the endpoint framings above
// this Connection, which are what know how to tell a call boundary close
// apart from a whole-connection close; they call this once they have.
func (c *Connection) MarkRemoteClosed() {
	c.mu.Lock()
	c.closedRemote = true
	c.mu.Unlock()
}

// SetUpstream attaches the Socket this Connection delivers decoded
// stream bytes to and pulls outbound bytes from, and immediately pumps
// any RX data already buffered.
func (c *Connection) SetUpstream(s socket.Socket) {
	c.mu.Lock()
	c.upstream = s
	c.mu.Unlock()
	c.pumpRx()
}

// OpenTxSlot attaches this Connection's TX direction to sink, registers
// the resulting ConnectionOutputSlot with mx so it participates in fair
// scheduling, and returns the slot (idempotent per sink).
func (c *Connection) OpenTxSlot(sink transport.FrameStreamSink, mx *mux.Multiplexer) *ConnectionOutputSlot {
	c.mu.Lock()
	if existing, ok := c.outputs[sink]; ok {
		c.mu.Unlock()
		return existing
	}
	slot := newConnectionOutputSlot(c, sink)
	c.outputs[sink] = slot
	c.mu.Unlock()
	mx.AddSource(slot)
	return slot
}

// CloseTxSlot detaches this Connection's TX direction from sink.
func (c *Connection) CloseTxSlot(sink transport.FrameStreamSink, mx *mux.Multiplexer) {
	c.mu.Lock()
	slot, ok := c.outputs[sink]
	delete(c.outputs, sink)
	c.mu.Unlock()
	if ok {
		mx.RemoveSource(slot)
	}
}

// HandlePacket decodes one inbound raw packet with this Connection's own
// LowLevelProtocol receiver state, folds a frame-ID-reset signal into
// discarding stale buffered state, updates rxTail to match, and hands
// the decoded chain to the input slot for ack/payload processing.
func (c *Connection) HandlePacket(packet []byte) {
	builder := wire.NewBuilder(64)
	var resetLayer uint8
	if !llproto.Unpack(&c.rxState, packet, &resetLayer, wire.NewWriteIterator(builder)) {
		return // malformed packet, dropped silently per spec.md
	}
	if resetLayer != 0xff {
		c.discardFrom(resetLayer)
	}

	c.mu.Lock()
	c.rxTail.FrameIDs = [3]uint16{c.rxState.FrameIDs[0], c.rxState.FrameIDs[1], c.rxState.FrameIDs[2]}
	c.rxTail.Offsets = [3]uint16{c.rxState.Offsets[0], c.rxState.Offsets[1], c.rxState.Offsets[2]}
	c.mu.Unlock()

	c.input.ProcessSync(builder.Chain())
}

// discardFrom implements this package's resolution of what a
// LowLevelProtocol frame-ID reset means for a Connection: any buffered
// RX Fifo data is suspect (the Fifo has no concept of "bytes belonging
// to layer >= resetLayer" to drop surgically), so the whole RX Fifo is
// dropped and the position counters at resetLayer and deeper are zeroed
// to match the peer's own reset.
func (c *Connection) discardFrom(resetLayer uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rxFifo.DropUntil(c.rxFifo.ReadEnd())
	for l := int(resetLayer); l < 3; l++ {
		c.rxTail.FrameIDs[l] = 0
		c.rxTail.Offsets[l] = 0
	}
}

// handlePosBlock dispatches a decoded 13-byte position block to the ack
// or position-header handling it names.
func (c *Connection) handlePosBlock(kind byte, pos ConnectionPos) {
	if kind == blockKindAck {
		c.onAck(pos)
	}
	// blockKindPosHeader carries no further action here: rxTail already
	// reflects the peer's receiver state via HandlePacket, and a fresh
	// position header only matters to a receiver resynchronizing after a
	// reattachment, which this side observes through the ordinary
	// frame-ID-reset path instead.
}

// onAck advances the TX Fifo's drop point to match an acked
// ConnectionPos, translating the per-layer (frame id, offset) the peer
// reported into the frame/byte deltas Fifo.AdvanceIt understands. Acks
// that reference a position this side has already applied are silently
// ignored per layer.
func (c *Connection) onAck(pos ConnectionPos) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var nFrames, nBytes [3]uint16
	for l := 0; l < 3; l++ {
		if pos.FrameIDs[l] < c.txHead.FrameIDs[l] {
			continue
		}
		delta := pos.FrameIDs[l] - c.txHead.FrameIDs[l]
		nFrames[l] = delta
		switch {
		case delta > 0:
			nBytes[l] = pos.Offsets[l]
		case pos.Offsets[l] > c.txHead.Offsets[l]:
			nBytes[l] = pos.Offsets[l] - c.txHead.Offsets[l]
		}
	}

	it := c.txFifo.AdvanceIt(c.txFifo.ReadBegin(), nFrames, nBytes)
	c.txFifo.DropUntil(it)
	c.txHead = pos
}

// ackPending reports whether an ack block is currently owed to the peer.
func (c *Connection) ackPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendAck
}

// takeAck returns the current rxTail and clears the pending flag, or
// reports ok=false if no ack is owed.
func (c *Connection) takeAck() (ConnectionPos, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sendAck {
		return ConnectionPos{}, false
	}
	c.sendAck = false
	return c.rxTail, true
}

// currentTxHead returns the ConnectionPos an output slot's once-per-epoch
// position header should advertise.
func (c *Connection) currentTxHead() ConnectionPos {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txHead
}

// appendRx is the input slot's entry point for payload bytes (any
// layer), after it has already peeled off a leading position/ack block.
// Appending anything raises the ack-pending flag, and the RX pump is
// kicked so data reaches the upstream Socket without waiting for a
// separate event-loop turn.
func (c *Connection) appendRx(chain wire.BufChain) {
	if chain.NChunks() == 0 {
		return
	}
	c.mu.Lock()
	c.rxFifo.Append(chain)
	c.sendAck = true
	c.mu.Unlock()
	c.pumpRx()
}

// pumpRx drains up to maxUpcallChunksPerPump RX Fifo entries into the
// upstream Socket, stopping if it is busy, closed, or has no upstream
// attached yet, or if there is nothing buffered.
func (c *Connection) pumpRx() {
	c.mu.Lock()
	if c.rxBusy || c.closedLocal || c.upstream == nil || !c.rxFifo.HasData() {
		c.mu.Unlock()
		return
	}
	builder := wire.NewBuilder(maxUpcallChunksPerPump)
	begin := c.rxFifo.ReadBegin()
	end := c.rxFifo.Read(begin, wire.NewWriteIterator(builder))
	upstream := c.upstream
	c.mu.Unlock()

	result := upstream.Write(socket.WriteArgs{Buf: builder.Chain(), Status: status.Ok})
	c.applyRxResult(end, result)
}

func (c *Connection) applyRxResult(fifoEnd fifo.It, result socket.WriteResult) {
	c.mu.Lock()
	if result.IsBusy() {
		c.rxBusy = true
		c.pendingRxEnd = fifoEnd
		c.mu.Unlock()
		return
	}
	c.rxFifo.DropUntil(fifoEnd)
	if result.Status.IsTerminal() {
		c.closedLocal = true
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.pumpRx()
}

// ResumeUpcall is called by this Connection's upstream Socket once it is
// ready for more input after a prior Write returned Busy — the
// completion half of the RX direction's Socket contract, with Connection
// playing the source role and the upstream playing the sink.
func (c *Connection) ResumeUpcall(result socket.WriteResult) {
	c.mu.Lock()
	end := c.pendingRxEnd
	c.rxBusy = false
	c.mu.Unlock()
	c.applyRxResult(end, result)
}

// Write implements the sink half of socket.Socket for the TX direction:
// whatever is above this Connection (its EndpointServerConnection or
// EndpointClientConnection wrapper, on behalf of the application) pushes
// outbound bytes here. A full TX Fifo is reported as partial
// consumption via the returned End rather than Busy, so this Connection
// never itself needs an OnWriteDone callback chain on the TX side.
func (c *Connection) Write(args socket.WriteArgs) socket.WriteResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	end := c.txFifo.Append(args.Buf)
	return socket.WriteResult{Status: status.Ok, End: end}
}
