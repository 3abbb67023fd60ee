package conn

import (
	"testing"

	"github.com/fibrefabric/fibre/internal/socket"
	"github.com/fibrefabric/fibre/internal/status"
	"github.com/fibrefabric/fibre/internal/transport"
	"github.com/fibrefabric/fibre/internal/wire"
)

type fakeSink struct{ mtu int }

func (fakeSink) StartWrite(tasks []transport.TxTask) {}
func (fakeSink) CancelWrite()                        {}
func (s fakeSink) MTU() int                          { return s.mtu }

func collectChain(chain wire.BufChain) ([]byte, []wire.Chunk) {
	var data []byte
	var chunks []wire.Chunk
	for chain.NChunks() > 0 {
		ch := chain.Front()
		chunks = append(chunks, ch)
		if ch.IsBuf() {
			data = append(data, ch.Buf...)
		}
		chain = chain.SkipChunks(1)
	}
	return data, chunks
}

func TestOutputSlotSendsPositionHeaderOnceThenAckOnDemand(t *testing.T) {
	c := newConnection(nil, testCallID(1), txProtocolServer)
	slot := newConnectionOutputSlot(c, fakeSink{mtu: 512})

	if !slot.HasData() {
		t.Fatal("a freshly attached slot with an unsent header should report HasData")
	}
	_, chunks := collectChain(slot.GetTask())
	if len(chunks) != 1 || chunks[0].Len() != posBlockSize {
		t.Fatalf("first task = %v, want exactly one %d-byte position-header chunk", chunks, posBlockSize)
	}
	slot.ReleaseTask(wire.BufChain{}.End())

	if slot.HasData() {
		t.Fatal("with no ack pending and nothing in the TX Fifo, HasData should be false after the header")
	}

	c.Write(socket.WriteArgs{Buf: wire.NewBufChain([]wire.Chunk{wire.NewChunk(0, []byte("ab"))}), Status: status.Ok})
	// Simulate an inbound payload having raised the ack flag.
	c.mu.Lock()
	c.sendAck = true
	c.mu.Unlock()

	if !slot.HasData() {
		t.Fatal("HasData should report true once an ack is owed and the TX Fifo has data")
	}
	data, chunks := collectChain(slot.GetTask())
	if len(chunks) != 2 {
		t.Fatalf("second task chunk count = %d, want 2 (ack block + payload)", len(chunks))
	}
	if chunks[0].Len() != posBlockSize {
		t.Fatalf("first chunk of second task length = %d, want %d (ack block)", chunks[0].Len(), posBlockSize)
	}
	if string(data[posBlockSize:]) != "ab" {
		t.Fatalf("payload after ack block = %q, want \"ab\"", data[posBlockSize:])
	}
	if c.ackPending() {
		t.Fatal("GetTask should have cleared the ack-pending flag")
	}
}

func TestOutputSlotKeepsUnackedDataAfterRelease(t *testing.T) {
	c := newConnection(nil, testCallID(1), txProtocolServer)
	slot := newConnectionOutputSlot(c, fakeSink{mtu: 512})
	collectChain(slot.GetTask()) // consume the position header
	slot.ReleaseTask(wire.BufChain{}.End())

	c.Write(socket.WriteArgs{Buf: wire.NewBufChain([]wire.Chunk{wire.NewChunk(0, []byte("xy"))}), Status: status.Ok})
	collectChain(slot.GetTask())
	slot.ReleaseTask(wire.BufChain{}.End())

	if !c.txFifo.HasData() {
		t.Fatal("ReleaseTask must not drop TX Fifo data before the peer acks it")
	}

	// A second GetTask call with nothing new written must not re-offer
	// "xy": ReleaseTask should have advanced the slot's own send cursor
	// past it even though the TX Fifo itself still holds it unacked.
	data, chunks := collectChain(slot.GetTask())
	if len(chunks) != 0 || len(data) != 0 {
		t.Fatalf("second task after a full release = %v, want empty (already-sent bytes must not repeat)", data)
	}
}
