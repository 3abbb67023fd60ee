package conn

import (
	"testing"

	"github.com/fibrefabric/fibre/internal/llproto"
	"github.com/fibrefabric/fibre/internal/socket"
	"github.com/fibrefabric/fibre/internal/status"
	"github.com/fibrefabric/fibre/internal/wire"
)

// wireLink drives one Connection's real output slot through the actual
// LowLevelProtocol codec and hands the resulting packet straight to a
// peer Connection's HandlePacket — the same pack/unpack path a
// FrameStreamSink and Multiplexer would drive in production, just
// without an actual socket between the two sides.
type wireLink struct {
	slot  *ConnectionOutputSlot
	state llproto.SenderState
	mtu   int
}

func newWireLink(c *Connection, mtu int) *wireLink {
	return &wireLink{slot: newConnectionOutputSlot(c, fakeSink{mtu: mtu}), mtu: mtu}
}

// deliver packs whatever the link's output slot currently has queued
// (position header, ack, and/or TX Fifo data) and hands the resulting
// packet to peer. A no-op if the slot has nothing to send.
func (l *wireLink) deliver(peer *Connection) {
	if !l.slot.HasData() {
		return
	}
	chain := l.slot.GetTask()
	packet := make([]byte, l.mtu)
	room := packet
	end := llproto.Pack(&l.state, chain, &room)
	sent := len(packet) - len(room)
	l.slot.ReleaseTask(end)
	if sent == 0 {
		return
	}
	peer.HandlePacket(packet[:sent])
}

// TestScenarioAEchoCallRoundTrip drives one call's argument bytes and
// its echoed response through the real wire codec in both directions:
// client call framing -> llproto.Pack -> llproto.Unpack ->
// Connection.HandlePacket -> server dispatch, and back. It does not
// assert the call closes itself: per this package's terminal-status
// design (see DESIGN.md), that is a decision each side makes locally
// from its own write, not a signal carried over the wire.
func TestScenarioAEchoCallRoundTrip(t *testing.T) {
	const echoEndpoint = 7

	functions := &echoFunctionTable{}
	server := NewEndpointServerConnection(nil, testCallID(1), functions)
	client := NewEndpointClientConnection(nil, testCallID(1))

	clientLink := newWireLink(client.Connection, 512)
	serverLink := newWireLink(server.Connection, 512)

	caller := &fakeCaller{}
	call := client.StartCall(echoEndpoint, false, caller)
	call.Write(socket.WriteArgs{
		Buf:    wire.NewBufChain([]wire.Chunk{wire.NewChunk(0, []byte("hello fibre"))}),
		Status: status.Ok,
	})

	clientLink.deliver(server.Connection)

	if len(functions.startCalls) != 1 || functions.startCalls[0] != echoEndpoint {
		t.Fatalf("server startCalls = %v, want [%d]", functions.startCalls, echoEndpoint)
	}

	serverLink.deliver(client.Connection)

	if len(caller.writes) != 1 || string(caller.writes[0]) != "hello fibre" {
		t.Fatalf("caller.writes = %v, want one write of \"hello fibre\"", caller.writes)
	}
}

// TestScenarioDHalfCloseLeavesConnectionOpenUntilBothDirectionsFinish
// exercises the half-close invariant: a Connection's two directions
// (closedRemote, driven by the dispatched call's own terminal result,
// and closedLocal, driven by this side's own upcall result) close
// independently, and Closed() only reports true once both have.
func TestScenarioDHalfCloseLeavesConnectionOpenUntilBothDirectionsFinish(t *testing.T) {
	functions := &echoFunctionTable{}
	server := NewEndpointServerConnection(nil, testCallID(3), functions)

	header := []byte{0x00, 0x05, 0x00, 0x00} // endpoint id 5, no exchange flag
	chain := wire.NewBufChain([]wire.Chunk{wire.NewChunk(0, header), wire.NewChunk(0, []byte("hi"))})
	server.Write(socket.WriteArgs{Buf: chain, Status: status.Closed})

	if !server.Connection.closedRemote {
		t.Fatal("a terminal call result should mark the remote (peer-facing) direction closed")
	}
	if server.Connection.Closed() {
		t.Fatal("a connection with only its remote direction closed should not yet report fully Closed")
	}

	server.Connection.applyRxResult(server.Connection.rxFifo.ReadEnd(), socket.WriteResult{Status: status.Closed})
	if !server.Connection.Closed() {
		t.Fatal("once both directions report terminal, the connection should report fully Closed")
	}
}

// recordingSocket accumulates every Write it receives into recv, the
// server-side counterpart to fakeCaller used below to check a large
// argument stream was reassembled byte-for-byte after being split across
// several MTU-bound packets.
type recordingSocket struct{ recv *[]byte }

func (r recordingSocket) Write(args socket.WriteArgs) socket.WriteResult {
	data, _ := collectChain(args.Buf)
	*r.recv = append(*r.recv, data...)
	return socket.WriteResult{Status: args.Status, End: args.Buf.End()}
}

func (r recordingSocket) OnWriteDone(result socket.WriteResult) socket.WriteArgs {
	return socket.Busy()
}

type recordingFunctionTable struct{ recv []byte }

func (f *recordingFunctionTable) StartCall(endpointID uint16, exchange bool, caller socket.Socket) (socket.Socket, error) {
	return recordingSocket{recv: &f.recv}, nil
}

// TestScenarioEPayloadSplitAcrossMultiplePackets drives an argument
// stream too large for one sink MTU through wireLink.deliver repeatedly,
// the way a Multiplexer re-enqueues a TxPipe that still HasData after
// ReleaseTask. Each delivery must resume where the last one actually
// left off rather than re-offering bytes already packed into an earlier
// packet, or the server never sees the full, correctly ordered payload.
func TestScenarioEPayloadSplitAcrossMultiplePackets(t *testing.T) {
	const mtu = 64
	functions := &recordingFunctionTable{}
	server := NewEndpointServerConnection(nil, testCallID(4), functions)
	client := NewEndpointClientConnection(nil, testCallID(4))

	clientLink := newWireLink(client.Connection, mtu)

	payload := make([]byte, 600)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}

	caller := &fakeCaller{}
	call := client.StartCall(9, false, caller)
	call.Write(socket.WriteArgs{
		Buf:    wire.NewBufChain([]wire.Chunk{wire.NewChunk(0, payload)}),
		Status: status.Ok,
	})

	for i := 0; i < 64; i++ {
		clientLink.deliver(server.Connection)
	}

	if string(functions.recv) != string(payload) {
		t.Fatalf("server reassembled %d bytes, want %d bytes matching the original payload sent over a %d-byte MTU",
			len(functions.recv), len(payload), mtu)
	}
}

// TestScenarioFUnknownEndpointClosesServerLocally drives a call to an
// endpoint id the server's FunctionTable refuses, over the real wire
// codec, and checks the resulting InvalidArgument closes this side's
// own upcall direction — the same outcome
// TestEndpointServerConnectionRejectsUnknownEndpoint checks directly,
// here reached via an actual packed/unpacked packet instead of a
// hand-built chain.
func TestScenarioFUnknownEndpointClosesServerLocally(t *testing.T) {
	functions := &echoFunctionTable{refuse: true}
	server := NewEndpointServerConnection(nil, testCallID(2), functions)
	client := NewEndpointClientConnection(nil, testCallID(2))

	clientLink := newWireLink(client.Connection, 512)

	caller := &fakeCaller{}
	call := client.StartCall(0xffff, false, caller)
	call.Write(socket.WriteArgs{
		Buf:    wire.NewBufChain([]wire.Chunk{wire.NewChunk(0, []byte("x"))}),
		Status: status.Ok,
	})

	clientLink.deliver(server.Connection)

	if len(functions.startCalls) != 1 || functions.startCalls[0] != 0xffff {
		t.Fatalf("server startCalls = %v, want [65535]", functions.startCalls)
	}
	if !server.Connection.closedLocal {
		t.Fatal("an unknown endpoint id should close the server connection's local (upcall) direction")
	}
}
