package dispatch

import (
	"github.com/fibrefabric/fibre/internal/socket"
	"github.com/fibrefabric/fibre/internal/status"
	"github.com/fibrefabric/fibre/internal/wire"
)

// argEmitter pushes a fixed set of output argument byte slices to a
// sink Socket, one layer-1 frame boundary between each, resuming from
// wherever the chain left off if the sink ever reports Busy.
type argEmitter struct {
	result status.Status // the status to report once the whole chain is out
	chain  wire.BufChain
	sink   socket.Socket
}

// newArgEmitter builds the chunk chain for outs up front: one
// wire.NewChunk(1, out) per argument, with a wire.FrameBoundary(1)
// between consecutive ones.
func newArgEmitter(result status.Status, outs [][]byte, sink socket.Socket) *argEmitter {
	chunks := make([]wire.Chunk, 0, len(outs)*2)
	for i, out := range outs {
		if i > 0 {
			chunks = append(chunks, wire.FrameBoundary(1))
		}
		chunks = append(chunks, wire.NewChunk(1, out))
	}
	return &argEmitter{result: result, chain: wire.NewBufChain(chunks), sink: sink}
}

// pump pushes as much of the remaining chain to the sink as it accepts
// synchronously, stopping once the sink reports Busy or the whole chain
// (tagged with this call's terminal status) has been delivered.
func (e *argEmitter) pump() {
	for {
		st := status.Ok
		if e.chain.NChunks() == 0 {
			st = e.result
		}
		result := e.sink.Write(socket.WriteArgs{Buf: e.chain, Status: st})
		if result.IsBusy() {
			return
		}
		if e.chain.NChunks() == 0 {
			return
		}
		e.chain = e.chain.From(result.End)
	}
}

// onWriteDone resumes pump() once the sink signals it is ready for
// more; it never itself has more to hand back through the return value
// since it pushes proactively via the sink's own Write, matching the
// dual caller role internal/conn establishes.
func (e *argEmitter) onWriteDone(result socket.WriteResult) socket.WriteArgs {
	if !result.IsBusy() {
		e.pump()
	}
	return socket.Busy()
}
