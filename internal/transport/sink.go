// Package transport defines the boundary between the connection layer
// and the platform-specific code that actually moves bytes (event loops,
// raw sockets, USB bulk endpoints, BLE GATT characteristics — all out of
// scope for this module beyond the interface itself), plus one concrete
// sample implementation over UDP for the standalone test node.
package transport

import "github.com/fibrefabric/fibre/internal/wire"

// TxTask is one outstanding write a Multiplexer hands to a
// FrameStreamSink. OnSent and OnCancelled are the job's own completion
// callbacks — carrying them per task, rather than routing every sink
// through one global handler, is what lets a sink batch multiple jobs
// into start_write's "[]TxTask" in the future without the Multiplexer
// having to disambiguate which job a completion belongs to.
type TxTask struct {
	Buf         wire.BufChain
	OnSent      func(end wire.BufIt)
	OnCancelled func(end wire.BufIt)
}

// FrameStreamSink is the TX side of a transport. Framing for
// non-stream transports (UDP, CAN) maps each task to exactly one
// datagram or frame.
type FrameStreamSink interface {
	// StartWrite begins at most one multi-job write. Completion of each
	// job is delivered through that job's own OnSent (or OnCancelled, if
	// CancelWrite aborted it first).
	StartWrite(tasks []TxTask)

	// CancelWrite aborts the write currently in progress, if any.
	// Subsequent OnSent calls for that write are suppressed in favor of
	// OnCancelled.
	CancelWrite()

	// MTU is the maximum number of bytes LowLevelProtocol.Pack may use
	// for one packet's header plus payload on this sink.
	MTU() int
}
