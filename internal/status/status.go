// Package status defines the Status value that crosses every Socket
// boundary in Fibre, and a bounded, allocation-free error chain (RichStatus)
// for use at construction and configuration boundaries.
package status

// Status is the outcome of a Socket write or on-write-done call. It is a
// small value type, not an error, because it crosses the hot
// Connection/Multiplexer path once per chunk and must never allocate.
type Status uint8

const (
	// Ok indicates progress was made; the caller may continue.
	Ok Status = iota
	// Busy indicates the callee cannot progress now and will notify the
	// caller later via on_write_done. The sole suspension primitive.
	Busy
	// Cancelled indicates an application- or peer-initiated abort.
	Cancelled
	// Closed indicates an orderly end-of-stream.
	Closed
	// InvalidArgument indicates a bug in the calling application.
	InvalidArgument
	// InternalError indicates a bug in the local Fibre implementation.
	InternalError
	// ProtocolError indicates the remote peer violated the wire contract.
	ProtocolError
	// HostUnreachable indicates the sink failed and no alternate sink
	// remains attached for the owning Node.
	HostUnreachable
	// OutOfMemory indicates a bounded resource was exhausted.
	OutOfMemory
	// InsufficientData indicates a decoder needs more bytes before it can
	// make progress; recoverable by buffering.
	InsufficientData
)

// IsBusy reports whether s is Busy.
func (s Status) IsBusy() bool { return s == Busy }

// IsTerminal reports whether s is neither Ok nor Busy, i.e. once returned
// the side that returned it is closed and must not be written to again.
func (s Status) IsTerminal() bool { return s != Ok && s != Busy }

func (s Status) String() string {
	switch s {
	case Ok:
		return "ok"
	case Busy:
		return "busy"
	case Cancelled:
		return "cancelled"
	case Closed:
		return "closed"
	case InvalidArgument:
		return "invalid_argument"
	case InternalError:
		return "internal_error"
	case ProtocolError:
		return "protocol_error"
	case HostUnreachable:
		return "host_unreachable"
	case OutOfMemory:
		return "out_of_memory"
	case InsufficientData:
		return "insufficient_data"
	default:
		return "unknown_status"
	}
}
