package conn

import (
	"sync"

	"github.com/fibrefabric/fibre/internal/domain"
	"github.com/fibrefabric/fibre/internal/socket"
	"github.com/fibrefabric/fibre/internal/status"
	"github.com/fibrefabric/fibre/internal/wire"
)

// txProtocolClient is the tx_protocol byte an EndpointClientConnection
// advertises for its own outbound stream.
const txProtocolClient byte = 0x00

// EndpointClientConnection serializes application calls onto one
// reliable byte stream (tx_protocol 0x00) and routes responses back to
// their originating call in order. Only one call writes into the shared
// TX Fifo at a time — this connection layer's resolution of call
// pipelining is "one in-flight call from the app's point of view" — but
// txQueue/rxQueue are still kept as separate queues, since a call's
// request can finish being written before its response has arrived, and
// a second call may already be queued to start writing by then.
type EndpointClientConnection struct {
	*Connection

	mu      sync.Mutex
	txQueue []*clientCall // waiting their turn to write header+args
	rxQueue []*clientCall // awaiting a response, matched in order
	active  *clientCall   // currently allowed to write into the TX Fifo
}

// NewEndpointClientConnection creates a client-side Connection and
// attaches itself as the Connection's upstream.
func NewEndpointClientConnection(dom *domain.Domain, callID domain.CallId) *EndpointClientConnection {
	c := &EndpointClientConnection{Connection: newConnection(dom, callID, txProtocolClient)}
	c.Connection.SetUpstream(c)
	return c
}

// StartCall begins a call to endpointID and returns the Socket the
// application writes argument bytes into. Responses (and the call's
// final close) are delivered to caller via caller.Write; if the TX Fifo
// is not yet free for this call (another call is still writing), caller
// will be resumed via OnWriteDone once its turn comes, matching the
// Socket busy contract.
func (c *EndpointClientConnection) StartCall(endpointID uint16, exchange bool, caller socket.Socket) socket.Socket {
	call := &clientCall{conn: c, endpointID: endpointID, exchange: exchange, caller: caller}

	c.mu.Lock()
	c.rxQueue = append(c.rxQueue, call)
	if c.active == nil {
		c.active = call
	} else {
		c.txQueue = append(c.txQueue, call)
	}
	c.mu.Unlock()

	return call
}

func (c *EndpointClientConnection) retireActive(finished *clientCall) {
	c.mu.Lock()
	var next *clientCall
	if c.active == finished {
		c.active = nil
		if len(c.txQueue) > 0 {
			next = c.txQueue[0]
			c.txQueue = c.txQueue[1:]
			c.active = next
		}
	}
	c.mu.Unlock()
	if next != nil {
		next.caller.OnWriteDone(socket.WriteResult{Status: status.Ok})
	}
}

// Write implements socket.Socket: the Connection hands decoded response
// bytes here as they arrive, routed to the call at the head of rxQueue.
func (c *EndpointClientConnection) Write(args socket.WriteArgs) socket.WriteResult {
	c.mu.Lock()
	if len(c.rxQueue) == 0 {
		c.mu.Unlock()
		return socket.WriteResult{Status: status.ProtocolError, End: args.Buf.Begin()}
	}
	head := c.rxQueue[0]
	c.mu.Unlock()

	result := head.caller.Write(args)
	if result.Status.IsTerminal() {
		c.mu.Lock()
		c.rxQueue = c.rxQueue[1:]
		empty := len(c.rxQueue) == 0
		c.mu.Unlock()
		if empty {
			c.Connection.MarkRemoteClosed()
		}
	}
	return socket.WriteResult{Status: result.Status, End: args.Buf.End()}
}

// OnWriteDone implements socket.Socket for EndpointClientConnection's
// role as the Connection's upstream: invoked if a prior response Write
// to a call's caller returned Busy and that caller becomes ready again.
func (c *EndpointClientConnection) OnWriteDone(result socket.WriteResult) socket.WriteArgs {
	c.Connection.ResumeUpcall(result)
	return socket.Busy()
}

// clientCall is the Socket the application writes one call's argument
// bytes into.
type clientCall struct {
	conn       *EndpointClientConnection
	endpointID uint16
	exchange   bool
	caller     socket.Socket

	headerDone bool
}

// Write implements socket.Socket. If this call is not yet the active
// writer for its Connection it returns Busy; the caller is resumed via
// OnWriteDone once an earlier call finishes and this one is activated.
func (call *clientCall) Write(args socket.WriteArgs) socket.WriteResult {
	call.conn.mu.Lock()
	isActive := call.conn.active == call
	call.conn.mu.Unlock()
	if !isActive {
		return socket.BusyResult()
	}

	if !call.headerDone {
		var hdr [callHeaderSize]byte
		hdr[0] = byte(call.endpointID >> 8)
		hdr[1] = byte(call.endpointID)
		if call.exchange {
			hdr[2] = 0x80
		}
		call.conn.Connection.Write(socket.WriteArgs{
			Buf:    wire.NewBufChain([]wire.Chunk{wire.NewChunk(0, append([]byte(nil), hdr[:]...))}),
			Status: status.Ok,
		})
		call.headerDone = true
	}

	result := call.conn.Connection.Write(args)
	// Connection.Write always reports Ok for a locally buffered append; it
	// is the application's own declared status, not the TX Fifo's, that
	// says whether this call's argument stream has ended.
	result.Status = args.Status
	if args.Status.IsTerminal() {
		call.conn.retireActive(call)
	}
	return result
}

// OnWriteDone implements socket.Socket: Connection.Write never returns
// Busy (a full TX Fifo reports partial consumption instead), so this is
// never invoked in practice; present to satisfy socket.Socket.
func (call *clientCall) OnWriteDone(result socket.WriteResult) socket.WriteArgs {
	return socket.Busy()
}
