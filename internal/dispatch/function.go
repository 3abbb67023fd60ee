// Package dispatch adapts application-level Go functions onto the
// Socket duplex contract: a Function starts one call at a time and
// hands back a Socket the caller feeds argument bytes into and reads
// return bytes from, matching the connection layer's view of "a thing
// an endpoint id resolves to" (conn.FunctionTable).
package dispatch

import (
	"github.com/fibrefabric/fibre/internal/domain"
	"github.com/fibrefabric/fibre/internal/socket"
	"github.com/fibrefabric/fibre/internal/status"
)

// Function is the local analogue of an endpoint a FunctionTable
// resolves an id to. Unlike the reference, StartCall takes no
// preallocated call_frame scratch buffer — Go's heap makes the
// fixed-arena trick this reference existed for unnecessary, so call
// state is just a normal heap-allocated struct.
type Function interface {
	StartCall(dom *domain.Domain, caller socket.Socket) socket.Socket
}

// Impl is a synchronous function body: given the fully-collected input
// arguments (one []byte per argument), it returns the encoded output
// arguments and the status the call should close with. Ok from Impl is
// treated the same as Closed — FuncAsCoro always ends the call once the
// wrapped function returns, there being no notion of a function that
// stays open past its one invocation.
type Impl func(dom *domain.Domain, args [][]byte) (outs [][]byte, result status.Status)

// FuncAsCoro wraps a synchronous Impl as a Function: the call stays
// open, collecting fragmented argument bytes across as many Write calls
// as it takes, until the input stream closes; impl is then invoked once
// and its output is pushed back to the caller, resuming on demand if
// the caller is ever busy.
type FuncAsCoro struct {
	impl Impl
}

// NewFuncAsCoro wraps impl.
func NewFuncAsCoro(impl Impl) *FuncAsCoro {
	return &FuncAsCoro{impl: impl}
}

// StartCall implements Function.
func (f *FuncAsCoro) StartCall(dom *domain.Domain, caller socket.Socket) socket.Socket {
	return &funcAsCoroCall{
		fn:        f,
		dom:       dom,
		caller:    caller,
		collector: newArgCollector(),
	}
}

// funcAsCoroCall is the per-call Socket a FuncAsCoro hands out. While
// collector is non-nil and the call is not yet invoked, Write is in
// "collect input" mode; once the input stream closes, impl runs once
// and an argEmitter takes over pushing the result to caller, with
// OnWriteDone resuming that push exactly like the dual caller role
// internal/conn establishes for a started call.
type funcAsCoroCall struct {
	fn        *FuncAsCoro
	dom       *domain.Domain
	caller    socket.Socket
	collector *argCollector
	emitter   *argEmitter
	invoked   bool
}

// Write implements socket.Socket: the caller hands input argument bytes
// here. Argument data for one call is assumed to fit within whatever
// buffers LowLevelProtocol hands up in practice (spec.md's "no support
// for a call larger than the configured buffer" non-goal), so this
// either forwards everything it is handed to the collector or refuses
// further input once invoked — it never partially consumes mid-call.
func (c *funcAsCoroCall) Write(args socket.WriteArgs) socket.WriteResult {
	if c.invoked {
		return socket.WriteResult{Status: status.ProtocolError, End: args.Buf.Begin()}
	}
	end, st := c.collector.write(args)
	if st.IsTerminal() {
		c.invoked = true
		outs, result := c.fn.impl(c.dom, c.collector.args())
		if result == status.Ok {
			result = status.Closed
		}
		c.emitter = newArgEmitter(result, outs, c.caller)
		c.emitter.pump()
	}
	return socket.WriteResult{Status: st, End: end}
}

// OnWriteDone implements socket.Socket: invoked by caller once it is
// ready for more after a prior output push returned Busy.
func (c *funcAsCoroCall) OnWriteDone(result socket.WriteResult) socket.WriteArgs {
	if c.emitter != nil {
		return c.emitter.onWriteDone(result)
	}
	return socket.Busy()
}
