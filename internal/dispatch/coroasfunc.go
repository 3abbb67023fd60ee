package dispatch

import (
	"github.com/fibrefabric/fibre/internal/domain"
	"github.com/fibrefabric/fibre/internal/socket"
	"github.com/fibrefabric/fibre/internal/status"
)

// CoroAsFunc is Function's dual: it turns a Function back into an
// ordinary call you make once and get a result from, for local code
// that wants to invoke a dispatched Function (for example a test, or a
// loopback client) without itself speaking the Socket push-mode
// protocol.
type CoroAsFunc struct {
	fn Function
}

// NewCoroAsFunc wraps fn.
func NewCoroAsFunc(fn Function) *CoroAsFunc {
	return &CoroAsFunc{fn: fn}
}

// Call starts one call on the wrapped Function, pushes inputs as its
// argument stream (one frame boundary between each), and invokes
// onDone once the call's output arguments have fully arrived. onDone
// runs synchronously within this call if fn's own call completes
// synchronously (true for every FuncAsCoro-wrapped function), and from
// whatever goroutine eventually resumes a busy call otherwise.
func (c *CoroAsFunc) Call(dom *domain.Domain, inputs [][]byte, onDone func(outs [][]byte, result status.Status)) {
	caller := &coroAsFuncCaller{collector: newArgCollector(), onDone: onDone}
	callSocket := c.fn.StartCall(dom, caller)

	emitter := newArgEmitter(status.Closed, inputs, callSocket)
	caller.inputEmitter = emitter
	emitter.pump()
}

// coroAsFuncCaller is the Socket CoroAsFunc hands to Function.StartCall
// as the caller: Write collects the call's output arguments, and
// OnWriteDone resumes pushing input arguments if the call's own Write
// ever reported Busy partway through.
type coroAsFuncCaller struct {
	collector    *argCollector
	inputEmitter *argEmitter
	onDone       func(outs [][]byte, result status.Status)
	done         bool
}

func (c *coroAsFuncCaller) Write(args socket.WriteArgs) socket.WriteResult {
	end, st := c.collector.write(args)
	if st.IsTerminal() && !c.done {
		c.done = true
		c.onDone(c.collector.args(), st)
	}
	return socket.WriteResult{Status: st, End: end}
}

func (c *coroAsFuncCaller) OnWriteDone(result socket.WriteResult) socket.WriteArgs {
	if c.inputEmitter != nil {
		return c.inputEmitter.onWriteDone(result)
	}
	return socket.Busy()
}
