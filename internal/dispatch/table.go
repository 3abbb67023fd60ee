package dispatch

import (
	"fmt"
	"sync"

	"github.com/fibrefabric/fibre/internal/domain"
	"github.com/fibrefabric/fibre/internal/socket"
)

// Table resolves an endpoint id to a registered Function, implementing
// conn.FunctionTable so it can be handed straight to
// conn.NewEndpointServerConnection. exchange is accepted but not acted
// on differently here: every Function this table serves responds with
// its output arguments regardless, so a caller that set exchange=false
// (expecting no response) simply never reads them — there is no
// fire-and-forget Function implementation in this package to suppress
// the response for.
type Table struct {
	dom *domain.Domain

	mu        sync.RWMutex
	functions map[uint16]Function
}

// NewTable returns an empty Table bound to dom, the Domain each started
// call is handed.
func NewTable(dom *domain.Domain) *Table {
	return &Table{dom: dom, functions: make(map[uint16]Function)}
}

// Register binds endpointID to fn. Registering an id a second time
// replaces the previous binding.
func (t *Table) Register(endpointID uint16, fn Function) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.functions[endpointID] = fn
}

// StartCall implements conn.FunctionTable.
func (t *Table) StartCall(endpointID uint16, exchange bool, caller socket.Socket) (socket.Socket, error) {
	t.mu.RLock()
	fn, ok := t.functions[endpointID]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("dispatch: no function registered for endpoint %d", endpointID)
	}
	return fn.StartCall(t.dom, caller), nil
}
