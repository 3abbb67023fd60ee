// Package discovery defines the pluggable Backend interface a Domain
// uses to find reachable peers and turn them into attached sinks, plus
// two concrete backends: a static, spec-string-only backend for
// integration tests and fixed topologies, and a D-Bus/BlueZ backend for
// discovering Fibre-capable devices advertised over Bluetooth LE.
//
// Platform event-loop glue (epoll, libdbus's own socket watch/timeout
// callbacks) is out of scope for this module; Init only needs an
// internal/eventloop.EventLoop to marshal discovery callbacks onto the
// Domain's single thread, not to drive the underlying transport itself.
package discovery

import (
	"log/slog"
	"strings"

	"github.com/fibrefabric/fibre/internal/domain"
	"github.com/fibrefabric/fibre/internal/eventloop"
)

// Handle identifies one in-progress StartChannelDiscovery call, opaque
// to callers and returned back to StopChannelDiscovery to cancel it.
type Handle interface{}

// Backend finds reachable peers and reports them to a Domain via
// Domain.AddChannel. specsStr is an opaque "key=value,key=value" blob
// (e.g. "address=127.0.0.1,port=9910"); each Backend implementation
// defines its own accepted keys.
type Backend interface {
	// Init prepares the backend to run discovery sessions, marshaling
	// any asynchronous completion back onto loop.
	Init(loop *eventloop.EventLoop, logger *slog.Logger) error

	// Deinit releases resources Init acquired. Any discovery sessions
	// still running are implicitly stopped.
	Deinit() error

	// StartChannelDiscovery begins looking for peers matching specsStr,
	// registering anything found with dom. Returns a Handle that
	// identifies this session for StopChannelDiscovery.
	StartChannelDiscovery(dom *domain.Domain, specsStr string) (Handle, error)

	// StopChannelDiscovery ends the discovery session h started.
	StopChannelDiscovery(h Handle) error
}

// ParseSpecs splits a "key=value,key=value" spec string into a lookup
// map. Malformed pairs (no "=", empty key) are skipped.
func ParseSpecs(specsStr string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(specsStr, ",") {
		key, val, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			continue
		}
		out[key] = val
	}
	return out
}
