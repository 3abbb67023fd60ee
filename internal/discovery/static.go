//go:build linux

package discovery

import (
	"encoding/hex"
	"log/slog"
	"net/netip"
	"strconv"
	"sync"

	"github.com/fibrefabric/fibre/internal/domain"
	"github.com/fibrefabric/fibre/internal/eventloop"
	"github.com/fibrefabric/fibre/internal/status"
	"github.com/fibrefabric/fibre/internal/transport"
)

// StaticBackend dials one fixed peer address per StartChannelDiscovery
// call — no actual discovery mechanism, just the spec string turned
// directly into a Channel. Useful for integration tests and fixed
// topologies where the peer's address and NodeId are already known, the
// way spec.md describes the reference implementation's own "static"
// backend. Every field this backend needs (address, port, the peer's
// NodeId, MTU) comes from the standard library, so no third-party
// dependency is wired here.
//
// Accepted spec keys:
//
//	address  remote IP (required)
//	port     remote UDP port (required)
//	node     peer NodeId, 32 hex characters (required)
//	bind     local address to bind to (default "0.0.0.0:0")
//	mtu      packet size budget (default 1472)
//	iface    bind device for SO_BINDTODEVICE (optional)
type StaticBackend struct {
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[*staticSession]struct{}
}

// NewStaticBackend returns an unstarted StaticBackend.
func NewStaticBackend() *StaticBackend {
	return &StaticBackend{sessions: make(map[*staticSession]struct{})}
}

type staticSession struct {
	sink *transport.UDPSink
}

// Init stores logger for later use. StaticBackend has no platform
// resources of its own to acquire; loop is unused since dialing a UDP
// socket completes synchronously.
func (b *StaticBackend) Init(_ *eventloop.EventLoop, logger *slog.Logger) error {
	b.logger = logger.With(slog.String("component", "discovery.static"))
	return nil
}

// Deinit closes every session StartChannelDiscovery opened and did not
// already have stopped.
func (b *StaticBackend) Deinit() error {
	b.mu.Lock()
	sessions := make([]*staticSession, 0, len(b.sessions))
	for s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.sessions = make(map[*staticSession]struct{})
	b.mu.Unlock()

	for _, s := range sessions {
		_ = s.sink.Close()
	}
	return nil
}

// StartChannelDiscovery dials the peer specsStr names and registers it
// with dom as a single Channel. There is no ongoing discovery process:
// by the time this returns, the Channel is already attached or an error
// is returned.
func (b *StaticBackend) StartChannelDiscovery(dom *domain.Domain, specsStr string) (Handle, error) {
	specs := ParseSpecs(specsStr)

	addrStr, ok := specs["address"]
	if !ok {
		return nil, status.Here("discovery/static: missing \"address\" spec")
	}
	portStr, ok := specs["port"]
	if !ok {
		return nil, status.Here("discovery/static: missing \"port\" spec")
	}
	nodeStr, ok := specs["node"]
	if !ok {
		return nil, status.Here("discovery/static: missing \"node\" spec")
	}

	addr, err := netip.ParseAddr(addrStr)
	if err != nil {
		return nil, status.AmendHere(status.Here(err.Error()), "discovery/static: parse address")
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, status.AmendHere(status.Here(err.Error()), "discovery/static: parse port")
	}
	nodeID, err := parseNodeID(nodeStr)
	if err != nil {
		return nil, status.AmendHere(status.Here(err.Error()), "discovery/static: parse node")
	}

	bindAddr := netip.MustParseAddrPort("0.0.0.0:0")
	if bindStr, ok := specs["bind"]; ok {
		bindAddr, err = netip.ParseAddrPort(bindStr)
		if err != nil {
			return nil, status.AmendHere(status.Here(err.Error()), "discovery/static: parse bind")
		}
	}

	mtu := 1472
	if mtuStr, ok := specs["mtu"]; ok {
		n, err := strconv.Atoi(mtuStr)
		if err != nil {
			return nil, status.AmendHere(status.Here(err.Error()), "discovery/static: parse mtu")
		}
		mtu = n
	}

	var opts []transport.UDPSinkOption
	if iface, ok := specs["iface"]; ok {
		opts = append(opts, transport.WithBindDevice(iface))
	}

	dst := netip.AddrPortFrom(addr, uint16(port))
	sink, err := transport.NewUDPSink(bindAddr, dst, mtu, b.logger, opts...)
	if err != nil {
		return nil, status.AmendHere(status.Here(err.Error()), "discovery/static: dial peer")
	}

	if err := dom.AddChannel(domain.Channel{
		NodeID:     nodeID,
		Sink:       sink,
		Packetized: true,
	}); err != nil {
		_ = sink.Close()
		return nil, status.AmendHere(status.Here(err.Error()), "discovery/static: add channel")
	}

	session := &staticSession{sink: sink}
	b.mu.Lock()
	b.sessions[session] = struct{}{}
	b.mu.Unlock()

	b.logger.Info("channel added",
		slog.String("node", nodeID.String()),
		slog.String("dst", dst.String()))

	return session, nil
}

// Sink returns the UDPSink a prior StartChannelDiscovery call dialed for
// h, so a caller (typically cmd/fibre-node's receive loop) can read the
// same socket back for inbound packets — this backend wires the TX
// direction itself; wiring RX the rest of the way into a Connection is
// the caller's job per domain.Channel's own doc comment.
func (b *StaticBackend) Sink(h Handle) (*transport.UDPSink, bool) {
	session, ok := h.(*staticSession)
	if !ok {
		return nil, false
	}
	b.mu.Lock()
	_, live := b.sessions[session]
	b.mu.Unlock()
	if !live {
		return nil, false
	}
	return session.sink, true
}

// StopChannelDiscovery closes the session's dialed sink. The Channel
// remains registered in dom — Domain has no RemoveChannel operation —
// and the closed sink stays in the Node's sink list; nothing removes it
// automatically.
func (b *StaticBackend) StopChannelDiscovery(h Handle) error {
	session, ok := h.(*staticSession)
	if !ok {
		return status.Here("discovery/static: handle not owned by this backend")
	}

	b.mu.Lock()
	delete(b.sessions, session)
	b.mu.Unlock()

	return session.sink.Close()
}

func parseNodeID(s string) (domain.NodeId, error) {
	var id domain.NodeId
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, status.Here("discovery/static: node id must be 16 bytes hex-encoded")
	}
	copy(id[:], raw)
	return id, nil
}
