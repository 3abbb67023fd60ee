package discovery

import (
	"crypto/sha256"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/fibrefabric/fibre/internal/domain"
	"github.com/fibrefabric/fibre/internal/eventloop"
	"github.com/fibrefabric/fibre/internal/status"
)

const (
	bluezService       = "org.bluez"
	objectManagerIface = "org.freedesktop.DBus.ObjectManager"
	device1Iface       = "org.bluez.Device1"
	rootPath           = dbus.ObjectPath("/")
)

// bleSink is the Sink discovered BlueZ devices are registered with. The
// actual GATT read/write path a real transport would need is out of
// scope here (platform BLE stack glue, per the connection layer's own
// boundary); this records only the MTU a Connection needs to size its
// packets, the same narrow contract domain.Sink already requires.
type bleSink struct {
	mtu int
}

func (s bleSink) MTU() int { return s.mtu }

// DBusBackend discovers Fibre-capable peers advertised over Bluetooth LE
// by watching BlueZ's object tree for org.bluez.Device1 objects whose
// UUIDs property contains a configured service UUID, grounded on
// dbus.cpp and org.bluez.Device1.hpp's property surface. It uses
// github.com/godbus/dbus/v5 for the system bus connection and signal
// subscription; the lower-level libdbus epoll/watch-function wiring
// those sources show is system-bus transport glue godbus already
// provides, so it is not reimplemented here.
type DBusBackend struct {
	conn   *dbus.Conn
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[*dbusSession]struct{}
}

type dbusSession struct {
	stopCh chan struct{}
	done   chan struct{}
}

// NewDBusBackend returns an unstarted DBusBackend.
func NewDBusBackend() *DBusBackend {
	return &DBusBackend{sessions: make(map[*dbusSession]struct{})}
}

// Init opens a connection to the D-Bus system bus, where BlueZ publishes
// its object tree. The event loop is not used: devices that appear after
// StartChannelDiscovery are registered with dom directly from the
// session's own signal goroutine.
func (b *DBusBackend) Init(_ *eventloop.EventLoop, logger *slog.Logger) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return status.AmendHere(status.Here(err.Error()), "discovery/dbus: connect system bus")
	}
	b.conn = conn
	b.logger = logger.With(slog.String("component", "discovery.dbus"))
	return nil
}

// Deinit stops every open discovery session and closes the bus
// connection.
func (b *DBusBackend) Deinit() error {
	b.mu.Lock()
	sessions := make([]*dbusSession, 0, len(b.sessions))
	for s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.sessions = make(map[*dbusSession]struct{})
	b.mu.Unlock()

	for _, s := range sessions {
		close(s.stopCh)
		<-s.done
	}

	if b.conn == nil {
		return nil
	}
	if err := b.conn.Close(); err != nil {
		return status.AmendHere(status.Here(err.Error()), "discovery/dbus: close bus connection")
	}
	return nil
}

// StartChannelDiscovery watches BlueZ for devices advertising the
// service UUID specsStr names under its "uuid" key (e.g.
// "uuid=0000fibr-0000-1000-8000-00805f9b34fb,mtu=247"), registering a
// Channel with dom for each matching device found, both already known
// at call time and discovered afterward.
func (b *DBusBackend) StartChannelDiscovery(dom *domain.Domain, specsStr string) (Handle, error) {
	specs := ParseSpecs(specsStr)
	uuid, ok := specs["uuid"]
	if !ok {
		return nil, status.Here("discovery/dbus: missing \"uuid\" spec")
	}
	mtu := 247 // BLE 4.2 default ATT_MTU ceiling; overridable per spec.
	if mtuStr, ok := specs["mtu"]; ok {
		n, err := strconv.Atoi(mtuStr)
		if err != nil {
			return nil, status.AmendHere(status.Here(err.Error()), "discovery/dbus: parse mtu")
		}
		mtu = n
	}

	sigCh := make(chan *dbus.Signal, 16)
	b.conn.Signal(sigCh)
	if err := b.conn.AddMatchSignal(dbus.WithMatchInterface(objectManagerIface), dbus.WithMatchMember("InterfacesAdded")); err != nil {
		b.conn.RemoveSignal(sigCh)
		return nil, status.AmendHere(status.Here(err.Error()), "discovery/dbus: subscribe InterfacesAdded")
	}

	session := &dbusSession{stopCh: make(chan struct{}), done: make(chan struct{})}
	b.mu.Lock()
	b.sessions[session] = struct{}{}
	b.mu.Unlock()

	b.addExistingDevices(dom, uuid, mtu)

	go func() {
		defer close(session.done)
		defer b.conn.RemoveSignal(sigCh)
		for {
			select {
			case <-session.stopCh:
				return
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				b.handleInterfacesAdded(dom, sig, uuid, mtu)
			}
		}
	}()

	return session, nil
}

// StopChannelDiscovery ends the discovery session h started. Devices
// already registered with dom remain registered — matching
// StaticBackend's lifetime, since Domain exposes no RemoveChannel.
func (b *DBusBackend) StopChannelDiscovery(h Handle) error {
	session, ok := h.(*dbusSession)
	if !ok {
		return status.Here("discovery/dbus: handle not owned by this backend")
	}

	b.mu.Lock()
	_, known := b.sessions[session]
	delete(b.sessions, session)
	b.mu.Unlock()
	if !known {
		return status.Here("discovery/dbus: unknown discovery session")
	}

	close(session.stopCh)
	<-session.done
	return nil
}

func (b *DBusBackend) addExistingDevices(dom *domain.Domain, uuid string, mtu int) {
	root := b.conn.Object(bluezService, rootPath)
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := root.Call(objectManagerIface+".GetManagedObjects", 0).Store(&objects); err != nil {
		b.logger.Warn("GetManagedObjects failed", slog.String("error", err.Error()))
		return
	}
	for path, ifaces := range objects {
		b.registerIfMatch(dom, path, ifaces, uuid, mtu)
	}
}

func (b *DBusBackend) handleInterfacesAdded(dom *domain.Domain, sig *dbus.Signal, uuid string, mtu int) {
	if sig == nil || len(sig.Body) != 2 {
		return
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return
	}
	ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return
	}
	b.registerIfMatch(dom, path, ifaces, uuid, mtu)
}

func (b *DBusBackend) registerIfMatch(dom *domain.Domain, path dbus.ObjectPath, ifaces map[string]map[string]dbus.Variant, uuid string, mtu int) {
	props, ok := ifaces[device1Iface]
	if !ok {
		return
	}
	if !hasUUID(props, uuid) {
		return
	}
	addrVariant, ok := props["Address"]
	if !ok {
		return
	}
	addr, ok := addrVariant.Value().(string)
	if !ok || addr == "" {
		return
	}

	nodeID := nodeIDFromAddress(addr)
	if err := dom.AddChannel(domain.Channel{
		NodeID:     nodeID,
		Sink:       bleSink{mtu: mtu},
		Packetized: true,
	}); err != nil {
		b.logger.Warn("add channel failed",
			slog.String("device", string(path)),
			slog.String("error", err.Error()))
		return
	}
	b.logger.Info("channel added",
		slog.String("device", string(path)),
		slog.String("address", addr),
		slog.String("node", nodeID.String()))
}

func hasUUID(props map[string]dbus.Variant, want string) bool {
	variant, ok := props["UUIDs"]
	if !ok {
		return false
	}
	uuids, ok := variant.Value().([]string)
	if !ok {
		return false
	}
	for _, u := range uuids {
		if strings.EqualFold(u, want) {
			return true
		}
	}
	return false
}

// nodeIDFromAddress derives a stable NodeId from a BLE MAC address
// string, the way internal/config.DomainConfig.ResolveNodeID derives
// one from an operator-supplied seed: a device's address is stable
// across reconnects but isn't itself 16 bytes, so it is stretched via
// SHA-256 rather than padded or truncated directly.
func nodeIDFromAddress(addr string) domain.NodeId {
	sum := sha256.Sum256([]byte(addr))
	var id domain.NodeId
	copy(id[:], sum[:16])
	return id
}
