package domain

import (
	"log/slog"
	"sync"

	"github.com/fibrefabric/fibre/internal/status"
)

// Sink is the subset of a transport's FrameStreamSink a Node needs to
// track reachability: just enough to size outbound packets. The
// Multiplexer and Connection layers work with the concrete
// internal/transport.FrameStreamSink directly; Domain only needs to hold
// onto one per Node and hand it back out, so it declares the narrowest
// interface that serves its own bookkeeping — any FrameStreamSink
// implementation satisfies this without internal/transport importing
// internal/domain.
type Sink interface {
	MTU() int
}

// Node is a remote peer reachable through one or more Sinks, populated by
// discovery backends and consumed by the Multiplexer when a Connection
// needs to pick a TX sink.
type Node struct {
	mu       sync.RWMutex
	id       NodeId
	sinks    []Sink
	maxSinks int
}

func newNode(id NodeId, maxSinks int) *Node {
	return &Node{id: id, maxSinks: maxSinks}
}

// ID returns the node's NodeId.
func (n *Node) ID() NodeId { return n.id }

// AddSink attaches s to the node. Returns false without modifying the
// node if its sink pool is already full.
func (n *Node) AddSink(s Sink) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, existing := range n.sinks {
		if existing == s {
			return true
		}
	}
	if len(n.sinks) >= n.maxSinks {
		return false
	}
	n.sinks = append(n.sinks, s)
	return true
}

// RemoveSink detaches s from the node, if present.
func (n *Node) RemoveSink(s Sink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, existing := range n.sinks {
		if existing == s {
			n.sinks = append(n.sinks[:i], n.sinks[i+1:]...)
			return
		}
	}
}

// Sinks returns a snapshot of the node's currently attached sinks.
func (n *Node) Sinks() []Sink {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Sink, len(n.sinks))
	copy(out, n.sinks)
	return out
}

// Connection is the subset of internal/conn.Connection the Domain
// directory needs in order to hold, look up, and tear down a call by its
// CallId, without importing internal/conn (which itself needs NodeId and
// CallId from this package).
type Connection interface {
	CallID() CallId
	Closed() bool
}

// Channel is what a discovery backend reports to Domain.AddChannel when
// it finds a reachable peer: spec.md's add_channels({status, rx_stream,
// tx_stream, mtu, packetized}), narrowed to what this connection-layer
// module tracks. Wiring the RX stream (inbound packets -> LowLevelProtocol
// -> ConnectionInputSlot) is the caller's job — typically cmd/fibre-node's
// receive loop — since the Domain directory itself is transport-agnostic.
type Channel struct {
	NodeID     NodeId
	Sink       Sink
	Status     status.Status
	Packetized bool
}

// Options configures capacity limits the Domain directory enforces; see
// the functional-options idiom dantte-lp-gobfd/internal/bfd/manager.go
// uses for session construction.
type Options struct {
	MaxNodes             int
	MaxSinksPerNode      int
	MaxServerConnections int
	MaxClientConnections int
	Logger               *slog.Logger
}

// Option mutates Options during Domain construction.
type Option func(*Options)

// WithMaxNodes bounds how many remote Nodes the directory tracks.
func WithMaxNodes(n int) Option { return func(o *Options) { o.MaxNodes = n } }

// WithMaxSinksPerNode bounds how many Sinks a single Node may accumulate.
func WithMaxSinksPerNode(n int) Option { return func(o *Options) { o.MaxSinksPerNode = n } }

// WithMaxServerConnections bounds the server-side Connection table.
func WithMaxServerConnections(n int) Option {
	return func(o *Options) { o.MaxServerConnections = n }
}

// WithMaxClientConnections bounds the client-side Connection table.
func WithMaxClientConnections(n int) Option {
	return func(o *Options) { o.MaxClientConnections = n }
}

// WithLogger sets the logger the Domain and everything built through it
// should use.
func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Logger = l } }

func defaultOptions() Options {
	return Options{
		MaxNodes:             16,
		MaxSinksPerNode:      4,
		MaxServerConnections: 3,
		MaxClientConnections: 3,
		Logger:               slog.Default(),
	}
}

// Domain owns the directory of reachable Nodes by NodeId, the directory
// of open server/client Connections by CallId, and the local NodeId and
// CallId generator. Every lookup is keyed by a fixed-size array; none of
// Domain's own bookkeeping allocates per-entry beyond the bounded maps
// themselves.
type Domain struct {
	id      NodeId
	callGen *CallIDGenerator
	logger  *slog.Logger
	opts    Options

	mu          sync.RWMutex
	nodes       map[NodeId]*Node
	serverConns map[CallId]Connection
	clientConns map[CallId]Connection
}

// New returns a Domain identified by id, configured by opts.
func New(id NodeId, opts ...Option) *Domain {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Domain{
		id:          id,
		callGen:     NewCallIDGenerator(id),
		logger:      o.Logger.With(slog.String("component", "domain")),
		opts:        o,
		nodes:       make(map[NodeId]*Node),
		serverConns: make(map[CallId]Connection),
		clientConns: make(map[CallId]Connection),
	}
}

// ID returns the Domain's own NodeId.
func (d *Domain) ID() NodeId { return d.id }

// NewCallID allocates the next CallId for a client-initiated call.
func (d *Domain) NewCallID() CallId { return d.callGen.Next() }

// AddNode registers id in the node directory, or returns the existing
// Node if id is already known. Returns an error if the table is full and
// id is new.
func (d *Domain) AddNode(id NodeId) (*Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.nodes[id]; ok {
		return n, nil
	}
	if len(d.nodes) >= d.opts.MaxNodes {
		return nil, status.Here("domain: node table full")
	}
	n := newNode(id, d.opts.MaxSinksPerNode)
	d.nodes[id] = n
	return n, nil
}

// Node looks up a previously registered remote Node.
func (d *Domain) Node(id NodeId) (*Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.nodes[id]
	return n, ok
}

// AddChannel is the entry point discovery backends call on finding a
// reachable peer: it registers the Node if new, then attaches ch.Sink.
func (d *Domain) AddChannel(ch Channel) error {
	node, err := d.AddNode(ch.NodeID)
	if err != nil {
		d.logger.Warn("add channel: node table full", slog.String("node", ch.NodeID.String()))
		return err
	}
	if !node.AddSink(ch.Sink) {
		d.logger.Warn("add channel: sink pool full", slog.String("node", ch.NodeID.String()))
		return status.Here("domain: sink pool full for node")
	}
	return nil
}

// RegisterServerConnection adds c to the server-side directory, keyed by
// c.CallID(). Returns an error if the table is full.
func (d *Domain) RegisterServerConnection(c Connection) error {
	return registerConnection(&d.mu, d.serverConns, c, d.opts.MaxServerConnections)
}

// RegisterClientConnection adds c to the client-side directory, keyed by
// c.CallID(). Returns an error if the table is full.
func (d *Domain) RegisterClientConnection(c Connection) error {
	return registerConnection(&d.mu, d.clientConns, c, d.opts.MaxClientConnections)
}

func registerConnection(mu *sync.RWMutex, table map[CallId]Connection, c Connection, limit int) error {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := table[c.CallID()]; exists {
		return status.Here("domain: connection already registered")
	}
	if len(table) >= limit {
		return status.Here("domain: connection table full")
	}
	table[c.CallID()] = c
	return nil
}

// ServerConnection looks up an open server-side Connection by CallId.
func (d *Domain) ServerConnection(id CallId) (Connection, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.serverConns[id]
	return c, ok
}

// ClientConnection looks up an open client-side Connection by CallId.
func (d *Domain) ClientConnection(id CallId) (Connection, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.clientConns[id]
	return c, ok
}

// RemoveServerConnection tears down the directory entry for id. Callers
// must have already confirmed the Connection closed in both directions
// with no retransmit outstanding, per spec.md's Connection lifecycle.
func (d *Domain) RemoveServerConnection(id CallId) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.serverConns, id)
}

// RemoveClientConnection is RemoveServerConnection's client-side twin.
func (d *Domain) RemoveClientConnection(id CallId) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.clientConns, id)
}

// NodeSnapshot is a read-only view of one registered Node, the way
// dantte-lp-gobfd/internal/bfd/manager.go's SessionSnapshot summarizes a
// session for an introspection surface without exposing the live Node
// itself.
type NodeSnapshot struct {
	ID       NodeId
	NumSinks int
}

// Nodes returns a snapshot of every currently registered Node.
func (d *Domain) Nodes() []NodeSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]NodeSnapshot, 0, len(d.nodes))
	for id, n := range d.nodes {
		out = append(out, NodeSnapshot{ID: id, NumSinks: len(n.Sinks())})
	}
	return out
}

// ConnectionSnapshot is a read-only view of one open Connection.
type ConnectionSnapshot struct {
	CallID CallId
	Closed bool
}

// ServerConnections returns a snapshot of every open server-side Connection.
func (d *Domain) ServerConnections() []ConnectionSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return snapshotConnections(d.serverConns)
}

// ClientConnections returns a snapshot of every open client-side Connection.
func (d *Domain) ClientConnections() []ConnectionSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return snapshotConnections(d.clientConns)
}

func snapshotConnections(table map[CallId]Connection) []ConnectionSnapshot {
	out := make([]ConnectionSnapshot, 0, len(table))
	for id, c := range table {
		out = append(out, ConnectionSnapshot{CallID: id, Closed: c.Closed()})
	}
	return out
}
