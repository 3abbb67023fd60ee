// Package domain implements the per-process directory Fibre components
// are organized under: the local NodeId, the table of reachable remote
// Nodes, and the bounded maps of open server/client Connections keyed by
// CallId.
package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"
)

// NodeId is 16 opaque bytes identifying a process on the fabric,
// generated once per process from a CSPRNG seed.
type NodeId [16]byte

// String renders id as hex, for logging.
func (id NodeId) String() string { return hex.EncodeToString(id[:]) }

// NewNodeId generates a fresh, random NodeId.
func NewNodeId() (NodeId, error) {
	var id NodeId
	if _, err := rand.Read(id[:]); err != nil {
		return NodeId{}, err
	}
	return id, nil
}

// CallId is 16 opaque bytes identifying one logical call across its
// lifetime, derived on the client from a per-Domain deterministic
// generator seeded by the local NodeId and a monotonic counter.
type CallId [16]byte

// String renders id as hex, for logging.
func (id CallId) String() string { return hex.EncodeToString(id[:]) }

// CallIDGenerator produces CallIds deterministically from a NodeId seed
// and a monotonically increasing counter, the way
// dantte-lp-gobfd/internal/bfd/discriminator.go allocates unique
// discriminators — except Fibre's CallId needs no collision retry loop,
// since seed+counter is unique by construction for the generator's
// lifetime.
type CallIDGenerator struct {
	seed    NodeId
	counter uint64
}

// NewCallIDGenerator returns a generator seeded by seed.
func NewCallIDGenerator(seed NodeId) *CallIDGenerator {
	return &CallIDGenerator{seed: seed}
}

// Next returns the next CallId in sequence.
func (g *CallIDGenerator) Next() CallId {
	n := atomic.AddUint64(&g.counter, 1)
	var buf [24]byte
	copy(buf[:16], g.seed[:])
	binary.BigEndian.PutUint64(buf[16:], n)
	sum := sha256.Sum256(buf[:])
	var id CallId
	copy(id[:], sum[:16])
	return id
}
