// Package fifo implements the ring buffer a Connection uses for both its
// RX and TX directions: a bounded ring of Chunks (byte ranges or
// frame-boundary markers) that can be appended to in arrival order, read
// from an arbitrary earlier position, and trimmed from the front once
// acknowledged. Entries are not reordered by position.
package fifo

import (
	"errors"

	"github.com/fibrefabric/fibre/internal/wire"
)

// Capacity is the maximum number of live entries the ring holds at once.
const Capacity = 256

// It marks a position in a Fifo's entry stream: a logical (monotonic,
// never-wrapping-in-practice) entry sequence number plus, for the entry
// currently at the front of the live range, a byte offset into it. Two
// Its are comparable with ==.
type It struct {
	seq  uint64
	byte int
}

// Fifo is a fixed-capacity ring of Chunks. It never copies chunk bytes;
// every entry references its caller's backing buffer, exactly like the
// Chunks a BufChain carries.
type Fifo struct {
	ring    [Capacity]wire.Chunk
	headSeq uint64 // sequence number of the oldest live entry
	tailSeq uint64 // sequence number one past the newest live entry
}

// New returns an empty Fifo.
func New() *Fifo {
	return &Fifo{}
}

func (f *Fifo) liveCount() int { return int(f.tailSeq - f.headSeq) }

func (f *Fifo) at(seq uint64) *wire.Chunk { return &f.ring[seq%Capacity] }

// ReadBegin returns an iterator to the oldest live entry.
func (f *Fifo) ReadBegin() It { return It{seq: f.headSeq} }

// ReadEnd returns an iterator just past the newest live entry.
func (f *Fifo) ReadEnd() It { return It{seq: f.tailSeq} }

// HasData reports whether the Fifo holds any live entries.
func (f *Fifo) HasData() bool { return f.liveCount() > 0 }

// Append copies chunk descriptors from chain into the ring until it is
// full, stopping cleanly rather than erroring. It returns an iterator
// into chain marking how far ingestion got.
func (f *Fifo) Append(chain wire.BufChain) wire.BufIt {
	for chain.NChunks() > 0 {
		if f.liveCount() >= Capacity {
			break
		}
		ch := chain.Front()
		*f.at(f.tailSeq) = ch
		f.tailSeq++
		chain = chain.SkipChunks(1)
	}
	return chain.Begin()
}

// Read copies descriptors at or after it into w, honoring it's byte
// offset into whatever entry it currently points at, stopping when w
// runs out of free space or the live range is exhausted. It returns the
// iterator reached.
func (f *Fifo) Read(it It, w wire.WriteIterator) It {
	for it.seq < f.tailSeq {
		ch := *f.at(it.seq)
		if !w.HasFreeSpace() {
			break
		}
		if ch.IsFrameBoundary() {
			w.Write(ch)
			it = It{seq: it.seq + 1}
			continue
		}
		remaining := ch.Buf[it.byte:]
		if len(remaining) == 0 {
			it = It{seq: it.seq + 1}
			continue
		}
		w.Write(wire.NewChunk(ch.Layer, remaining))
		it = It{seq: it.seq + 1}
	}
	return it
}

// AdvanceIt walks forward from it, consuming nFramesPerLayer[l] frame
// boundaries and nBytesPerLayer[l] bytes of layer-l data for layers
// 0..2, and returns the resulting position. Used by a Connection to turn
// an acked (frame_id, offset) position per layer into a Fifo iterator it
// can drop_until.
func (f *Fifo) AdvanceIt(it It, nFramesPerLayer, nBytesPerLayer [3]uint16) It {
	var framesLeft, bytesLeft [3]int
	for l := 0; l < 3; l++ {
		framesLeft[l] = int(nFramesPerLayer[l])
		bytesLeft[l] = int(nBytesPerLayer[l])
	}

	for it.seq < f.tailSeq {
		ch := *f.at(it.seq)
		l := int(ch.Layer)
		if l >= 3 {
			break // outside the tracked layer range; stop short
		}
		if ch.IsFrameBoundary() {
			if framesLeft[l] > 0 {
				framesLeft[l]--
				it = It{seq: it.seq + 1}
				continue
			}
			if bytesLeft[l] <= 0 {
				break
			}
			it = It{seq: it.seq + 1}
			continue
		}
		if framesLeft[l] > 0 {
			// Still inside a frame being skipped wholesale on the way to
			// a later boundary: consume it regardless of bytesLeft, which
			// only budgets data in the frame current once framesLeft
			// reaches zero.
			it = It{seq: it.seq + 1}
			continue
		}
		avail := len(ch.Buf) - it.byte
		if bytesLeft[l] <= 0 {
			break
		}
		if bytesLeft[l] < avail {
			it = It{seq: it.seq, byte: it.byte + bytesLeft[l]}
			bytesLeft[l] = 0
			break
		}
		bytesLeft[l] -= avail
		it = It{seq: it.seq + 1}
	}
	return it
}

// DropUntil releases every entry strictly before it, freeing ring space.
// it must not be before ReadBegin(). A byte offset in it is not kept: the
// new head entry stays whole, and ReadBegin() points at its first byte.
func (f *Fifo) DropUntil(it It) {
	if it.seq > f.headSeq {
		f.headSeq = it.seq
	}
}

// Consume drops up to n bytes of layer data from the current head,
// skipping over (and dropping) any interleaved frame boundaries, and
// returns the resulting ReadBegin(). It is a shortcut for callers that
// only ever consume forward from the front, with no need to retain an
// iterator across the call.
func (f *Fifo) Consume(n int) It {
	seq := f.headSeq
	remaining := n
	for seq < f.tailSeq && remaining > 0 {
		ch := *f.at(seq)
		if ch.IsFrameBoundary() {
			seq++
			continue
		}
		if len(ch.Buf) > remaining {
			// Replace the head entry with its unconsumed remainder so the
			// ring never has to track a mid-entry offset across drops.
			*f.at(seq) = wire.NewChunk(ch.Layer, ch.Buf[remaining:])
			remaining = 0
			break
		}
		remaining -= len(ch.Buf)
		seq++
	}
	f.headSeq = seq
	return f.ReadBegin()
}

var errEntryOutOfRange = errors.New("fifo: entry outside live range")
var errHeadOffsetOOB = errors.New("fifo: head offset exceeds head entry length")
var errBoundaryHasBytes = errors.New("fifo: frame-boundary entry carries bytes")
var errOverCapacity = errors.New("fifo: live range exceeds capacity")

// Fsck checks the ring's invariants: every live entry references a valid
// byte range or is a bare boundary marker, and the live range never
// exceeds Capacity. It returns the first violation found, or nil.
func (f *Fifo) Fsck() error {
	if f.tailSeq < f.headSeq {
		return errEntryOutOfRange
	}
	if f.liveCount() > Capacity {
		return errOverCapacity
	}
	for seq := f.headSeq; seq < f.tailSeq; seq++ {
		ch := *f.at(seq)
		if ch.IsFrameBoundary() && ch.Buf != nil {
			return errBoundaryHasBytes
		}
	}
	return nil
}

// headOffsetValid reports whether byte is a legal offset into the head
// entry at it, used by tests to exercise the read_idx_offset_ <= entry
// length invariant directly.
func (f *Fifo) headOffsetValid(it It) error {
	if it.seq >= f.tailSeq {
		if it.byte != 0 {
			return errHeadOffsetOOB
		}
		return nil
	}
	ch := *f.at(it.seq)
	if it.byte > ch.Len() {
		return errHeadOffsetOOB
	}
	return nil
}
