package wire

// BufIt marks a position inside a BufChain: a chunk index plus, when that
// chunk is a data chunk, a byte offset into it. An iterator with
// Idx == len(chunks) denotes the end of the chain.
type BufIt struct {
	chunks []Chunk
	Idx    int
	Byte   int
}

// IsEnd reports whether it denotes the end of its chain.
func (it BufIt) IsEnd() bool { return it.Idx >= len(it.chunks) }

// Chunk returns the chunk at the iterator's position. Behavior is
// undefined if IsEnd() is true.
func (it BufIt) Chunk() Chunk { return it.chunks[it.Idx] }

// Equal reports whether it and other have the same chunk index and byte
// offset. The chunk slices they refer to are not compared.
func (it BufIt) Equal(other BufIt) bool {
	return it.Idx == other.Idx && it.Byte == other.Byte
}

// BufChain is an ordered, zero-copy view over a sequence of Chunks,
// starting at a byte offset into the first chunk and applying a signed
// layer elevation to every chunk it exposes. None of Begin/End/SkipBytes/
// SkipChunks ever copies chunk data.
type BufChain struct {
	chunks    []Chunk
	byteOff   int
	elevation int8
}

// NewBufChain builds a BufChain over chunks, starting at the chain's
// first byte.
func NewBufChain(chunks []Chunk) BufChain {
	return BufChain{chunks: chunks}
}

// NChunks returns the number of chunks remaining in the chain.
func (c BufChain) NChunks() int { return len(c.chunks) }

// Empty reports whether the chain has no chunks left.
func (c BufChain) Empty() bool { return len(c.chunks) == 0 }

// Begin returns an iterator to the chain's current start.
func (c BufChain) Begin() BufIt { return BufIt{chunks: c.chunks, Idx: 0, Byte: c.byteOff} }

// End returns an iterator past the chain's last chunk.
func (c BufChain) End() BufIt { return BufIt{chunks: c.chunks, Idx: len(c.chunks)} }

func (c BufChain) elevate(ch Chunk) Chunk {
	if c.elevation == 0 {
		return ch
	}
	return ch.Elevate(c.elevation)
}

// Front returns the first chunk, elevated and sliced from byteOff if it
// is a data chunk. Panics if the chain is empty, matching the precondition
// the original implementation carries (callers must check NChunks first).
func (c BufChain) Front() Chunk {
	ch := c.chunks[0]
	if ch.IsBuf() {
		ch.Buf = ch.Buf[c.byteOff:]
	}
	return c.elevate(ch)
}

// Back returns the last chunk, elevated. The byte offset only applies when
// there is a single chunk in the chain.
func (c BufChain) Back() Chunk {
	ch := c.chunks[len(c.chunks)-1]
	if ch.IsBuf() && len(c.chunks) == 1 {
		ch.Buf = ch.Buf[c.byteOff:]
	}
	return c.elevate(ch)
}

// SkipBytes advances the chain by n bytes of payload, crossing into the
// next chunk once the current one is exhausted. n must not exceed the
// number of bytes remaining in the current (first) data chunk across
// however many whole chunks are needed — callers are expected to consume
// at most one chunk's worth per call as the Connection/Fifo logic does.
func (c BufChain) SkipBytes(n int) BufChain {
	if len(c.chunks) == 0 {
		return c
	}
	remaining := c.chunks[0].Len() - c.byteOff
	if n >= remaining {
		return BufChain{chunks: c.chunks[1:], byteOff: 0, elevation: c.elevation}
	}
	return BufChain{chunks: c.chunks, byteOff: c.byteOff + n, elevation: c.elevation}
}

// SkipChunks advances the chain by n whole chunks, discarding any partial
// read offset into the chunk that was at the front.
func (c BufChain) SkipChunks(n int) BufChain {
	if n > len(c.chunks) {
		n = len(c.chunks)
	}
	return BufChain{chunks: c.chunks[n:], elevation: c.elevation}
}

// Elevate returns a copy of the chain with its layer elevation shifted by
// delta, on top of any elevation already applied.
func (c BufChain) Elevate(delta int8) BufChain {
	return BufChain{chunks: c.chunks, byteOff: c.byteOff, elevation: c.elevation + delta}
}

// From returns the sub-chain starting at it (which must have come from
// this chain or a chain sharing the same backing slice).
func (c BufChain) From(it BufIt) BufChain {
	return BufChain{chunks: it.chunks[it.Idx:], byteOff: it.Byte, elevation: c.elevation}
}

// Until returns the sub-chain ending just before chunk index idx,
// preserving this chain's start offset and elevation.
func (c BufChain) Until(idx int) BufChain {
	if idx > len(c.chunks) {
		idx = len(c.chunks)
	}
	return BufChain{chunks: c.chunks[:idx], byteOff: c.byteOff, elevation: c.elevation}
}

// FindLayer0Bound returns an iterator to the first chunk, data or frame
// boundary, whose elevated layer is 0, or End() if none exists.
func (c BufChain) FindLayer0Bound() BufIt {
	return c.FindChunkOnLayer(0)
}

// FindChunkOnLayer returns an iterator to the first chunk at or below the
// given elevated layer, or End() if none exists.
func (c BufChain) FindChunkOnLayer(layer uint8) BufIt {
	for i, ch := range c.chunks {
		elevated := c.elevate(ch)
		if elevated.Layer <= layer {
			b := 0
			if i == 0 {
				b = c.byteOff
			}
			return BufIt{chunks: c.chunks, Idx: i, Byte: b}
		}
	}
	return c.End()
}

// Builder accumulates Chunks into a fixed-capacity backing array, the Go
// analogue of a caller-supplied Chunk storage array plus a write cursor.
// Used by LowLevelProtocol.Unpack and by Fifo.Read as the destination for
// decoded chunks.
type Builder struct {
	chunks []Chunk
	used   int
}

// NewBuilder allocates a Builder with room for capacity chunks.
func NewBuilder(capacity int) *Builder {
	return &Builder{chunks: make([]Chunk, capacity)}
}

// HasFreeSpace reports whether another chunk can be appended.
func (b *Builder) HasFreeSpace() bool { return b.used < len(b.chunks) }

// Append adds ch to the builder. Returns false (and does nothing) if the
// builder is full.
func (b *Builder) Append(ch Chunk) bool {
	if !b.HasFreeSpace() {
		return false
	}
	b.chunks[b.used] = ch
	b.used++
	return true
}

// Chain returns a BufChain over the chunks appended so far.
func (b *Builder) Chain() BufChain {
	return NewBufChain(b.chunks[:b.used])
}

// Reset empties the builder for reuse without reallocating its backing
// array.
func (b *Builder) Reset() { b.used = 0 }

// WriteIterator is a Builder-backed destination for decoded chunks that
// additionally applies a layer elevation on write, mirroring the nested
// elevation write_iterator supports in the reference implementation (used
// when a decoder recurses into a sub-scope one layer up).
type WriteIterator struct {
	builder   *Builder
	elevation uint8
}

// NewWriteIterator wraps builder with zero elevation.
func NewWriteIterator(builder *Builder) WriteIterator {
	return WriteIterator{builder: builder}
}

// HasFreeSpace reports whether another chunk can be written.
func (w WriteIterator) HasFreeSpace() bool { return w.builder.HasFreeSpace() }

// Write appends ch, elevated by w's elevation, to the underlying builder.
// Returns false if the builder is full.
func (w WriteIterator) Write(ch Chunk) bool {
	if w.elevation != 0 {
		ch = ch.Elevate(int8(w.elevation))
	}
	return w.builder.Append(ch)
}

// Elevate returns a new WriteIterator over the same builder with an
// additional layer elevation.
func (w WriteIterator) Elevate(delta uint8) WriteIterator {
	return WriteIterator{builder: w.builder, elevation: w.elevation + delta}
}
