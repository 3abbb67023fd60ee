package wire

import (
	"bytes"
	"testing"
)

func TestBufChainFrontSkipBytes(t *testing.T) {
	data := []byte("hello world")
	chunks := []Chunk{NewChunk(0, data)}
	chain := NewBufChain(chunks)

	if chain.NChunks() != 1 {
		t.Fatalf("NChunks() = %d, want 1", chain.NChunks())
	}
	if !bytes.Equal(chain.Front().Buf, data) {
		t.Fatalf("Front().Buf = %q, want %q", chain.Front().Buf, data)
	}

	rest := chain.SkipBytes(6)
	if !bytes.Equal(rest.Front().Buf, []byte("world")) {
		t.Fatalf("after SkipBytes(6): %q, want %q", rest.Front().Buf, "world")
	}
}

func TestBufChainSkipBytesCrossesChunk(t *testing.T) {
	chunks := []Chunk{
		NewChunk(0, []byte("ab")),
		NewChunk(0, []byte("cd")),
	}
	chain := NewBufChain(chunks)
	rest := chain.SkipBytes(2)
	if rest.NChunks() != 1 {
		t.Fatalf("NChunks() after crossing = %d, want 1", rest.NChunks())
	}
	if !bytes.Equal(rest.Front().Buf, []byte("cd")) {
		t.Fatalf("Front().Buf = %q, want %q", rest.Front().Buf, "cd")
	}
}

func TestBufChainSkipChunks(t *testing.T) {
	chunks := []Chunk{
		NewChunk(0, []byte("a")),
		FrameBoundary(0),
		NewChunk(0, []byte("b")),
	}
	chain := NewBufChain(chunks)
	rest := chain.SkipChunks(2)
	if rest.NChunks() != 1 {
		t.Fatalf("NChunks() = %d, want 1", rest.NChunks())
	}
	if !bytes.Equal(rest.Front().Buf, []byte("b")) {
		t.Fatalf("Front().Buf = %q, want %q", rest.Front().Buf, "b")
	}
}

func TestBufChainElevate(t *testing.T) {
	chunks := []Chunk{NewChunk(2, []byte("x"))}
	chain := NewBufChain(chunks).Elevate(-2)
	if chain.Front().Layer != 0 {
		t.Fatalf("elevated layer = %d, want 0", chain.Front().Layer)
	}
}

func TestBufChainFindChunkOnLayer(t *testing.T) {
	chunks := []Chunk{
		NewChunk(2, []byte("a")),
		FrameBoundary(1),
		NewChunk(0, []byte("b")),
	}
	chain := NewBufChain(chunks)
	it := chain.FindChunkOnLayer(1)
	if it.IsEnd() {
		t.Fatal("FindChunkOnLayer(1) = End(), want a hit")
	}
	if it.Idx != 1 {
		t.Fatalf("FindChunkOnLayer(1).Idx = %d, want 1", it.Idx)
	}
}

func TestBuilderFreeSpace(t *testing.T) {
	b := NewBuilder(2)
	if !b.Append(NewChunk(0, []byte("a"))) {
		t.Fatal("first append failed")
	}
	if !b.Append(FrameBoundary(0)) {
		t.Fatal("second append failed")
	}
	if b.HasFreeSpace() {
		t.Fatal("HasFreeSpace() = true after filling builder")
	}
	if b.Append(NewChunk(0, []byte("overflow"))) {
		t.Fatal("append on full builder should fail")
	}
	if b.Chain().NChunks() != 2 {
		t.Fatalf("Chain().NChunks() = %d, want 2", b.Chain().NChunks())
	}
}

func TestWriteIteratorElevation(t *testing.T) {
	b := NewBuilder(1)
	wit := NewWriteIterator(b).Elevate(3)
	if !wit.Write(NewChunk(0, []byte("z"))) {
		t.Fatal("Write failed")
	}
	if got := b.Chain().Front().Layer; got != 3 {
		t.Fatalf("elevated write layer = %d, want 3", got)
	}
}
