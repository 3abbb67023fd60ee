package mux

import (
	"testing"

	"github.com/fibrefabric/fibre/internal/transport"
	"github.com/fibrefabric/fibre/internal/wire"
)

// syncSink completes every write synchronously and records the order in
// which buffers were sent.
type syncSink struct {
	sent     [][]byte
	canceled int
}

func (s *syncSink) StartWrite(tasks []transport.TxTask) {
	for _, task := range tasks {
		var collected []byte
		chain := task.Buf
		for chain.NChunks() > 0 {
			ch := chain.Front()
			if ch.IsBuf() {
				collected = append(collected, ch.Buf...)
			}
			chain = chain.SkipChunks(1)
		}
		s.sent = append(s.sent, collected)
		task.OnSent(chain.End())
	}
}
func (s *syncSink) CancelWrite() { s.canceled++ }
func (s *syncSink) MTU() int     { return 512 }

// chunkPipe emits its remaining payloads one GetTask call at a time.
type chunkPipe struct {
	name     string
	payloads [][]byte
}

func (p *chunkPipe) HasData() bool { return len(p.payloads) > 0 }
func (p *chunkPipe) GetTask() wire.BufChain {
	return wire.NewBufChain([]wire.Chunk{wire.NewChunk(0, p.payloads[0])})
}
func (p *chunkPipe) ReleaseTask(end wire.BufIt) {
	p.payloads = p.payloads[1:]
}

func TestMultiplexerDeliversInOrderWithinOnePipe(t *testing.T) {
	sink := &syncSink{}
	m := New(sink)
	pipe := &chunkPipe{payloads: [][]byte{[]byte("a"), []byte("b"), []byte("c")}}
	m.AddSource(pipe)

	if len(sink.sent) != 3 {
		t.Fatalf("sent %d buffers, want 3 (single pipe drains in one go)", len(sink.sent))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(sink.sent[i]) != want {
			t.Fatalf("sent[%d] = %q, want %q", i, sink.sent[i], want)
		}
	}
}

func TestMultiplexerFairnessAcrossPipes(t *testing.T) {
	sink := &syncSink{}
	m := New(sink)

	pipeA := &chunkPipe{name: "a", payloads: [][]byte{[]byte("a1"), []byte("a2")}}
	pipeB := &chunkPipe{name: "b", payloads: [][]byte{[]byte("b1"), []byte("b2")}}

	// Add A first, then immediately add B while A's first job is still
	// "in flight" from the multiplexer's point of view — exercise this by
	// driving delivery manually instead of through AddSource's synchronous
	// completion, using a sink that defers completion.
	deferred := &deferredSink{}
	m2 := New(deferred)
	m2.AddSource(pipeA)
	m2.AddSource(pipeB)

	// A is sending; B is queued. Completing A's first job should requeue
	// A behind B (fair round robin), so B gets its turn next.
	deferred.completeOne()
	if len(deferred.started) != 2 {
		t.Fatalf("started %d writes, want 2 (A's first, then B's first)", len(deferred.started))
	}
	if string(deferred.started[1]) != "b1" {
		t.Fatalf("second dispatched write = %q, want b1 (fairness)", deferred.started[1])
	}
}

// deferredSink only completes a write when completeOne is called
// explicitly, letting tests observe multiplexer state mid-flight.
type deferredSink struct {
	started [][]byte
	pending []transport.TxTask
}

func (s *deferredSink) StartWrite(tasks []transport.TxTask) {
	for _, task := range tasks {
		var collected []byte
		chain := task.Buf
		for chain.NChunks() > 0 {
			ch := chain.Front()
			if ch.IsBuf() {
				collected = append(collected, ch.Buf...)
			}
			chain = chain.SkipChunks(1)
		}
		s.started = append(s.started, collected)
		s.pending = append(s.pending, task)
	}
}
func (s *deferredSink) CancelWrite() {}
func (s *deferredSink) MTU() int     { return 512 }

func (s *deferredSink) completeOne() {
	if len(s.pending) == 0 {
		return
	}
	task := s.pending[0]
	s.pending = s.pending[1:]
	task.OnSent(task.Buf.End())
}
