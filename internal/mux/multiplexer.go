// Package mux implements the fair arbitration of multiple ready TxPipes
// onto one FrameStreamSink: at most one pipe is ever being written at a
// time, and a pipe that still has data after its write completes goes to
// the back of the queue before the next one is dispatched.
package mux

import (
	"sync"

	"github.com/fibrefabric/fibre/internal/transport"
	"github.com/fibrefabric/fibre/internal/wire"
)

// TxPipe is a source of outbound data a Multiplexer can schedule: a
// Connection's TX direction, typically. has_data/get_task/release_task
// from the reference map directly onto HasData/GetTask/ReleaseTask.
type TxPipe interface {
	HasData() bool
	GetTask() wire.BufChain
	ReleaseTask(end wire.BufIt)
}

// Multiplexer arbitrates one FrameStreamSink among the TxPipes attached
// to it, in FIFO order with fair round-robin re-enqueueing.
type Multiplexer struct {
	sink transport.FrameStreamSink

	mu          sync.Mutex
	queue       []TxPipe
	sendingPipe TxPipe
}

// New returns a Multiplexer writing to sink.
func New(sink transport.FrameStreamSink) *Multiplexer {
	return &Multiplexer{sink: sink}
}

// AddSource enqueues pipe for sending. If no pipe is currently sending,
// pipe is dispatched immediately.
func (m *Multiplexer) AddSource(pipe TxPipe) {
	m.mu.Lock()
	m.queue = append(m.queue, pipe)
	m.mu.Unlock()
	m.maybeSendNext()
}

// RemoveSource detaches pipe. If it is the pipe currently sending, the
// underlying sink write is cancelled; on_cancelled picks up the next
// pipe once the sink confirms the abort.
func (m *Multiplexer) RemoveSource(pipe TxPipe) {
	m.mu.Lock()
	if m.sendingPipe == pipe {
		m.mu.Unlock()
		m.sink.CancelWrite()
		return
	}
	for i, p := range m.queue {
		if p == pipe {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
}

func (m *Multiplexer) maybeSendNext() {
	m.mu.Lock()
	if m.sendingPipe != nil || len(m.queue) == 0 {
		m.mu.Unlock()
		return
	}
	pipe := m.queue[0]
	m.queue = m.queue[1:]
	m.sendingPipe = pipe
	m.mu.Unlock()
	m.sendNext(pipe)
}

func (m *Multiplexer) sendNext(pipe TxPipe) {
	buf := pipe.GetTask()
	m.sink.StartWrite([]transport.TxTask{{
		Buf:         buf,
		OnSent:      func(end wire.BufIt) { m.onSent(pipe, end) },
		OnCancelled: func(end wire.BufIt) { m.onCancelled(pipe, end) },
	}})
}

func (m *Multiplexer) onSent(pipe TxPipe, end wire.BufIt) {
	pipe.ReleaseTask(end)
	m.mu.Lock()
	m.sendingPipe = nil
	if pipe.HasData() {
		m.queue = append(m.queue, pipe)
	}
	m.mu.Unlock()
	m.maybeSendNext()
}

func (m *Multiplexer) onCancelled(pipe TxPipe, end wire.BufIt) {
	pipe.ReleaseTask(end)
	m.mu.Lock()
	m.sendingPipe = nil
	m.mu.Unlock()
	m.maybeSendNext()
}
