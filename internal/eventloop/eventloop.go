// Package eventloop implements the single-threaded cooperative scheduler
// a Domain and everything it owns (Connections, Multiplexers, Sockets)
// runs on. EventLoop.Post is the only primitive in this module that is
// safe to call from another goroutine; everything else must only be
// touched from the goroutine running EventLoop.Run.
package eventloop

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Callback is a unit of work scheduled on an EventLoop.
type Callback func()

// EventLoop runs posted callbacks one at a time, in the order they were
// posted, on a single goroutine.
type EventLoop struct {
	postCh chan Callback
	done   chan struct{}
	once   sync.Once
}

// New returns an EventLoop with room for backlog pending callbacks before
// Post starts blocking its caller.
func New(backlog int) *EventLoop {
	return &EventLoop{
		postCh: make(chan Callback, backlog),
		done:   make(chan struct{}),
	}
}

// Post schedules cb to run on the loop's goroutine. Safe to call from any
// goroutine, including platform I/O callbacks running on OS threads —
// this is the marshalling path spec.md requires for any cross-thread
// notification. Post is a no-op once the loop has stopped.
func (l *EventLoop) Post(cb Callback) {
	select {
	case l.postCh <- cb:
	case <-l.done:
	}
}

// Run executes posted callbacks until ctx is cancelled. Run must only be
// called once per EventLoop, from the goroutine that owns it.
func (l *EventLoop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cb := <-l.postCh:
			cb()
		}
	}
}

// RunWithReceivers runs the loop itself alongside any number of transport
// receive loops, fanning all of them out under one errgroup.Group so that
// cancelling ctx (or any one of them returning an error) stops the rest —
// the same fan-out dantte-lp-gobfd/internal/netio/receiver.go uses for one
// goroutine per Listener, generalized to the loop's own goroutine plus
// however many receive loops a caller supplies.
func (l *EventLoop) RunWithReceivers(ctx context.Context, receivers ...func(context.Context) error) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.Run(gCtx) })
	for _, recv := range receivers {
		g.Go(func() error { return recv(gCtx) })
	}
	return g.Wait()
}

// Timer is a cancellable single-shot callback scheduled on an EventLoop.
type Timer struct {
	t *time.Timer
}

// NewTimer schedules cb to run on l after d elapses. The underlying
// platform timer fires on its own goroutine; the callback itself is
// marshalled back onto l via Post before running, so it always executes
// on the loop's goroutine like every other callback.
func (l *EventLoop) NewTimer(d time.Duration, cb Callback) *Timer {
	return &Timer{t: time.AfterFunc(d, func() { l.Post(cb) })}
}

// Stop cancels the timer. It reports false if the timer already fired or
// was already stopped.
func (t *Timer) Stop() bool { return t.t.Stop() }

// CancellationToken is a subscriber list triggered at most once. This
// type only supplies the triggered-once notification primitive; no code
// in this module subscribes a call to a token, so triggering one does
// not detach a call's Socket or discard its buffered TX.
type CancellationToken struct {
	mu        sync.Mutex
	subs      []Callback
	triggered bool
	once      sync.Once
}

// NewCancellationToken returns an untriggered token.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{}
}

// Subscribe registers cb to run when the token is triggered. If the
// token has already been triggered, cb runs immediately (on the calling
// goroutine) instead of being queued.
func (c *CancellationToken) Subscribe(cb Callback) {
	c.mu.Lock()
	if c.triggered {
		c.mu.Unlock()
		cb()
		return
	}
	c.subs = append(c.subs, cb)
	c.mu.Unlock()
}

// Trigger fires every subscriber exactly once across the token's
// lifetime. A second (or later) call to Trigger is a documented no-op —
// the reference leaves "trigger more than once" undefined, and treating
// it as idempotent matches the ack-replay idempotence spec.md requires
// elsewhere.
func (c *CancellationToken) Trigger() {
	c.once.Do(func() {
		c.mu.Lock()
		subs := c.subs
		c.subs = nil
		c.triggered = true
		c.mu.Unlock()
		for _, cb := range subs {
			cb()
		}
	})
}

// Triggered reports whether Trigger has run.
func (c *CancellationToken) Triggered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggered
}

// NewTimedCancellationToken returns a token that triggers itself after d
// elapses on l, per spec.md's "timed cancellation wraps a platform Timer
// and fires the token on expiry".
func NewTimedCancellationToken(l *EventLoop, d time.Duration) *CancellationToken {
	tok := NewCancellationToken()
	l.NewTimer(d, tok.Trigger)
	return tok
}
