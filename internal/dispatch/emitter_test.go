package dispatch

import (
	"testing"

	"github.com/fibrefabric/fibre/internal/socket"
	"github.com/fibrefabric/fibre/internal/status"
)

// recordingSink collects whatever it is written, optionally going busy
// for a scripted number of calls before accepting more.
type recordingSink struct {
	writes   []socket.WriteArgs
	busyFor  int
	accepted int
}

func (s *recordingSink) Write(args socket.WriteArgs) socket.WriteResult {
	s.writes = append(s.writes, args)
	if s.busyFor > 0 {
		s.busyFor--
		return socket.BusyResult()
	}
	s.accepted++
	return socket.WriteResult{Status: args.Status, End: args.Buf.End()}
}

func (s *recordingSink) OnWriteDone(result socket.WriteResult) socket.WriteArgs {
	return socket.Busy()
}

func collectEmitted(args socket.WriteArgs) string {
	var out []byte
	chain := args.Buf
	for chain.NChunks() > 0 {
		ch := chain.Front()
		if ch.IsBuf() {
			out = append(out, ch.Buf...)
		}
		chain = chain.SkipChunks(1)
	}
	return string(out)
}

func TestArgEmitterSendsAllArgsInOneShot(t *testing.T) {
	sink := &recordingSink{}
	e := newArgEmitter(status.Closed, [][]byte{[]byte("a"), []byte("bb")}, sink)
	e.pump()

	// The terminal status is only attached once the content chain has
	// been confirmed fully delivered, so a trailing empty, Closed-tagged
	// write follows the one carrying the actual bytes.
	if len(sink.writes) != 2 {
		t.Fatalf("sink.writes = %d calls, want 2", len(sink.writes))
	}
	if collectEmitted(sink.writes[0]) != "abb" {
		t.Fatalf("emitted bytes = %q, want \"abb\"", collectEmitted(sink.writes[0]))
	}
	if sink.writes[0].Status != status.Ok {
		t.Fatalf("content write status = %v, want Ok", sink.writes[0].Status)
	}
	if sink.writes[1].Status != status.Closed || !sink.writes[1].Buf.Empty() {
		t.Fatalf("trailing write = %+v, want an empty Closed-tagged write", sink.writes[1])
	}
}

func TestArgEmitterResumesAfterBusy(t *testing.T) {
	sink := &recordingSink{busyFor: 1}
	e := newArgEmitter(status.Closed, [][]byte{[]byte("a")}, sink)
	e.pump()
	if len(sink.writes) != 1 {
		t.Fatalf("expected exactly one Write while busy, got %d", len(sink.writes))
	}

	e.onWriteDone(socket.WriteResult{Status: status.Ok, End: sink.writes[0].Buf.Begin()})
	// onWriteDone resends the same data the busy attempt was given (it
	// was never confirmed delivered), then follows with the empty,
	// Closed-tagged write that signals the call's end.
	if len(sink.writes) != 3 {
		t.Fatalf("onWriteDone should resume pumping, got %d writes", len(sink.writes))
	}
	if collectEmitted(sink.writes[1]) != "a" {
		t.Fatalf("resumed write = %q, want \"a\"", collectEmitted(sink.writes[1]))
	}
	if sink.writes[2].Status != status.Closed {
		t.Fatalf("final write status = %v, want Closed", sink.writes[2].Status)
	}
}
