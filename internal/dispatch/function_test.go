package dispatch

import (
	"testing"

	"github.com/fibrefabric/fibre/internal/domain"
	"github.com/fibrefabric/fibre/internal/socket"
	"github.com/fibrefabric/fibre/internal/status"
	"github.com/fibrefabric/fibre/internal/wire"
)

func TestFuncAsCoroInvokesOnceInputClosesAndEmitsOutput(t *testing.T) {
	var gotArgs [][]byte
	fn := NewFuncAsCoro(func(dom *domain.Domain, args [][]byte) ([][]byte, status.Status) {
		gotArgs = args
		sum := append([]byte(nil), args[0]...)
		sum = append(sum, args[1]...)
		return [][]byte{sum}, status.Closed
	})

	caller := &recordingSink{}
	call := fn.StartCall(nil, caller)

	chain := wire.NewBufChain([]wire.Chunk{
		wire.NewChunk(1, []byte("foo")),
		wire.FrameBoundary(1),
		wire.NewChunk(1, []byte("bar")),
	})
	result := call.Write(socket.WriteArgs{Buf: chain, Status: status.Closed})
	if result.Status != status.Closed {
		t.Fatalf("Write result status = %v, want Closed", result.Status)
	}

	if len(gotArgs) != 2 || string(gotArgs[0]) != "foo" || string(gotArgs[1]) != "bar" {
		t.Fatalf("gotArgs = %v, want [\"foo\" \"bar\"]", gotArgs)
	}

	if len(caller.writes) == 0 {
		t.Fatal("the caller should have received the function's output")
	}
	if collectEmitted(caller.writes[0]) != "foobar" {
		t.Fatalf("emitted output = %q, want \"foobar\"", collectEmitted(caller.writes[0]))
	}
}

func TestFuncAsCoroRejectsWriteAfterInvocation(t *testing.T) {
	fn := NewFuncAsCoro(func(dom *domain.Domain, args [][]byte) ([][]byte, status.Status) {
		return nil, status.Closed
	})
	call := fn.StartCall(nil, &recordingSink{})
	call.Write(socket.WriteArgs{Buf: wire.BufChain{}, Status: status.Closed})

	result := call.Write(socket.WriteArgs{Buf: wire.BufChain{}, Status: status.Ok})
	if result.Status != status.ProtocolError {
		t.Fatalf("result.Status = %v, want ProtocolError", result.Status)
	}
}
