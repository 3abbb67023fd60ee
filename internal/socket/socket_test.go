package socket

import (
	"testing"

	"github.com/fibrefabric/fibre/internal/status"
)

func TestBusySentinels(t *testing.T) {
	if !Busy().IsBusy() {
		t.Fatal("Busy().IsBusy() = false")
	}
	if !BusyResult().IsBusy() {
		t.Fatal("BusyResult().IsBusy() = false")
	}
	if (WriteArgs{Status: status.Ok}).IsBusy() {
		t.Fatal("Ok WriteArgs reported busy")
	}
}

// echo is a minimal TwoSided implementation used to exercise the
// Upfacing/Downfacing adaptors: it mirrors whatever it's asked to write
// straight back, tagging which side it was called from.
type echo struct {
	lastCall string
}

func (e *echo) DownstreamWrite(args WriteArgs) WriteResult {
	e.lastCall = "downstream_write"
	return WriteResult{Status: status.Ok, End: args.Buf.Begin()}
}
func (e *echo) OnUpstreamWriteDone(result WriteResult) WriteArgs {
	e.lastCall = "on_upstream_write_done"
	return Busy()
}
func (e *echo) UpstreamWrite(args WriteArgs) WriteResult {
	e.lastCall = "upstream_write"
	return WriteResult{Status: status.Ok, End: args.Buf.Begin()}
}
func (e *echo) OnDownstreamWriteDone(result WriteResult) WriteArgs {
	e.lastCall = "on_downstream_write_done"
	return Busy()
}

func TestUpfacingDelegatesToDownstream(t *testing.T) {
	e := &echo{}
	s := Upfacing(e)
	s.Write(WriteArgs{Status: status.Ok})
	if e.lastCall != "downstream_write" {
		t.Fatalf("lastCall = %q, want downstream_write", e.lastCall)
	}
	s.OnWriteDone(WriteResult{Status: status.Ok})
	if e.lastCall != "on_upstream_write_done" {
		t.Fatalf("lastCall = %q, want on_upstream_write_done", e.lastCall)
	}
}

func TestDownfacingDelegatesToUpstream(t *testing.T) {
	e := &echo{}
	s := Downfacing(e)
	s.Write(WriteArgs{Status: status.Ok})
	if e.lastCall != "upstream_write" {
		t.Fatalf("lastCall = %q, want upstream_write", e.lastCall)
	}
	s.OnWriteDone(WriteResult{Status: status.Ok})
	if e.lastCall != "on_downstream_write_done" {
		t.Fatalf("lastCall = %q, want on_downstream_write_done", e.lastCall)
	}
}
