// Package socket defines the push-mode duplex contract every component
// above the Connection layer communicates through: a data source writes
// to a data sink whenever data becomes available, and the sink reports
// back through the same call or, if busy, later through OnWriteDone.
package socket

import (
	"github.com/fibrefabric/fibre/internal/status"
	"github.com/fibrefabric/fibre/internal/wire"
)

// WriteArgs is what a source hands a sink's Write.
type WriteArgs struct {
	Buf    wire.BufChain
	Status status.Status
}

// IsBusy reports whether a is the sentinel "no data in flight" value.
func (a WriteArgs) IsBusy() bool { return a.Status == status.Busy }

// Busy returns the WriteArgs a source hands back from OnWriteDone when it
// has no new write to start synchronously.
func Busy() WriteArgs { return WriteArgs{Status: status.Busy} }

// WriteResult is what a sink's Write (or a later OnWriteDone call on the
// source) reports back.
type WriteResult struct {
	Status status.Status
	End    wire.BufIt
}

// IsBusy reports whether r means "call OnWriteDone later, don't write
// again until then".
func (r WriteResult) IsBusy() bool { return r.Status == status.Busy }

// BusyResult is the sentinel a sink's Write returns when it cannot
// consume the input synchronously.
func BusyResult() WriteResult { return WriteResult{Status: status.Busy} }

// Socket is a bidirectional, push-mode endpoint.
//
// Write, in the socket's role as a sink: if it can process the request
// synchronously it returns how far the input was consumed and the
// resulting status. If it cannot, it returns BusyResult() and the caller
// must not call Write again until the socket later calls OnWriteDone on
// the caller (synchronously, before Write even returns, or on a later
// turn of the event loop).
//
// If the input carries more than zero chunks, the sink must either
// consume at least one chunk or return a non-Ok status (or both). If the
// input carries zero chunks and args.Status is not Ok, the sink must
// return a non-Ok status too — usually the same one. Once a sink returns
// a status other than Ok and Busy it is closed and must not be written
// to again.
//
// OnWriteDone, in the socket's role as a source: informs it that a write
// it previously issued to some sink has completed. If the source can
// start a new write synchronously it returns the next WriteArgs; if not,
// it returns Busy(). If result.Status is not Ok (the sink closed), the
// source must return a non-Ok, non-Busy status of its own.
type Socket interface {
	Write(args WriteArgs) WriteResult
	OnWriteDone(result WriteResult) WriteArgs
}

// TwoSided is implemented by a component that sits between an upstream
// and a downstream peer, exposing distinct behavior on each side — the
// Go analogue of the reference's CRTP-based TwoSidedSocket, using
// composition instead of template self-inheritance.
type TwoSided interface {
	DownstreamWrite(args WriteArgs) WriteResult
	OnUpstreamWriteDone(result WriteResult) WriteArgs
	UpstreamWrite(args WriteArgs) WriteResult
	OnDownstreamWriteDone(result WriteResult) WriteArgs
}

// Upfacing returns the Socket view of t as seen by its upstream peer:
// writes flow downstream, write-done notifications come from upstream.
func Upfacing(t TwoSided) Socket { return upfacing{t} }

// Downfacing returns the Socket view of t as seen by its downstream
// peer: writes flow upstream, write-done notifications come from
// downstream.
func Downfacing(t TwoSided) Socket { return downfacing{t} }

type upfacing struct{ t TwoSided }

func (u upfacing) Write(args WriteArgs) WriteResult         { return u.t.DownstreamWrite(args) }
func (u upfacing) OnWriteDone(result WriteResult) WriteArgs { return u.t.OnUpstreamWriteDone(result) }

type downfacing struct{ t TwoSided }

func (d downfacing) Write(args WriteArgs) WriteResult { return d.t.UpstreamWrite(args) }
func (d downfacing) OnWriteDone(result WriteResult) WriteArgs {
	return d.t.OnDownstreamWriteDone(result)
}
