package dispatch

import (
	"github.com/fibrefabric/fibre/internal/socket"
	"github.com/fibrefabric/fibre/internal/status"
	"github.com/fibrefabric/fibre/internal/wire"
)

// maxArgDividers bounds how many arguments an argCollector accepts (at
// most maxArgDividers-1 boundaries between them), mirroring the
// reference's fixed arg_dividers_[8] array.
const maxArgDividers = 8

// argCollector accumulates a stream of input-argument bytes across
// however many Write calls it takes, splitting them into separate
// arguments at each layer-1 frame boundary the wire hands it.
type argCollector struct {
	buf      []byte
	dividers []int // byte offsets into buf, one per argument boundary crossed
}

func newArgCollector() *argCollector {
	return &argCollector{}
}

// write consumes the whole of args (argument data is assumed to fit in
// one call's worth of buffering, per this package's "no call larger
// than the configured buffer" convention) and reports args.Status back
// unchanged once collection is caught up to the caller.
func (c *argCollector) write(args socket.WriteArgs) (wire.BufIt, status.Status) {
	chain := args.Buf
	for chain.NChunks() > 0 {
		ch := chain.Front()
		if ch.IsFrameBoundary() {
			if len(c.dividers) >= maxArgDividers-1 {
				return chain.Begin(), status.OutOfMemory
			}
			c.dividers = append(c.dividers, len(c.buf))
		} else {
			c.buf = append(c.buf, ch.Buf...)
		}
		chain = chain.SkipChunks(1)
	}
	return args.Buf.End(), args.Status
}

// args splits the collected bytes at the recorded boundaries into one
// []byte slice per argument.
func (c *argCollector) args() [][]byte {
	bounds := make([]int, 0, len(c.dividers)+2)
	bounds = append(bounds, 0)
	bounds = append(bounds, c.dividers...)
	bounds = append(bounds, len(c.buf))

	out := make([][]byte, 0, len(bounds)-1)
	for i := 0; i+1 < len(bounds); i++ {
		out = append(out, c.buf[bounds[i]:bounds[i+1]])
	}
	return out
}
