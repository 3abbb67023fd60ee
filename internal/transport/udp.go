//go:build linux

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/fibrefabric/fibre/internal/llproto"
)

// ErrSinkClosed indicates a write was attempted on a closed UDPSink.
var ErrSinkClosed = errors.New("udp sink: closed")

// ErrUnexpectedConnType indicates ListenConfig.ListenPacket returned a
// connection type other than *net.UDPConn.
var ErrUnexpectedConnType = errors.New("udp transport: unexpected connection type")

// UDPSink is the sample FrameStreamSink implementation spec.md's
// standalone test node uses: one LowLevelProtocol SenderState bound to
// one destination address, packed into individual UDP datagrams.
//
// Framing for UDP maps each TxTask to exactly one datagram: Pack is
// given a fresh packet-sized buffer per task, so a task whose BufChain
// does not fully fit is reported back to the Multiplexer as a partial
// send via the returned end iterator, the same contract ReleaseTask
// already handles for a full TX Fifo.
type UDPSink struct {
	conn *net.UDPConn
	dst  netip.AddrPort
	mtu  int

	mu     sync.Mutex
	state  llproto.SenderState
	closed bool
	logger *slog.Logger
}

// UDPSinkOption configures optional UDPSink parameters.
type UDPSinkOption func(*udpSinkConfig)

type udpSinkConfig struct {
	bindDevice string
}

// WithBindDevice binds the sink's socket to a specific network interface
// via SO_BINDTODEVICE.
func WithBindDevice(ifName string) UDPSinkOption {
	return func(c *udpSinkConfig) { c.bindDevice = ifName }
}

// NewUDPSink creates a UDPSink bound to localAddr, sending to dst, with
// packets bounded to mtu bytes (header plus payload). The socket is
// configured with SO_REUSEADDR so multiple nodes can share a test host.
func NewUDPSink(localAddr netip.AddrPort, dst netip.AddrPort, mtu int, logger *slog.Logger, opts ...UDPSinkOption) (*UDPSink, error) {
	cfg := udpSinkConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, err := dialUDPSocket(localAddr, cfg.bindDevice)
	if err != nil {
		return nil, fmt.Errorf("create UDP sink %s: %w", localAddr, err)
	}

	return &UDPSink{
		conn: conn,
		dst:  dst,
		mtu:  mtu,
		logger: logger.With(
			slog.String("component", "transport.udp_sink"),
			slog.String("dst", dst.String()),
		),
	}, nil
}

func dialUDPSocket(localAddr netip.AddrPort, bindDevice string) (*net.UDPConn, error) {
	network := "udp4"
	if localAddr.Addr().Is6() && !localAddr.Addr().Is4In6() {
		network = "udp6"
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return setUDPSockOpts(c, bindDevice)
		},
	}

	pc, err := lc.ListenPacket(context.Background(), network, localAddr.String())
	if err != nil {
		return nil, fmt.Errorf("listen UDP %s: %w", localAddr, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		closeErr := pc.Close()
		return nil, fmt.Errorf("listen UDP %s: %w: %w", localAddr, ErrUnexpectedConnType, closeErr)
	}

	return conn, nil
}

func setUDPSockOpts(c syscall.RawConn, bindDevice string) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		intFD := int(fd)

		if sockErr = unix.SetsockoptInt(intFD, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
			sockErr = fmt.Errorf("set SO_REUSEADDR: %w", sockErr)
			return
		}
		if bindDevice != "" {
			if sockErr = unix.SetsockoptString(intFD, unix.SOL_SOCKET, unix.SO_BINDTODEVICE, bindDevice); sockErr != nil {
				sockErr = fmt.Errorf("set SO_BINDTODEVICE(%s): %w", bindDevice, sockErr)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}
	return sockErr
}

// StartWrite packs and sends each task as one UDP datagram, completing
// each task's OnSent/OnCancelled synchronously before returning — this
// sink has no asynchronous send path of its own to interleave with.
func (s *UDPSink) StartWrite(tasks []TxTask) {
	for _, task := range tasks {
		s.sendOne(task)
	}
}

func (s *UDPSink) sendOne(task TxTask) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		task.OnCancelled(task.Buf.Begin())
		return
	}

	packet := make([]byte, s.mtu)
	room := packet
	end := llproto.Pack(&s.state, task.Buf, &room)
	sent := len(packet) - len(room)
	s.mu.Unlock()

	if sent == 0 {
		// The header alone didn't fit; nothing was consumed.
		task.OnCancelled(task.Buf.Begin())
		return
	}

	if _, err := s.conn.WriteToUDPAddrPort(packet[:sent], s.dst); err != nil {
		s.logger.Warn("send failed", slog.String("error", err.Error()))
		task.OnCancelled(task.Buf.Begin())
		return
	}

	task.OnSent(end)
}

// CancelWrite is a no-op: StartWrite already completes every task
// synchronously, so there is never an in-flight write left to cancel.
func (s *UDPSink) CancelWrite() {}

// MTU returns the packet size budget this sink was constructed with.
func (s *UDPSink) MTU() int { return s.mtu }

// LocalAddr returns the socket's bound local address, resolving an
// ephemeral port (0) requested at construction time to the one the
// kernel actually assigned.
func (s *UDPSink) LocalAddr() netip.AddrPort {
	return s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Close closes the underlying UDP socket.
func (s *UDPSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close sink socket: %w", err)
	}
	return nil
}

// UDPSource reads raw datagrams off a UDP socket and hands each one,
// along with its sender address, to a caller-supplied callback. Turning
// those bytes into a Connection.Write call is the receive loop's job
// (see internal/domain.Channel's doc comment) — this type only owns the
// socket read loop, matching dantte-lp-gobfd/internal/netio/receiver.go's
// split between transport reads and application-level demux.
type UDPSource struct {
	conn   *net.UDPConn
	logger *slog.Logger
}

// NewUDPSourceFromSink wraps the same bound socket a UDPSink already
// holds as a read loop source — the sample transport uses a single
// socket for both directions, since a test node's Sink and its inbound
// Channel share one UDP port.
func NewUDPSourceFromSink(sink *UDPSink, logger *slog.Logger) *UDPSource {
	return &UDPSource{
		conn:   sink.conn,
		logger: logger.With(slog.String("component", "transport.udp_source")),
	}
}

// Run reads datagrams until ctx is cancelled, invoking onPacket for each
// one. Read errors are logged and looped past; only context cancellation
// stops the loop.
func (s *UDPSource) Run(ctx context.Context, onPacket func(src netip.AddrPort, payload []byte)) error {
	buf := make([]byte, 65535)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, srcAddr, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("recv error", slog.String("error", err.Error()))
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		onPacket(srcAddr, payload)
	}
}
