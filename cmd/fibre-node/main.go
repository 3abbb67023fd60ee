//go:build linux

// Command fibre-node is the standalone test node spec.md's connection
// layer is built to support: it discovers exactly one peer channel from a
// key=value spec string, then either serves or drives one demo echo call
// over it, with the daemon orchestration dantte-lp-gobfd/cmd/gobfd/main.go
// establishes (signal-aware errgroup, metrics + admin HTTP listeners,
// graceful shutdown) generalized from BFD sessions to a Domain directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fibrefabric/fibre/internal/adminhttp"
	"github.com/fibrefabric/fibre/internal/config"
	"github.com/fibrefabric/fibre/internal/conn"
	"github.com/fibrefabric/fibre/internal/discovery"
	"github.com/fibrefabric/fibre/internal/dispatch"
	"github.com/fibrefabric/fibre/internal/domain"
	"github.com/fibrefabric/fibre/internal/eventloop"
	fibremetrics "github.com/fibrefabric/fibre/internal/metrics"
	"github.com/fibrefabric/fibre/internal/mux"
	"github.com/fibrefabric/fibre/internal/socket"
	"github.com/fibrefabric/fibre/internal/status"
	"github.com/fibrefabric/fibre/internal/transport"
	appversion "github.com/fibrefabric/fibre/internal/version"
)

// shutdownTimeout bounds graceful drain of the HTTP listeners on shutdown.
const shutdownTimeout = 10 * time.Second

// readHeaderTimeout bounds how long the metrics server waits for request
// headers.
const readHeaderTimeout = 10 * time.Second

// echoEndpointID is the one demo Function this node registers/calls: it
// returns whatever arguments it was given, unmodified.
const echoEndpointID uint16 = 1

// metricsUpdateInterval is how often the directory-size gauges are refreshed.
const metricsUpdateInterval = time.Second

func main() {
	os.Exit(run())
}

func run() int {
	serverMode := flag.Bool("server", false, "serve the demo echo function for one discovered peer channel")
	clientMode := flag.Bool("client", false, "drive one demo echo call against a discovered peer channel")
	domainSpec := flag.String("domain", "", "discovery spec string (key=value,key=value,...) identifying the peer channel")
	flag.Parse()

	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if *serverMode == *clientMode {
		bootLogger.Error("exactly one of --server or --client must be given")
		return 1
	}
	if *domainSpec == "" {
		bootLogger.Error("--domain <spec> is required")
		return 1
	}

	cfg, err := config.Load("")
	if err != nil {
		bootLogger.Error("failed to load configuration", slog.String("error", err.Error()))
		return 1
	}

	logger := newLogger(cfg.Log)
	logger.Info("fibre-node starting",
		slog.String("version", appversion.Version),
		slog.Bool("server", *serverMode),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	if err := runNode(*serverMode, *domainSpec, cfg, logger); err != nil {
		logger.Error("fibre-node exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("fibre-node stopped")
	return 0
}

func runNode(serverMode bool, domainSpec string, cfg *config.Config, logger *slog.Logger) error {
	nodeID, err := cfg.Domain.ResolveNodeID()
	if err != nil {
		return fmt.Errorf("resolve node id: %w", err)
	}

	reg := prometheus.NewRegistry()
	collector := fibremetrics.NewCollector(reg)

	// OutputSlotsPerConnection doubles as the directory's per-node sink
	// cap: each sink a Connection attaches via OpenTxSlot is exactly one
	// output slot, so the config knob that bounds one maps onto the other.
	dom := domain.New(nodeID,
		domain.WithMaxNodes(cfg.Domain.MaxNodes),
		domain.WithMaxSinksPerNode(cfg.Domain.OutputSlotsPerConnection),
		domain.WithMaxServerConnections(cfg.Domain.MaxServerConnections),
		domain.WithMaxClientConnections(cfg.Domain.MaxClientConnections),
		domain.WithLogger(logger),
	)

	loop := eventloop.New(256)

	backend, err := newDiscoveryBackend(cfg.Discovery.Backend)
	if err != nil {
		return err
	}
	if err := backend.Init(loop, logger); err != nil {
		return fmt.Errorf("init discovery backend: %w", err)
	}
	defer backend.Deinit() //nolint:errcheck // best-effort on the shutdown path

	handle, err := backend.StartChannelDiscovery(dom, domainSpec)
	if err != nil {
		return fmt.Errorf("start channel discovery: %w", err)
	}
	defer backend.StopChannelDiscovery(handle) //nolint:errcheck // best-effort on the shutdown path

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adminSrv := adminhttp.NewServer(cfg.Admin.Addr, dom, logger)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	demo, err := newDemoWiring(serverMode, backend, handle, dom, logger)
	if err != nil {
		logger.Warn("demo call wiring unavailable for this discovery backend", slog.String("error", err.Error()))
	}

	return orchestrate(ctx, loop, adminSrv, metricsSrv, dom, collector, demo, logger)
}

// newDiscoveryBackend selects the Backend cfg.Discovery.Backend names.
// config.Validate already rejects any other value before this runs.
func newDiscoveryBackend(name string) (discovery.Backend, error) {
	switch name {
	case "static":
		return discovery.NewStaticBackend(), nil
	case "dbus":
		return discovery.NewDBusBackend(), nil
	default:
		return nil, fmt.Errorf("discovery backend %q: %w", name, config.ErrInvalidDiscoveryBackend)
	}
}

// demoWiring holds everything the demo echo call needs once a real
// FrameStreamSink is available to drive it over.
type demoWiring struct {
	sink       *transport.UDPSink
	mx         *mux.Multiplexer
	serverConn *conn.EndpointServerConnection
	clientConn *conn.EndpointClientConnection
}

// newDemoWiring builds the demo Connection for serverMode/clientMode if the
// discovery backend produced a real FrameStreamSink to drive it over — only
// true for the static backend's dialed UDPSink. The D-Bus/BlueZ backend
// only ever hands back a bleSink (MTU only, no send/receive path), since
// the actual GATT I/O is out-of-scope platform glue; discovery still runs
// in that case, just without a demo call to drive.
func newDemoWiring(serverMode bool, backend discovery.Backend, handle discovery.Handle, dom *domain.Domain, logger *slog.Logger) (*demoWiring, error) {
	staticBackend, ok := backend.(*discovery.StaticBackend)
	if !ok {
		return nil, errors.New("discovery backend has no drivable FrameStreamSink")
	}
	sink, ok := staticBackend.Sink(handle)
	if !ok {
		return nil, errors.New("discovery backend closed its sink before the demo call could attach")
	}

	mx := mux.New(sink)
	callID := dom.NewCallID()

	w := &demoWiring{sink: sink, mx: mx}
	if serverMode {
		table := dispatch.NewTable(dom)
		table.Register(echoEndpointID, dispatch.NewFuncAsCoro(echoImpl))
		w.serverConn = conn.NewEndpointServerConnection(dom, callID, table)
		if err := dom.RegisterServerConnection(w.serverConn); err != nil {
			return nil, fmt.Errorf("register server connection: %w", err)
		}
		w.serverConn.OpenTxSlot(sink, mx)
		logger.Info("demo echo function registered", slog.Uint64("endpoint", uint64(echoEndpointID)))
	} else {
		w.clientConn = conn.NewEndpointClientConnection(dom, callID)
		if err := dom.RegisterClientConnection(w.clientConn); err != nil {
			return nil, fmt.Errorf("register client connection: %w", err)
		}
		w.clientConn.OpenTxSlot(sink, mx)
	}
	return w, nil
}

// echoImpl is the demo Function body: it hands back its own input
// arguments unchanged.
func echoImpl(_ *domain.Domain, args [][]byte) ([][]byte, status.Status) {
	return args, status.Closed
}

// clientEndpointFunc adapts EndpointClientConnection.StartCall to the
// dispatch.Function interface so dispatch.CoroAsFunc can drive a demo call
// over it the same way it drives a local Function, per
// dispatch.CoroAsFunc's own doc comment ("local code that wants to invoke
// a dispatched Function ... without itself speaking the Socket push-mode
// protocol").
type clientEndpointFunc struct {
	conn       *conn.EndpointClientConnection
	endpointID uint16
	exchange   bool
}

func (f clientEndpointFunc) StartCall(_ *domain.Domain, caller socket.Socket) socket.Socket {
	return f.conn.StartCall(f.endpointID, f.exchange, caller)
}

// receiveLoop reads datagrams off sink's socket until ctx is cancelled,
// handing each one to the given Connection.
func receiveLoop(sink *transport.UDPSink, handlePacket func([]byte), logger *slog.Logger) func(context.Context) error {
	source := transport.NewUDPSourceFromSink(sink, logger)
	return func(ctx context.Context) error {
		return source.Run(ctx, func(_ netip.AddrPort, payload []byte) {
			handlePacket(payload)
		})
	}
}

// runDemoClientCall issues the one demo call a --client run makes, logging
// its result, then blocks until ctx is cancelled (matching every other
// receiver this node's errgroup runs to completion on shutdown).
func runDemoClientCall(w *demoWiring, dom *domain.Domain, logger *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		fn := clientEndpointFunc{conn: w.clientConn, endpointID: echoEndpointID, exchange: true}
		caller := dispatch.NewCoroAsFunc(fn)

		done := make(chan struct{})
		caller.Call(dom, [][]byte{[]byte("hello fibre")}, func(outs [][]byte, result status.Status) {
			defer close(done)
			logger.Info("demo call completed",
				slog.String("status", fmt.Sprintf("%v", result)),
				slog.Int("num_outputs", len(outs)))
			for i, out := range outs {
				logger.Info("demo call output", slog.Int("index", i), slog.String("value", string(out)))
			}
		})

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		<-ctx.Done()
		return ctx.Err()
	}
}

func orchestrate(
	ctx context.Context,
	loop *eventloop.EventLoop,
	adminSrv *adminhttp.Server,
	metricsSrv *http.Server,
	dom *domain.Domain,
	collector *fibremetrics.Collector,
	demo *demoWiring,
	logger *slog.Logger,
) error {
	var receivers []func(context.Context) error

	receivers = append(receivers, func(ctx context.Context) error {
		logger.Info("admin HTTP listening", slog.String("addr", metricsSrv.Addr))
		return adminSrv.ListenAndServe(ctx)
	})
	receivers = append(receivers, func(ctx context.Context) error {
		logger.Info("metrics HTTP listening", slog.String("addr", metricsSrv.Addr))
		return serveMetrics(ctx, metricsSrv)
	})
	receivers = append(receivers, metricsUpdater(dom, collector))

	if demo != nil {
		if demo.serverConn != nil {
			receivers = append(receivers, receiveLoop(demo.sink, demo.serverConn.HandlePacket, logger))
		} else if demo.clientConn != nil {
			receivers = append(receivers, receiveLoop(demo.sink, demo.clientConn.HandlePacket, logger))
			receivers = append(receivers, runDemoClientCall(demo, dom, logger))
		}
	}

	err := loop.RunWithReceivers(ctx, receivers...)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if shutErr := adminSrv.Shutdown(shutdownCtx); shutErr != nil {
		logger.Warn("admin server shutdown error", slog.String("error", shutErr.Error()))
	}
	if shutErr := metricsSrv.Shutdown(shutdownCtx); shutErr != nil {
		logger.Warn("metrics server shutdown error", slog.String("error", shutErr.Error()))
	}
	if demo != nil {
		if closeErr := demo.sink.Close(); closeErr != nil {
			logger.Warn("demo sink close error", slog.String("error", closeErr.Error()))
		}
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// metricsUpdater periodically refreshes the directory-size gauges from
// dom's own snapshot methods, the same "poll a Manager's read-only view"
// shape dantte-lp-gobfd's metrics collector uses against bfd.Manager.
func metricsUpdater(dom *domain.Domain, collector *fibremetrics.Collector) func(context.Context) error {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(metricsUpdateInterval)
		defer ticker.Stop()
		id := dom.ID().String()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				collector.SetKnownNodes(id, len(dom.Nodes()))
				collector.OpenConnections.WithLabelValues(id, "server").Set(float64(len(dom.ServerConnections())))
				collector.OpenConnections.WithLabelValues(id, "client").Set(float64(len(dom.ClientConnections())))
			}
		}
	}
}

// newMetricsServer builds the plain net/http server exposing reg's
// metrics at cfg.Path, the same promhttp.HandlerFor wiring
// dantte-lp-gobfd/cmd/gobfd/main.go uses for its own metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	serveMux := http.NewServeMux()
	serveMux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           serveMux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// serveMetrics listens on srv.Addr and serves until ctx is cancelled.
func serveMetrics(ctx context.Context, srv *http.Server) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", srv.Addr, err)
	}
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
