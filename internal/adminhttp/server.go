// Package adminhttp exposes a read-only JSON introspection surface over a
// Domain directory, the plain net/http replacement for the reference
// codebase's ConnectRPC server (see DESIGN.md for why the generated stub
// layer itself was dropped): a thin adapter between HTTP requests and the
// directory's own snapshot methods, same division of labor as
// dantte-lp-gobfd/internal/server/server.go's BFDServer wrapping a
// *bfd.Manager.
package adminhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/fibrefabric/fibre/internal/domain"
)

// readHeaderTimeout bounds how long the server waits for request headers,
// matching the reference HTTP servers' hardening.
const readHeaderTimeout = 10 * time.Second

// Server is the admin introspection HTTP server.
type Server struct {
	httpSrv *http.Server
	dom     *domain.Domain
	logger  *slog.Logger
}

// NewServer builds a Server listening on addr, answering from dom's
// directory.
func NewServer(addr string, dom *domain.Domain, logger *slog.Logger) *Server {
	s := &Server{
		dom:    dom,
		logger: logger.With(slog.String("component", "adminhttp")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/nodes", s.handleNodes)
	mux.HandleFunc("GET /v1/connections", s.handleConnections)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.logRequests(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// logRequests wraps h with a per-request slog line, the same request
// logging shape BFDServer's interceptors.go applied per RPC call.
func (s *Server) logRequests(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Info("request", slog.String("method", r.Method), slog.String("path", r.URL.Path))
		h.ServeHTTP(w, r)
	})
}

// nodeView is the wire shape for one NodeSnapshot.
type nodeView struct {
	ID       string `json:"id"`
	NumSinks int    `json:"num_sinks"`
}

func (s *Server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	snaps := s.dom.Nodes()
	out := make([]nodeView, 0, len(snaps))
	for _, n := range snaps {
		out = append(out, nodeView{ID: n.ID.String(), NumSinks: n.NumSinks})
	}
	writeJSON(w, out)
}

// connectionView is the wire shape for one ConnectionSnapshot.
type connectionView struct {
	CallID    string `json:"call_id"`
	Direction string `json:"direction"`
	Closed    bool   `json:"closed"`
}

func (s *Server) handleConnections(w http.ResponseWriter, _ *http.Request) {
	out := make([]connectionView, 0)
	for _, c := range s.dom.ServerConnections() {
		out = append(out, connectionView{CallID: c.CallID.String(), Direction: "server", Closed: c.Closed})
	}
	for _, c := range s.dom.ClientConnections() {
		out = append(out, connectionView{CallID: c.CallID.String(), Direction: "client", Closed: c.Closed})
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ListenAndServe listens on the server's configured address and serves
// until ctx is cancelled, matching cmd/fibre-node's other HTTP listeners'
// noctx-lint-compliant net.ListenConfig.Listen pattern.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpSrv.Addr, err)
	}
	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", s.httpSrv.Addr, err)
	}
	return nil
}

// Shutdown gracefully stops the server, draining in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
