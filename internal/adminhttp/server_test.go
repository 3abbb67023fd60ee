package adminhttp

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/fibrefabric/fibre/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeSink struct{ mtu int }

func (s fakeSink) MTU() int { return s.mtu }

type fakeConn struct {
	id     domain.CallId
	closed bool
}

func (c *fakeConn) CallID() domain.CallId { return c.id }
func (c *fakeConn) Closed() bool          { return c.closed }

func TestHandleNodesListsRegisteredNodes(t *testing.T) {
	localID, err := domain.NewNodeId()
	if err != nil {
		t.Fatalf("NewNodeId: %v", err)
	}
	dom := domain.New(localID)

	peerID, err := domain.NewNodeId()
	if err != nil {
		t.Fatalf("NewNodeId: %v", err)
	}
	if err := dom.AddChannel(domain.Channel{NodeID: peerID, Sink: fakeSink{mtu: 512}}); err != nil {
		t.Fatalf("AddChannel: %v", err)
	}

	srv := NewServer(":0", dom, testLogger())
	ts := httptest.NewServer(srv.httpSrv.Handler)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/v1/nodes")
	if err != nil {
		t.Fatalf("GET /v1/nodes: %v", err)
	}
	defer resp.Body.Close()

	var nodes []nodeView
	if err := json.NewDecoder(resp.Body).Decode(&nodes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(nodes) != 1 || nodes[0].ID != peerID.String() || nodes[0].NumSinks != 1 {
		t.Fatalf("nodes = %+v, want one entry for %v with NumSinks=1", nodes, peerID)
	}
}

func TestHandleConnectionsListsBothDirections(t *testing.T) {
	localID, err := domain.NewNodeId()
	if err != nil {
		t.Fatalf("NewNodeId: %v", err)
	}
	dom := domain.New(localID)

	serverConn := &fakeConn{id: domain.CallId{1}}
	clientConn := &fakeConn{id: domain.CallId{2}, closed: true}
	if err := dom.RegisterServerConnection(serverConn); err != nil {
		t.Fatalf("RegisterServerConnection: %v", err)
	}
	if err := dom.RegisterClientConnection(clientConn); err != nil {
		t.Fatalf("RegisterClientConnection: %v", err)
	}

	srv := NewServer(":0", dom, testLogger())
	ts := httptest.NewServer(srv.httpSrv.Handler)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/v1/connections")
	if err != nil {
		t.Fatalf("GET /v1/connections: %v", err)
	}
	defer resp.Body.Close()

	var conns []connectionView
	if err := json.NewDecoder(resp.Body).Decode(&conns); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(conns) != 2 {
		t.Fatalf("conns = %+v, want 2 entries", conns)
	}

	byDirection := make(map[string]connectionView)
	for _, c := range conns {
		byDirection[c.Direction] = c
	}
	if got := byDirection["server"]; got.CallID != serverConn.id.String() || got.Closed {
		t.Fatalf("server entry = %+v, want open connection %v", got, serverConn.id)
	}
	if got := byDirection["client"]; got.CallID != clientConn.id.String() || !got.Closed {
		t.Fatalf("client entry = %+v, want closed connection %v", got, clientConn.id)
	}
}
