//go:build linux

package discovery_test

import (
	"encoding/hex"
	"log/slog"
	"os"
	"testing"

	"github.com/fibrefabric/fibre/internal/discovery"
	"github.com/fibrefabric/fibre/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStaticBackendStartChannelDiscoveryAddsChannel(t *testing.T) {
	localID, err := domain.NewNodeId()
	if err != nil {
		t.Fatalf("NewNodeId: %v", err)
	}
	dom := domain.New(localID)

	peerID, err := domain.NewNodeId()
	if err != nil {
		t.Fatalf("NewNodeId: %v", err)
	}

	backend := discovery.NewStaticBackend()
	if err := backend.Init(nil, testLogger()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer backend.Deinit()

	specs := "address=127.0.0.1,port=9910,node=" + hex.EncodeToString(peerID[:])
	handle, err := backend.StartChannelDiscovery(dom, specs)
	if err != nil {
		t.Fatalf("StartChannelDiscovery: %v", err)
	}

	node, ok := dom.Node(peerID)
	if !ok {
		t.Fatal("peer node was not registered")
	}
	if len(node.Sinks()) != 1 {
		t.Fatalf("Sinks() len = %d, want 1", len(node.Sinks()))
	}

	sink, ok := backend.Sink(handle)
	if !ok || sink == nil {
		t.Fatal("Sink() did not return the dialed sink for this handle")
	}

	if err := backend.StopChannelDiscovery(handle); err != nil {
		t.Fatalf("StopChannelDiscovery: %v", err)
	}

	if _, ok := backend.Sink(handle); ok {
		t.Error("Sink() should not return a sink for a stopped handle")
	}
}

func TestStaticBackendStartChannelDiscoveryMissingSpec(t *testing.T) {
	localID, err := domain.NewNodeId()
	if err != nil {
		t.Fatalf("NewNodeId: %v", err)
	}
	dom := domain.New(localID)

	backend := discovery.NewStaticBackend()
	if err := backend.Init(nil, testLogger()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer backend.Deinit()

	if _, err := backend.StartChannelDiscovery(dom, "address=127.0.0.1"); err == nil {
		t.Fatal("expected error for missing port/node specs")
	}
}

func TestStaticBackendStartChannelDiscoveryInvalidNode(t *testing.T) {
	localID, err := domain.NewNodeId()
	if err != nil {
		t.Fatalf("NewNodeId: %v", err)
	}
	dom := domain.New(localID)

	backend := discovery.NewStaticBackend()
	if err := backend.Init(nil, testLogger()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer backend.Deinit()

	if _, err := backend.StartChannelDiscovery(dom, "address=127.0.0.1,port=9910,node=zz"); err == nil {
		t.Fatal("expected error for malformed node hex")
	}
}

func TestStaticBackendDeinitClosesOpenSessions(t *testing.T) {
	localID, err := domain.NewNodeId()
	if err != nil {
		t.Fatalf("NewNodeId: %v", err)
	}
	dom := domain.New(localID)

	peerID, err := domain.NewNodeId()
	if err != nil {
		t.Fatalf("NewNodeId: %v", err)
	}

	backend := discovery.NewStaticBackend()
	if err := backend.Init(nil, testLogger()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	specs := "address=127.0.0.1,port=9910,node=" + hex.EncodeToString(peerID[:])
	if _, err := backend.StartChannelDiscovery(dom, specs); err != nil {
		t.Fatalf("StartChannelDiscovery: %v", err)
	}

	if err := backend.Deinit(); err != nil {
		t.Fatalf("Deinit: %v", err)
	}
}
