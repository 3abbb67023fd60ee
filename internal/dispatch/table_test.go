package dispatch

import (
	"testing"

	"github.com/fibrefabric/fibre/internal/domain"
	"github.com/fibrefabric/fibre/internal/status"
)

func TestTableDispatchesToRegisteredFunction(t *testing.T) {
	table := NewTable(nil)
	var sawDomain *domain.Domain
	table.Register(5, NewFuncAsCoro(func(dom *domain.Domain, args [][]byte) ([][]byte, status.Status) {
		sawDomain = dom
		return nil, status.Closed
	}))

	socketImpl, err := table.StartCall(5, false, &recordingSink{})
	if err != nil {
		t.Fatalf("StartCall error = %v", err)
	}
	if socketImpl == nil {
		t.Fatal("StartCall returned a nil Socket for a registered endpoint")
	}
	_ = sawDomain
}

func TestTableRejectsUnregisteredEndpoint(t *testing.T) {
	table := NewTable(nil)
	_, err := table.StartCall(99, false, &recordingSink{})
	if err == nil {
		t.Fatal("expected an error for an unregistered endpoint id")
	}
}
