package commands

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFormatNodesTable(t *testing.T) {
	nodes := []nodeView{{ID: "aabb", NumSinks: 2}}
	out, err := formatNodes(nodes, formatTable)
	if err != nil {
		t.Fatalf("formatNodes() error: %v", err)
	}
	if !strings.Contains(out, "aabb") || !strings.Contains(out, "2") {
		t.Fatalf("formatNodes() table = %q, want to contain node id and sink count", out)
	}
}

func TestFormatNodesJSON(t *testing.T) {
	nodes := []nodeView{{ID: "aabb", NumSinks: 2}}
	out, err := formatNodes(nodes, formatJSON)
	if err != nil {
		t.Fatalf("formatNodes() error: %v", err)
	}
	var got []nodeView
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("formatNodes() JSON did not round-trip: %v", err)
	}
	if len(got) != 1 || got[0] != nodes[0] {
		t.Fatalf("formatNodes() JSON round-trip = %+v, want %+v", got, nodes)
	}
}

func TestFormatNodesUnsupportedFormat(t *testing.T) {
	if _, err := formatNodes(nil, "xml"); err == nil {
		t.Fatal("formatNodes() with an unsupported format should return an error")
	}
}

func TestFormatConnectionsTable(t *testing.T) {
	conns := []connectionView{{CallID: "cc01", Direction: "server", Closed: false}}
	out, err := formatConnections(conns, formatTable)
	if err != nil {
		t.Fatalf("formatConnections() error: %v", err)
	}
	if !strings.Contains(out, "cc01") || !strings.Contains(out, "server") {
		t.Fatalf("formatConnections() table = %q, want to contain call id and direction", out)
	}
}

func TestFormatConnectionsUnsupportedFormat(t *testing.T) {
	if _, err := formatConnections(nil, "xml"); err == nil {
		t.Fatal("formatConnections() with an unsupported format should return an error")
	}
}
