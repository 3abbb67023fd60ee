package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

func formatNodes(nodes []nodeView, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(nodes, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal nodes to JSON: %w", err)
		}
		return string(data), nil
	case formatTable:
		var buf strings.Builder
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NODE ID\tNUM SINKS")
		for _, n := range nodes {
			fmt.Fprintf(w, "%s\t%d\n", n.ID, n.NumSinks)
		}
		if err := w.Flush(); err != nil {
			return "", fmt.Errorf("flush tabwriter: %w", err)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatConnections(conns []connectionView, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(conns, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal connections to JSON: %w", err)
		}
		return string(data), nil
	case formatTable:
		var buf strings.Builder
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CALL ID\tDIRECTION\tCLOSED")
		for _, c := range conns {
			fmt.Fprintf(w, "%s\t%s\t%t\n", c.CallID, c.Direction, c.Closed)
		}
		if err := w.Flush(); err != nil {
			return "", fmt.Errorf("flush tabwriter: %w", err)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}
