package commands

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

type nodeView struct {
	ID       string `json:"id"`
	NumSinks int    `json:"num_sinks"`
}

func nodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List nodes registered in the remote Domain directory",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			nodes, err := fetchNodes()
			if err != nil {
				return fmt.Errorf("fetch nodes: %w", err)
			}

			out, err := formatNodes(nodes, outputFormat)
			if err != nil {
				return fmt.Errorf("format nodes: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}

func fetchNodes() ([]nodeView, error) {
	resp, err := httpClient.Get(adminURL("/v1/nodes"))
	if err != nil {
		return nil, fmt.Errorf("GET /v1/nodes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET /v1/nodes: unexpected status %s", resp.Status)
	}

	var nodes []nodeView
	if err := json.NewDecoder(resp.Body).Decode(&nodes); err != nil {
		return nil, fmt.Errorf("decode nodes response: %w", err)
	}
	return nodes, nil
}
