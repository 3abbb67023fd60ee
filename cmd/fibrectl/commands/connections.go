package commands

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

type connectionView struct {
	CallID    string `json:"call_id"`
	Direction string `json:"direction"`
	Closed    bool   `json:"closed"`
}

func connectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connections",
		Short: "List open server/client Connections in the remote Domain directory",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			conns, err := fetchConnections()
			if err != nil {
				return fmt.Errorf("fetch connections: %w", err)
			}

			out, err := formatConnections(conns, outputFormat)
			if err != nil {
				return fmt.Errorf("format connections: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}

func fetchConnections() ([]connectionView, error) {
	resp, err := httpClient.Get(adminURL("/v1/connections"))
	if err != nil {
		return nil, fmt.Errorf("GET /v1/connections: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET /v1/connections: unexpected status %s", resp.Status)
	}

	var conns []connectionView
	if err := json.NewDecoder(resp.Body).Decode(&conns); err != nil {
		return nil, fmt.Errorf("decode connections response: %w", err)
	}
	return conns, nil
}
