// Command fibrectl is the CLI client for the fibre-node admin HTTP
// endpoint, the same division of labor as
// dantte-lp-gobfd/cmd/gobfdctl's separate operator binary — here
// speaking plain JSON-over-HTTP instead of ConnectRPC, matching
// internal/adminhttp's own surface.
package main

import "github.com/fibrefabric/fibre/cmd/fibrectl/commands"

func main() {
	commands.Execute()
}
