package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziongh/miller/internal/workspace"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health for the workspace",
		RunE: func(c *cobra.Command, args []string) error {
			manager := workspace.NewManager(workspace.NewRegistry(""))
			defer manager.ShutdownAll()

			engine, err := manager.Engine(flagWorkspace)
			if err != nil {
				return err
			}

			health := engine.Health(c.Context())
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(health)
			}

			fmt.Printf("Workspace: %s\n", health.Root)
			fmt.Printf("  Files indexed:  %d\n", health.Files)
			fmt.Printf("  Vector rows:    %d\n", health.VectorRows)
			fmt.Printf("  Embedder:       %s (ready: %t)\n", health.EmbedderModel, health.EmbedderReady)
			fmt.Printf("  Closure stale:  %t\n", health.ClosureStale)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}
