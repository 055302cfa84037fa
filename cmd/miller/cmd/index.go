package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ziongh/miller/internal/workspace"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the workspace",
		Long: `Index walks the workspace, extracts symbols and relationships,
embeds them, and writes both stores. Unchanged files (by content hash)
are skipped; --force clears the index first.`,
		RunE: func(c *cobra.Command, args []string) error {
			manager := workspace.NewManager(workspace.NewRegistry(""))
			defer manager.ShutdownAll()

			engine, err := manager.Engine(flagWorkspace)
			if err != nil {
				return err
			}

			if force {
				root := engine.Root
				if err := engine.Clean(); err != nil {
					return err
				}
				manager.Drop(root)
				engine, err = manager.Engine(root)
				if err != nil {
					return err
				}
			}

			start := time.Now()
			stats, err := engine.Indexer.IndexWorkspace(c.Context())
			if err != nil {
				return err
			}

			if isatty.IsTerminal(os.Stdout.Fd()) {
				fmt.Printf("Indexed %d files (%d unchanged) in %s\n",
					stats.FilesIndexed, stats.FilesSkipped, time.Since(start).Round(time.Millisecond))
				fmt.Printf("  %d symbols across %d flushes\n", stats.Symbols, stats.Flushes)
			} else {
				fmt.Printf("indexed=%d skipped=%d symbols=%d elapsed=%s\n",
					stats.FilesIndexed, stats.FilesSkipped, stats.Symbols,
					time.Since(start).Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "clear the index and rebuild from scratch")
	return cmd
}
