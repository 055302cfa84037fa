package cmd

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ziongh/miller/internal/mcp"
	"github.com/ziongh/miller/internal/workspace"
)

func setDefaultLogger(logger *slog.Logger) {
	slog.SetDefault(logger)
}

func newServeCmd() *cobra.Command {
	var noWatch bool
	var noIndex bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Serve starts the JSON-RPC tool surface on stdin/stdout. The
workspace is indexed on startup (incremental, hash-gated) and the file
watcher keeps the index fresh until shutdown. All diagnostics go to
stderr and the log file; stdout carries only protocol frames.`,
		RunE: func(c *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			manager := workspace.NewManager(workspace.NewRegistry(""))
			defer manager.ShutdownAll()

			engine, err := manager.Engine(flagWorkspace)
			if err != nil {
				return err
			}

			if !noIndex {
				stats, err := engine.Indexer.IndexWorkspace(ctx)
				if err != nil {
					return err
				}
				slog.Info("startup index complete",
					slog.Int("indexed", stats.FilesIndexed),
					slog.Int("skipped", stats.FilesSkipped),
					slog.Int("symbols", stats.Symbols))
			}

			if !noWatch {
				if err := engine.StartWatcher(ctx); err != nil {
					// The watcher failing to start degrades to a static
					// index rather than killing the server.
					slog.Warn("watcher unavailable, index will not auto-update",
						slog.String("error", err.Error()))
				}
			}

			server := mcp.NewServer(manager, engine.Root)
			err = server.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown on signal
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "disable the file watcher")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "skip the startup index pass")
	return cmd
}
