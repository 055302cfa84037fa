// Package cmd provides the CLI commands for miller.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ziongh/miller/internal/logging"
)

var (
	flagWorkspace string
	flagDebug     bool

	loggingCleanup func()
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "miller",
		Short: "Persistent code-intelligence index for multi-language repositories",
		Long: `Miller parses source files into symbols, identifiers, and
relationships, stores them in a relational metadata store plus a vector
store of embeddings, and answers definition, reference, trace, and
hybrid-search queries. AI clients connect over MCP via 'miller serve'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			cfg := logging.DefaultConfig()
			if flagDebug {
				cfg.Level = "debug"
			}
			// In serve mode stdout belongs to the protocol; logging is
			// stderr + file either way.
			logger, cleanup, err := logging.Setup(cfg)
			if err != nil {
				return err
			}
			loggingCleanup = cleanup
			setDefaultLogger(logger)
			return nil
		},
		PersistentPostRun: func(c *cobra.Command, args []string) {
			if loggingCleanup != nil {
				loggingCleanup()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&flagWorkspace, "workspace", "w", defaultWorkspace(), "workspace root")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func defaultWorkspace() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
