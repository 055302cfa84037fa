package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziongh/miller/internal/format"
	"github.com/ziongh/miller/internal/search"
	"github.com/ziongh/miller/internal/vecstore"
	"github.com/ziongh/miller/internal/workspace"
)

func newSearchCmd() *cobra.Command {
	var method string
	var limit int
	var language string
	var filePattern string
	var expand bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			manager := workspace.NewManager(workspace.NewRegistry(""))
			defer manager.ShutdownAll()

			engine, err := manager.Engine(flagWorkspace)
			if err != nil {
				return err
			}

			resp, err := engine.Router.Search(c.Context(), query, search.Options{
				Method:      vecstore.SearchMethod(method),
				Limit:       limit,
				Language:    language,
				FilePattern: filePattern,
				Expand:      expand,
			})
			if err != nil {
				return err
			}

			fmt.Println(format.SearchText(query, resp))
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "m", "auto", "auto, text, pattern, semantic, or hybrid")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum results")
	cmd.Flags().StringVarP(&language, "language", "l", "", "filter by language")
	cmd.Flags().StringVarP(&filePattern, "file-pattern", "p", "", "glob filter on paths")
	cmd.Flags().BoolVar(&expand, "expand", false, "show direct callers and callees")
	return cmd
}
