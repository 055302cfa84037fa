package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziongh/miller/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(c *cobra.Command, args []string) {
			fmt.Println(version.String())
		},
	}
}
