// Command miller is the code-intelligence index: an MCP server plus CLI
// commands for indexing and querying multi-language workspaces.
package main

import (
	"fmt"
	"os"

	"github.com/ziongh/miller/cmd/miller/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
