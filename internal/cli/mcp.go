package cli

import (
	"github.com/spf13/cobra"

	"github.com/perchdata/membank/internal/mcpserver"
)

func init() {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the memory tools over MCP on stdio",
		Run:   runMCP,
	}

	RootCmd.AddCommand(cmd)
}

func runMCP(cmd *cobra.Command, args []string) {
	mgr, cleanup := newManager(cmd.Context())
	defer cleanup()

	if err := mcpserver.ServeStdio(mgr); err != nil {
		exitErr("mcp server", err)
	}
}
