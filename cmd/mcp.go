package cmd

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/agentic-research/attrgraph/internal/mcptools"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE: withApp(func(_ *cobra.Command, _ []string, a *app) error {
		s := mcptools.NewServer(mcptools.Deps{
			Store:    a.store,
			Publish:  a.publish,
			Resolver: a.resolver,
			Invoker:  a.invoker,
			Logger:   a.logger,
		}, Version)
		return server.ServeStdio(s)
	}),
}
