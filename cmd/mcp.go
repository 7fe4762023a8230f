package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/issuetracker/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

Exposes the issue operations as tools for MCP clients. Configure with:

  {
    "mcpServers": {
      "issuetracker": { "command": "issuetracker", "args": ["mcp"] }
    }
  }

Available tools: issues_search, issues_create, issues_update, issues_delete`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := getService()
		if err != nil {
			return err
		}
		defer func() { _ = dataStore.Close() }()

		return mcp.NewServer(svc, buildVersion).ServeStdio(orBackground(cmd.Context()))
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
