package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/lexdraft/mcp"
)

func (c *cli) mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP server commands",
	}

	var port int
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Serves chunk_document, find_exemplars and generate_manifestation as Model
Context Protocol tools.

By default the server speaks JSON-RPC over stdio, which is what desktop
assistants launch. Use --port to serve the streamable HTTP transport instead.

Examples:
  lexdraft mcp serve
  lexdraft mcp serve --port 8080`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			server, err := mcp.NewServer(a.orchestrator, version,
				mcp.WithChunker(a.chunker),
				mcp.WithRetriever(a.retriever),
				mcp.WithStrategies(c.cfg.Strategy),
			)
			if err != nil {
				return err
			}

			if port > 0 {
				addr := fmt.Sprintf(":%d", port)
				fmt.Fprintf(cmd.ErrOrStderr(), "MCP server listening on http://localhost%s\n", addr)
				return server.RunHTTP(ctx, addr)
			}
			return server.Run(ctx)
		},
	}
	serve.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (0 = use stdio)")
	cmd.AddCommand(serve)
	return cmd
}
