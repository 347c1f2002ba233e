package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/netviz/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the graph to agents as MCP tools (add_triplet, add_node,
merge_group, set_layout, ...) and resources (netviz://graph, netviz://graph/mermaid).

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")
		baseURL, _ := cmd.Flags().GetString("base-url")

		srv := mcp.NewServer(a.graph, a.logger)

		switch transport {
		case "stdio":
			a.logger.Info("starting netviz MCP server (stdio)")
			err = srv.ServeStdio()
		case "sse":
			a.logger.Info("starting netviz MCP server (SSE)", "addr", addr)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = srv.ServeSSE(ctx, addr, baseURL)
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
		if err != nil {
			return err
		}
		if serr := a.saveGraphFile(context.Background()); serr != nil {
			a.logger.Error("saving graph file failed", "path", a.cfg.GraphFile, "error", serr)
		}
		a.logger.Info("MCP server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", ":8081", "Address to listen on (only for SSE)")
	mcpCmd.Flags().String("base-url", "", "Public base URL advertised to SSE clients")
}
