package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server over stdio",
	Long: `Exposes the simulation, the log feed and the insight service as MCP tools.
Logs go to stderr so they never corrupt the JSON-RPC stream on stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.startBackground(context.WithoutCancel(ctx)); err != nil {
			return err
		}

		logger.Info("starting MCP server (stdio)")
		if err := a.mcpServer().Serve(ctx); err != nil && ctx.Err() == nil {
			logger.Error("MCP server failed", slog.String("error", err.Error()))
			return err
		}
		logger.Info("MCP server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
