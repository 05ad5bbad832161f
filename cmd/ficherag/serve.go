package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dshills/ficherag/internal/mcp"
	"github.com/dshills/ficherag/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long:  `Starts an MCP server on stdin/stdout. Logs are written to stderr because stdout carries the protocol.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			server, err := mcp.NewServer(a.store, a.pipeline, a.searcher, a.assistant,
				mcp.WithLogger(a.logger.With("component", "mcp")),
				mcp.WithInclude(a.cfg.Ingest.Include),
			)
			if err != nil {
				return err
			}

			a.logger.Info("ficherag starting",
				"version", Version,
				"build_mode", storage.BuildMode,
				"driver", storage.DriverName,
				"vector_extension", storage.VectorExtensionAvailable,
				"embedder", a.embedder.Provider(),
				"generation", a.provider != nil,
			)
			err = server.Serve(ctx)
			if ctx.Err() != nil {
				a.logger.Info("server stopped")
				return nil
			}
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
