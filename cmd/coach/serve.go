package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aramcoach/internal/mcp"
	"aramcoach/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve advice over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		port := cfg.Server.Port
		if servePort > 0 {
			port = servePort
		}

		opts := []server.Option{server.WithLogger(logger)}
		if a.patches != nil {
			opts = append(opts, server.WithPatchLister(a.patches))
		}
		srv := server.New(a.ctrl, a.store, opts...)
		return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", port), cfg.Server.ShutdownTimeout)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve advice tools over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		return mcp.NewServer(a.ctrl, version, logger).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides server.port)")
}
