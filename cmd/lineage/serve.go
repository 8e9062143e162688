package main

import (
	"github.com/spf13/cobra"

	"github.com/agenthands/lineage/internal/app"
	"github.com/agenthands/lineage/internal/core/resolve"
	"github.com/agenthands/lineage/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog, runs and pending conflict decisions over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		defer log.Sync()

		decider := server.NewHTTPDecider(log)
		opts := appOptions(cmd)
		opts.Decider = decider
		if cfg.Resolve.Mode == string(resolve.Interactive) {
			opts.Mode = resolve.Interactive
		}

		a, err := app.New(cmd.Context(), cfg, log, opts)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		srv := server.NewServer(a.Catalog, a.Pipeline, decider, log)
		defer srv.Close()

		port, _ := cmd.Flags().GetString("port")
		if port == "" {
			port = cfg.Server.Port
		}
		log.Info("Starting server", "port", port)
		return srv.SetupRouter().Run(":" + port)
	},
}

func init() {
	serveCmd.Flags().String("port", "", "listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}
