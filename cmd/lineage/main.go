// Command lineage imports obituaries into a genealogy graph.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/agenthands/lineage/internal/app"
	"github.com/agenthands/lineage/internal/catalog"
	"github.com/agenthands/lineage/internal/config"
	"github.com/agenthands/lineage/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "lineage",
	Short: "Extract people from obituaries and merge them into a family graph",
	Long: `lineage keeps a catalog of obituary URLs, fetches and extracts each one,
merges the extractor opinions into a single record and reconciles that record
with the person already stored in the graph. Conflicting facts are resolved
automatically or, with --interactive, by asking.

Configuration comes from a TOML file (--config, default ./lineage.toml when
present) overlaid by environment variables such as NEO4J_URI and LLM_API_KEY.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err == nil {
			fmt.Fprintln(os.Stderr, "Loaded .env")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./lineage.toml)")
	rootCmd.PersistentFlags().String("catalog", "", "catalog database path (overrides catalog.path)")
}

// loadConfig resolves the effective configuration for a command.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	explicit := path != ""
	if !explicit {
		path = "lineage.toml"
	}

	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
	default:
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)

	if p, _ := cmd.Flags().GetString("catalog"); p != "" {
		cfg.Catalog.Path = p
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) *logger.Logger {
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v, falling back to no-op\n", err)
		return logger.Nop()
	}
	return log
}

// openCatalog is for commands that only touch the catalog.
func openCatalog(cmd *cobra.Command) (*catalog.Catalog, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return catalog.Open(cfg.Catalog.Path)
}

func openApp(ctx context.Context, cmd *cobra.Command, opts app.Options) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, newLogger(cfg), opts)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
