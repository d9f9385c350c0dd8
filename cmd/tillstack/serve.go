package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tillstack/tillstack/bootstrap"
	"github.com/tillstack/tillstack/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the billing admin console",
	Long: `Start the tillstack admin console server.

The server will:
  - Load configuration from tillstack.yaml (or --config)
  - Or load configuration from TILLSTACK_* environment variables
  - Connect to the embedded database
  - In remote mode, refetch catalogs, organizations and invoices upstream
  - Serve the admin API under /admin

Environment variables (for Docker deployments):
  TILLSTACK_GATEWAY_MODE        - local or remote (default: local)
  TILLSTACK_GATEWAY_URL         - Upstream billing API URL (remote mode)
  TILLSTACK_DATABASE_DSN        - Database path (default: tillstack.db)
  TILLSTACK_SERVER_PORT         - Server port (default: 8080)
  TILLSTACK_ADMIN_API_KEY       - Admin API key
  TILLSTACK_LOG_LEVEL           - Log level: debug, info, warn, error

Examples:
  tillstack serve
  tillstack serve --config /etc/tillstack/config.yaml
  tillstack serve --hot-reload=false

  # Docker (env vars only):
  TILLSTACK_ADMIN_API_KEY=secret tillstack serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	var app *bootstrap.App
	var err error

	if hasConfigFile && hotReload {
		// Hot reload only works with a config file
		app, err = bootstrap.NewWithHotReload(cfgFile)
	} else {
		cfg, loadErr := config.LoadWithFallback(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}

		if !hasConfigFile {
			fmt.Println("Running with environment variables (no config file)")
		}

		app, err = bootstrap.New(cfg)
	}

	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
