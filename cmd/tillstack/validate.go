package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tillstack/tillstack/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and exit",
	Long: `Validate the configuration file and print a summary.

Checks gateway mode and URL, database driver, log level, and that an admin
credential (password hash or API key) is configured.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	fmt.Println("Configuration valid")
	fmt.Printf("  Server:       %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Gateway mode: %s\n", cfg.Gateway.Mode)
	if cfg.Gateway.Mode == "remote" {
		fmt.Printf("  Gateway URL:  %s\n", cfg.Gateway.URL)
	}
	fmt.Printf("  Database:     %s\n", cfg.Database.DSN)
	fmt.Printf("  Log level:    %s\n", cfg.Logging.Level)
	fmt.Printf("  Reloadable:   %s\n", strings.Join(config.ReloadableFields(), ", "))
	return nil
}
