package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tillstack",
	Short: "Subscription pricing and invoice console for multi-tenant POS deployments",
	Long: `Tillstack is the billing admin console for a multi-tenant POS platform.

It manages the plan and add-on catalogs, per-organization add-on ledgers,
itemized invoice composition, and the invoice lifecycle. It can run fully
local against an embedded database, or in front of an upstream billing API.

Quick start:
  tillstack serve     # Start the admin console
  tillstack validate  # Validate configuration`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "tillstack.yaml", "config file path")
}
