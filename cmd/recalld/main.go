// Recalld is a tiered memory daemon for AI assistants.
//
// It stores scored memory entries per tenant, ranks them for retrieval
// with similarity, importance, recency decay and access frequency, and
// consolidates frequently-recalled episodic memories into durable facts.
//
// Usage:
//
//	# Start the daemon with defaults
//	recalld serve
//
//	# Use a config file
//	recalld serve --config ~/.config/recalld/config.yaml
//
//	# Run one maintenance plus consolidation pass and exit
//	recalld sweep
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "recalld",
	Short: "Tiered memory daemon for AI assistants",
	Long: `recalld stores, ranks and consolidates per-tenant memory entries.

Memories decay over time, frequently-recalled episodic memories are
distilled into durable semantic facts, and every operation is isolated
to the calling tenant.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: built-in defaults plus environment)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("recalld\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}
