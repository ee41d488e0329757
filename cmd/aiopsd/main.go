// Command aiopsd runs the AI-Ops fleet intelligence daemon: one
// process that ingests syslog and metric events from a fleet of
// network devices, runs them through the normalize/dedup/filter/
// analyze/decide pipeline, and persists the results (§1/§4.10).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set at build time with -ldflags).
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "aiopsd",
	Short:   "aiopsd - AI-assisted network device fleet monitoring",
	Long:    `aiopsd ingests syslog and metric events from a device fleet, scores and deduplicates them, runs best-effort root-cause analysis, and decides whether to auto-remediate, notify, escalate, or silence.`,
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return runDaemon(configPath)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("aiopsd %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to aiopsd config JSON (defaults apply if omitted)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
