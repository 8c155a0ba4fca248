package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	apiURL  string
	tenant  string
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "sitesim",
	Short: "Site simulator for the minesafe service",
	Long:  "sitesim replays sensor and vehicle scenarios against the minesafe API and tails live tracking streams.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "http://localhost:8080", "Base URL of the minesafe API")
	rootCmd.PersistentFlags().StringVar(&tenant, "tenant", "", "Tenant id sent in the X-Tenant-ID header")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Timeout for individual API calls")
	rootCmd.MarkPersistentFlagRequired("tenant") //nolint:errcheck // flag is defined above

	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(trackCmd)
}
