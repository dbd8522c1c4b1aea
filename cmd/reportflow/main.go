// ReportFlow - Event-driven CSV metrics reporting service
// Turns object storage notifications into per-file JSON metrics reports.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	verbose bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reportflow",
	Short: "ReportFlow - CSV metrics reports from storage notifications",
	Long: `ReportFlow consumes object storage notifications about uploaded CSV files,
computes per-column metrics (null counts, inferred datatypes) and writes a
JSON report next to the data. Every file is processed exactly once even when
notifications are delivered more than once.`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}
