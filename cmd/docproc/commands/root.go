package commands

import (
	"github.com/spf13/cobra"
)

var (
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "docproc",
	Short: "Document image processing pipeline",
	Long: `docproc runs document images through preprocessing, region detection,
OCR and structured field extraction, and writes JSON/CSV reports.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}
