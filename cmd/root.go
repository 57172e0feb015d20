package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"formintel/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "formintel",
	Short: "Form intelligence - extract, match and validate application forms",
	Long: `formintel reads filled visa and immigration application PDFs, extracts
their fields with Google Document AI or Cloud Vision plus an OpenAI model,
maps them onto the applicant profile, validates them in three tiers and
decides how much human review each document needs.

Results are printed as JSON. Batches can be exported to an Excel workbook
or appended to a Google Sheet, and every completed run is kept in a local
history database.`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: applyLogLevel,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Override LOG_LEVEL for this invocation (trace, debug, info, warn, error)")
}

// applyLogLevel lets --log-level win over the environment.
func applyLogLevel(cmd *cobra.Command, _ []string) error {
	raw, _ := cmd.Flags().GetString("log-level")
	if raw == "" {
		return nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return fmt.Errorf("invalid --log-level %q", raw)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		l := logger.WithComponent("cmd")
		l.Debug().Err(err).Msg("Command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
