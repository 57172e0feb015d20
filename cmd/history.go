package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"formintel/internal/config"
	"formintel/internal/history"
	"formintel/internal/logger"
)

var historyCmd = &cobra.Command{
	Use:   "history [pdf-file]",
	Short: "Show previous runs from the local history database",
	Long: `List the runs recorded by process and batch. With a PDF argument only the
runs of that exact document are shown; documents are identified by a content
fingerprint, so renamed copies are found as well.

The database path is taken from HISTORY_DB (default: formintel-history.db).`,
	Example: `  # Show the last 20 runs
  formintel history

  # Show every run of one document as JSON
  formintel history application.pdf --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	historyCmd.Flags().Bool("json", false, "Print runs as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("history")

	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.HistoryDB); errors.Is(err, os.ErrNotExist) {
		fmt.Printf("No history yet (%s does not exist).\n", cfg.HistoryDB)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := history.Open(ctx, cfg.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to open history database %s: %w", cfg.HistoryDB, err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close history database")
		}
	}()

	var runs []history.Run
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read PDF file: %w", err)
		}
		fingerprint, err := history.Fingerprint(data)
		if err != nil {
			return err
		}
		runs, err = store.ByFingerprint(ctx, fingerprint)
		if err != nil {
			return fmt.Errorf("failed to query history: %w", err)
		}
		if len(runs) > limit {
			runs = runs[:limit]
		}
		log.Debug().Str("fingerprint", fingerprint).Int("runs", len(runs)).Msg("History lookup")
	} else {
		runs, err = store.Recent(ctx, limit)
		if err != nil {
			return fmt.Errorf("failed to query history: %w", err)
		}
	}

	if asJSON {
		return writeJSON(runs, "", log)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Printf("%-20s  %-32s  %-14s  %6s  %-10s  %6s  %6s\n",
		"Processed", "Document", "Status", "Conf.", "Method", "Errors", "Review")
	fmt.Println(strings.Repeat("-", 104))
	for _, r := range runs {
		method := string(r.ExtractionMethod)
		if r.FallbackUsed {
			method += "*"
		}
		fmt.Printf("%-20s  %-32s  %-14s  %5.1f%%  %-10s  %6d  %6d\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			truncate(r.Document, 32),
			r.Status,
			r.OverallConfidence,
			method,
			r.ErrorCount,
			r.ReviewItemCount,
		)
	}
	fmt.Println()
	fmt.Println("* fallback backend used")
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
