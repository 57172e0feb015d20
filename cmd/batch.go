package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"formintel/internal/config"
	"formintel/internal/history"
	"formintel/internal/logger"
	"formintel/internal/pipeline"
	"formintel/internal/report"
	"formintel/internal/sheets"
	"formintel/pkg/models"
)

var errDuplicateDocument = errors.New("duplicate document")

var batchCmd = &cobra.Command{
	Use:   "batch [folder-path]",
	Short: "Process every PDF in a folder and export the review decisions",
	Long: `Process all application form PDFs in a folder through the pipeline with a
bounded number of parallel workers. A document that fails does not stop the
others.

The batch summary is printed to stdout. Per-document results can be exported
to an Excel workbook (--xlsx) and appended to a Google Sheet (--sheet).

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS
  GOOGLE_CLOUD_PROJECT, DOCUMENT_AI_PROCESSOR_ID
  OPENAI_API_KEY
  GOOGLE_SHEET_URL - only with --sheet

Optional environment variables:
  BATCH_WORKERS - Number of parallel workers (default: 4)
  GOOGLE_SHEET_WORKSHEET - Worksheet name (default: "Form Runs")`,
	Example: `  # Process a folder and print the summary
  formintel batch ./applications

  # Export the results to Excel with 8 workers
  formintel batch ./applications --workers 8 --xlsx review.xlsx

  # Validate against UAE tourist rules and append to the team sheet
  formintel batch ./applications --destination AE --visa-type tourist --sheet`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().Int("workers", 0, "Parallel workers (default: BATCH_WORKERS)")
	batchCmd.Flags().String("xlsx", "", "Write the batch report to this Excel file")
	batchCmd.Flags().Bool("sheet", false, "Append the batch rows to the Google Sheet in GOOGLE_SHEET_URL")
	batchCmd.Flags().Bool("verbose", false, "Show per-document review messages")
	batchCmd.Flags().Int("timeout", 1800, "Timeout for the whole batch in seconds")
	addDocumentFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("batch")

	folderPath := args[0]
	workers, _ := cmd.Flags().GetInt("workers")
	xlsxPath, _ := cmd.Flags().GetString("xlsx")
	writeSheet, _ := cmd.Flags().GetBool("sheet")
	verbose, _ := cmd.Flags().GetBool("verbose")
	noHistory, _ := cmd.Flags().GetBool("no-history")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		return fmt.Errorf("folder not found: %s", folderPath)
	}
	if !folderInfo.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folderPath)
	}

	template, err := documentTemplate(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if workers <= 0 {
		workers = cfg.BatchWorkers
	}
	if writeSheet && cfg.GoogleSheetURL == "" {
		return fmt.Errorf("GOOGLE_SHEET_URL environment variable is required with --sheet")
	}

	pdfFiles, err := findPDFFiles(folderPath)
	if err != nil {
		return fmt.Errorf("failed to find PDF files: %w", err)
	}
	if len(pdfFiles) == 0 {
		fmt.Println("No PDF files found in folder.")
		return nil
	}

	log.Info().
		Str("folder", folderPath).
		Int("files", len(pdfFiles)).
		Int("workers", workers).
		Str("xlsx", xlsxPath).
		Bool("sheet", writeSheet).
		Msg("Starting batch processing")

	ctx, cancel := createContext(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	a, err := newApp(ctx, cfg, !noHistory, log)
	if err != nil {
		return err
	}
	defer a.Close(log)

	docs, rejected := loadDocuments(pdfFiles, template, log)

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("                         FORM BATCH PROCESSING")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Folder: %s\n", folderPath)
	fmt.Printf("Processing %d PDFs with %d parallel workers...\n", len(docs), workers)
	fmt.Println()

	start := time.Now()
	items := a.pipeline.ProcessBatch(ctx, docs, workers)
	items = append(items, rejected...)

	for i, item := range items {
		printBatchItem(i+1, len(items), item, verbose)
	}

	summary := pipeline.Summarize(items)
	printSummary(summary, time.Since(start))

	rows := report.Rows(items, time.Now())

	if xlsxPath != "" {
		if err := writeWorkbook(xlsxPath, rows, summary, log); err != nil {
			return err
		}
		fmt.Printf("Excel report: %s\n", xlsxPath)
	}

	if writeSheet {
		fmt.Println("Writing rows to Google Sheet...")
		sheetsService, err := sheets.NewSheetsService(ctx, cfg.GoogleSheetURL)
		if err != nil {
			return fmt.Errorf("failed to create Google Sheets service: %w", err)
		}
		if err := sheetsService.WriteBatchRows(ctx, rows, cfg.GoogleSheetWorksheet); err != nil {
			return fmt.Errorf("failed to write to Google Sheet: %w", err)
		}
		fmt.Printf("Sheet: %s\n", cfg.GoogleSheetWorksheet)
		fmt.Printf("Rows added: %d\n", len(rows))
	}

	fmt.Println(strings.Repeat("=", 80))

	log.Info().
		Int("total", summary.Total).
		Int("auto_approved", summary.AutoApproved).
		Int("spot_check", summary.SpotCheck).
		Int("full_review", summary.FullReview).
		Int("partial", summary.Partial).
		Int("failed", summary.Failed).
		Msg("Batch processing completed")

	if err := ctx.Err(); err != nil {
		return handleProcessError(err, log)
	}
	return nil
}

// findPDFFiles finds all PDF files below folderPath.
func findPDFFiles(folderPath string) ([]string, error) {
	var pdfFiles []string

	err := filepath.Walk(folderPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(strings.ToLower(info.Name()), ".pdf") {
			pdfFiles = append(pdfFiles, path)
		}
		return nil
	})

	return pdfFiles, err
}

// loadDocuments reads every file into a document built from template. Files
// that cannot be read, and byte-identical copies of an earlier file, are
// returned as failed batch items.
func loadDocuments(paths []string, template pipeline.Document, log zerolog.Logger) ([]pipeline.Document, []pipeline.BatchItem) {
	var docs []pipeline.Document
	var rejected []pipeline.BatchItem
	seen := make(map[string]string)

	for _, path := range paths {
		name := filepath.Base(path)
		if _, err := validatePDF(path, log); err != nil {
			rejected = append(rejected, pipeline.BatchItem{Document: name, Err: err})
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			rejected = append(rejected, pipeline.BatchItem{Document: name, Err: fmt.Errorf("failed to read PDF file: %w", err)})
			continue
		}
		fingerprint, err := history.Fingerprint(data)
		if err != nil {
			rejected = append(rejected, pipeline.BatchItem{Document: name, Err: err})
			continue
		}
		if first, ok := seen[fingerprint]; ok {
			log.Warn().Str("file", name).Str("duplicate_of", first).Msg("Skipping duplicate document")
			rejected = append(rejected, pipeline.BatchItem{Document: name, Err: fmt.Errorf("%w of %s", errDuplicateDocument, first)})
			continue
		}
		seen[fingerprint] = name

		doc := template
		doc.Name = name
		doc.Data = data
		docs = append(docs, doc)
	}

	return docs, rejected
}

func printBatchItem(n, total int, item pipeline.BatchItem, verbose bool) {
	fmt.Printf("[%d/%d] %s - %s", n, total, item.Document, statusLabel(item))
	switch {
	case item.Outcome != nil && item.Outcome.Result != nil:
		fmt.Printf(" (%.1f%%)", item.Outcome.Result.OverallConfidence)
	case item.Err != nil:
		fmt.Printf(" (%s)", item.Err.Error())
	}
	fmt.Println()

	if verbose && item.Outcome != nil && item.Outcome.Result != nil {
		fmt.Printf("    %s\n", item.Outcome.Result.ReviewMessage)
		for _, action := range item.Outcome.Result.RecommendedActions {
			fmt.Printf("    - %s\n", action)
		}
	}
}

// statusLabel returns a short label for the batch item's disposition.
func statusLabel(item pipeline.BatchItem) string {
	switch {
	case item.Outcome == nil:
		return "❌ failed"
	case item.Outcome.Result == nil:
		return "⚠️ partial"
	}
	switch item.Outcome.Result.Status {
	case models.StatusAutoApproved:
		return "✅ auto-approved"
	case models.StatusSpotCheck:
		return "🔍 spot check"
	default:
		return "📝 full review"
	}
}

func printSummary(s pipeline.Summary, elapsed time.Duration) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("                 RESULT")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Documents:     %d\n", s.Total)
	fmt.Printf("Auto-approved: %d\n", s.AutoApproved)
	fmt.Printf("Spot check:    %d\n", s.SpotCheck)
	fmt.Printf("Full review:   %d\n", s.FullReview)
	if s.Partial > 0 {
		fmt.Printf("Partial:       %d\n", s.Partial)
	}
	if s.Failed > 0 {
		fmt.Printf("Failed:        %d\n", s.Failed)
	}
	fmt.Printf("Duration:      %s\n", elapsed.Round(time.Second))
	fmt.Println()
}

func writeWorkbook(path string, rows []report.Row, summary pipeline.Summary, log zerolog.Logger) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create Excel file: %w", err)
	}
	if err := report.WriteXLSX(f, rows, summary); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write Excel report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close Excel file: %w", err)
	}
	log.Info().Str("path", path).Int("rows", len(rows)).Msg("Excel report written")
	return nil
}
