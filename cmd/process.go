package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"formintel/internal/config"
	"formintel/internal/extraction"
	"formintel/internal/logger"
	"formintel/internal/pipeline"
	"formintel/internal/smartdoc"
	"formintel/pkg/models"
)

var processCmd = &cobra.Command{
	Use:   "process [pdf-file]",
	Short: "Extract, match, validate and route a single application form",
	Long: `Process a filled application form PDF through the full pipeline:

  1. Route the document to Google Document AI or to Cloud Vision plus an
     OpenAI model, falling back to the other backend once when needed.
  2. Normalize dates and phone numbers, flag critical declarations and
     rebuild family and travel tables.
  3. Map every extracted label to a canonical profile field.
  4. Validate formats, destination rules and, when warranted, semantics.
  5. Decide whether the result can be auto-approved, spot-checked or
     needs a full review.

The output is always JSON.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_CLOUD_PROJECT - Your Google Cloud project ID
  DOCUMENT_AI_PROCESSOR_ID - Your Document AI Form Parser processor ID
  OPENAI_API_KEY - OpenAI API key`,
	Example: `  # Process a form and print the review decision
  formintel process application.pdf

  # Validate against destination rules and fill blanks from a profile
  formintel process application.pdf --destination AE --visa-type tourist \
    --travel-date 2025-09-01 --profile applicant.json

  # Handwritten form, always run the AI review, save to file
  formintel process scan.pdf --hint handwritten --ai-review -o result.json`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

// ProcessOutput is the JSON document written by the process command.
type ProcessOutput struct {
	Result     *models.ProcessingResult `json:"result,omitempty"`
	Matches    []models.FieldMatch      `json:"matches,omitempty"`
	Enrichment *EnrichmentOutput        `json:"enrichment,omitempty"`
	Partial    bool                     `json:"partial,omitempty"`
	Metadata   ProcessingMetadata       `json:"metadata"`
}

// EnrichmentOutput is the part of the enrichment step worth showing to a reviewer.
type EnrichmentOutput struct {
	InferredCountry string                    `json:"inferred_country,omitempty"`
	Insights        []string                  `json:"insights,omitempty"`
	CriticalAnswers []smartdoc.CriticalAnswer `json:"critical_answers,omitempty"`
	FamilyMembers   []models.FamilyMember     `json:"family_members,omitempty"`
	TravelHistory   []models.TravelRecord     `json:"travel_history,omitempty"`
}

// ProcessingMetadata contains information about the processing operation.
type ProcessingMetadata struct {
	FileName           string        `json:"file_name"`
	FileSize           int64         `json:"file_size_bytes"`
	Fingerprint        string        `json:"fingerprint"`
	PageCount          int           `json:"page_count,omitempty"`
	Attempts           []string      `json:"attempts,omitempty"`
	ProcessedAt        time.Time     `json:"processed_at"`
	ProcessingDuration time.Duration `json:"processing_duration"`
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	processCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
	addDocumentFlags(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("process")

	outputPath, _ := cmd.Flags().GetString("output")
	noHistory, _ := cmd.Flags().GetBool("no-history")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	pdfPath := args[0]

	doc, err := documentTemplate(cmd)
	if err != nil {
		return err
	}

	log.Info().
		Str("file", pdfPath).
		Str("destination", doc.DestinationCountry).
		Str("visa_type", doc.VisaType).
		Bool("profile", doc.Profile != nil).
		Int("timeout", timeoutSecs).
		Msg("Starting form processing")

	fileInfo, err := validatePDF(pdfPath, log)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := createContext(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	a, err := newApp(ctx, cfg, !noHistory, log)
	if err != nil {
		return err
	}
	defer a.Close(log)

	data, err := os.ReadFile(pdfPath)
	if err != nil {
		log.Error().
			Err(err).
			Str("file", pdfPath).
			Msg("Failed to read PDF file")
		return fmt.Errorf("failed to read PDF file: %w", err)
	}
	doc.Name = filepath.Base(pdfPath)
	doc.Data = data

	outcome, err := a.pipeline.Process(ctx, doc)
	if err != nil && outcome == nil {
		return handleProcessError(err, log)
	}

	output := newProcessOutput(outcome, fileInfo.Size())
	if writeErr := writeJSON(output, outputPath, log); writeErr != nil {
		return writeErr
	}
	if err != nil {
		return handleProcessError(err, log)
	}

	log.Info().
		Str("status", string(outcome.Result.Status)).
		Float64("confidence", outcome.Result.OverallConfidence).
		Int("review_items", len(outcome.Result.ReviewItems)).
		Msg("Form processing completed successfully")
	return nil
}

func newProcessOutput(outcome *pipeline.Outcome, size int64) ProcessOutput {
	out := ProcessOutput{
		Result:  outcome.Result,
		Matches: outcome.Matches,
		Partial: outcome.Partial,
		Metadata: ProcessingMetadata{
			FileName:           outcome.Document,
			FileSize:           size,
			Fingerprint:        outcome.Fingerprint,
			ProcessedAt:        time.Now(),
			ProcessingDuration: outcome.Duration,
		},
	}
	if ex := outcome.Extraction; ex != nil {
		out.Metadata.PageCount = ex.PageCount
		out.Metadata.Attempts = ex.Attempts
	}
	if en := outcome.Enrichment; en != nil {
		out.Enrichment = &EnrichmentOutput{
			InferredCountry: en.InferredCountry,
			Insights:        en.Insights,
			CriticalAnswers: en.CriticalAnswers,
			FamilyMembers:   en.FamilyMembers,
			TravelHistory:   en.TravelHistory,
		}
	}
	return out
}

// validatePDF checks that the path is a readable, non-empty PDF within the size limit.
func validatePDF(pdfPath string, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(pdfPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().
				Str("file", pdfPath).
				Msg("PDF file not found")
			return nil, fmt.Errorf("PDF file not found: %s", pdfPath)
		}
		if os.IsPermission(err) {
			log.Error().
				Str("file", pdfPath).
				Msg("Permission denied accessing PDF file")
			return nil, fmt.Errorf("permission denied accessing PDF file: %s", pdfPath)
		}
		return nil, fmt.Errorf("error accessing PDF file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", pdfPath)
	}

	if !strings.HasSuffix(strings.ToLower(pdfPath), ".pdf") {
		log.Warn().
			Str("file", pdfPath).
			Msg("File does not have .pdf extension")
	}

	if fileInfo.Size() == 0 {
		return nil, fmt.Errorf("PDF file is empty: %s", pdfPath)
	}

	if fileInfo.Size() > extraction.MaxDocumentSizeBytes {
		log.Error().
			Str("file", pdfPath).
			Int64("size", fileInfo.Size()).
			Int64("max_size", extraction.MaxDocumentSizeBytes).
			Msg("PDF file exceeds maximum size limit")
		return nil, fmt.Errorf("PDF file too large (%d bytes). Maximum size is %d bytes",
			fileInfo.Size(), extraction.MaxDocumentSizeBytes)
	}

	return fileInfo, nil
}

// writeJSON writes pretty-printed JSON to outputPath, or stdout when empty.
func writeJSON(v any, outputPath string, log zerolog.Logger) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON output")
		return fmt.Errorf("failed to format output: %w", err)
	}

	if outputPath == "" {
		fmt.Println(string(jsonData))
		return nil
	}

	if err := os.WriteFile(outputPath, jsonData, 0o644); err != nil {
		log.Error().
			Err(err).
			Str("output", outputPath).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}

	log.Info().Str("output", outputPath).Msg("Results saved")
	return nil
}
