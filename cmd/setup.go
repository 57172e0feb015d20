package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"formintel/internal/config"
	"formintel/internal/extraction"
	"formintel/internal/history"
	"formintel/internal/matcher"
	"formintel/internal/pipeline"
	"formintel/internal/review"
	"formintel/internal/router"
	"formintel/internal/smartdoc"
	"formintel/internal/validation"
	"formintel/pkg/models"
)

// app holds the wired pipeline and the clients that must be closed afterwards.
type app struct {
	pipeline *pipeline.Pipeline
	closers  []func() error
}

// Close releases every client in reverse creation order.
func (a *app) Close(log zerolog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Failed to close client")
		}
	}
}

// newApp creates the extraction backends, the validation engine and,
// unless disabled, the history store, and wires them into a pipeline.
func newApp(ctx context.Context, cfg *config.Config, recordHistory bool, log zerolog.Logger) (*app, error) {
	if err := cfg.RequireGoogle(); err != nil {
		return nil, fmt.Errorf("%w. Please check your .env file", err)
	}
	if err := cfg.RequireOpenAI(); err != nil {
		return nil, fmt.Errorf("%w. Please check your .env file", err)
	}

	a := &app{}

	structured, err := extraction.NewDocumentAIBackend(ctx, extraction.DocumentAIConfig{
		ProjectID:        cfg.GoogleCloudProject,
		Location:         cfg.GoogleCloudLocation,
		ProcessorID:      cfg.DocumentAIProcessorID,
		ProcessorVersion: cfg.DocumentAIProcessorVersion,
	})
	if err != nil {
		return nil, handleSetupError(err, log)
	}
	a.closers = append(a.closers, structured.Close)

	recognizer, err := extraction.NewGoogleVisionRecognizer(ctx)
	if err != nil {
		a.Close(log)
		return nil, handleSetupError(err, log)
	}
	a.closers = append(a.closers, recognizer.Close)

	client := openai.NewClient(cfg.OpenAIAPIKey)
	generative := extraction.NewVisionLLMBackend(recognizer, client, extraction.VisionLLMConfig{Model: cfg.OpenAIModel})

	extractor := router.New(structured, generative, nil, router.Config{
		ConfidenceThreshold: cfg.RouterConfidenceThreshold,
		Timeout:             cfg.ExtractionTimeout,
	})

	semantic := validation.NewSemanticValidator(validation.NewOpenAIReviewer(client, cfg.OpenAIModel), cfg.AIValidationTimeout)
	engine, err := validation.NewDefaultEngine(nil, semantic, validation.EngineConfig{
		Gate: validation.GateConfig{
			ConfidenceThreshold: cfg.AIGateConfidence,
			OptIn:               cfg.AIValidationOptIn,
		},
		SoftFail: cfg.AISoftFail,
	})
	if err != nil {
		a.Close(log)
		return nil, fmt.Errorf("failed to load validation rules: %w", err)
	}

	var opts []pipeline.Option
	if recordHistory {
		store, err := history.Open(ctx, cfg.HistoryDB)
		if err != nil {
			a.Close(log)
			return nil, fmt.Errorf("failed to open history database %s: %w", cfg.HistoryDB, err)
		}
		a.closers = append(a.closers, store.Close)
		opts = append(opts, pipeline.WithRecorder(store))
	}

	a.pipeline = pipeline.New(
		extractor,
		matcher.New(cfg.MatchAcceptanceThreshold),
		engine,
		review.New(),
		pipeline.Config{
			GulfDefaultCountry: cfg.GulfDefaultCountry,
			PhoneStyle:         smartdoc.PhoneStyle(cfg.PhoneStyle),
		},
		opts...,
	)

	log.Debug().Bool("history", recordHistory).Msg("Pipeline created")
	return a, nil
}

// handleSetupError turns client construction failures into actionable messages.
func handleSetupError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Failed to create extraction backend")

	switch {
	case errors.Is(err, extraction.ErrMissingCredentials):
		return fmt.Errorf("missing Google Cloud credentials. Please set one of:\n"+
			"  GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n"+
			"  GOOGLE_CREDENTIALS='<json-credentials>'\n"+
			"Original error: %w", err)
	case errors.Is(err, extraction.ErrInvalidConfiguration):
		return fmt.Errorf("invalid Document AI configuration. Please check your .env file:\n"+
			"  GOOGLE_CLOUD_PROJECT - your Google Cloud project ID\n"+
			"  GOOGLE_CLOUD_LOCATION - processing location (us, eu, etc.)\n"+
			"  DOCUMENT_AI_PROCESSOR_ID - your Form Parser processor ID\n"+
			"Original error: %w", err)
	default:
		return fmt.Errorf("failed to create extraction backend: %w", err)
	}
}

// handleProcessError provides user-friendly messages for pipeline failures.
func handleProcessError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Form processing failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("form processing timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("form processing was canceled")
	case errors.Is(err, router.ErrDocumentUnreadable):
		return fmt.Errorf("the document could not be read. Check that the file is an intact, unencrypted PDF: %w", err)
	case errors.Is(err, extraction.ErrDocumentTooLarge):
		return fmt.Errorf("PDF file is too large for synchronous processing. Try splitting the file")
	case errors.Is(err, router.ErrExtractionUnavailable):
		return fmt.Errorf("both extraction backends failed. Check network access and API quotas: %w", err)
	case errors.Is(err, router.ErrExtractionTimeout):
		return fmt.Errorf("extraction backend exceeded its time budget. Try increasing EXTRACTION_TIMEOUT: %w", err)
	case errors.Is(err, validation.ErrAIValidationUnavailable):
		return fmt.Errorf("semantic review failed and AI_VALIDATION_SOFT_FAIL is disabled: %w", err)
	case errors.Is(err, extraction.ErrQuotaExceeded) || strings.Contains(errStr, "QUOTA_EXCEEDED"):
		return fmt.Errorf("API quota exceeded. Check your project quotas")
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "PERMISSION_DENIED"):
		return fmt.Errorf("Google Cloud authentication failed. Please check your credentials and that the service account has the 'Document AI API User' role.\n\n"+
			"Original error: %v", err)
	default:
		return fmt.Errorf("form processing failed: %w", err)
	}
}

// createContext creates a context with timeout that is also canceled on SIGINT or SIGTERM.
func createContext(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling processing")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// addDocumentFlags registers the application context flags shared by process and batch.
func addDocumentFlags(cmd *cobra.Command) {
	cmd.Flags().String("hint", "", "Document type hint, e.g. \"handwritten\" or \"schengen visa form\"")
	cmd.Flags().String("profile", "", "Applicant profile JSON file used to fill empty fields")
	cmd.Flags().String("data-source", "", "Preferred profile section for ambiguous labels (personal, passport, employment, education, family, travel)")
	cmd.Flags().String("destination", "", "Destination country (ISO 3166 alpha-2)")
	cmd.Flags().String("visa-type", "", "Visa type, e.g. tourist, student, work")
	cmd.Flags().String("travel-date", "", "Planned travel date (YYYY-MM-DD)")
	cmd.Flags().Bool("ai-review", false, "Always run the AI semantic review")
	cmd.Flags().Bool("no-history", false, "Do not record the run in the history database")
}

// documentTemplate reads the shared flags into a document without name or data.
func documentTemplate(cmd *cobra.Command) (pipeline.Document, error) {
	var doc pipeline.Document

	doc.TypeHint, _ = cmd.Flags().GetString("hint")
	doc.AIOptIn, _ = cmd.Flags().GetBool("ai-review")

	destination, _ := cmd.Flags().GetString("destination")
	doc.DestinationCountry = strings.ToUpper(strings.TrimSpace(destination))
	if doc.DestinationCountry != "" && len(doc.DestinationCountry) != 2 {
		return doc, fmt.Errorf("invalid --destination %q: use an ISO 3166 alpha-2 code such as AE or DE", destination)
	}

	doc.VisaType, _ = cmd.Flags().GetString("visa-type")

	if travel, _ := cmd.Flags().GetString("travel-date"); travel != "" {
		t, err := time.Parse("2006-01-02", travel)
		if err != nil {
			return doc, fmt.Errorf("invalid --travel-date %q: use YYYY-MM-DD", travel)
		}
		doc.TravelDate = &t
	}

	if source, _ := cmd.Flags().GetString("data-source"); source != "" {
		category := matcher.Category(strings.ToLower(source))
		switch category {
		case matcher.CategoryPersonal, matcher.CategoryPassport, matcher.CategoryEmployment,
			matcher.CategoryEducation, matcher.CategoryFamily, matcher.CategoryTravel:
			doc.DataSource = category
		default:
			return doc, fmt.Errorf("invalid --data-source %q", source)
		}
	}

	if path, _ := cmd.Flags().GetString("profile"); path != "" {
		profile, err := loadProfile(path)
		if err != nil {
			return doc, err
		}
		doc.Profile = profile
	}

	return doc, nil
}

func loadProfile(path string) (*models.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	var profile models.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("invalid profile JSON in %s: %w", path, err)
	}
	return &profile, nil
}
