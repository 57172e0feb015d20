// Package router chooses between the extraction backends, applies the
// per-backend time budget and falls back to the other backend at most once.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"formintel/internal/extraction"
	"formintel/internal/logger"
	"formintel/pkg/models"
)

const (
	// DefaultConfidenceThreshold is the overall confidence below which the other backend is tried.
	DefaultConfidenceThreshold = 70.0

	// DefaultTimeout bounds each backend call.
	DefaultTimeout = 30 * time.Second
)

// Config tunes the router.
type Config struct {
	ConfidenceThreshold float64
	Timeout             time.Duration
}

// Router implements the document routing policy over two backends.
type Router struct {
	structured extraction.Backend
	generative extraction.Backend
	assessor   QualityAssessor
	config     Config
	log        zerolog.Logger
}

// New creates a router. Zero config values take the defaults.
func New(structured, generative extraction.Backend, assessor QualityAssessor, config Config) *Router {
	if config.ConfidenceThreshold == 0 {
		config.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if assessor == nil {
		assessor = NewPDFAssessor()
	}
	return &Router{
		structured: structured,
		generative: generative,
		assessor:   assessor,
		config:     config,
		log:        logger.WithComponent("router"),
	}
}

// prefersGenerative reports whether the hint or the scan quality points at handwriting or a poor scan.
func prefersGenerative(hint string, report *QualityReport) bool {
	h := strings.ToLower(hint)
	for _, kw := range []string{"handwritten", "handwriting", "scanned", "scan", "poor", "low_quality", "low-quality"} {
		if strings.Contains(h, kw) {
			return true
		}
	}
	return report.Clarity == ClarityPoor
}

// order returns the backends in call order.
func (r *Router) order(hint string, report *QualityReport) (first, second extraction.Backend) {
	if prefersGenerative(hint, report) {
		return r.generative, r.structured
	}
	return r.structured, r.generative
}

// Extract runs the quality check, the preferred backend and, when needed, the other one.
func (r *Router) Extract(ctx context.Context, document []byte, documentTypeHint string) (*models.ExtractionResult, error) {
	start := time.Now()

	report, err := r.assessor.Assess(ctx, document)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &UnreadableError{Reason: err.Error()}
	}
	if !report.Readable {
		return nil, &UnreadableError{Reason: report.Reason}
	}

	first, second := r.order(documentTypeHint, report)
	log := r.log.With().
		Int("pages", report.PageCount).
		Str("clarity", string(report.Clarity)).
		Str("hint", documentTypeHint).
		Logger()
	log.Debug().Str("first", string(first.Method())).Msg("Selected initial backend")

	attempts := []string{string(first.Method())}
	primary, primaryErr := r.attempt(ctx, first, document, documentTypeHint)
	if primaryErr == nil && primary.OverallConfidence >= r.config.ConfidenceThreshold {
		return r.finish(primary, attempts, false, start), nil
	}

	// Cancellation by the caller is not a backend failure.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if primaryErr != nil {
		log.Warn().Err(primaryErr).Str("backend", string(first.Method())).Msg("Primary backend failed, trying fallback")
	} else {
		log.Warn().
			Float64("confidence", primary.OverallConfidence).
			Float64("threshold", r.config.ConfidenceThreshold).
			Msg("Primary backend below threshold, trying fallback")
	}

	attempts = append(attempts, string(second.Method()))
	fallback, fallbackErr := r.attempt(ctx, second, document, documentTypeHint)
	switch {
	case fallbackErr == nil:
		return r.finish(fallback, attempts, true, start), nil
	case primaryErr == nil:
		log.Warn().Err(fallbackErr).Msg("Fallback failed, keeping low-confidence primary result")
		return r.finish(primary, attempts, false, start), nil
	default:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, &ExtractionUnavailableError{Primary: primaryErr, Fallback: fallbackErr}
	}
}

// attempt runs one backend under the per-backend time budget.
func (r *Router) attempt(ctx context.Context, backend extraction.Backend, document []byte, hint string) (*models.ExtractionResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	result, err := backend.Extract(callCtx, document, hint)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s backend: %w after %s", backend.Method(), ErrExtractionTimeout, r.config.Timeout)
		}
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("%s backend returned no result: %w", backend.Method(), extraction.ErrBackendFailed)
	}
	tagged := *result
	tagged.ExtractionMethod = backend.Method()
	return &tagged, nil
}

func (r *Router) finish(result *models.ExtractionResult, attempts []string, fallbackUsed bool, start time.Time) *models.ExtractionResult {
	out := *result
	out.Attempts = attempts
	out.FallbackUsed = fallbackUsed
	out.LowConfidence = out.OverallConfidence < r.config.ConfidenceThreshold
	out.ProcessingTime = time.Since(start)

	r.log.Info().
		Str("method", string(out.ExtractionMethod)).
		Float64("confidence", out.OverallConfidence).
		Bool("fallback", fallbackUsed).
		Bool("low_confidence", out.LowConfidence).
		Dur("duration", out.ProcessingTime).
		Msg("Extraction routed")
	return &out
}
