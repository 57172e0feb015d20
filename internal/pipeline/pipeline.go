// Package pipeline runs a document through extraction, enrichment, field
// matching, validation and review routing.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"formintel/internal/history"
	"formintel/internal/logger"
	"formintel/internal/matcher"
	"formintel/internal/review"
	"formintel/internal/smartdoc"
	"formintel/internal/validation"
	"formintel/pkg/models"
)

// Extractor produces an extraction result from document bytes. *router.Router implements it.
type Extractor interface {
	Extract(ctx context.Context, document []byte, documentTypeHint string) (*models.ExtractionResult, error)
}

// Validator runs the validation tiers. *validation.Engine implements it.
type Validator interface {
	Validate(ctx context.Context, in validation.Input) (*validation.Report, error)
}

// Recorder persists completion metadata. *history.Store implements it.
type Recorder interface {
	Record(ctx context.Context, run history.Run) error
}

// Document is one unit of work with its optional application context.
type Document struct {
	Name     string
	Data     []byte
	TypeHint string

	Profile    *models.Profile
	DataSource matcher.Category

	DestinationCountry string
	VisaType           string
	TravelDate         *time.Time
	AIOptIn            bool
}

// Outcome holds every stage output of one run. After a cancellation only the
// stages that completed are set and Partial is true.
type Outcome struct {
	Document    string
	Fingerprint string
	Extraction  *models.ExtractionResult
	Enrichment  *smartdoc.Result
	Matches     []models.FieldMatch
	Validation  *validation.Report
	Result      *models.ProcessingResult
	Partial     bool
	Duration    time.Duration
}

// Config holds the enrichment settings shared by all runs.
type Config struct {
	GulfDefaultCountry string
	PhoneStyle         smartdoc.PhoneStyle
}

// Pipeline wires the stages together. It is safe for concurrent use.
type Pipeline struct {
	extractor Extractor
	matcher   *matcher.Matcher
	validator Validator
	router    *review.Router
	recorder  Recorder
	config    Config
	log       zerolog.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithRecorder records every completed run.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// New creates a pipeline.
func New(extractor Extractor, m *matcher.Matcher, validator Validator, router *review.Router, config Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor: extractor,
		matcher:   m,
		validator: validator,
		router:    router,
		config:    config,
		log:       logger.WithComponent("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one document. Extraction failures abort the run. Cancellation
// after extraction returns the partial outcome together with the context error.
func (p *Pipeline) Process(ctx context.Context, doc Document) (*Outcome, error) {
	start := time.Now()
	log := p.log.With().Str("document", doc.Name).Logger()

	fingerprint, err := history.Fingerprint(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", doc.Name, err)
	}
	out := &Outcome{Document: doc.Name, Fingerprint: fingerprint}

	extraction, err := p.extractor.Extract(ctx, doc.Data, doc.TypeHint)
	if err != nil {
		return nil, err
	}
	out.Extraction = extraction

	if err := ctx.Err(); err != nil {
		return p.partial(out, start), err
	}

	processor := smartdoc.NewProcessor(smartdoc.Config{
		GulfDefaultCountry: p.config.GulfDefaultCountry,
		DestinationCountry: doc.DestinationCountry,
		PhoneStyle:         p.config.PhoneStyle,
	})
	enrichment := processor.Process(extraction)
	out.Enrichment = enrichment

	var matchOpts []matcher.MatchOption
	if doc.Profile != nil {
		matchOpts = append(matchOpts, matcher.WithProfile(doc.Profile))
	}
	if doc.DataSource != "" {
		matchOpts = append(matchOpts, matcher.WithDataSource(doc.DataSource))
	}
	out.Matches = p.matcher.Match(enrichment.EnhancedFields, matchOpts...)

	if err := ctx.Err(); err != nil {
		return p.partial(out, start), err
	}

	in := validation.Input{
		Matches:              out.Matches,
		ExtractionConfidence: extraction.OverallConfidence,
		Context: validation.Context{
			DestinationCountry: doc.DestinationCountry,
			VisaType:           doc.VisaType,
			TravelDate:         doc.TravelDate,
			DateLocale:         dateLocale(doc.DestinationCountry, enrichment.InferredCountry),
		},
		AIOptIn: doc.AIOptIn,
	}
	for _, ans := range enrichment.CriticalAnswers {
		if ans.Selected {
			in.CriticalSelections = append(in.CriticalSelections, ans.Label)
		}
	}

	report, err := p.validator.Validate(ctx, in)
	out.Validation = report
	if err != nil {
		return p.partial(out, start), err
	}

	out.Result = p.router.Route(review.Input{
		Matches:    out.Matches,
		Issues:     report.Issues,
		AI:         report.AI,
		Extraction: extraction,
		Warnings:   enrichment.Warnings,
	})
	out.Duration = time.Since(start)

	if p.recorder != nil {
		run := history.NewRun(doc.Name, fingerprint, extraction, out.Result, out.Duration)
		if err := p.recorder.Record(ctx, run); err != nil {
			log.Warn().Err(err).Msg("Failed to record run")
		}
	}

	log.Info().
		Str("status", string(out.Result.Status)).
		Float64("confidence", out.Result.OverallConfidence).
		Int("fields", len(out.Matches)).
		Dur("duration", out.Duration).
		Msg("Document processed")

	return out, nil
}

func (p *Pipeline) partial(out *Outcome, start time.Time) *Outcome {
	out.Partial = true
	out.Duration = time.Since(start)
	p.log.Warn().Str("document", out.Document).Msg("Run stopped early, returning partial outcome")
	return out
}

// dateLocale is the country whose convention the enriched dates follow.
func dateLocale(destination, inferred string) string {
	if destination != "" {
		return destination
	}
	return inferred
}

// BatchItem is the outcome of one document in a batch.
type BatchItem struct {
	Document string
	Outcome  *Outcome
	Err      error
}

// ProcessBatch runs documents concurrently with at most workers in flight.
// Results keep the input order; a failing document does not stop the others.
func (p *Pipeline) ProcessBatch(ctx context.Context, docs []Document, workers int) []BatchItem {
	if workers < 1 {
		workers = 1
	}
	items := make([]BatchItem, len(docs))

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range docs {
		doc := docs[i]
		g.Go(func() error {
			outcome, err := p.Process(ctx, doc)
			items[i] = BatchItem{Document: doc.Name, Outcome: outcome, Err: err}
			if err != nil {
				p.log.Error().Err(err).Str("document", doc.Name).Msg("Document failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	return items
}

// Summary counts batch items by disposition.
type Summary struct {
	Total        int
	Failed       int
	Partial      int
	AutoApproved int
	SpotCheck    int
	FullReview   int
}

// Summarize tallies a batch.
func Summarize(items []BatchItem) Summary {
	s := Summary{Total: len(items)}
	for _, it := range items {
		switch {
		case it.Outcome == nil:
			s.Failed++
		case it.Outcome.Result == nil:
			s.Partial++
		default:
			switch it.Outcome.Result.Status {
			case models.StatusAutoApproved:
				s.AutoApproved++
			case models.StatusSpotCheck:
				s.SpotCheck++
			case models.StatusFullReview:
				s.FullReview++
			}
		}
	}
	return s
}
