// Package validation checks matched form fields in three tiers of increasing cost.
package validation

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"formintel/internal/logger"
	"formintel/pkg/models"
)

// EngineConfig controls the Tier 3 gate and failure policy.
type EngineConfig struct {
	Gate GateConfig

	// SoftFail records an unavailable semantic review and carries on. When false
	// the engine returns ErrAIValidationUnavailable.
	SoftFail bool
}

// Report is the combined outcome of all tiers.
type Report struct {
	Issues []models.ValidationIssue
	AI     *models.AIValidation
}

// HasErrors reports whether any issue has error severity.
func (r *Report) HasErrors() bool {
	for _, is := range r.Issues {
		if is.Severity == models.SeverityError {
			return true
		}
	}
	return false
}

// Engine runs the tiers in order.
type Engine struct {
	schema   *SchemaValidator
	rules    *RuleValidator
	semantic *SemanticValidator
	config   EngineConfig
	log      zerolog.Logger
}

// NewEngine wires the tiers. semantic may be nil, in which case Tier 3 is always skipped.
func NewEngine(schema *SchemaValidator, rules *RuleValidator, semantic *SemanticValidator, config EngineConfig) *Engine {
	return &Engine{
		schema:   schema,
		rules:    rules,
		semantic: semantic,
		config:   config,
		log:      logger.WithComponent("validation"),
	}
}

// NewDefaultEngine builds an engine from the embedded schema and rule set.
func NewDefaultEngine(now func() time.Time, semantic *SemanticValidator, config EngineConfig) (*Engine, error) {
	schema, err := NewSchemaValidator(now)
	if err != nil {
		return nil, err
	}
	rules, err := NewRuleValidator(now)
	if err != nil {
		return nil, err
	}
	return NewEngine(schema, rules, semantic, config), nil
}

// Validate runs Tier 1 and Tier 2, then Tier 3 when the gate opens. Tier 1/2
// issues are returned even when the semantic review fails or ctx is cancelled.
func (e *Engine) Validate(ctx context.Context, in Input) (*Report, error) {
	start := time.Now()
	fs := newFieldSet(in.Matches, in.Context.DateLocale)

	issues := e.schema.Validate(in)
	issues = append(issues, e.rules.Validate(in)...)
	sortIssues(issues, fs.order)

	report := &Report{Issues: issues}

	if err := ctx.Err(); err != nil {
		return report, err
	}

	run, reason := ShouldRunSemantic(issues, in.ExtractionConfidence, in.AIOptIn, e.config.Gate)
	switch {
	case !run:
		report.AI = &models.AIValidation{SkippedReason: reason}
	case e.semantic == nil:
		report.AI = &models.AIValidation{SkippedReason: "semantic review not configured"}
	default:
		ai, aiIssues, err := e.semantic.Validate(ctx, in, issues)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			if !e.config.SoftFail {
				return report, err
			}
			e.log.Warn().Err(err).Msg("Semantic review unavailable, continuing without it")
			report.AI = &models.AIValidation{SkippedReason: skipReason(err), Unavailable: true}
			break
		}
		report.AI = ai
		report.Issues = append(report.Issues, aiIssues...)
		sortIssues(report.Issues, fs.order)
	}

	e.log.Info().
		Int("issues", len(report.Issues)).
		Bool("errors", report.HasErrors()).
		Bool("ai_used", report.AI != nil && report.AI.Used).
		Dur("duration", time.Since(start)).
		Msg("Validation completed")

	return report, nil
}

func skipReason(err error) string {
	if errors.Is(err, ErrAIValidationTimeout) {
		return "semantic review timed out"
	}
	return "semantic review unavailable: " + err.Error()
}
