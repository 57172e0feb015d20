// Package review turns validation output and confidence signals into a
// disposition for human reviewers.
package review

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"formintel/internal/logger"
	"formintel/internal/matcher"
	"formintel/internal/validation"
	"formintel/pkg/models"
)

// Disposition thresholds. They are fixed for every run.
const (
	AutoApproveAbove = 90.0
	FullReviewBelow  = 70.0

	// SpotCheckFieldConfidence is the field confidence under which a spot check lists the field.
	SpotCheckFieldConfidence = 80.0

	ErrorPenalty   = 10.0
	WarningPenalty = 3.0

	// SemanticWeight is the share of the Tier 3 confidence in the blend.
	SemanticWeight = 0.2
)

// Input is everything the router looks at.
type Input struct {
	Matches []models.FieldMatch
	Issues  []models.ValidationIssue
	AI      *models.AIValidation

	// Extraction carries the low-confidence and fallback flags. It may be nil.
	Extraction *models.ExtractionResult

	// Warnings are document-level warnings from enrichment, such as critical declarations.
	Warnings []string
}

// Router assigns a status, review items and statistics.
type Router struct {
	now   func() time.Time
	newID func() string
	log   zerolog.Logger
}

// Option customizes a Router.
type Option func(*Router)

// WithClock sets the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithIDGenerator sets the generator for result IDs.
func WithIDGenerator(gen func() string) Option {
	return func(r *Router) { r.newID = gen }
}

// New creates a review router.
func New(opts ...Option) *Router {
	r := &Router{
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
		log:   logger.WithComponent("review"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route builds the processing result. Every call recomputes every figure.
func (r *Router) Route(in Input) *models.ProcessingResult {
	errs, warnings := countSeverities(in.Issues)
	lowConfidence := in.Extraction != nil && in.Extraction.LowConfidence

	overall := OverallConfidence(fieldConfidences(in.Matches), errs, warnings, in.AI)
	status := DecideStatus(overall, errs > 0, lowConfidence)

	result := &models.ProcessingResult{
		ID:                r.newID(),
		CreatedAt:         r.now().UTC(),
		OverallConfidence: overall,
		Status:            status,
		Issues:            append([]models.ValidationIssue(nil), in.Issues...),
		AIValidation:      in.AI,
		Warnings:          in.Warnings,
	}
	if in.Extraction != nil {
		result.ExtractionMethod = in.Extraction.ExtractionMethod
	}

	result.ReviewItems = reviewItems(in.Matches, in.Issues, status)
	result.Statistics = statistics(in.Matches, len(result.ReviewItems))
	result.ReviewMessage = reviewMessage(status, overall, errs, warnings, len(result.ReviewItems))
	result.RecommendedActions = recommendedActions(in, errs, warnings, status)

	r.log.Info().
		Str("id", result.ID).
		Str("status", string(status)).
		Float64("confidence", overall).
		Int("errors", errs).
		Int("warnings", warnings).
		Int("review_items", len(result.ReviewItems)).
		Msg("Review routed")

	return result
}

// OverallConfidence is the mean field confidence less the issue penalties,
// blended with the semantic review confidence when the review ran. With errors
// present the blend can only lower the figure.
func OverallConfidence(confidences []float64, errs, warnings int, ai *models.AIValidation) float64 {
	var mean float64
	if len(confidences) > 0 {
		var sum float64
		for _, c := range confidences {
			sum += c
		}
		mean = sum / float64(len(confidences))
	}

	base := clamp(mean - ErrorPenalty*float64(errs) - WarningPenalty*float64(warnings))
	if ai == nil || !ai.Used {
		return base
	}
	blended := clamp((1-SemanticWeight)*base + SemanticWeight*ai.Confidence)
	if errs > 0 {
		return math.Min(base, blended)
	}
	return blended
}

// DecideStatus maps the overall confidence and flags to a status. The
// auto-approve boundary is exclusive.
func DecideStatus(overall float64, hasErrors, lowConfidence bool) models.Status {
	switch {
	case hasErrors || lowConfidence || overall < FullReviewBelow:
		return models.StatusFullReview
	case overall > AutoApproveAbove:
		return models.StatusAutoApproved
	default:
		return models.StatusSpotCheck
	}
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func countSeverities(issues []models.ValidationIssue) (errs, warnings int) {
	for _, is := range issues {
		switch is.Severity {
		case models.SeverityError:
			errs++
		case models.SeverityWarning:
			warnings++
		}
	}
	return errs, warnings
}

func fieldConfidence(m models.FieldMatch) float64 {
	if m.ExtractedField == nil {
		return 0
	}
	return m.ExtractedField.Confidence
}

func fieldConfidences(matches []models.FieldMatch) []float64 {
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		out = append(out, fieldConfidence(m))
	}
	return out
}

// reviewItems lists the fields that need a human. Spot checks list only weak
// or flagged fields; full reviews list every field. Flagged fields absent from
// the form follow the extracted ones.
func reviewItems(matches []models.FieldMatch, issues []models.ValidationIssue, status models.Status) []models.ReviewItem {
	if status == models.StatusAutoApproved {
		return nil
	}

	byField := make(map[string][]models.ValidationIssue)
	for _, is := range issues {
		if key := is.FieldKey(); key != "" {
			byField[key] = append(byField[key], is)
		}
	}

	var items []models.ReviewItem
	seen := make(map[string]bool)
	for _, m := range matches {
		key := m.Key()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		conf := fieldConfidence(m)
		fieldIssues := byField[key]
		var reasons []string
		if conf < SpotCheckFieldConfidence {
			reasons = append(reasons, fmt.Sprintf("low confidence (%.0f%%)", conf))
		}
		if n := len(fieldIssues); n > 0 {
			reasons = append(reasons, fmt.Sprintf("%d issue(s)", n))
		}
		if !m.Matched() {
			reasons = append(reasons, "not matched to a profile field")
		}

		if status == models.StatusSpotCheck && conf >= SpotCheckFieldConfidence && len(fieldIssues) == 0 {
			continue
		}
		if len(reasons) == 0 {
			reasons = append(reasons, "full review")
		}

		label := key
		if m.ExtractedField != nil && m.ExtractedField.Label != "" {
			label = m.ExtractedField.Label
		}
		items = append(items, models.ReviewItem{
			FieldID:    key,
			Label:      label,
			Value:      m.PopulatedValue,
			Confidence: conf,
			Reason:     strings.Join(reasons, ", "),
			Issues:     fieldIssues,
		})
	}

	// Issues on fields the form never carried still need a reviewer.
	for _, is := range issues {
		key := is.FieldKey()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		items = append(items, models.ReviewItem{
			FieldID: key,
			Label:   matcher.FieldID(key).Label(),
			Reason:  "missing",
			Issues:  byField[key],
		})
	}
	return items
}

func statistics(matches []models.FieldMatch, reviewCount int) models.Statistics {
	total := len(matches)
	stats := models.Statistics{TotalFields: total}
	if total == 0 {
		return stats
	}

	var autoFilled, filled int
	var confSum float64
	for _, m := range matches {
		confSum += fieldConfidence(m)
		if strings.TrimSpace(m.PopulatedValue) == "" {
			continue
		}
		filled++
		if m.Matched() {
			autoFilled++
		}
	}

	n := float64(total)
	stats.AutoFillRate = float64(autoFilled) / n
	stats.ReviewRate = math.Min(1, float64(reviewCount)/n)
	stats.AvgConfidence = confSum / n
	stats.Completeness = float64(filled) / n
	return stats
}

func reviewMessage(status models.Status, overall float64, errs, warnings, items int) string {
	switch status {
	case models.StatusAutoApproved:
		return fmt.Sprintf("Confidence %.1f%% with no errors. The form can be submitted as filled.", overall)
	case models.StatusSpotCheck:
		return fmt.Sprintf("Confidence %.1f%%. Spot-check %d field(s) before submitting.", overall, items)
	default:
		var why []string
		if errs > 0 {
			why = append(why, fmt.Sprintf("%d error(s)", errs))
		}
		if warnings > 0 {
			why = append(why, fmt.Sprintf("%d warning(s)", warnings))
		}
		msg := fmt.Sprintf("Confidence %.1f%%. Review every field before submitting", overall)
		if len(why) > 0 {
			msg += " (" + strings.Join(why, ", ") + ")"
		}
		return msg + "."
	}
}

// recommendedActions names every degraded path so that none is silent.
func recommendedActions(in Input, errs, warnings int, status models.Status) []string {
	var actions []string

	if errs > 0 {
		actions = append(actions, fmt.Sprintf("Fix %d validation error(s) before submission", errs))
	}

	if ex := in.Extraction; ex != nil {
		if ex.LowConfidence {
			actions = append(actions, fmt.Sprintf("Extraction confidence was low (%.1f%%); compare every field with the original document", ex.OverallConfidence))
		}
		if ex.FallbackUsed {
			actions = append(actions, fmt.Sprintf("The first extraction backend fell short; values come from the %s backend", ex.ExtractionMethod))
		}
	}

	var ruleMissing, critical bool
	for _, is := range in.Issues {
		switch is.Code {
		case validation.CodeRuleMissing:
			ruleMissing = true
		case validation.CodeCriticalDeclaration:
			critical = true
		}
	}
	if ruleMissing {
		actions = append(actions, "No rules exist for the destination or visa type; generic rules were applied, so confirm the destination requirements manually")
	}
	if critical || len(in.Warnings) > 0 {
		actions = append(actions, "Confirm every critical declaration with the applicant")
	}

	if ai := in.AI; ai != nil {
		switch {
		case ai.Unavailable:
			actions = append(actions, "Semantic review was unavailable; check answers for contradictions manually")
		case ai.Used:
			actions = append(actions, ai.Suggestions...)
		}
	}

	var unmatched int
	for _, m := range in.Matches {
		if !m.Matched() {
			unmatched++
		}
	}
	if unmatched > 0 {
		actions = append(actions, fmt.Sprintf("Map %d unmatched field(s) by hand", unmatched))
	}

	if warnings > 0 && errs == 0 {
		actions = append(actions, fmt.Sprintf("Review %d warning(s)", warnings))
	}
	if len(actions) == 0 && status == models.StatusAutoApproved {
		actions = append(actions, "Submit the application")
	}
	return actions
}
