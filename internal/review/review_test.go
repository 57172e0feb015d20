package review

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formintel/internal/validation"
	"formintel/pkg/models"
)

func field(path, value string, conf float64) models.FieldMatch {
	m := models.FieldMatch{
		ExtractedField: &models.ExtractedField{Label: path, Value: value, Confidence: conf},
		PopulatedValue: value,
		ValueSource:    models.ValueFromExtraction,
	}
	if path != "" {
		m.CanonicalPath = models.StringPtr(path)
		m.Field = path
	}
	return m
}

func unmatched(label, value string, conf float64) models.FieldMatch {
	return models.FieldMatch{
		ExtractedField: &models.ExtractedField{Label: label, Value: value, Confidence: conf},
		PopulatedValue: value,
		ValueSource:    models.ValueFromExtraction,
	}
}

func warning(path, code string) models.ValidationIssue {
	return models.ValidationIssue{FieldID: models.StringPtr(path), Code: code, Severity: models.SeverityWarning, Source: models.SourceTier2}
}

func failure(path, code string) models.ValidationIssue {
	return models.ValidationIssue{FieldID: models.StringPtr(path), Code: code, Severity: models.SeverityError, Source: models.SourceTier1}
}

func testRouter() *Router {
	n := 0
	return New(
		WithClock(func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("run-%d", n) }),
	)
}

func TestDecideStatus(t *testing.T) {
	tests := []struct {
		name      string
		overall   float64
		hasErrors bool
		low       bool
		want      models.Status
	}{
		{"above ninety", 90.1, false, false, models.StatusAutoApproved},
		{"exactly ninety", 90.0, false, false, models.StatusSpotCheck},
		{"exactly seventy", 70.0, false, false, models.StatusSpotCheck},
		{"just below seventy", 69.9, false, false, models.StatusFullReview},
		{"errors never auto-approve", 99, true, false, models.StatusFullReview},
		{"low confidence extraction", 95, false, true, models.StatusFullReview},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecideStatus(tt.overall, tt.hasErrors, tt.low))
		})
	}
}

func TestOverallConfidence(t *testing.T) {
	tests := []struct {
		name     string
		conf     []float64
		errs     int
		warnings int
		ai       *models.AIValidation
		want     float64
	}{
		{"mean only", []float64{90, 80}, 0, 0, nil, 85},
		{"penalties", []float64{90, 80}, 1, 2, nil, 69},
		{"clamped at zero", []float64{20}, 3, 0, nil, 0},
		{"no fields", nil, 0, 0, nil, 0},
		{"blend", []float64{90}, 0, 0, &models.AIValidation{Used: true, Confidence: 40}, 80},
		{"unused review ignored", []float64{90}, 0, 0, &models.AIValidation{Confidence: 40}, 90},
		{"review cannot lift errors", []float64{90}, 1, 0, &models.AIValidation{Used: true, Confidence: 100}, 80},
		{"review can lower errors", []float64{90}, 1, 0, &models.AIValidation{Used: true, Confidence: 0}, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, OverallConfidence(tt.conf, tt.errs, tt.warnings, tt.ai), 0.0001)
		})
	}
}

func TestRoute_SpotCheckListsOnlyFlaggedFields(t *testing.T) {
	matches := []models.FieldMatch{
		field("personal.givenName", "Aisha", 96),
		field("personal.surname", "Khan", 95),
		field("personal.dateOfBirth", "1990-03-12", 75),
		field("passport.number", "N12O4567", 96),
	}
	issues := []models.ValidationIssue{warning("passport.number", validation.CodeCommonMistake)}

	result := testRouter().Route(Input{Matches: matches, Issues: issues})

	// (96+95+75+96)/4 - 3 = 87.5
	assert.InDelta(t, 87.5, result.OverallConfidence, 0.001)
	assert.Equal(t, models.StatusSpotCheck, result.Status)
	require.Len(t, result.ReviewItems, 2)
	assert.Equal(t, "personal.dateOfBirth", result.ReviewItems[0].FieldID)
	assert.Contains(t, result.ReviewItems[0].Reason, "low confidence")
	assert.Equal(t, "passport.number", result.ReviewItems[1].FieldID)
	require.Len(t, result.ReviewItems[1].Issues, 1)

	assert.Equal(t, "run-1", result.ID)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), result.CreatedAt)
	assert.Contains(t, result.RecommendedActions, "Review 1 warning(s)")
}

func TestRoute_ErrorsForceFullReview(t *testing.T) {
	matches := []models.FieldMatch{
		field("personal.givenName", "Aisha", 99),
		field("personal.surname", "", 99),
		unmatched("Favourite colour", "blue", 99),
	}
	issues := []models.ValidationIssue{failure("personal.surname", validation.CodeRequired)}
	ai := &models.AIValidation{Used: true, Confidence: 100}

	result := testRouter().Route(Input{Matches: matches, Issues: issues, AI: ai})

	assert.Equal(t, models.StatusFullReview, result.Status)
	assert.InDelta(t, 89.0, result.OverallConfidence, 0.001)
	assert.Len(t, result.ReviewItems, 3, "full review lists every field")
	assert.Contains(t, result.ReviewMessage, "1 error(s)")
	assert.Contains(t, result.RecommendedActions, "Fix 1 validation error(s) before submission")
	assert.Contains(t, result.RecommendedActions, "Map 1 unmatched field(s) by hand")

	stats := result.Statistics
	assert.Equal(t, 3, stats.TotalFields)
	assert.InDelta(t, 1.0/3, stats.AutoFillRate, 0.0001)
	assert.InDelta(t, 2.0/3, stats.Completeness, 0.0001)
	assert.InDelta(t, 1.0, stats.ReviewRate, 0.0001)
	assert.InDelta(t, 99.0, stats.AvgConfidence, 0.0001)
}

func TestRoute_IssueOnAbsentFieldIsListed(t *testing.T) {
	matches := []models.FieldMatch{field("personal.surname", "Khan", 95)}
	missing := models.ValidationIssue{
		FieldID:  models.StringPtr("passport.number"),
		Code:     validation.CodeMissingRequired,
		Severity: models.SeverityError,
		Source:   models.SourceTier2,
	}

	result := testRouter().Route(Input{Matches: matches, Issues: []models.ValidationIssue{missing}})

	assert.Equal(t, models.StatusFullReview, result.Status)
	require.Len(t, result.ReviewItems, 2)
	assert.Equal(t, "personal.surname", result.ReviewItems[0].FieldID)

	item := result.ReviewItems[1]
	assert.Equal(t, "passport.number", item.FieldID)
	assert.Equal(t, "Number", item.Label)
	assert.Empty(t, item.Value)
	assert.Zero(t, item.Confidence)
	assert.Equal(t, "missing", item.Reason)
	require.Len(t, item.Issues, 1)
	assert.Equal(t, validation.CodeMissingRequired, item.Issues[0].Code)

	assert.InDelta(t, 1.0, result.Statistics.ReviewRate, 0.0001)
}

func TestRoute_AutoApproved(t *testing.T) {
	matches := []models.FieldMatch{
		field("personal.givenName", "Aisha", 97),
		field("personal.surname", "Khan", 95),
	}
	result := testRouter().Route(Input{
		Matches:    matches,
		Extraction: &models.ExtractionResult{OverallConfidence: 96, ExtractionMethod: models.MethodStructured},
		AI:         &models.AIValidation{SkippedReason: "no errors, confident extraction and no opt-in"},
	})

	assert.Equal(t, models.StatusAutoApproved, result.Status)
	assert.Empty(t, result.ReviewItems)
	assert.Equal(t, []string{"Submit the application"}, result.RecommendedActions)
	assert.Equal(t, models.MethodStructured, result.ExtractionMethod)
}

func TestRoute_DegradedPathsAreReported(t *testing.T) {
	matches := []models.FieldMatch{field("personal.surname", "Khan", 98)}
	issues := []models.ValidationIssue{
		{Code: validation.CodeRuleMissing, Message: "no rules", Severity: models.SeverityWarning, Source: models.SourceTier2},
	}
	result := testRouter().Route(Input{
		Matches: matches,
		Issues:  issues,
		AI:      &models.AIValidation{Unavailable: true, SkippedReason: "semantic review timed out"},
		Extraction: &models.ExtractionResult{
			OverallConfidence: 62,
			LowConfidence:     true,
			FallbackUsed:      true,
			ExtractionMethod:  models.MethodGenerative,
		},
		Warnings: []string{"CRITICAL: Previously deported: selected"},
	})

	assert.Equal(t, models.StatusFullReview, result.Status)
	joined := fmt.Sprint(result.RecommendedActions)
	assert.Contains(t, joined, "Extraction confidence was low")
	assert.Contains(t, joined, "generative_vision backend")
	assert.Contains(t, joined, "generic rules were applied")
	assert.Contains(t, joined, "critical declaration")
	assert.Contains(t, joined, "Semantic review was unavailable")
}

func TestRoute_Deterministic(t *testing.T) {
	in := Input{
		Matches: []models.FieldMatch{field("personal.surname", "Khan", 81), field("personal.givenName", "Aisha", 77)},
		Issues:  []models.ValidationIssue{warning("personal.surname", validation.CodeCrossField)},
	}
	r := testRouter()
	first := r.Route(in)
	second := r.Route(in)

	assert.Equal(t, first.OverallConfidence, second.OverallConfidence)
	assert.Equal(t, first.ReviewItems, second.ReviewItems)
	assert.Equal(t, first.Statistics, second.Statistics)
	assert.NotEqual(t, first.ID, second.ID)
}
