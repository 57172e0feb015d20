package models

import "time"

// ValueSource records where a populated value came from.
type ValueSource string

const (
	ValueFromExtraction ValueSource = "extracted"
	ValueFromProfile    ValueSource = "profile"
)

// FieldMatch is the result of matching one extracted field against the canonical schema.
type FieldMatch struct {
	ExtractedField *ExtractedField `json:"extracted_field"`

	// CanonicalPath is nil when no canonical field scored above the acceptance threshold.
	CanonicalPath *string `json:"canonical_path"`
	// Field is the canonical identifier, empty when unmatched.
	Field string `json:"field,omitempty"`

	MatchConfidence float64     `json:"match_confidence"` // 0-1
	PopulatedValue  string      `json:"populated_value"`
	ValueSource     ValueSource `json:"value_source"`
}

// Matched reports whether the field was resolved to a canonical path.
func (m FieldMatch) Matched() bool {
	return m.CanonicalPath != nil
}

// Key returns the identifier used to attach issues to this field.
func (m FieldMatch) Key() string {
	if m.Field != "" {
		return m.Field
	}
	if m.ExtractedField != nil {
		return m.ExtractedField.Label
	}
	return ""
}

// Severity is the severity of a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// IssueSource is the validation tier that produced an issue.
type IssueSource string

const (
	SourceTier1 IssueSource = "tier1"
	SourceTier2 IssueSource = "tier2"
	SourceTier3 IssueSource = "tier3"
)

// ValidationIssue is a single finding from one validation tier.
type ValidationIssue struct {
	FieldID  *string     `json:"field_id"` // nil for form-wide issues
	Code     string      `json:"code"`
	Message  string      `json:"message"`
	Severity Severity    `json:"severity"`
	Source   IssueSource `json:"source"`
}

// FieldKey returns the issue's field id or "" for form-wide issues.
func (i ValidationIssue) FieldKey() string {
	if i.FieldID == nil {
		return ""
	}
	return *i.FieldID
}

// Contradiction is a cross-field inconsistency reported by semantic review.
type Contradiction struct {
	Fields  []string `json:"fields"`
	Message string   `json:"message"`
}

// AIValidation is the advisory outcome of the semantic review tier.
type AIValidation struct {
	Used           bool            `json:"used"`
	Confidence     float64         `json:"confidence"` // 0-100
	Suggestions    []string        `json:"suggestions,omitempty"`
	Contradictions []Contradiction `json:"contradictions,omitempty"`
	Implausible    []string        `json:"implausible,omitempty"`
	SkippedReason  string          `json:"skipped_reason,omitempty"`
	// Unavailable is set when review was attempted and failed.
	Unavailable bool `json:"unavailable,omitempty"`
}

// Status is the disposition of a processing run.
type Status string

const (
	StatusAutoApproved Status = "auto_approved"
	StatusSpotCheck    Status = "spot_check"
	StatusFullReview   Status = "full_review"
)

// ReviewItem is a field that requires human attention.
type ReviewItem struct {
	FieldID    string            `json:"field_id"`
	Label      string            `json:"label"`
	Value      string            `json:"value"`
	Confidence float64           `json:"confidence"`
	Reason     string            `json:"reason"`
	Issues     []ValidationIssue `json:"issues,omitempty"`
}

// Statistics are simple ratios over the field set of a run.
type Statistics struct {
	TotalFields   int     `json:"total_fields"`
	AutoFillRate  float64 `json:"auto_fill_rate"`
	ReviewRate    float64 `json:"review_rate"`
	AvgConfidence float64 `json:"avg_confidence"`
	Completeness  float64 `json:"completeness"`
}

// ProcessingResult is the terminal artifact of a pipeline run.
type ProcessingResult struct {
	ID                 string            `json:"id"`
	CreatedAt          time.Time         `json:"created_at"`
	OverallConfidence  float64           `json:"overall_confidence"`
	Status             Status            `json:"status"`
	ReviewItems        []ReviewItem      `json:"review_items"`
	Issues             []ValidationIssue `json:"issues"`
	Statistics         Statistics        `json:"statistics"`
	ReviewMessage      string            `json:"review_message"`
	RecommendedActions []string          `json:"recommended_actions"`
	AIValidation       *AIValidation     `json:"ai_validation,omitempty"`
	Warnings           []string          `json:"warnings,omitempty"`
	ExtractionMethod   ExtractionMethod  `json:"extraction_method,omitempty"`
}

// IssueCounts returns the number of issues per severity.
func (r *ProcessingResult) IssueCounts() (errs, warnings, infos int) {
	for _, is := range r.Issues {
		switch is.Severity {
		case SeverityError:
			errs++
		case SeverityWarning:
			warnings++
		case SeverityInfo:
			infos++
		}
	}
	return errs, warnings, infos
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
