// Package extraction provides the document extraction backends used by the
// form pipeline.
//
// Two interchangeable backends implement Backend:
//   - DocumentAIBackend: Google Document AI Form Parser. Fast and cheap, strong on
//     printed forms. Returns key/value pairs, checkboxes, tables, barcodes and
//     detected languages.
//   - VisionLLMBackend: Google Cloud Vision document text detection followed by an
//     OpenAI chat model that structures the text into fields. Slower and costlier,
//     better on low-quality scans and handwriting.
//
// Required Environment Variables:
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//   - GOOGLE_CLOUD_PROJECT, GOOGLE_CLOUD_LOCATION, DOCUMENT_AI_PROCESSOR_ID
//   - OPENAI_API_KEY (generative backend only)
//
// API Limitations:
//   - Maximum file size: 20MB for synchronous processing
//   - Cloud Vision synchronous file annotation handles at most 5 pages
package extraction

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"formintel/pkg/models"
)

const (
	// MaxDocumentSizeBytes is the maximum document size for synchronous processing (20MB)
	MaxDocumentSizeBytes = 20 * 1024 * 1024
)

// Backend is the common contract of the extraction services.
type Backend interface {
	// Method identifies the backend in results and logs.
	Method() models.ExtractionMethod

	// Extract returns the fields, tables, marks and barcodes detected in a PDF.
	// Confidence values are on a 0-100 scale. Implementations must honor ctx.
	Extract(ctx context.Context, pdf []byte, documentTypeHint string) (*models.ExtractionResult, error)
}

// CheckPDF performs the cheap structural checks shared by all backends.
func CheckPDF(backend, op string, pdf []byte) error {
	if len(pdf) > MaxDocumentSizeBytes {
		return WrapExtractionError(backend, op, ErrDocumentTooLarge, "file size: "+strconv.Itoa(len(pdf))+" bytes")
	}
	if len(pdf) < 4 || string(pdf[:4]) != "%PDF" {
		return WrapExtractionError(backend, op, ErrInvalidPDF, "missing PDF header")
	}
	return nil
}

var (
	reNumeric   = regexp.MustCompile(`^[+-]?\d{1,3}([,.\s]?\d{3})*([.,]\d+)?$`)
	reDateValue = regexp.MustCompile(`^\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}$`)
)

var dateLabelHints = []string{"date", "dob", "birth", "expiry", "expiration", "expires", "issued", "valid until", "arrival", "departure"}

// LabelSuggestsDate reports whether a field label names a date.
func LabelSuggestsDate(label string) bool {
	l := strings.ToLower(label)
	for _, hint := range dateLabelHints {
		if strings.Contains(l, hint) {
			return true
		}
	}
	return false
}

// InferFieldType guesses the field type from its label and value when the
// backend does not declare one.
func InferFieldType(label, value string) models.FieldType {
	l := strings.ToLower(label)
	v := strings.TrimSpace(value)
	switch {
	case strings.Contains(l, "signature") || strings.Contains(l, "signed"):
		return models.FieldTypeSignature
	case LabelSuggestsDate(l) || reDateValue.MatchString(v):
		return models.FieldTypeDate
	case v != "" && reNumeric.MatchString(v) && !strings.Contains(l, "phone") && !strings.Contains(l, "passport"):
		return models.FieldTypeNumber
	default:
		return models.FieldTypeText
	}
}

// MeanConfidence averages field confidences; an empty set scores zero.
func MeanConfidence(fields []models.ExtractedField) float64 {
	if len(fields) == 0 {
		return 0
	}
	var sum float64
	for _, f := range fields {
		sum += f.Confidence
	}
	return sum / float64(len(fields))
}

// stamp sets the method and timing on a backend result.
func stamp(result *models.ExtractionResult, method models.ExtractionMethod, start time.Time) *models.ExtractionResult {
	result.ExtractionMethod = method
	result.ProcessingTime = time.Since(start)
	return result
}
