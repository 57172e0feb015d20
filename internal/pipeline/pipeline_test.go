package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formintel/internal/history"
	"formintel/internal/matcher"
	"formintel/internal/review"
	"formintel/internal/router"
	"formintel/internal/validation"
	"formintel/pkg/models"
)

var fixedNow = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

func cleanExtraction() *models.ExtractionResult {
	fields := []models.ExtractedField{
		{Label: "Surname", Value: "Khan", Type: models.FieldTypeText, Confidence: 96},
		{Label: "Given Name", Value: "Aisha", Type: models.FieldTypeText, Confidence: 96},
		{Label: "Date of Birth", Value: "12/03/1990", Type: models.FieldTypeDate, Confidence: 96},
		{Label: "Nationality", Value: "IN", Type: models.FieldTypeText, Confidence: 96},
		{Label: "Passport No", Value: "N1234567", Type: models.FieldTypeText, Confidence: 96},
		{Label: "Passport Expiry Date", Value: "2030-01-31", Type: models.FieldTypeDate, Confidence: 96},
	}
	return &models.ExtractionResult{
		Fields:            fields,
		Languages:         []models.LanguageDetection{{Code: "en", Confidence: 0.95}},
		PageCount:         1,
		OverallConfidence: 96,
		ExtractionMethod:  models.MethodStructured,
	}
}

type fakeExtractor struct {
	result  *models.ExtractionResult
	err     error
	onCall  func()
	delay   time.Duration
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakeExtractor) Extract(ctx context.Context, document []byte, hint string) (*models.ExtractionResult, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.onCall != nil {
		f.onCall()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if string(document) == "%PDF broken" {
		return nil, &router.UnreadableError{Reason: "no pages"}
	}
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.result
	return &copied, nil
}

type fakeValidator struct {
	report *validation.Report
	err    error
}

func (f *fakeValidator) Validate(ctx context.Context, in validation.Input) (*validation.Report, error) {
	return f.report, f.err
}

type memoryRecorder struct {
	mu   sync.Mutex
	runs []history.Run
}

func (m *memoryRecorder) Record(ctx context.Context, run history.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func newPipeline(t *testing.T, ex Extractor, v Validator, opts ...Option) *Pipeline {
	t.Helper()
	if v == nil {
		engine, err := validation.NewDefaultEngine(fixedNow, nil, validation.EngineConfig{SoftFail: true})
		require.NoError(t, err)
		v = engine
	}
	return New(ex, matcher.New(0), v, review.New(), Config{GulfDefaultCountry: "AE"}, opts...)
}

func TestProcess(t *testing.T) {
	rec := &memoryRecorder{}
	p := newPipeline(t, &fakeExtractor{result: cleanExtraction()}, nil, WithRecorder(rec))

	out, err := p.Process(context.Background(), Document{Name: "visa.pdf", Data: []byte("%PDF clean")})
	require.NoError(t, err)

	assert.False(t, out.Partial)
	assert.Equal(t, "US", out.Enrichment.InferredCountry)
	require.Len(t, out.Matches, 6)
	for _, m := range out.Matches {
		assert.True(t, m.Matched(), "%s unmatched", m.ExtractedField.Label)
	}
	assert.Empty(t, out.Validation.Issues)
	require.NotNil(t, out.Result)
	assert.Equal(t, models.StatusAutoApproved, out.Result.Status)
	assert.Equal(t, models.MethodStructured, out.Result.ExtractionMethod)

	require.Len(t, rec.runs, 1)
	assert.Equal(t, out.Result.ID, rec.runs[0].ID)
	assert.Equal(t, out.Fingerprint, rec.runs[0].Fingerprint)
}

func TestProcess_ExtractionFailureAborts(t *testing.T) {
	p := newPipeline(t, &fakeExtractor{err: &router.ExtractionUnavailableError{Primary: errors.New("a"), Fallback: errors.New("b")}}, nil)

	out, err := p.Process(context.Background(), Document{Name: "visa.pdf", Data: []byte("%PDF x")})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, router.ErrExtractionUnavailable)
}

func TestProcess_CancelledAfterExtraction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := newPipeline(t, &fakeExtractor{result: cleanExtraction(), onCall: cancel}, nil)

	out, err := p.Process(ctx, Document{Name: "visa.pdf", Data: []byte("%PDF x")})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, out)
	assert.True(t, out.Partial)
	require.NotNil(t, out.Extraction)
	assert.Len(t, out.Extraction.Fields, 6)
	assert.Nil(t, out.Result)
}

func TestProcess_StrictSemanticFailureKeepsValidation(t *testing.T) {
	report := &validation.Report{Issues: []models.ValidationIssue{{Code: validation.CodeRequired, Severity: models.SeverityError}}}
	v := &fakeValidator{report: report, err: fmt.Errorf("%w: boom", validation.ErrAIValidationUnavailable)}
	p := newPipeline(t, &fakeExtractor{result: cleanExtraction()}, v)

	out, err := p.Process(context.Background(), Document{Name: "visa.pdf", Data: []byte("%PDF x")})
	assert.ErrorIs(t, err, validation.ErrAIValidationUnavailable)
	require.NotNil(t, out)
	assert.True(t, out.Partial)
	assert.Same(t, report, out.Validation)
}

func TestProcess_CriticalSelectionsReachValidation(t *testing.T) {
	extraction := cleanExtraction()
	extraction.Fields = append(extraction.Fields, models.ExtractedField{
		Label: "Have you ever been deported?", Value: "☑", Type: models.FieldTypeCheckbox, Confidence: 96,
	})
	p := newPipeline(t, &fakeExtractor{result: extraction}, nil)

	out, err := p.Process(context.Background(), Document{Name: "visa.pdf", Data: []byte("%PDF x")})
	require.NoError(t, err)

	var found bool
	for _, is := range out.Validation.Issues {
		if is.Code == validation.CodeCriticalDeclaration {
			found = true
		}
	}
	assert.True(t, found)
	assert.NotEmpty(t, out.Result.Warnings)
	assert.Contains(t, out.Result.RecommendedActions, "Confirm every critical declaration with the applicant")
}

func TestProcessBatch(t *testing.T) {
	ex := &fakeExtractor{result: cleanExtraction(), delay: 10 * time.Millisecond}
	p := newPipeline(t, ex, nil)

	docs := make([]Document, 6)
	for i := range docs {
		docs[i] = Document{Name: fmt.Sprintf("doc-%d.pdf", i), Data: []byte(fmt.Sprintf("%%PDF %d", i))}
	}
	docs[3].Data = []byte("%PDF broken")

	items := p.ProcessBatch(context.Background(), docs, 2)
	require.Len(t, items, 6)
	for i, it := range items {
		assert.Equal(t, docs[i].Name, it.Document)
	}
	assert.ErrorIs(t, items[3].Err, router.ErrDocumentUnreadable)
	assert.Nil(t, items[3].Outcome)
	assert.LessOrEqual(t, ex.maxSeen.Load(), int32(2))

	s := Summarize(items)
	assert.Equal(t, Summary{Total: 6, Failed: 1, AutoApproved: 5}, s)
}

func TestDateLocale(t *testing.T) {
	assert.Equal(t, "DE", dateLocale("DE", "US"))
	assert.Equal(t, "US", dateLocale("", "US"))
}
