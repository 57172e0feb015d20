package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formintel/pkg/models"
)

type fakeBackend struct {
	method     models.ExtractionMethod
	confidence float64
	err        error
	block      bool
	calls      int
}

func (f *fakeBackend) Method() models.ExtractionMethod { return f.method }

func (f *fakeBackend) Extract(ctx context.Context, pdf []byte, hint string) (*models.ExtractionResult, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.ExtractionResult{
		Fields:            []models.ExtractedField{{Label: "Surname", Value: "Khan", Confidence: f.confidence}},
		OverallConfidence: f.confidence,
	}, nil
}

type fakeAssessor struct {
	report *QualityReport
	err    error
}

func (f fakeAssessor) Assess(ctx context.Context, document []byte) (*QualityReport, error) {
	return f.report, f.err
}

var cleanReport = &QualityReport{Readable: true, PageCount: 2, TextChars: 900, Clarity: ClarityDigital}

func newBackends(structuredConf, generativeConf float64) (*fakeBackend, *fakeBackend) {
	return &fakeBackend{method: models.MethodStructured, confidence: structuredConf},
		&fakeBackend{method: models.MethodGenerative, confidence: generativeConf}
}

func TestExtract_PrimaryAboveThreshold(t *testing.T) {
	structured, generative := newBackends(92, 80)
	r := New(structured, generative, fakeAssessor{report: cleanReport}, Config{})

	result, err := r.Extract(context.Background(), []byte("%PDF"), "")
	require.NoError(t, err)

	assert.Equal(t, 1, structured.calls)
	assert.Equal(t, 0, generative.calls)
	assert.Equal(t, models.MethodStructured, result.ExtractionMethod)
	assert.False(t, result.FallbackUsed)
	assert.False(t, result.LowConfidence)
}

func TestExtract_FallbackOnLowConfidence(t *testing.T) {
	structured, generative := newBackends(55, 84)
	r := New(structured, generative, fakeAssessor{report: cleanReport}, Config{})

	result, err := r.Extract(context.Background(), []byte("%PDF"), "")
	require.NoError(t, err)

	assert.Equal(t, 1, structured.calls)
	assert.Equal(t, 1, generative.calls)
	assert.Equal(t, models.MethodGenerative, result.ExtractionMethod)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, []string{"structured", "generative_vision"}, result.Attempts)
}

func TestExtract_NeverRetriesTwice(t *testing.T) {
	structured, generative := newBackends(55, 40)
	r := New(structured, generative, fakeAssessor{report: cleanReport}, Config{})

	result, err := r.Extract(context.Background(), []byte("%PDF"), "")
	require.NoError(t, err)

	assert.Equal(t, 1, structured.calls)
	assert.Equal(t, 1, generative.calls)
	assert.True(t, result.LowConfidence)
}

func TestExtract_FallbackOnError(t *testing.T) {
	structured, generative := newBackends(0, 88)
	structured.err = errors.New("service down")
	r := New(structured, generative, fakeAssessor{report: cleanReport}, Config{})

	result, err := r.Extract(context.Background(), []byte("%PDF"), "")
	require.NoError(t, err)
	assert.Equal(t, models.MethodGenerative, result.ExtractionMethod)
}

func TestExtract_KeepsPrimaryWhenFallbackFails(t *testing.T) {
	structured, generative := newBackends(60, 0)
	generative.err = errors.New("quota")
	r := New(structured, generative, fakeAssessor{report: cleanReport}, Config{})

	result, err := r.Extract(context.Background(), []byte("%PDF"), "")
	require.NoError(t, err)
	assert.Equal(t, models.MethodStructured, result.ExtractionMethod)
	assert.True(t, result.LowConfidence)
	assert.False(t, result.FallbackUsed)
}

func TestExtract_BothFail(t *testing.T) {
	primaryErr := errors.New("structured down")
	fallbackErr := errors.New("generative down")
	structured, generative := newBackends(0, 0)
	structured.err = primaryErr
	generative.err = fallbackErr
	r := New(structured, generative, fakeAssessor{report: cleanReport}, Config{})

	_, err := r.Extract(context.Background(), []byte("%PDF"), "")
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrExtractionUnavailable)
	assert.ErrorIs(t, err, primaryErr)
	assert.ErrorIs(t, err, fallbackErr)

	var unavailable *ExtractionUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, primaryErr, unavailable.Primary)
	assert.Equal(t, fallbackErr, unavailable.Fallback)
}

func TestExtract_UnreadableBeforeAnyBackend(t *testing.T) {
	structured, generative := newBackends(90, 90)
	r := New(structured, generative, fakeAssessor{report: &QualityReport{Reason: "corrupt xref"}}, Config{})

	_, err := r.Extract(context.Background(), []byte("garbage"), "")
	assert.ErrorIs(t, err, ErrDocumentUnreadable)
	assert.Equal(t, 0, structured.calls)
	assert.Equal(t, 0, generative.calls)
}

func TestExtract_HintPrefersGenerative(t *testing.T) {
	tests := []struct {
		hint           string
		wantGenerative bool
	}{
		{"handwritten visa form", true},
		{"scanned", true},
		{"Scan of passport page", true},
		{"low-quality fax", true},
		{"typed", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			structured, generative := newBackends(90, 90)
			r := New(structured, generative, fakeAssessor{report: cleanReport}, Config{})

			result, err := r.Extract(context.Background(), []byte("%PDF"), tt.hint)
			require.NoError(t, err)
			if tt.wantGenerative {
				assert.Equal(t, 0, structured.calls)
				assert.Equal(t, 1, generative.calls)
				assert.Equal(t, models.MethodGenerative, result.ExtractionMethod)
			} else {
				assert.Equal(t, 1, structured.calls)
				assert.Equal(t, 0, generative.calls)
				assert.Equal(t, models.MethodStructured, result.ExtractionMethod)
			}
		})
	}
}

func TestExtract_PoorScanPrefersGenerative(t *testing.T) {
	structured, generative := newBackends(90, 90)
	poor := &QualityReport{Readable: true, PageCount: 1, Clarity: ClarityPoor}
	r := New(structured, generative, fakeAssessor{report: poor}, Config{})

	_, err := r.Extract(context.Background(), []byte("%PDF"), "")
	require.NoError(t, err)
	assert.Equal(t, 1, generative.calls)
	assert.Equal(t, 0, structured.calls)
}

func TestExtract_TimeoutIsDistinct(t *testing.T) {
	structured, generative := newBackends(0, 0)
	structured.block = true
	generative.block = true
	r := New(structured, generative, fakeAssessor{report: cleanReport}, Config{Timeout: 10 * time.Millisecond})

	_, err := r.Extract(context.Background(), []byte("%PDF"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionTimeout)
	assert.ErrorIs(t, err, ErrExtractionUnavailable)
}

func TestExtract_CallerCancellation(t *testing.T) {
	structured, generative := newBackends(0, 90)
	structured.block = true
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	r := New(structured, generative, fakeAssessor{report: cleanReport}, Config{Timeout: time.Minute})
	_, err := r.Extract(ctx, []byte("%PDF"), "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, generative.calls)
}

func TestPDFAssessor_RejectsGarbage(t *testing.T) {
	a := NewPDFAssessor()

	report, err := a.Assess(context.Background(), []byte("not a pdf at all"))
	require.NoError(t, err)
	assert.False(t, report.Readable)

	report, err = a.Assess(context.Background(), []byte("%PDF-1.4\ntruncated"))
	require.NoError(t, err)
	assert.False(t, report.Readable)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClarityDigital, classify(500, 10_000, 1))
	assert.Equal(t, ClarityPoor, classify(0, 10_000, 1))
	assert.Equal(t, ClarityScanned, classify(0, 900_000, 2))
}
