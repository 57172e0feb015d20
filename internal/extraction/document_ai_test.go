package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"formintel/pkg/models"
)

// docBuilder appends text to a document and returns layouts anchored to it.
type docBuilder struct {
	text strings.Builder
}

func (d *docBuilder) layout(s string, conf float32) *documentaipb.Document_Page_Layout {
	start := int64(d.text.Len())
	d.text.WriteString(s)
	end := int64(d.text.Len())
	d.text.WriteString("\n")
	return &documentaipb.Document_Page_Layout{
		Confidence: conf,
		TextAnchor: &documentaipb.Document_TextAnchor{
			TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{{StartIndex: start, EndIndex: end}},
		},
	}
}

func TestConvertDocument(t *testing.T) {
	var b docBuilder
	page := &documentaipb.Document_Page{
		FormFields: []*documentaipb.Document_Page_FormField{
			{FieldName: b.layout("Surname:", 0.98), FieldValue: b.layout("  AL   MANSOORI ", 0.91)},
			{FieldName: b.layout("Date of Birth", 0.97), FieldValue: b.layout("12/03/1990", 0.88)},
			{FieldName: b.layout("Married", 0.95), FieldValue: b.layout("☑", 0.93), ValueType: "filled_checkbox"},
			{FieldName: b.layout("", 0.5), FieldValue: b.layout("orphan", 0.5)},
		},
		Tables: []*documentaipb.Document_Page_Table{
			{
				HeaderRows: []*documentaipb.Document_Page_Table_TableRow{
					{Cells: []*documentaipb.Document_Page_Table_TableCell{
						{Layout: b.layout("Name", 0.9)},
						{Layout: b.layout("Relationship", 0.9)},
					}},
				},
				BodyRows: []*documentaipb.Document_Page_Table_TableRow{
					{Cells: []*documentaipb.Document_Page_Table_TableCell{
						{Layout: b.layout("Sara", 0.9)},
						{Layout: b.layout("Spouse", 0.9)},
					}},
				},
			},
		},
		VisualElements: []*documentaipb.Document_Page_VisualElement{
			{Type: "unfilled_checkbox", Layout: &documentaipb.Document_Page_Layout{Confidence: 0.8}},
			{Type: "math_formula"},
		},
		DetectedBarcodes: []*documentaipb.Document_Page_DetectedBarcode{
			{Barcode: &documentaipb.Barcode{Format: "QR_CODE", RawValue: "P<ARE"}},
		},
		DetectedLanguages: []*documentaipb.Document_Page_DetectedLanguage{
			{LanguageCode: "en", Confidence: 0.9},
			{LanguageCode: "ar", Confidence: 0.4},
			{LanguageCode: "en", Confidence: 0.7},
		},
	}
	doc := &documentaipb.Document{Pages: []*documentaipb.Document_Page{page}}
	doc.Text = b.text.String()

	result := convertDocument(doc)

	require.Len(t, result.Fields, 3)
	assert.Equal(t, "Surname", result.Fields[0].Label)
	assert.Equal(t, "AL MANSOORI", result.Fields[0].Value)
	assert.InDelta(t, 91.0, result.Fields[0].Confidence, 0.01)
	assert.Equal(t, models.FieldTypeText, result.Fields[0].Type)

	assert.Equal(t, models.FieldTypeDate, result.Fields[1].Type)

	assert.Equal(t, models.FieldTypeCheckbox, result.Fields[2].Type)
	assert.Equal(t, "selected", result.Fields[2].Value)

	require.Len(t, result.Tables, 1)
	assert.Equal(t, [][]string{{"Name", "Relationship"}, {"Sara", "Spouse"}}, result.Tables[0].Rows())

	require.Len(t, result.SelectionMarks, 1)
	assert.Equal(t, "unselected", result.SelectionMarks[0].State)
	assert.InDelta(t, 80.0, result.SelectionMarks[0].Confidence, 0.01)

	require.Len(t, result.Barcodes, 1)
	assert.Equal(t, "QR_CODE", result.Barcodes[0].Format)

	require.Len(t, result.Languages, 2)
	assert.Equal(t, "en", result.Languages[0].Code)
	assert.InDelta(t, 0.9, result.Languages[0].Confidence, 0.001)

	assert.Equal(t, 1, result.PageCount)
	assert.InDelta(t, (91.0+88.0+93.0)/3, result.OverallConfidence, 0.01)
}

func TestConvertTable_ColSpan(t *testing.T) {
	var b docBuilder
	table := &documentaipb.Document_Page_Table{
		BodyRows: []*documentaipb.Document_Page_Table_TableRow{
			{Cells: []*documentaipb.Document_Page_Table_TableCell{
				{Layout: b.layout("Wide", 0.9), ColSpan: 2},
				{Layout: b.layout("Right", 0.9)},
			}},
		},
	}
	doc := &documentaipb.Document{Text: b.text.String()}

	out := convertTable(doc, table, 0)
	require.Len(t, out.Cells, 2)
	assert.Equal(t, 2, out.Cells[1].ColumnIndex)
}

func TestLayoutText_OutOfRange(t *testing.T) {
	doc := &documentaipb.Document{Text: "short"}
	layout := &documentaipb.Document_Page_Layout{
		TextAnchor: &documentaipb.Document_TextAnchor{
			TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{{StartIndex: 2, EndIndex: 50}},
		},
	}
	assert.Equal(t, "", layoutText(doc, layout))
	assert.Equal(t, "", layoutText(doc, nil))
}

func TestHandleProcessingError(t *testing.T) {
	b := &DocumentAIBackend{config: DocumentAIConfig{ProcessorID: "proc"}}

	tests := []struct {
		code codes.Code
		want error
	}{
		{codes.PermissionDenied, ErrMissingCredentials},
		{codes.ResourceExhausted, ErrQuotaExceeded},
		{codes.NotFound, ErrInvalidConfiguration},
		{codes.InvalidArgument, ErrInvalidPDF},
		{codes.DeadlineExceeded, context.DeadlineExceeded},
		{codes.Internal, ErrBackendFailed},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			err := b.handleProcessingError("Extract", status.Error(tt.code, "boom"))
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var extErr *ExtractionError
			require.ErrorAs(t, err, &extErr)
			assert.Equal(t, "structured", extErr.Backend)
		})
	}
}

func TestProcessorName(t *testing.T) {
	b := &DocumentAIBackend{config: DocumentAIConfig{ProjectID: "p", Location: "eu", ProcessorID: "x"}}
	assert.Equal(t, "projects/p/locations/eu/processors/x", b.processorName())

	b.config.ProcessorVersion = "v2"
	assert.Equal(t, "projects/p/locations/eu/processors/x/processorVersions/v2", b.processorName())
}
