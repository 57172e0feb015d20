package models

import "time"

// FieldType is the declared type of a detected form field.
type FieldType string

const (
	FieldTypeText      FieldType = "text"
	FieldTypeDate      FieldType = "date"
	FieldTypeNumber    FieldType = "number"
	FieldTypeCheckbox  FieldType = "checkbox"
	FieldTypeSignature FieldType = "signature"
)

// ExtractedField is one detected form field. Fields are created once per
// extraction call and never mutated; enrichment stages produce copies.
type ExtractedField struct {
	Label      string    `json:"label"`      // Raw label as printed on the form
	Value      string    `json:"value"`      // Raw extracted text
	Type       FieldType `json:"type"`       // text, date, number, checkbox, signature
	Confidence float64   `json:"confidence"` // 0-100
	PageIndex  int       `json:"page_index"`
}

// TableCell is a single cell of an extracted table. Row 0 is the header row.
type TableCell struct {
	RowIndex    int    `json:"row_index"`
	ColumnIndex int    `json:"column_index"`
	Content     string `json:"content"`
}

// ExtractedTable is a grid of cells detected on a page.
type ExtractedTable struct {
	PageIndex int         `json:"page_index"`
	Cells     []TableCell `json:"cells"`
}

// Rows returns the table as a dense row-major grid. Missing cells are empty strings.
func (t ExtractedTable) Rows() [][]string {
	var maxRow, maxCol int
	for _, c := range t.Cells {
		if c.RowIndex+1 > maxRow {
			maxRow = c.RowIndex + 1
		}
		if c.ColumnIndex+1 > maxCol {
			maxCol = c.ColumnIndex + 1
		}
	}
	rows := make([][]string, maxRow)
	for i := range rows {
		rows[i] = make([]string, maxCol)
	}
	for _, c := range t.Cells {
		if c.RowIndex < 0 || c.ColumnIndex < 0 {
			continue
		}
		rows[c.RowIndex][c.ColumnIndex] = c.Content
	}
	return rows
}

// SelectionMark is a detected checkbox or radio mark that was not paired with a label.
type SelectionMark struct {
	State      string  `json:"state"` // selected, unselected
	Confidence float64 `json:"confidence"`
	PageIndex  int     `json:"page_index"`
}

// Barcode is a detected barcode or machine-readable zone.
type Barcode struct {
	Format    string `json:"format"`
	Value     string `json:"value"`
	PageIndex int    `json:"page_index"`
}

// LanguageDetection is a detected language with its confidence (0.0 to 1.0).
type LanguageDetection struct {
	Code       string  `json:"code"` // BCP-47 code, e.g. "en", "en-GB", "ar"
	Confidence float64 `json:"confidence"`
}

// ExtractionMethod identifies the backend that produced an extraction result.
type ExtractionMethod string

const (
	MethodStructured ExtractionMethod = "structured"
	MethodGenerative ExtractionMethod = "generative_vision"
)

// ExtractionResult is the output of the document router.
type ExtractionResult struct {
	Fields            []ExtractedField    `json:"fields"`
	Tables            []ExtractedTable    `json:"tables,omitempty"`
	SelectionMarks    []SelectionMark     `json:"selection_marks,omitempty"`
	Barcodes          []Barcode           `json:"barcodes,omitempty"`
	Languages         []LanguageDetection `json:"languages,omitempty"`
	PageCount         int                 `json:"page_count"`
	OverallConfidence float64             `json:"overall_confidence"` // 0-100

	ExtractionMethod ExtractionMethod `json:"extraction_method"`
	ProcessingTime   time.Duration    `json:"processing_time"`

	// LowConfidence is set when the final result is still below the router
	// threshold after the fallback attempt.
	LowConfidence bool     `json:"low_confidence"`
	FallbackUsed  bool     `json:"fallback_used"`
	Attempts      []string `json:"attempts,omitempty"`
}

// AverageFieldConfidence returns the mean confidence of the result's fields, or 0 when empty.
func (r *ExtractionResult) AverageFieldConfidence() float64 {
	if r == nil || len(r.Fields) == 0 {
		return 0
	}
	var sum float64
	for _, f := range r.Fields {
		sum += f.Confidence
	}
	return sum / float64(len(r.Fields))
}
