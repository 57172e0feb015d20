// Package report turns batch outcomes into summary rows and XLSX workbooks.
// Rows carry counts and dispositions only, never field values.
package report

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"formintel/internal/pipeline"
	"formintel/pkg/models"
)

// Headers are the column titles shared by the workbook and the Google Sheet.
var Headers = []string{
	"Document", "Status", "Confidence", "Method", "Fallback", "Fields",
	"Review Items", "Errors", "Warnings", "Auto-fill Rate", "Completeness",
	"AI Review", "Notes", "Processed At",
}

// Row is one summarized document.
type Row struct {
	Document     string
	Status       string
	Confidence   float64
	Method       string
	Fallback     bool
	Fields       int
	ReviewItems  int
	Errors       int
	Warnings     int
	AutoFillRate float64
	Completeness float64
	AIReview     string
	Notes        string
	ProcessedAt  string
}

// Values returns the row in Headers order.
func (r Row) Values() []any {
	return []any{
		r.Document,     // A
		r.Status,       // B
		r.Confidence,   // C
		r.Method,       // D
		r.Fallback,     // E
		r.Fields,       // F
		r.ReviewItems,  // G
		r.Errors,       // H
		r.Warnings,     // I
		r.AutoFillRate, // J
		r.Completeness, // K
		r.AIReview,     // L
		r.Notes,        // M
		r.ProcessedAt,  // N
	}
}

// Rows summarizes batch items in input order.
func Rows(items []pipeline.BatchItem, processedAt time.Time) []Row {
	stamp := processedAt.Format("2006-01-02 15:04:05")
	rows := make([]Row, 0, len(items))
	for _, it := range items {
		row := Row{Document: it.Document, ProcessedAt: stamp}

		switch {
		case it.Outcome == nil:
			row.Status = "failed"
			row.Notes = errorNote(it.Err)
		case it.Outcome.Result == nil:
			row.Status = "partial"
			row.Notes = errorNote(it.Err)
			if ex := it.Outcome.Extraction; ex != nil {
				row.Method = string(ex.ExtractionMethod)
				row.Fallback = ex.FallbackUsed
				row.Fields = len(ex.Fields)
				row.Confidence = round(ex.OverallConfidence)
			}
		default:
			res := it.Outcome.Result
			errs, warnings, _ := res.IssueCounts()
			row.Status = string(res.Status)
			row.Confidence = round(res.OverallConfidence)
			row.Method = string(res.ExtractionMethod)
			row.Fields = res.Statistics.TotalFields
			row.ReviewItems = len(res.ReviewItems)
			row.Errors = errs
			row.Warnings = warnings
			row.AutoFillRate = round(res.Statistics.AutoFillRate * 100)
			row.Completeness = round(res.Statistics.Completeness * 100)
			row.AIReview = aiReview(res.AIValidation)
			row.Notes = res.ReviewMessage
			if ex := it.Outcome.Extraction; ex != nil {
				row.Fallback = ex.FallbackUsed
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func errorNote(err error) string {
	if err == nil {
		return ""
	}
	return "Error: " + err.Error()
}

func aiReview(ai *models.AIValidation) string {
	switch {
	case ai == nil:
		return ""
	case ai.Used:
		return fmt.Sprintf("used (%.0f%%)", ai.Confidence)
	case ai.Unavailable:
		return "unavailable"
	default:
		return "skipped"
	}
}

func round(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}

const sheetName = "Batch"

// WriteXLSX writes the rows as a workbook with a header row and a totals sheet.
func WriteXLSX(w io.Writer, rows []Row, summary pipeline.Summary) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	idx, err := f.GetSheetIndex(sheetName)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E6E6E6"}},
	})
	if err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(Headers))
	if err := f.SetCellStyle(sheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return err
	}

	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		values := row.Values()
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", r+2, err)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 32) // document
	_ = f.SetColWidth(sheetName, "B", "D", 16)
	_ = f.SetColWidth(sheetName, "M", "M", 60) // notes
	_ = f.SetColWidth(sheetName, "N", "N", 20)
	_ = f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	const totals = "Totals"
	if _, err := f.NewSheet(totals); err != nil {
		return err
	}
	for i, kv := range [][]any{
		{"Documents", summary.Total},
		{"Auto-approved", summary.AutoApproved},
		{"Spot check", summary.SpotCheck},
		{"Full review", summary.FullReview},
		{"Partial", summary.Partial},
		{"Failed", summary.Failed},
	} {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(totals, cell, &kv); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// XLSX returns the workbook bytes.
func XLSX(rows []Row, summary pipeline.Summary) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, rows, summary); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
