// Package sheets appends batch summaries to a Google Sheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"formintel/internal/logger"
	"formintel/internal/report"
)

var reSpreadsheetID = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// ErrNoCredentials is returned when neither credential variable is set.
var ErrNoCredentials = errors.New("neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is set")

// Service writes batch summaries into one spreadsheet.
type Service struct {
	api           *sheets.Service
	spreadsheetID string
	log           zerolog.Logger
}

// NewSheetsService authenticates with a service account and binds to the spreadsheet behind sheetURL.
func NewSheetsService(ctx context.Context, sheetURL string) (*Service, error) {
	id, err := extractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, err
	}

	creds, err := serviceAccountJSON()
	if err != nil {
		return nil, err
	}
	jwt, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	api, err := sheets.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return newService(api, id), nil
}

func newService(api *sheets.Service, spreadsheetID string) *Service {
	s := &Service{api: api, spreadsheetID: spreadsheetID}
	s.log = logger.WithComponent("sheets").With().Str("spreadsheet_id", spreadsheetID).Logger()
	return s
}

// serviceAccountJSON prefers the credentials file over inline JSON.
func serviceAccountJSON() ([]byte, error) {
	if path := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		return data, nil
	}
	if inline := os.Getenv("GOOGLE_CREDENTIALS"); inline != "" {
		return []byte(inline), nil
	}
	return nil, ErrNoCredentials
}

func extractSpreadsheetID(url string) (string, error) {
	m := reSpreadsheetID.FindStringSubmatch(url)
	if m == nil {
		return "", fmt.Errorf("not a Google Sheets URL: %q", url)
	}
	return m[1], nil
}

func lastColumn() string {
	return string(rune('A' + len(report.Headers) - 1))
}

// WriteBatchRows appends rows to the worksheet, creating the worksheet and its header row on first use.
func (s *Service) WriteBatchRows(ctx context.Context, rows []report.Row, worksheet string) error {
	if err := s.prepareWorksheet(ctx, worksheet); err != nil {
		return fmt.Errorf("prepare worksheet %q: %w", worksheet, err)
	}

	values := make([][]interface{}, len(rows))
	for i := range rows {
		values[i] = rows[i].Values()
	}

	target := fmt.Sprintf("%s!A:%s", worksheet, lastColumn())
	call := s.api.Spreadsheets.Values.Append(s.spreadsheetID, target, &sheets.ValueRange{Values: values})
	if _, err := call.ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("append %d rows to %q: %w", len(values), worksheet, err)
	}

	s.log.Info().Str("sheet", worksheet).Int("rows", len(values)).Msg("Batch summary written to Google Sheet")
	return nil
}

func (s *Service) prepareWorksheet(ctx context.Context, worksheet string) error {
	doc, err := s.api.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return err
	}

	sheetID, found := findWorksheet(doc, worksheet)
	if !found {
		if sheetID, err = s.addWorksheet(ctx, worksheet); err != nil {
			return err
		}
	}

	headerRange := fmt.Sprintf("%s!A1:%s1", worksheet, lastColumn())
	existing, err := s.api.Spreadsheets.Values.Get(s.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return err
	}
	if len(existing.Values) > 0 && len(existing.Values[0]) > 0 {
		return nil
	}

	header := &sheets.ValueRange{Values: [][]interface{}{headerRow()}}
	if _, err := s.api.Spreadsheets.Values.Update(s.spreadsheetID, headerRange, header).ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}

	styling := &sheets.BatchUpdateSpreadsheetRequest{Requests: headerStyle(sheetID)}
	if _, err := s.api.Spreadsheets.BatchUpdate(s.spreadsheetID, styling).Context(ctx).Do(); err != nil {
		s.log.Warn().Err(err).Str("sheet", worksheet).Msg("Header styling failed")
	}
	return nil
}

func (s *Service) addWorksheet(ctx context.Context, title string) (int64, error) {
	s.log.Info().Str("sheet", title).Msg("Creating worksheet")

	req := &sheets.BatchUpdateSpreadsheetRequest{Requests: []*sheets.Request{{
		AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}},
	}}}
	resp, err := s.api.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("add worksheet: %w", err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil {
		return 0, errors.New("add worksheet: empty reply")
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

func findWorksheet(doc *sheets.Spreadsheet, title string) (int64, bool) {
	for _, sh := range doc.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return sh.Properties.SheetId, true
		}
	}
	return 0, false
}

func headerRow() []interface{} {
	row := make([]interface{}, 0, len(report.Headers))
	for _, h := range report.Headers {
		row = append(row, h)
	}
	return row
}

// headerStyle bolds and greys the first row and fits column widths.
func headerStyle(sheetID int64) []*sheets.Request {
	width := int64(len(report.Headers))
	grey := &sheets.Color{Red: 0.9, Green: 0.9, Blue: 0.9}

	return []*sheets.Request{
		{RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{SheetId: sheetID, EndRowIndex: 1, EndColumnIndex: width},
			Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
				TextFormat:      &sheets.TextFormat{Bold: true},
				BackgroundColor: grey,
			}},
			Fields: "userEnteredFormat(textFormat,backgroundColor)",
		}},
		{AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
			Dimensions: &sheets.DimensionRange{SheetId: sheetID, Dimension: "COLUMNS", EndIndex: width},
		}},
	}
}
