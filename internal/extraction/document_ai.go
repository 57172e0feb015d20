package extraction

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"formintel/internal/logger"
	"formintel/pkg/models"
)

const backendStructured = string(models.MethodStructured)

// DocumentAIConfig holds configuration for Google Document AI processing.
type DocumentAIConfig struct {
	// ProjectID is the Google Cloud project ID where Document AI is enabled.
	ProjectID string

	// Location is the processing location (e.g., "us", "eu").
	Location string

	// ProcessorID is the Form Parser processor ID.
	ProcessorID string

	// ProcessorVersion specifies a particular processor version. Empty uses the default.
	ProcessorVersion string
}

// DocumentAIBackend implements Backend using the Document AI Form Parser.
type DocumentAIBackend struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIBackend creates the structured backend with credentials from environment.
func NewDocumentAIBackend(ctx context.Context, config DocumentAIConfig) (*DocumentAIBackend, error) {
	const op = "NewDocumentAIBackend"

	if config.ProjectID == "" || config.ProcessorID == "" {
		return nil, WrapExtractionError(backendStructured, op, ErrInvalidConfiguration, "project and processor id are required")
	}
	if config.Location == "" {
		config.Location = "us"
	}

	var clientOptions []option.ClientOption
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if len(clientOptions) == 0 {
			return nil, WrapExtractionError(backendStructured, op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapExtractionError(backendStructured, op, err, fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}

	return &DocumentAIBackend{
		client: client,
		config: config,
		log:    logger.WithComponent("document-ai"),
	}, nil
}

// Method identifies the backend.
func (b *DocumentAIBackend) Method() models.ExtractionMethod {
	return models.MethodStructured
}

// Extract sends the document to the Form Parser and converts the response.
func (b *DocumentAIBackend) Extract(ctx context.Context, pdf []byte, documentTypeHint string) (*models.ExtractionResult, error) {
	const op = "Extract"
	start := time.Now()

	if err := CheckPDF(backendStructured, op, pdf); err != nil {
		return nil, err
	}

	req := &documentaipb.ProcessRequest{
		Name: b.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  pdf,
				MimeType: "application/pdf",
			},
		},
	}

	resp, err := b.client.ProcessDocument(ctx, req)
	if err != nil {
		return nil, b.handleProcessingError(op, err)
	}
	if resp.Document == nil {
		return nil, WrapExtractionError(backendStructured, op, ErrBackendFailed, "no document in response")
	}

	result := convertDocument(resp.Document)
	if len(result.Fields) == 0 && len(result.Tables) == 0 {
		return nil, WrapExtractionError(backendStructured, op, ErrEmptyDocument, "form parser found no fields")
	}

	b.log.Info().
		Str("hint", documentTypeHint).
		Int("fields", len(result.Fields)).
		Int("tables", len(result.Tables)).
		Int("pages", result.PageCount).
		Float64("confidence", result.OverallConfidence).
		Msg("Document AI extraction completed")

	return stamp(result, models.MethodStructured, start), nil
}

// processorName constructs the full processor name for Document AI API.
func (b *DocumentAIBackend) processorName() string {
	if b.config.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			b.config.ProjectID, b.config.Location, b.config.ProcessorID, b.config.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		b.config.ProjectID, b.config.Location, b.config.ProcessorID)
}

// handleProcessingError converts Document AI errors to extraction errors.
func (b *DocumentAIBackend) handleProcessingError(op string, err error) error {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return WrapExtractionError(backendStructured, op, ErrMissingCredentials, "insufficient permissions for Document AI")
	case codes.ResourceExhausted:
		return WrapExtractionError(backendStructured, op, ErrQuotaExceeded, "Document AI API quota exceeded")
	case codes.NotFound:
		return WrapExtractionError(backendStructured, op, ErrInvalidConfiguration, fmt.Sprintf("processor not found: %s", b.config.ProcessorID))
	case codes.InvalidArgument:
		return WrapExtractionError(backendStructured, op, ErrInvalidPDF, "document format not supported or corrupted")
	case codes.DeadlineExceeded:
		return WrapExtractionError(backendStructured, op, context.DeadlineExceeded, "processing timeout")
	case codes.Canceled:
		return WrapExtractionError(backendStructured, op, context.Canceled, "processing was canceled")
	default:
		return WrapExtractionError(backendStructured, op, ErrBackendFailed, fmt.Sprintf("Document AI error: %v", err))
	}
}

// Close closes the underlying Document AI client.
func (b *DocumentAIBackend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

// convertDocument maps a Form Parser document onto the pipeline's extraction model.
func convertDocument(doc *documentaipb.Document) *models.ExtractionResult {
	result := &models.ExtractionResult{
		PageCount: len(doc.Pages),
	}
	languages := make(map[string]float64)

	for pageIdx, page := range doc.Pages {
		for _, ff := range page.FormFields {
			label := strings.TrimSuffix(layoutText(doc, ff.FieldName), ":")
			label = strings.TrimSpace(label)
			if label == "" {
				continue
			}
			value := layoutText(doc, ff.FieldValue)
			conf := fieldConfidence(ff)

			field := models.ExtractedField{
				Label:      label,
				Value:      value,
				Confidence: conf,
				PageIndex:  pageIdx,
			}
			switch ff.ValueType {
			case "filled_checkbox":
				field.Type = models.FieldTypeCheckbox
				field.Value = "selected"
			case "unfilled_checkbox":
				field.Type = models.FieldTypeCheckbox
				field.Value = "unselected"
			default:
				field.Type = InferFieldType(label, value)
			}
			result.Fields = append(result.Fields, field)
		}

		for _, table := range page.Tables {
			result.Tables = append(result.Tables, convertTable(doc, table, pageIdx))
		}

		for _, el := range page.VisualElements {
			switch el.Type {
			case "filled_checkbox", "unfilled_checkbox":
				state := "unselected"
				if el.Type == "filled_checkbox" {
					state = "selected"
				}
				var conf float64
				if el.Layout != nil {
					conf = float64(el.Layout.Confidence) * 100
				}
				result.SelectionMarks = append(result.SelectionMarks, models.SelectionMark{
					State:      state,
					Confidence: conf,
					PageIndex:  pageIdx,
				})
			}
		}

		for _, bc := range page.DetectedBarcodes {
			if bc.Barcode == nil {
				continue
			}
			result.Barcodes = append(result.Barcodes, models.Barcode{
				Format:    bc.Barcode.Format,
				Value:     bc.Barcode.RawValue,
				PageIndex: pageIdx,
			})
		}

		for _, lang := range page.DetectedLanguages {
			if lang.LanguageCode == "" {
				continue
			}
			if c := float64(lang.Confidence); c > languages[lang.LanguageCode] {
				languages[lang.LanguageCode] = c
			}
		}
	}

	result.Languages = sortedLanguages(languages)
	result.OverallConfidence = MeanConfidence(result.Fields)
	return result
}

// fieldConfidence takes the weaker of the name and value confidences, scaled to 0-100.
func fieldConfidence(ff *documentaipb.Document_Page_FormField) float64 {
	var name, value float32 = 1, 1
	if ff.FieldName != nil {
		name = ff.FieldName.Confidence
	}
	if ff.FieldValue != nil {
		value = ff.FieldValue.Confidence
	}
	if value < name {
		return float64(value) * 100
	}
	return float64(name) * 100
}

func convertTable(doc *documentaipb.Document, table *documentaipb.Document_Page_Table, pageIdx int) models.ExtractedTable {
	out := models.ExtractedTable{PageIndex: pageIdx}
	rows := append(append([]*documentaipb.Document_Page_Table_TableRow{}, table.HeaderRows...), table.BodyRows...)
	for r, row := range rows {
		col := 0
		for _, cell := range row.Cells {
			out.Cells = append(out.Cells, models.TableCell{
				RowIndex:    r,
				ColumnIndex: col,
				Content:     layoutText(doc, cell.Layout),
			})
			span := int(cell.ColSpan)
			if span < 1 {
				span = 1
			}
			col += span
		}
	}
	return out
}

// layoutText resolves a layout's text anchor against the document text.
func layoutText(doc *documentaipb.Document, layout *documentaipb.Document_Page_Layout) string {
	if layout == nil || layout.TextAnchor == nil {
		return ""
	}
	var b strings.Builder
	for _, seg := range layout.TextAnchor.TextSegments {
		start, end := int(seg.StartIndex), int(seg.EndIndex)
		if start < 0 || end > len(doc.Text) || start >= end {
			continue
		}
		b.WriteString(doc.Text[start:end])
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func sortedLanguages(languages map[string]float64) []models.LanguageDetection {
	out := make([]models.LanguageDetection, 0, len(languages))
	for code, conf := range languages {
		out = append(out, models.LanguageDetection{Code: code, Confidence: conf})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence == out[j].Confidence {
			return out[i].Code < out[j].Code
		}
		return out[i].Confidence > out[j].Confidence
	})
	return out
}
