package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"formintel/internal/logger"
	"formintel/pkg/models"
)

// maxPromptText bounds the OCR text sent to the model.
const maxPromptText = 24000

// VisionLLMConfig configures the generative backend.
type VisionLLMConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// VisionLLMBackend implements Backend by running OCR and asking a chat model to
// structure the recognized text into form fields.
type VisionLLMBackend struct {
	recognizer TextRecognizer
	client     *openai.Client
	config     VisionLLMConfig
	log        zerolog.Logger
}

// NewVisionLLMBackend creates the generative backend from its dependencies.
func NewVisionLLMBackend(recognizer TextRecognizer, client *openai.Client, config VisionLLMConfig) *VisionLLMBackend {
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 4000
	}
	return &VisionLLMBackend{
		recognizer: recognizer,
		client:     client,
		config:     config,
		log:        logger.WithComponent("vision-llm"),
	}
}

// Method identifies the backend.
func (b *VisionLLMBackend) Method() models.ExtractionMethod {
	return models.MethodGenerative
}

// structuredForm is the JSON object the model is asked to return.
type structuredForm struct {
	Fields []struct {
		Label      string          `json:"label"`
		Value      json.RawMessage `json:"value"`
		Type       string          `json:"type"`
		Confidence float64         `json:"confidence"`
		Page       int             `json:"page"`
	} `json:"fields"`
	Tables []struct {
		Page int        `json:"page"`
		Rows [][]string `json:"rows"`
	} `json:"tables"`
	Checkboxes []struct {
		Label      string  `json:"label"`
		Selected   bool    `json:"selected"`
		Confidence float64 `json:"confidence"`
		Page       int     `json:"page"`
	} `json:"checkboxes"`
}

// Extract recognizes the document text and structures it with the chat model.
func (b *VisionLLMBackend) Extract(ctx context.Context, pdf []byte, documentTypeHint string) (*models.ExtractionResult, error) {
	const op = "Extract"
	start := time.Now()

	if err := CheckPDF(backendGenerative, op, pdf); err != nil {
		return nil, err
	}

	recognized, err := b.recognizer.Recognize(ctx, pdf)
	if err != nil {
		return nil, WrapExtractionError(backendGenerative, op, err, "text recognition failed")
	}

	text := recognized.Text
	text = truncateUTF8(text, maxPromptText)

	b.log.Debug().
		Int("text_length", len(text)).
		Str("model", b.config.Model).
		Str("hint", documentTypeHint).
		Msg("Sending structuring request")

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.config.Model,
		Temperature: b.config.Temperature,
		MaxTokens:   b.config.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: structuringPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildStructuringInput(text, documentTypeHint)},
		},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, WrapExtractionError(backendGenerative, op, ctxErr, "structuring request interrupted")
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
			return nil, WrapExtractionError(backendGenerative, op, ErrQuotaExceeded, apiErr.Message)
		}
		return nil, WrapExtractionError(backendGenerative, op, ErrBackendFailed, fmt.Sprintf("structuring request failed: %v", err))
	}
	if len(resp.Choices) == 0 {
		return nil, WrapExtractionError(backendGenerative, op, ErrMalformedResponse, "no response choices")
	}

	result, err := parseStructuredForm(resp.Choices[0].Message.Content, recognized)
	if err != nil {
		return nil, WrapExtractionError(backendGenerative, op, err, "")
	}

	b.log.Info().
		Int("fields", len(result.Fields)).
		Int("tables", len(result.Tables)).
		Float64("confidence", result.OverallConfidence).
		Msg("Generative extraction completed")

	return stamp(result, models.MethodGenerative, start), nil
}

// parseStructuredForm converts the model's JSON answer into an extraction result.
func parseStructuredForm(content string, recognized *RecognizedText) (*models.ExtractionResult, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var form structuredForm
	if err := json.Unmarshal([]byte(content), &form); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	percent := form.percentScale()
	result := &models.ExtractionResult{PageCount: recognized.PageCount}
	ocrScale := recognized.Confidence
	if ocrScale <= 0 {
		ocrScale = 1
	}

	for _, f := range form.Fields {
		label := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(f.Label), ":"))
		if label == "" {
			continue
		}
		value := rawString(f.Value)
		fieldType := models.FieldType(strings.ToLower(f.Type))
		switch fieldType {
		case models.FieldTypeText, models.FieldTypeDate, models.FieldTypeNumber,
			models.FieldTypeCheckbox, models.FieldTypeSignature:
		default:
			fieldType = InferFieldType(label, value)
		}
		result.Fields = append(result.Fields, models.ExtractedField{
			Label:      label,
			Value:      value,
			Type:       fieldType,
			Confidence: clampConfidence(normalizeConfidence(f.Confidence, percent) * ocrScale),
			PageIndex:  pageIndex(f.Page),
		})
	}

	for _, cb := range form.Checkboxes {
		state := "unselected"
		if cb.Selected {
			state = "selected"
		}
		conf := clampConfidence(normalizeConfidence(cb.Confidence, percent) * ocrScale)
		result.SelectionMarks = append(result.SelectionMarks, models.SelectionMark{
			State:      state,
			Confidence: conf,
			PageIndex:  pageIndex(cb.Page),
		})
		if label := strings.TrimSpace(cb.Label); label != "" {
			result.Fields = append(result.Fields, models.ExtractedField{
				Label:      label,
				Value:      state,
				Type:       models.FieldTypeCheckbox,
				Confidence: conf,
				PageIndex:  pageIndex(cb.Page),
			})
		}
	}

	for _, t := range form.Tables {
		table := models.ExtractedTable{PageIndex: pageIndex(t.Page)}
		for r, row := range t.Rows {
			for c, cell := range row {
				table.Cells = append(table.Cells, models.TableCell{RowIndex: r, ColumnIndex: c, Content: strings.TrimSpace(cell)})
			}
		}
		if len(table.Cells) > 0 {
			result.Tables = append(result.Tables, table)
		}
	}

	if len(result.Fields) == 0 && len(result.Tables) == 0 {
		return nil, ErrEmptyDocument
	}

	result.Languages = sortedLanguages(recognized.Languages)
	result.OverallConfidence = MeanConfidence(result.Fields)
	return result, nil
}

// rawString renders a JSON scalar as text; models sometimes answer numbers or booleans.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

// percentScale reports whether the model answered on a 0-100 scale despite
// the prompt. One value above 1 settles it for the whole answer.
func (f *structuredForm) percentScale() bool {
	for _, fd := range f.Fields {
		if fd.Confidence > 1 {
			return true
		}
	}
	for _, cb := range f.Checkboxes {
		if cb.Confidence > 1 {
			return true
		}
	}
	return false
}

// normalizeConfidence returns c on the 0-100 scale.
func normalizeConfidence(c float64, percent bool) float64 {
	if percent {
		return c
	}
	return c * 100
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}

// pageIndex converts the model's 1-based page numbers to 0-based indices.
func pageIndex(page int) int {
	if page > 0 {
		return page - 1
	}
	return 0
}

func buildStructuringInput(text, hint string) string {
	var b strings.Builder
	if hint != "" {
		fmt.Fprintf(&b, "Document type hint: %s\n\n", hint)
	}
	b.WriteString("OCR TEXT:\n")
	b.WriteString(text)
	return b.String()
}

const structuringPrompt = `You convert OCR text of a filled application form into structured data.

Return ONLY a JSON object with this shape:
{
  "fields": [{"label": "printed field label", "value": "filled value or empty string", "type": "text|date|number|checkbox|signature", "confidence": 0.0-1.0, "page": 1}],
  "checkboxes": [{"label": "option text", "selected": true, "confidence": 0.0-1.0, "page": 1}],
  "tables": [{"page": 1, "rows": [["header 1", "header 2"], ["cell", "cell"]]}]
}

Rules:
- Use the label exactly as printed on the form.
- Keep values exactly as written. Do not reformat dates or phone numbers.
- Leave the value empty when the field is blank. Never invent values.
- Lower the confidence for handwriting or unclear characters.
- Put repeating sections (family members, travel history) in tables with a header row.`
