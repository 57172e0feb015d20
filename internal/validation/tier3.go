package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"formintel/internal/logger"
	"formintel/pkg/models"
)

const (
	// DefaultAIGateConfidence is the extraction confidence below which semantic review runs.
	DefaultAIGateConfidence = 70.0

	// DefaultAITimeout bounds one semantic review call.
	DefaultAITimeout = 15 * time.Second
)

// ReviewField is one field handed to the semantic reviewer.
type ReviewField struct {
	Field string `json:"field"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// ReviewRequest is the input of a semantic review.
type ReviewRequest struct {
	Fields             []ReviewField `json:"fields"`
	DestinationCountry string        `json:"destination_country,omitempty"`
	VisaType           string        `json:"visa_type,omitempty"`
	KnownIssues        []string      `json:"known_issues,omitempty"`
}

// Implausible is a free-text answer the reviewer doubts.
type Implausible struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ReviewResponse is the reviewer's advisory verdict.
type ReviewResponse struct {
	Confidence     float64                `json:"confidence"` // 0-100
	Suggestions    []string               `json:"suggestions"`
	Contradictions []models.Contradiction `json:"contradictions"`
	Implausible    []Implausible          `json:"implausible"`
}

// SemanticReviewer detects cross-field contradictions and implausible answers.
type SemanticReviewer interface {
	Review(ctx context.Context, req ReviewRequest) (*ReviewResponse, error)
}

// GateConfig decides when semantic review runs.
type GateConfig struct {
	ConfidenceThreshold float64
	OptIn               bool
}

// ShouldRunSemantic reports whether Tier 3 should run and why.
func ShouldRunSemantic(prior []models.ValidationIssue, extractionConfidence float64, optIn bool, gate GateConfig) (bool, string) {
	if optIn || gate.OptIn {
		return true, "opt-in"
	}
	for _, is := range prior {
		if is.Severity == models.SeverityError {
			return true, "tier 1/2 errors present"
		}
	}
	threshold := gate.ConfidenceThreshold
	if threshold == 0 {
		threshold = DefaultAIGateConfidence
	}
	if extractionConfidence < threshold {
		return true, fmt.Sprintf("extraction confidence %.1f below %.0f", extractionConfidence, threshold)
	}
	return false, "no errors, confident extraction and no opt-in"
}

// SemanticValidator is Tier 3. Its output is advisory: it never produces
// error-severity issues.
type SemanticValidator struct {
	reviewer SemanticReviewer
	timeout  time.Duration
	log      zerolog.Logger
}

// NewSemanticValidator wraps a reviewer with the call timeout.
func NewSemanticValidator(reviewer SemanticReviewer, timeout time.Duration) *SemanticValidator {
	if timeout <= 0 {
		timeout = DefaultAITimeout
	}
	return &SemanticValidator{
		reviewer: reviewer,
		timeout:  timeout,
		log:      logger.WithComponent("semantic-review"),
	}
}

// Validate runs the reviewer. Failures wrap ErrAIValidationUnavailable.
func (s *SemanticValidator) Validate(ctx context.Context, in Input, prior []models.ValidationIssue) (*models.AIValidation, []models.ValidationIssue, error) {
	if s.reviewer == nil {
		return nil, nil, fmt.Errorf("%w: no reviewer configured", ErrAIValidationUnavailable)
	}

	req := buildReviewRequest(in, prior)
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.reviewer.Review(callCtx, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w: %w after %s", ErrAIValidationUnavailable, ErrAIValidationTimeout, s.timeout)
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrAIValidationUnavailable, err)
	}
	if resp == nil {
		return nil, nil, fmt.Errorf("%w: empty review", ErrAIValidationUnavailable)
	}

	ai := &models.AIValidation{
		Used:           true,
		Confidence:     clamp(resp.Confidence, 0, 100),
		Suggestions:    resp.Suggestions,
		Contradictions: resp.Contradictions,
	}

	known := make(map[string]bool, len(req.Fields))
	for _, f := range req.Fields {
		known[f.Field] = true
	}
	fieldPtr := func(f string) *string {
		if known[f] {
			return models.StringPtr(f)
		}
		return nil
	}

	var issues []models.ValidationIssue
	for _, c := range resp.Contradictions {
		var field *string
		if len(c.Fields) > 0 {
			field = fieldPtr(c.Fields[0])
		}
		issues = append(issues, issue(field, CodeContradiction,
			fmt.Sprintf("Possible contradiction between %s: %s", strings.Join(c.Fields, ", "), c.Message),
			models.SeverityWarning, models.SourceTier3))
	}
	for _, im := range resp.Implausible {
		ai.Implausible = append(ai.Implausible, im.Field)
		issues = append(issues, issue(fieldPtr(im.Field), CodeImplausible,
			fmt.Sprintf("Answer may be implausible: %s", im.Message),
			models.SeverityWarning, models.SourceTier3))
	}

	s.log.Info().
		Float64("confidence", ai.Confidence).
		Int("contradictions", len(resp.Contradictions)).
		Int("implausible", len(resp.Implausible)).
		Dur("duration", time.Since(start)).
		Msg("Semantic review completed")

	return ai, issues, nil
}

func buildReviewRequest(in Input, prior []models.ValidationIssue) ReviewRequest {
	req := ReviewRequest{
		DestinationCountry: in.Context.DestinationCountry,
		VisaType:           in.Context.VisaType,
	}
	for _, m := range in.Matches {
		label := ""
		if m.ExtractedField != nil {
			label = m.ExtractedField.Label
		}
		req.Fields = append(req.Fields, ReviewField{Field: m.Key(), Label: label, Value: m.PopulatedValue})
	}
	for _, is := range prior {
		req.KnownIssues = append(req.KnownIssues, is.Message)
	}
	return req
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// OpenAIReviewer implements SemanticReviewer with a chat completion model.
type OpenAIReviewer struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

// NewOpenAIReviewer creates a reviewer using the given client and model.
func NewOpenAIReviewer(client *openai.Client, model string) *OpenAIReviewer {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIReviewer{
		client: client,
		model:  model,
		log:    logger.WithComponent("semantic-review"),
	}
}

// Review asks the model for contradictions and implausible answers.
func (r *OpenAIReviewer) Review(ctx context.Context, req ReviewRequest) (*ReviewResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal review request: %w", err)
	}

	r.log.Debug().
		Int("fields", len(req.Fields)).
		Str("model", r.model).
		Msg("Sending review request")

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Temperature: 0,
		MaxTokens:   1500,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: reviewPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}

	var out ReviewResponse
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("parse review response: %w", err)
	}
	if out.Confidence > 0 && out.Confidence <= 1 {
		out.Confidence *= 100
	}
	return &out, nil
}

const reviewPrompt = `You review extracted visa application data for consistency.

Given the JSON list of fields, find:
- contradictions between fields (e.g. marital status "single" with a spouse name, an arrival date after the departure date, an age that does not fit the occupation)
- implausible free-text answers (e.g. an occupation of "asdf", a city that is a country name)

Do not repeat the known issues. Do not judge formats; only meaning.

Return ONLY a JSON object:
{
  "confidence": 0-100,
  "suggestions": ["short actionable suggestion"],
  "contradictions": [{"fields": ["field id", "field id"], "message": "why they conflict"}],
  "implausible": [{"field": "field id", "message": "why it is implausible"}]
}
"confidence" is how consistent the application looks overall.`
