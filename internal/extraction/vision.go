package extraction

import (
	"context"
	"fmt"
	"os"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"formintel/pkg/models"
)

// MaxPagesSync is the maximum number of pages Cloud Vision annotates synchronously.
const MaxPagesSync = 5

const backendGenerative = string(models.MethodGenerative)

// RecognizedText is the raw OCR output handed to the structuring step.
type RecognizedText struct {
	// Text is the content of all pages in reading order, separated by page markers.
	Text string

	// PageCount is the number of pages that were processed.
	PageCount int

	// Confidence is the mean page confidence (0.0 to 1.0).
	Confidence float64

	// Languages maps detected language codes to their highest confidence (0.0 to 1.0).
	Languages map[string]float64
}

// TextRecognizer turns a PDF into plain text.
type TextRecognizer interface {
	Recognize(ctx context.Context, pdf []byte) (*RecognizedText, error)
}

// GoogleVisionRecognizer implements TextRecognizer using Cloud Vision document text detection.
type GoogleVisionRecognizer struct {
	client *vision.ImageAnnotatorClient
}

// NewGoogleVisionRecognizer creates a recognizer with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
func NewGoogleVisionRecognizer(ctx context.Context) (*GoogleVisionRecognizer, error) {
	const op = "NewGoogleVisionRecognizer"

	var client *vision.ImageAnnotatorClient
	var err error

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, WrapExtractionError(backendGenerative, op, err, "failed to create client with GOOGLE_CREDENTIALS")
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, WrapExtractionError(backendGenerative, op, err, "failed to create client with GOOGLE_APPLICATION_CREDENTIALS")
		}
	} else {
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, WrapExtractionError(backendGenerative, op, ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return &GoogleVisionRecognizer{client: client}, nil
}

// Recognize runs document text detection over every page of the PDF.
func (g *GoogleVisionRecognizer) Recognize(ctx context.Context, pdf []byte) (*RecognizedText, error) {
	const op = "Recognize"

	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  pdf,
					MimeType: "application/pdf",
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := g.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, WrapExtractionError(backendGenerative, op, ctxErr, "Vision API call interrupted")
		}
		return nil, WrapExtractionError(backendGenerative, op, ErrBackendFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.Responses) == 0 {
		return nil, WrapExtractionError(backendGenerative, op, ErrBackendFailed, "no response from Vision API")
	}

	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return nil, WrapExtractionError(backendGenerative, op, ErrBackendFailed, fmt.Sprintf("Vision API error: %s", fileResp.Error.Message))
	}

	return collectVisionText(fileResp)
}

// collectVisionText concatenates page text and gathers language and confidence metadata.
func collectVisionText(fileResp *visionpb.AnnotateFileResponse) (*RecognizedText, error) {
	const op = "collectVisionText"

	if len(fileResp.Responses) == 0 {
		return nil, WrapExtractionError(backendGenerative, op, ErrEmptyDocument, "")
	}
	if len(fileResp.Responses) > MaxPagesSync {
		return nil, WrapExtractionError(backendGenerative, op, ErrDocumentTooLarge, fmt.Sprintf("document has %d pages", len(fileResp.Responses)))
	}

	out := &RecognizedText{
		PageCount: len(fileResp.Responses),
		Languages: make(map[string]float64),
	}
	var text strings.Builder
	var confSum float64
	var confCount int

	for pageIdx, page := range fileResp.Responses {
		if page.Error != nil {
			return nil, WrapExtractionError(backendGenerative, op, ErrBackendFailed, fmt.Sprintf("page %d: %s", pageIdx+1, page.Error.Message))
		}
		if page.FullTextAnnotation == nil {
			continue
		}
		if pageIdx > 0 {
			fmt.Fprintf(&text, "\n\n--- Page %d ---\n\n", pageIdx+1)
		}
		text.WriteString(page.FullTextAnnotation.Text)

		for _, p := range page.FullTextAnnotation.Pages {
			if p.Confidence > 0 {
				confSum += float64(p.Confidence)
				confCount++
			}
			if p.Property == nil {
				continue
			}
			for _, lang := range p.Property.DetectedLanguages {
				if lang.LanguageCode == "" {
					continue
				}
				if c := float64(lang.Confidence); c > out.Languages[lang.LanguageCode] {
					out.Languages[lang.LanguageCode] = c
				}
			}
		}
	}

	out.Text = text.String()
	if strings.TrimSpace(out.Text) == "" {
		return nil, WrapExtractionError(backendGenerative, op, ErrEmptyDocument, "no text detected")
	}
	if confCount > 0 {
		out.Confidence = confSum / float64(confCount)
	}
	return out, nil
}

// Close closes the underlying Vision client.
func (g *GoogleVisionRecognizer) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
