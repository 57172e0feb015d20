package router

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Clarity is the coarse scan-quality signal used to order backends.
type Clarity string

const (
	// ClarityDigital means the PDF carries a usable text layer.
	ClarityDigital Clarity = "digital"
	// ClarityScanned means the pages are images of reasonable density.
	ClarityScanned Clarity = "scanned"
	// ClarityPoor means the pages are images with very little data per page.
	ClarityPoor Clarity = "poor"
)

// minScanBytesPerPage is the image data below which a scan is treated as low resolution.
const minScanBytesPerPage = 40 * 1024

// minTextChars is the amount of extractable text that counts as a text layer.
const minTextChars = 32

// QualityReport is the result of the cheap pre-extraction assessment.
type QualityReport struct {
	Readable  bool
	Reason    string
	PageCount int
	TextChars int
	Clarity   Clarity
}

// QualityAssessor inspects a document before any backend is called.
type QualityAssessor interface {
	Assess(ctx context.Context, document []byte) (*QualityReport, error)
}

// PDFAssessor assesses PDFs locally by parsing the structure with pdfcpu and
// probing the text layer with ledongthuc/pdf.
type PDFAssessor struct{}

// NewPDFAssessor returns the default local assessor.
func NewPDFAssessor() *PDFAssessor {
	return &PDFAssessor{}
}

// Assess reports whether the document can be parsed and how clean it looks.
func (a *PDFAssessor) Assess(ctx context.Context, document []byte) (*QualityReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(document) < 4 || !bytes.HasPrefix(document, []byte("%PDF")) {
		return &QualityReport{Reason: "missing PDF header"}, nil
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadContext(bytes.NewReader(document), conf)
	if err != nil {
		return &QualityReport{Reason: fmt.Sprintf("failed to read PDF structure: %v", err)}, nil
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return &QualityReport{Reason: fmt.Sprintf("failed to determine page count: %v", err)}, nil
	}
	if pdfCtx.PageCount == 0 {
		return &QualityReport{Reason: "document has no pages"}, nil
	}

	report := &QualityReport{
		Readable:  true,
		PageCount: pdfCtx.PageCount,
		TextChars: textLayerChars(document),
	}
	report.Clarity = classify(report.TextChars, len(document), report.PageCount)
	return report, nil
}

func classify(textChars, size, pages int) Clarity {
	switch {
	case textChars >= minTextChars:
		return ClarityDigital
	case pages > 0 && size/pages < minScanBytesPerPage:
		return ClarityPoor
	default:
		return ClarityScanned
	}
}

// textLayerChars counts the non-space characters in the PDF's text layer.
// The parser panics on some malformed content streams, which counts as no text.
func textLayerChars(document []byte) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(document), int64(len(document)))
	if err != nil {
		return 0
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return 0
	}
	text, err := io.ReadAll(plain)
	if err != nil {
		return 0
	}
	return len(strings.Join(strings.Fields(string(text)), ""))
}
