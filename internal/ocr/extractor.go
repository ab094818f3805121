package ocr

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/gradepilot/backend/internal/errdefs"
	"github.com/gradepilot/backend/pkg/config"
)

// Document is one downloaded blob handed to the extraction adapter.
// Category names the document's role and shows up in error messages.
type Document struct {
	Category string
	Data     []byte
}

// Result is best-effort plain text. Confidence is the average over detected
// words when the OCR engine reports one, nil otherwise. Raw carries the
// engine's response payload for auditing.
type Result struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	Raw        string   `json:"raw,omitempty"`
}

type Extractor interface {
	Extract(ctx context.Context, doc Document) (*Result, error)
}

// Engine dispatches on sniffed content type: images go through Tesseract,
// HTML is stripped to text, anything else is treated as plain text.
type Engine struct {
	languages []string
	timeout   time.Duration
}

func NewEngine(cfg config.OCRConfig) *Engine {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Engine{
		languages: cfg.Languages,
		timeout:   timeout,
	}
}

var whitespaceRE = regexp.MustCompile(`\s+`)

func (e *Engine) Extract(ctx context.Context, doc Document) (*Result, error) {
	contentType := http.DetectContentType(doc.Data)

	switch {
	case strings.HasPrefix(contentType, "text/html"):
		return extractHTML(doc)
	case strings.HasPrefix(contentType, "text/"):
		return extractPlain(doc)
	default:
		return e.recognize(ctx, doc)
	}
}

func (e *Engine) recognize(ctx context.Context, doc Document) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}

	ch := make(chan outcome, 1)
	go func() {
		res, err := e.runTesseract(doc)
		ch <- outcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ocr for %s: %w", doc.Category, errdefs.ErrTimeout)
	case o := <-ch:
		return o.res, o.err
	}
}

func extractHTML(doc Document) (*Result, error) {
	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(string(doc.Data)))
	if err != nil {
		return nil, fmt.Errorf("parse html for %s: %w", doc.Category, errdefs.ErrExtractionFailed)
	}

	parsed.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := parsed.Find("body").Text()
	text = whitespaceRE.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	return &Result{Text: text}, nil
}

func extractPlain(doc Document) (*Result, error) {
	if !utf8.Valid(doc.Data) {
		return nil, fmt.Errorf("%s is not valid text: %w", doc.Category, errdefs.ErrExtractionFailed)
	}
	return &Result{Text: strings.TrimSpace(string(doc.Data))}, nil
}
