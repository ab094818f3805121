package ocr

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"

	"github.com/gradepilot/backend/internal/errdefs"
	"github.com/gradepilot/backend/pkg/logger"
)

// runTesseract performs a single recognition pass. Undetectable text is an
// empty Result, not an error; only engine failures propagate.
func (e *Engine) runTesseract(doc Document) (*Result, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if len(e.languages) > 0 {
		if err := client.SetLanguage(e.languages...); err != nil {
			return nil, fmt.Errorf("set languages for %s: %w", doc.Category, errdefs.ErrExtractionFailed)
		}
	}

	if err := client.SetImageFromBytes(doc.Data); err != nil {
		return nil, fmt.Errorf("set image for %s: %w", doc.Category, errdefs.ErrExtractionFailed)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize %s: %w", doc.Category, errdefs.ErrExtractionFailed)
	}
	plain := strings.TrimSpace(text)

	confidence, wordCount := wordConfidence(client)

	raw, _ := json.Marshal(map[string]interface{}{
		"engine":     "tesseract",
		"word_count": wordCount,
		"languages":  e.languages,
	})

	logger.Debug("Document recognized",
		zap.String("category", doc.Category),
		zap.Int("text_length", len(plain)),
		zap.Int("words", wordCount),
	)

	return &Result{
		Text:       plain,
		Confidence: confidence,
		Raw:        string(raw),
	}, nil
}

// wordConfidence averages Tesseract's per-word confidence into [0,1].
// Returns nil when the engine detected no words.
func wordConfidence(client *gosseract.Client) (*float64, int) {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil, 0
	}

	var sum float64
	for _, box := range boxes {
		sum += box.Confidence / 100.0
	}

	avg := sum / float64(len(boxes))
	return &avg, len(boxes)
}
