package ocr

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradepilot/backend/internal/errdefs"
	"github.com/gradepilot/backend/pkg/config"
)

func newTestEngine() *Engine {
	return NewEngine(config.OCRConfig{Languages: []string{"eng"}, TimeoutSec: 5})
}

func TestExtract_HTMLStripsMarkupAndChrome(t *testing.T) {
	html := `<html><head><title>ignored</title><style>body{}</style></head>
	<body><nav>menu</nav>
	<h1>Question 1</h1>
	<p>What is   2+2?</p>
	<script>alert(1)</script><footer>footer</footer></body></html>`

	result, err := newTestEngine().Extract(context.Background(), Document{
		Category: "question paper",
		Data:     []byte(html),
	})

	require.NoError(t, err)
	assert.Equal(t, "Question 1 What is 2+2?", result.Text)
	assert.Nil(t, result.Confidence)
}

func TestExtract_PlainTextPassthrough(t *testing.T) {
	result, err := newTestEngine().Extract(context.Background(), Document{
		Category: "answer sheet",
		Data:     []byte("  4  \n"),
	})

	require.NoError(t, err)
	assert.Equal(t, "4", result.Text)
}

func TestExtract_BinaryGarbageFailsExtraction(t *testing.T) {
	// An unrecognized binary blob falls through to the OCR engine, which
	// cannot decode it as an image.
	data := []byte{0x00, 0x01, 0x02, 0xff, 0xfe, 0x00, 0x10, 0x20}

	_, err := newTestEngine().Extract(context.Background(), Document{
		Category: "answer sheet",
		Data:     data,
	})

	assert.Error(t, err)
}

type fakeCache struct {
	entries map[string][]byte
	getErr  error
	gets    int
	sets    int
}

func (c *fakeCache) GetExtraction(ctx context.Context, contentHash string, out interface{}) (bool, error) {
	c.gets++
	if c.getErr != nil {
		return false, c.getErr
	}
	data, ok := c.entries[contentHash]
	if !ok {
		return false, nil
	}
	result := out.(*Result)
	result.Text = string(data)
	return true, nil
}

func (c *fakeCache) SetExtraction(ctx context.Context, contentHash string, value interface{}) error {
	c.sets++
	if c.entries == nil {
		c.entries = make(map[string][]byte)
	}
	result := value.(*Result)
	c.entries[contentHash] = []byte(result.Text)
	return nil
}

type stubExtractor struct {
	calls int
}

func (s *stubExtractor) Extract(ctx context.Context, doc Document) (*Result, error) {
	s.calls++
	return &Result{Text: "extracted:" + string(doc.Data)}, nil
}

func TestCachedExtractor_SecondCallSkipsEngine(t *testing.T) {
	inner := &stubExtractor{}
	cache := &fakeCache{}
	extractor := NewCachedExtractor(inner, cache)
	doc := Document{Category: "answer sheet", Data: []byte("same bytes")}

	first, err := extractor.Extract(context.Background(), doc)
	require.NoError(t, err)

	second, err := extractor.Extract(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, cache.sets)
}

func TestCachedExtractor_CacheErrorFallsThrough(t *testing.T) {
	inner := &stubExtractor{}
	cache := &fakeCache{getErr: fmt.Errorf("redis down")}
	extractor := NewCachedExtractor(inner, cache)

	result, err := extractor.Extract(context.Background(), Document{
		Category: "answer sheet",
		Data:     []byte("bytes"),
	})

	require.NoError(t, err)
	assert.Equal(t, "extracted:bytes", result.Text)
	assert.Equal(t, 1, inner.calls)
}

func TestExtract_InvalidUTF8TextFails(t *testing.T) {
	_, err := extractPlain(Document{Category: "rubric", Data: []byte{'h', 'i', 0xff, 0xfe}})

	assert.ErrorIs(t, err, errdefs.ErrExtractionFailed)
}
