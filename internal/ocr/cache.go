package ocr

import (
	"context"

	"go.uber.org/zap"

	"github.com/gradepilot/backend/internal/metrics"
	"github.com/gradepilot/backend/pkg/logger"
	"github.com/gradepilot/backend/pkg/utils"
)

// ExtractionCache stores extraction results keyed by document content hash,
// so re-running a session skips OCR for unchanged blobs.
type ExtractionCache interface {
	GetExtraction(ctx context.Context, contentHash string, out interface{}) (bool, error)
	SetExtraction(ctx context.Context, contentHash string, value interface{}) error
}

type CachedExtractor struct {
	inner Extractor
	cache ExtractionCache
}

func NewCachedExtractor(inner Extractor, cache ExtractionCache) *CachedExtractor {
	return &CachedExtractor{
		inner: inner,
		cache: cache,
	}
}

func (c *CachedExtractor) Extract(ctx context.Context, doc Document) (*Result, error) {
	hash := utils.HashString(string(doc.Data))

	var cached Result
	hit, err := c.cache.GetExtraction(ctx, hash, &cached)
	if err != nil {
		// Cache trouble never fails the pipeline.
		logger.Warn("Extraction cache lookup failed", zap.Error(err))
	}
	if hit {
		metrics.ExtractionCacheHits.Inc()
		logger.Debug("Extraction cache hit",
			zap.String("category", doc.Category),
			zap.String("content_hash", hash),
		)
		return &cached, nil
	}
	metrics.ExtractionCacheMisses.Inc()

	result, err := c.inner.Extract(ctx, doc)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetExtraction(ctx, hash, result); err != nil {
		logger.Warn("Failed to cache extraction", zap.Error(err))
	}

	return result, nil
}
