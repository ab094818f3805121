package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gradepilot/backend/pkg/logger"
)

type ExtractionInvalidator interface {
	InvalidateExtractions(ctx context.Context) error
}

// CacheHandler exposes the admin surface of the extraction cache. Stale
// entries must be dropped after OCR language changes, since cached results
// are keyed by document bytes alone.
type CacheHandler struct {
	cache ExtractionInvalidator
}

func NewCacheHandler(cache ExtractionInvalidator) *CacheHandler {
	return &CacheHandler{
		cache: cache,
	}
}

func (h *CacheHandler) InvalidateExtractions(c *fiber.Ctx) error {
	if err := h.cache.InvalidateExtractions(c.Context()); err != nil {
		logger.Error("Failed to invalidate extraction cache", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to invalidate extraction cache",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Extraction cache invalidated",
	})
}
