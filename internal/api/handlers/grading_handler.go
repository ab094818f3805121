package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gradepilot/backend/pkg/logger"
)

type GradingHandler struct {
	store     SubmissionStore
	processor SessionProcessor
}

func NewGradingHandler(store SubmissionStore, processor SessionProcessor) *GradingHandler {
	return &GradingHandler{
		store:     store,
		processor: processor,
	}
}

// ProcessSession re-triggers the grading pipeline for an existing session,
// the manual re-run path for sessions left pending or failed.
func (h *GradingHandler) ProcessSession(c *fiber.Ctx) error {
	var req struct {
		SessionID string `json:"session_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session_id is required",
		})
	}

	result, err := h.processor.Process(c.Context(), req.SessionID)
	if err != nil {
		logger.Error("Failed to process grading session",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		return c.Status(statusForError(err)).JSON(fiber.Map{
			"error":   "Failed to process grading session",
			"details": err.Error(),
		})
	}

	response := fiber.Map{
		"message":    result.Message,
		"session_id": result.SessionID,
		"results":    result.Feedback,
		"latency_ms": result.LatencyMS,
	}
	if result.Score != nil {
		response["score"] = *result.Score
	}
	if result.Confidence != nil {
		response["confidence"] = *result.Confidence
	}

	return c.JSON(response)
}

func (h *GradingHandler) GetSession(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session id is required",
		})
	}

	s, err := h.store.GetSession(c.Context(), id)
	if err != nil {
		return c.Status(statusForError(err)).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	response := fiber.Map{
		"session_id": s.ID,
		"status":     s.Status,
		"created_at": s.CreatedAt.Unix(),
		"updated_at": s.UpdatedAt.Unix(),
	}
	if s.Feedback != nil {
		response["feedback"] = *s.Feedback
	}
	if s.Score != nil {
		response["score"] = *s.Score
	}

	return c.JSON(response)
}

func (h *GradingHandler) GetUserSessions(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	limit := c.QueryInt("limit", 20)

	sessions, err := h.store.ListSessionsByUser(c.Context(), userID, limit)
	if err != nil {
		logger.Error("Failed to list sessions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list sessions",
		})
	}

	items := make([]fiber.Map, 0, len(sessions))
	for _, s := range sessions {
		item := fiber.Map{
			"session_id": s.ID,
			"status":     s.Status,
			"created_at": s.CreatedAt.Unix(),
		}
		if s.Score != nil {
			item["score"] = *s.Score
		}
		items = append(items, item)
	}

	return c.JSON(fiber.Map{
		"sessions": items,
	})
}
