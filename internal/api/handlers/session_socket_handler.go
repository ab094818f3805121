package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/gradepilot/backend/pkg/logger"
)

// SessionSocketHandler streams per-stage progress while a grading session is
// processed, so the submission UI can show more than a spinner.
type SessionSocketHandler struct {
	processor SessionProcessor
}

func NewSessionSocketHandler(processor SessionProcessor) *SessionSocketHandler {
	return &SessionSocketHandler{
		processor: processor,
	}
}

func (h *SessionSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type      string `json:"type"`
			SessionID string `json:"session_id"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "process" || msg.SessionID == "" {
			continue
		}

		logger.Info("Processing session over WebSocket", zap.String("session_id", msg.SessionID))

		if err := h.streamProcessing(c, msg.SessionID); err != nil {
			logger.Error("Failed to stream session processing", zap.Error(err))
			h.sendError(c, err.Error())
		}
	}
}

func (h *SessionSocketHandler) streamProcessing(c *websocket.Conn, sessionID string) error {
	ctx := context.Background()

	result, err := h.processor.ProcessWithProgress(ctx, sessionID, func(stage string) {
		h.sendStage(c, sessionID, stage)
	})
	if err != nil {
		return err
	}

	msg := map[string]interface{}{
		"type":       "complete",
		"session_id": result.SessionID,
		"message":    result.Message,
		"results":    result.Feedback,
		"latency_ms": result.LatencyMS,
	}
	if result.Score != nil {
		msg["score"] = *result.Score
	}
	if result.Confidence != nil {
		msg["confidence"] = *result.Confidence
	}

	return c.WriteJSON(msg)
}

func (h *SessionSocketHandler) sendStage(c *websocket.Conn, sessionID, stage string) {
	msg := map[string]interface{}{
		"type":       "stage",
		"session_id": sessionID,
		"stage":      stage,
	}

	if err := c.WriteJSON(msg); err != nil {
		logger.Debug("Failed to send stage update", zap.Error(err))
	}
}

func (h *SessionSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}
