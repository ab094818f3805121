package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gradepilot/backend/internal/errdefs"
	"github.com/gradepilot/backend/internal/metrics"
	"github.com/gradepilot/backend/internal/objectstore"
	"github.com/gradepilot/backend/internal/session"
	"github.com/gradepilot/backend/internal/storage/models"
	"github.com/gradepilot/backend/pkg/logger"
)

type Uploader interface {
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Buckets() objectstore.Buckets
}

type SubmissionStore interface {
	InsertSession(ctx context.Context, s *models.GradingSession) error
	GetSession(ctx context.Context, id string) (*models.GradingSession, error)
	ListSessionsByUser(ctx context.Context, userID string, limit int) ([]models.GradingSession, error)
}

type SessionProcessor interface {
	Process(ctx context.Context, sessionID string) (*session.Result, error)
	ProcessWithProgress(ctx context.Context, sessionID string, onStage func(stage string)) (*session.Result, error)
}

type SubmissionHandler struct {
	uploader  Uploader
	store     SubmissionStore
	processor SessionProcessor
}

func NewSubmissionHandler(uploader Uploader, store SubmissionStore, processor SessionProcessor) *SubmissionHandler {
	return &SubmissionHandler{
		uploader:  uploader,
		store:     store,
		processor: processor,
	}
}

// CreateSubmission accepts the three required files plus one optional file,
// uploads them concurrently, creates the session row, and runs the grading
// pipeline synchronously. Validation failures are rejected before any
// storage call is made.
func (h *SubmissionHandler) CreateSubmission(c *fiber.Ctx) error {
	userID := c.FormValue("user_id")
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	required := []struct {
		field string
		label string
	}{
		{field: "question_paper", label: "Question paper"},
		{field: "grading_rubric", label: "Grading rubric"},
		{field: "answer_sheet", label: "Answer sheet"},
	}

	files := make(map[string]*multipart.FileHeader, 4)
	for _, r := range required {
		fh, err := c.FormFile(r.field)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": r.label + " file is required",
			})
		}
		files[r.field] = fh
	}

	if fh, err := c.FormFile("additional_file"); err == nil {
		files["additional_file"] = fh
	}

	buckets := h.uploader.Buckets()
	bucketFor := map[string]string{
		"question_paper":  buckets.QuestionPapers,
		"grading_rubric":  buckets.GradingRubrics,
		"answer_sheet":    buckets.AnswerSheets,
		"additional_file": buckets.AdditionalFiles,
	}

	keys := make(map[string]string, len(files))
	payloads := make(map[string][]byte, len(files))
	contentTypes := make(map[string]string, len(files))

	for field, fh := range files {
		key, err := objectstore.GenerateKey(fh.Filename)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "Invalid file",
				"details": err.Error(),
			})
		}

		data, err := readMultipartFile(fh)
		if err != nil {
			logger.Error("Failed to read uploaded file", zap.String("field", field), zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Failed to read uploaded file",
			})
		}

		keys[field] = key
		payloads[field] = data
		contentTypes[field] = fh.Header.Get("Content-Type")
	}

	// All uploads run concurrently; one failure fails the whole submission
	// and no session row is created.
	if err := h.uploadAll(c.Context(), bucketFor, keys, payloads, contentTypes); err != nil {
		logger.Error("Submission upload failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to upload files",
		})
	}

	now := time.Now()
	gradingSession := &models.GradingSession{
		ID:                uuid.New().String(),
		UserID:            userID,
		QuestionPaperPath: keys["question_paper"],
		GradingRubricPath: keys["grading_rubric"],
		AnswerSheetPath:   keys["answer_sheet"],
		Status:            models.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if key, ok := keys["additional_file"]; ok {
		gradingSession.AdditionalFilePath = &key
	}

	if err := h.store.InsertSession(c.Context(), gradingSession); err != nil {
		logger.Error("Failed to create grading session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create grading session",
		})
	}

	result, err := h.processor.Process(c.Context(), gradingSession.ID)
	if err != nil {
		logger.Error("Failed to process grading session",
			zap.String("session_id", gradingSession.ID),
			zap.Error(err),
		)
		return c.Status(statusForError(err)).JSON(fiber.Map{
			"error":      "Failed to process grading session",
			"details":    err.Error(),
			"session_id": gradingSession.ID,
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

func (h *SubmissionHandler) uploadAll(
	ctx context.Context,
	bucketFor map[string]string,
	keys map[string]string,
	payloads map[string][]byte,
	contentTypes map[string]string,
) error {
	ch := make(chan error, len(keys))

	for field, key := range keys {
		field, key := field, key
		go func() {
			bucket := bucketFor[field]
			err := h.uploader.Upload(ctx, bucket, key, payloads[field], contentTypes[field])
			if err != nil {
				metrics.UploadsTotal.WithLabelValues(bucket, "error").Inc()
			} else {
				metrics.UploadsTotal.WithLabelValues(bucket, "ok").Inc()
			}
			ch <- err
		}()
	}

	var firstErr error
	for range keys {
		if err := <-ch; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func readMultipartFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrSessionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, errdefs.ErrSessionProcessing):
		return fiber.StatusConflict
	case errors.Is(err, errdefs.ErrValidation):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
