package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gradepilot/backend/internal/metrics"
	"github.com/gradepilot/backend/internal/objectstore"
	"github.com/gradepilot/backend/internal/ocr"
	"github.com/gradepilot/backend/internal/storage/models"
	"github.com/gradepilot/backend/pkg/config"
	"github.com/gradepilot/backend/pkg/logger"
)

// Document categories as they appear in error messages and progress events.
const (
	CategoryQuestionPaper  = "question paper"
	CategoryGradingRubric  = "grading rubric"
	CategoryAnswerSheet    = "answer sheet"
	CategoryAdditionalFile = "additional file"
)

// Pipeline stages reported through progress callbacks.
const (
	StageDownloading = "downloading"
	StageExtracting  = "extracting"
	StageGrading     = "grading"
	StagePersisting  = "persisting"
)

type SessionStore interface {
	GetSession(ctx context.Context, id string) (*models.GradingSession, error)
	ClaimSession(ctx context.Context, id string) error
	CompleteSession(ctx context.Context, id, feedback string, score *int) error
	FailSession(ctx context.Context, id string) error
	InsertExtractedText(ctx context.Context, et *models.ExtractedText) error
}

type ObjectStore interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	Buckets() objectstore.Buckets
}

type Grader interface {
	Grade(ctx context.Context, prompt string) (string, error)
}

type PromptBuilder func(questionPaper, gradingRubric, answerSheet string, maxLen int) string

type ScoreParser func(feedback string) (int, bool)

// Processor is the session orchestrator: download, extract, grade, persist.
// It is the single owner of session status and feedback writes.
type Processor struct {
	store          SessionStore
	objects        ObjectStore
	extractor      ocr.Extractor
	grader         Grader
	buildPrompt    PromptBuilder
	parseScore     ScoreParser
	maxTextLength  int
	processTimeout time.Duration
}

type Result struct {
	SessionID  string
	Message    string
	Feedback   string
	Score      *int
	Confidence *float64
	LatencyMS  int
}

func NewProcessor(
	store SessionStore,
	objects ObjectStore,
	extractor ocr.Extractor,
	grader Grader,
	buildPrompt PromptBuilder,
	parseScore ScoreParser,
	cfg config.GradingConfig,
) *Processor {
	maxTextLength := cfg.MaxTextLength
	if maxTextLength == 0 {
		maxTextLength = 2000
	}

	processTimeout := time.Duration(cfg.ProcessTimeoutSec) * time.Second
	if processTimeout == 0 {
		processTimeout = 3 * time.Minute
	}

	return &Processor{
		store:          store,
		objects:        objects,
		extractor:      extractor,
		grader:         grader,
		buildPrompt:    buildPrompt,
		parseScore:     parseScore,
		maxTextLength:  maxTextLength,
		processTimeout: processTimeout,
	}
}

func (p *Processor) Process(ctx context.Context, sessionID string) (*Result, error) {
	return p.ProcessWithProgress(ctx, sessionID, nil)
}

// ProcessWithProgress runs the full pipeline for one session. A session is
// claimed before any work starts; a concurrent second invocation is rejected
// with ErrSessionProcessing. Re-running a completed or failed session is
// allowed and overwrites feedback.
func (p *Processor) ProcessWithProgress(ctx context.Context, sessionID string, onStage func(stage string)) (*Result, error) {
	startTime := time.Now()

	session, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := p.store.ClaimSession(ctx, sessionID); err != nil {
		return nil, err
	}

	logger.Info("Processing grading session",
		zap.String("session_id", sessionID),
		zap.String("user_id", session.UserID),
	)

	ctx, cancel := context.WithTimeout(ctx, p.processTimeout)
	defer cancel()

	result, err := p.run(ctx, session, onStage)
	if err != nil {
		// Never leave a claimed session stuck in processing. The failure
		// write uses a fresh context since ctx may already be expired.
		failCtx, failCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer failCancel()
		if failErr := p.store.FailSession(failCtx, sessionID); failErr != nil {
			logger.Error("Failed to mark session failed", zap.Error(failErr))
		}

		metrics.SessionsProcessed.WithLabelValues(string(models.StatusFailed)).Inc()
		logger.Error("Grading session failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil, err
	}

	result.LatencyMS = int(time.Since(startTime).Milliseconds())
	metrics.SessionsProcessed.WithLabelValues(string(models.StatusCompleted)).Inc()

	logger.Info("Grading session processed",
		zap.String("session_id", sessionID),
		zap.Int("latency_ms", result.LatencyMS),
	)

	return result, nil
}

type document struct {
	category string
	bucket   string
	key      string
}

func (p *Processor) run(ctx context.Context, session *models.GradingSession, onStage func(stage string)) (*Result, error) {
	buckets := p.objects.Buckets()

	docs := []document{
		{category: CategoryQuestionPaper, bucket: buckets.QuestionPapers, key: session.QuestionPaperPath},
		{category: CategoryGradingRubric, bucket: buckets.GradingRubrics, key: session.GradingRubricPath},
		{category: CategoryAnswerSheet, bucket: buckets.AnswerSheets, key: session.AnswerSheetPath},
	}
	if session.AdditionalFilePath != nil && *session.AdditionalFilePath != "" {
		docs = append(docs, document{
			category: CategoryAdditionalFile,
			bucket:   buckets.AdditionalFiles,
			key:      *session.AdditionalFilePath,
		})
	}

	reportStage(onStage, StageDownloading)
	downloadStart := time.Now()
	blobs, err := p.downloadAll(ctx, docs)
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues(StageDownloading).Observe(time.Since(downloadStart).Seconds())

	reportStage(onStage, StageExtracting)
	extractStart := time.Now()
	texts, err := p.extractAll(ctx, blobs)
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues(StageExtracting).Observe(time.Since(extractStart).Seconds())

	confidence := aggregateConfidence(texts)
	if confidence != nil {
		metrics.OCRConfidence.Observe(*confidence)
	}

	reportStage(onStage, StagePersisting)
	extracted := &models.ExtractedText{
		GradingSessionID: session.ID,
		QuestionPaper:    texts[CategoryQuestionPaper].Text,
		GradingRubric:    texts[CategoryGradingRubric].Text,
		AnswerSheet:      texts[CategoryAnswerSheet].Text,
		RawResponse:      rawPayload(texts),
		ConfidenceScore:  confidence,
	}
	if err := p.store.InsertExtractedText(ctx, extracted); err != nil {
		return nil, err
	}

	reportStage(onStage, StageGrading)
	gradeStart := time.Now()
	prompt := p.buildPrompt(
		extracted.QuestionPaper,
		extracted.GradingRubric,
		extracted.AnswerSheet,
		p.maxTextLength,
	)

	feedback, err := p.grader.Grade(ctx, prompt)
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues(StageGrading).Observe(time.Since(gradeStart).Seconds())

	var score *int
	if parsed, ok := p.parseScore(feedback); ok {
		score = &parsed
		metrics.FeedbackScore.Observe(float64(parsed))
	}

	if err := p.store.CompleteSession(ctx, session.ID, feedback, score); err != nil {
		return nil, err
	}

	return &Result{
		SessionID:  session.ID,
		Message:    "Grading completed",
		Feedback:   feedback,
		Score:      score,
		Confidence: confidence,
	}, nil
}

// downloadAll fetches every referenced blob concurrently and joins
// all-or-nothing: one missing document fails the batch.
func (p *Processor) downloadAll(ctx context.Context, docs []document) (map[string][]byte, error) {
	type item struct {
		category string
		data     []byte
		err      error
	}

	ch := make(chan item, len(docs))
	for _, d := range docs {
		d := d
		go func() {
			data, err := p.objects.Download(ctx, d.bucket, d.key)
			if err != nil {
				err = fmt.Errorf("%s: %w", d.category, err)
			}
			ch <- item{category: d.category, data: data, err: err}
		}()
	}

	blobs := make(map[string][]byte, len(docs))
	var firstErr error
	for range docs {
		it := <-ch
		if it.err != nil {
			if firstErr == nil {
				firstErr = it.err
			}
			continue
		}
		blobs[it.category] = it.data
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return blobs, nil
}

// extractAll runs OCR over the three gradable documents concurrently.
// Extraction failure for any one document aborts the session; an empty
// successful result (blank page) is accepted as empty text.
func (p *Processor) extractAll(ctx context.Context, blobs map[string][]byte) (map[string]*ocr.Result, error) {
	categories := []string{CategoryQuestionPaper, CategoryGradingRubric, CategoryAnswerSheet}

	type item struct {
		category string
		result   *ocr.Result
		err      error
	}

	ch := make(chan item, len(categories))
	for _, category := range categories {
		category := category
		go func() {
			result, err := p.extractor.Extract(ctx, ocr.Document{
				Category: category,
				Data:     blobs[category],
			})
			ch <- item{category: category, result: result, err: err}
		}()
	}

	texts := make(map[string]*ocr.Result, len(categories))
	var firstErr error
	for range categories {
		it := <-ch
		if it.err != nil {
			if firstErr == nil {
				firstErr = it.err
			}
			continue
		}
		texts[it.category] = it.result
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return texts, nil
}

func aggregateConfidence(texts map[string]*ocr.Result) *float64 {
	var sum float64
	var count int
	for _, result := range texts {
		if result.Confidence != nil {
			sum += *result.Confidence
			count++
		}
	}

	if count == 0 {
		return nil
	}

	avg := sum / float64(count)
	return &avg
}

func rawPayload(texts map[string]*ocr.Result) *string {
	raws := make(map[string]string)
	for category, result := range texts {
		if result.Raw != "" {
			raws[category] = result.Raw
		}
	}
	if len(raws) == 0 {
		return nil
	}

	data, err := json.Marshal(raws)
	if err != nil {
		return nil
	}

	payload := string(data)
	return &payload
}

func reportStage(onStage func(stage string), stage string) {
	if onStage != nil {
		onStage(stage)
	}
}
