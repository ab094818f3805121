package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradepilot/backend/internal/errdefs"
	"github.com/gradepilot/backend/internal/objectstore"
	"github.com/gradepilot/backend/internal/ocr"
	"github.com/gradepilot/backend/internal/storage/models"
	"github.com/gradepilot/backend/pkg/config"
)

type fakeStore struct {
	mu        sync.Mutex
	sessions  map[string]*models.GradingSession
	extracted []*models.ExtractedText
	claimErr  error
}

func newFakeStore(sessions ...*models.GradingSession) *fakeStore {
	s := &fakeStore{sessions: make(map[string]*models.GradingSession)}
	for _, session := range sessions {
		s.sessions[session.ID] = session
	}
	return s
}

func (s *fakeStore) GetSession(ctx context.Context, id string) (*models.GradingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, errdefs.ErrSessionNotFound)
	}
	copied := *session
	return &copied, nil
}

func (s *fakeStore) ClaimSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return s.claimErr
	}
	session := s.sessions[id]
	if session.Status == models.StatusProcessing {
		return fmt.Errorf("session %s: %w", id, errdefs.ErrSessionProcessing)
	}
	session.Status = models.StatusProcessing
	return nil
}

func (s *fakeStore) CompleteSession(ctx context.Context, id, feedback string, score *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := s.sessions[id]
	session.Status = models.StatusCompleted
	session.Feedback = &feedback
	session.Score = score
	return nil
}

func (s *fakeStore) FailSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id].Status = models.StatusFailed
	return nil
}

func (s *fakeStore) InsertExtractedText(ctx context.Context, et *models.ExtractedText) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extracted = append(s.extracted, et)
	return nil
}

func (s *fakeStore) status(id string) models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id].Status
}

type fakeObjects struct {
	blobs   map[string][]byte
	latency time.Duration
}

func (o *fakeObjects) Buckets() objectstore.Buckets {
	return objectstore.Buckets{
		QuestionPapers:  "question-papers",
		GradingRubrics:  "grading-rubrics",
		AnswerSheets:    "answer-sheets",
		AdditionalFiles: "additional-files",
	}
}

func (o *fakeObjects) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	if o.latency > 0 {
		select {
		case <-time.After(o.latency):
		case <-ctx.Done():
			// Same mapping the real object store applies to an expired deadline.
			return nil, fmt.Errorf("download %s/%s: %w", bucket, key, errdefs.ErrTimeout)
		}
	}
	data, ok := o.blobs[bucket+"/"+key]
	if !ok || len(data) == 0 {
		return nil, fmt.Errorf("object %s/%s: %w", bucket, key, errdefs.ErrDownloadFailed)
	}
	return data, nil
}

type fakeExtractor struct {
	latency  time.Duration
	failFor  string
	mu       sync.Mutex
	extracts int
}

func (e *fakeExtractor) Extract(ctx context.Context, doc ocr.Document) (*ocr.Result, error) {
	if e.latency > 0 {
		time.Sleep(e.latency)
	}
	e.mu.Lock()
	e.extracts++
	e.mu.Unlock()
	if e.failFor == doc.Category {
		return nil, fmt.Errorf("ocr for %s: %w", doc.Category, errdefs.ErrExtractionFailed)
	}
	confidence := 0.9
	return &ocr.Result{Text: string(doc.Data), Confidence: &confidence}, nil
}

type fakeGrader struct {
	mu       sync.Mutex
	prompts  []string
	feedback string
	err      error
}

func (g *fakeGrader) Grade(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	return g.feedback, nil
}

func pendingSession(id string) *models.GradingSession {
	return &models.GradingSession{
		ID:                id,
		UserID:            "user-1",
		QuestionPaperPath: "qp.png",
		GradingRubricPath: "rubric.png",
		AnswerSheetPath:   "answers.png",
		Status:            models.StatusPending,
	}
}

func blobsFor(session *models.GradingSession, question, rubric, answer string) map[string][]byte {
	return map[string][]byte{
		"question-papers/" + session.QuestionPaperPath: []byte(question),
		"grading-rubrics/" + session.GradingRubricPath: []byte(rubric),
		"answer-sheets/" + session.AnswerSheetPath:     []byte(answer),
	}
}

func newTestProcessor(store SessionStore, objects ObjectStore, extractor ocr.Extractor, grader Grader) *Processor {
	return NewProcessor(
		store,
		objects,
		extractor,
		grader,
		func(q, r, a string, maxLen int) string {
			return fmt.Sprintf("Q:%s R:%s A:%s", q, r, a)
		},
		func(feedback string) (int, bool) { return 100, true },
		config.GradingConfig{MaxTextLength: 2000, ProcessTimeoutSec: 30},
	)
}

func TestProcess_CompletesSessionWithFeedback(t *testing.T) {
	session := pendingSession("s1")
	store := newFakeStore(session)
	objects := &fakeObjects{blobs: blobsFor(session, "What is 2+2?", "Award 10 points for correct answer", "4")}
	grader := &fakeGrader{feedback: "Feedback: correct. Score: 100/100"}

	p := newTestProcessor(store, objects, &fakeExtractor{}, grader)

	result, err := p.Process(context.Background(), "s1")

	require.NoError(t, err)
	assert.Equal(t, "Feedback: correct. Score: 100/100", result.Feedback)
	require.NotNil(t, result.Score)
	assert.Equal(t, 100, *result.Score)

	assert.Equal(t, models.StatusCompleted, store.status("s1"))
	require.NotNil(t, store.sessions["s1"].Feedback)
	assert.Equal(t, "Feedback: correct. Score: 100/100", *store.sessions["s1"].Feedback)

	require.Len(t, grader.prompts, 1)
	assert.Contains(t, grader.prompts[0], "What is 2+2?")
	assert.Contains(t, grader.prompts[0], "Award 10 points for correct answer")
	assert.Contains(t, grader.prompts[0], "A:4")

	require.Len(t, store.extracted, 1)
	assert.Equal(t, "4", store.extracted[0].AnswerSheet)
}

func TestProcess_SessionNotFound(t *testing.T) {
	p := newTestProcessor(newFakeStore(), &fakeObjects{}, &fakeExtractor{}, &fakeGrader{})

	_, err := p.Process(context.Background(), "missing")

	assert.ErrorIs(t, err, errdefs.ErrSessionNotFound)
}

func TestProcess_DownloadFailureNamesCategory(t *testing.T) {
	session := pendingSession("s1")
	store := newFakeStore(session)
	blobs := blobsFor(session, "q", "r", "a")
	delete(blobs, "answer-sheets/"+session.AnswerSheetPath)
	grader := &fakeGrader{feedback: "unused"}

	p := newTestProcessor(store, &fakeObjects{blobs: blobs}, &fakeExtractor{}, grader)

	_, err := p.Process(context.Background(), "s1")

	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrDownloadFailed)
	assert.Contains(t, err.Error(), CategoryAnswerSheet)
	assert.Equal(t, models.StatusFailed, store.status("s1"))
	assert.Empty(t, grader.prompts)
	assert.Empty(t, store.extracted)
}

func TestProcess_ExtractionFailureAborts(t *testing.T) {
	session := pendingSession("s1")
	store := newFakeStore(session)
	objects := &fakeObjects{blobs: blobsFor(session, "q", "r", "a")}
	grader := &fakeGrader{feedback: "unused"}

	p := newTestProcessor(store, objects, &fakeExtractor{failFor: CategoryGradingRubric}, grader)

	_, err := p.Process(context.Background(), "s1")

	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrExtractionFailed)
	assert.Equal(t, models.StatusFailed, store.status("s1"))
	assert.Empty(t, grader.prompts)
	assert.Empty(t, store.extracted)
}

func TestProcess_GradingFailureKeepsFeedbackEmpty(t *testing.T) {
	session := pendingSession("s1")
	store := newFakeStore(session)
	objects := &fakeObjects{blobs: blobsFor(session, "q", "r", "a")}
	grader := &fakeGrader{err: fmt.Errorf("upstream: %w", errdefs.ErrGradingFailed)}

	p := newTestProcessor(store, objects, &fakeExtractor{}, grader)

	_, err := p.Process(context.Background(), "s1")

	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrGradingFailed)
	assert.Equal(t, models.StatusFailed, store.status("s1"))
	assert.Nil(t, store.sessions["s1"].Feedback)
}

func TestProcess_RejectsConcurrentInvocation(t *testing.T) {
	session := pendingSession("s1")
	session.Status = models.StatusProcessing
	store := newFakeStore(session)

	p := newTestProcessor(store, &fakeObjects{}, &fakeExtractor{}, &fakeGrader{})

	_, err := p.Process(context.Background(), "s1")

	assert.ErrorIs(t, err, errdefs.ErrSessionProcessing)
}

func TestProcess_DownloadsAndExtractionsRunInParallel(t *testing.T) {
	session := pendingSession("s1")
	store := newFakeStore(session)
	objects := &fakeObjects{
		blobs:   blobsFor(session, "q", "r", "a"),
		latency: 50 * time.Millisecond,
	}
	extractor := &fakeExtractor{latency: 50 * time.Millisecond}

	p := newTestProcessor(store, objects, extractor, &fakeGrader{feedback: "ok"})

	start := time.Now()
	_, err := p.Process(context.Background(), "s1")
	elapsed := time.Since(start)

	require.NoError(t, err)
	// Sequential execution would take at least 6x the single latency;
	// parallel joins keep each phase near the max single latency.
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestProcess_TimeoutFailsSessionWithErrTimeout(t *testing.T) {
	session := pendingSession("s1")
	store := newFakeStore(session)
	objects := &fakeObjects{
		blobs:   blobsFor(session, "q", "r", "a"),
		latency: 5 * time.Second,
	}
	grader := &fakeGrader{feedback: "unused"}

	p := NewProcessor(
		store,
		objects,
		&fakeExtractor{},
		grader,
		func(q, r, a string, maxLen int) string { return q + r + a },
		func(feedback string) (int, bool) { return 0, false },
		config.GradingConfig{MaxTextLength: 2000, ProcessTimeoutSec: 1},
	)

	_, err := p.Process(context.Background(), "s1")

	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrTimeout)
	assert.Equal(t, models.StatusFailed, store.status("s1"))
	assert.Empty(t, grader.prompts)
	assert.Empty(t, store.extracted)
}

func TestProcess_ReportsStages(t *testing.T) {
	session := pendingSession("s1")
	store := newFakeStore(session)
	objects := &fakeObjects{blobs: blobsFor(session, "q", "r", "a")}

	p := newTestProcessor(store, objects, &fakeExtractor{}, &fakeGrader{feedback: "ok"})

	var stages []string
	_, err := p.ProcessWithProgress(context.Background(), "s1", func(stage string) {
		stages = append(stages, stage)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{StageDownloading, StageExtracting, StagePersisting, StageGrading}, stages)
}

func TestProcess_AdditionalFileDownloadedButNotGraded(t *testing.T) {
	session := pendingSession("s1")
	extra := "notes.txt"
	session.AdditionalFilePath = &extra
	store := newFakeStore(session)

	blobs := blobsFor(session, "q", "r", "a")
	blobs["additional-files/notes.txt"] = []byte("teacher notes")
	extractor := &fakeExtractor{}

	p := newTestProcessor(store, &fakeObjects{blobs: blobs}, extractor, &fakeGrader{feedback: "ok"})

	_, err := p.Process(context.Background(), "s1")

	require.NoError(t, err)
	assert.Equal(t, 3, extractor.extracts)
}

func TestProcess_AggregatesConfidence(t *testing.T) {
	session := pendingSession("s1")
	store := newFakeStore(session)
	objects := &fakeObjects{blobs: blobsFor(session, "q", "r", "a")}

	p := newTestProcessor(store, objects, &fakeExtractor{}, &fakeGrader{feedback: "ok"})

	result, err := p.Process(context.Background(), "s1")

	require.NoError(t, err)
	require.NotNil(t, result.Confidence)
	assert.InDelta(t, 0.9, *result.Confidence, 0.001)
	require.Len(t, store.extracted, 1)
	require.NotNil(t, store.extracted[0].ConfidenceScore)
}
