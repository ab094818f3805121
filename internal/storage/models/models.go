package models

import "time"

type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusProcessing SessionStatus = "processing"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
)

// GradingSession is one grading attempt: three required uploaded documents,
// an optional extra file, and the feedback produced for them.
type GradingSession struct {
	ID                 string
	UserID             string
	QuestionPaperPath  string
	GradingRubricPath  string
	AnswerSheetPath    string
	AdditionalFilePath *string
	Status             SessionStatus
	Feedback           *string
	Score              *int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ExtractedText holds the OCR output for a session. Written once by the
// orchestrator after extraction, never mutated afterward.
type ExtractedText struct {
	ID               int
	GradingSessionID string
	QuestionPaper    string
	GradingRubric    string
	AnswerSheet      string
	RawResponse      *string
	ConfidenceScore  *float64
	CreatedAt        time.Time
}
