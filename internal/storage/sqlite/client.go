package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/gradepilot/backend/internal/errdefs"
	"github.com/gradepilot/backend/internal/storage/models"
	"github.com/gradepilot/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS grading_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		question_paper_path TEXT NOT NULL,
		grading_rubric_path TEXT NOT NULL,
		answer_sheet_path TEXT NOT NULL,
		additional_file_path TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		feedback TEXT,
		score INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON grading_sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON grading_sessions(status);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON grading_sessions(created_at);

	CREATE TABLE IF NOT EXISTS extracted_texts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		grading_session_id TEXT NOT NULL,
		question_paper_text TEXT NOT NULL,
		grading_rubric_text TEXT NOT NULL,
		answer_sheet_text TEXT NOT NULL,
		raw_response TEXT,
		confidence_score REAL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (grading_session_id) REFERENCES grading_sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_extracted_session ON extracted_texts(grading_session_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertSession(ctx context.Context, session *models.GradingSession) error {
	query := `
		INSERT INTO grading_sessions (id, user_id, question_paper_path, grading_rubric_path,
			answer_sheet_path, additional_file_path, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		session.ID,
		session.UserID,
		session.QuestionPaperPath,
		session.GradingRubricPath,
		session.AnswerSheetPath,
		session.AdditionalFilePath,
		string(session.Status),
		session.CreatedAt.Unix(),
		session.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert session: %v: %w", err, errdefs.ErrPersistenceFailed)
	}

	logger.Debug("Grading session inserted",
		zap.String("session_id", session.ID),
		zap.String("user_id", session.UserID),
	)
	return nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*models.GradingSession, error) {
	query := `
		SELECT id, user_id, question_paper_path, grading_rubric_path, answer_sheet_path,
			additional_file_path, status, feedback, score, created_at, updated_at
		FROM grading_sessions WHERE id = ?
	`

	var s models.GradingSession
	var status string
	var createdAt, updatedAt int64

	err := c.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID,
		&s.UserID,
		&s.QuestionPaperPath,
		&s.GradingRubricPath,
		&s.AnswerSheetPath,
		&s.AdditionalFilePath,
		&status,
		&s.Feedback,
		&s.Score,
		&createdAt,
		&updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, errdefs.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	s.Status = models.SessionStatus(status)
	s.CreatedAt = time.Unix(createdAt, 0)
	s.UpdatedAt = time.Unix(updatedAt, 0)

	return &s, nil
}

func (c *Client) ListSessionsByUser(ctx context.Context, userID string, limit int) ([]models.GradingSession, error) {
	query := `
		SELECT id, status, feedback, score, created_at
		FROM grading_sessions
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.GradingSession
	for rows.Next() {
		var s models.GradingSession
		var status string
		var createdAt int64

		err := rows.Scan(&s.ID, &status, &s.Feedback, &s.Score, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		s.UserID = userID
		s.Status = models.SessionStatus(status)
		s.CreatedAt = time.Unix(createdAt, 0)
		sessions = append(sessions, s)
	}

	return sessions, nil
}

// ClaimSession moves a session into the processing state. The conditional
// update is the transition guard: a session already claimed by a concurrent
// invocation matches zero rows and the claim is rejected.
func (c *Client) ClaimSession(ctx context.Context, id string) error {
	query := `
		UPDATE grading_sessions
		SET status = 'processing', updated_at = ?
		WHERE id = ? AND status IN ('pending', 'completed', 'failed')
	`

	res, err := c.db.ExecContext(ctx, query, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to claim session: %v: %w", err, errdefs.ErrPersistenceFailed)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to claim session: %v: %w", err, errdefs.ErrPersistenceFailed)
	}
	if affected == 0 {
		return fmt.Errorf("session %s: %w", id, errdefs.ErrSessionProcessing)
	}

	logger.Debug("Grading session claimed", zap.String("session_id", id))
	return nil
}

// CompleteSession stores the feedback verbatim and flips the status. The
// orchestrator is the only writer; handlers never persist feedback.
func (c *Client) CompleteSession(ctx context.Context, id, feedback string, score *int) error {
	query := `
		UPDATE grading_sessions
		SET status = 'completed', feedback = ?, score = ?, updated_at = ?
		WHERE id = ?
	`

	_, err := c.db.ExecContext(ctx, query, feedback, score, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to complete session: %v: %w", err, errdefs.ErrPersistenceFailed)
	}

	logger.Info("Grading session completed",
		zap.String("session_id", id),
		zap.Int("feedback_length", len(feedback)),
	)
	return nil
}

func (c *Client) FailSession(ctx context.Context, id string) error {
	query := `UPDATE grading_sessions SET status = 'failed', updated_at = ? WHERE id = ?`

	_, err := c.db.ExecContext(ctx, query, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark session failed: %v: %w", err, errdefs.ErrPersistenceFailed)
	}

	logger.Warn("Grading session failed", zap.String("session_id", id))
	return nil
}

func (c *Client) InsertExtractedText(ctx context.Context, et *models.ExtractedText) error {
	query := `
		INSERT INTO extracted_texts (grading_session_id, question_paper_text, grading_rubric_text,
			answer_sheet_text, raw_response, confidence_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		et.GradingSessionID,
		et.QuestionPaper,
		et.GradingRubric,
		et.AnswerSheet,
		et.RawResponse,
		et.ConfidenceScore,
		time.Now().Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert extracted text: %v: %w", err, errdefs.ErrPersistenceFailed)
	}

	logger.Debug("Extracted text stored", zap.String("session_id", et.GradingSessionID))
	return nil
}

func (c *Client) GetExtractedText(ctx context.Context, sessionID string) (*models.ExtractedText, error) {
	query := `
		SELECT id, grading_session_id, question_paper_text, grading_rubric_text,
			answer_sheet_text, raw_response, confidence_score, created_at
		FROM extracted_texts
		WHERE grading_session_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	var et models.ExtractedText
	var createdAt int64

	err := c.db.QueryRowContext(ctx, query, sessionID).Scan(
		&et.ID,
		&et.GradingSessionID,
		&et.QuestionPaper,
		&et.GradingRubric,
		&et.AnswerSheet,
		&et.RawResponse,
		&et.ConfidenceScore,
		&createdAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("extracted text for session %s: %w", sessionID, errdefs.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get extracted text: %w", err)
	}

	et.CreatedAt = time.Unix(createdAt, 0)
	return &et, nil
}
