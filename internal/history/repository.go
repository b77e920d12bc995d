// Package history persists finished pipeline runs and their per-match outcomes.
package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/recbridge/backend/internal/models"
	"github.com/recbridge/backend/pkg/database"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Repository stores run history in processing_jobs and event_matches.
type Repository struct {
	db database.DB
}

// NewRepository creates a history repository.
func NewRepository(db database.DB) *Repository {
	return &Repository{db: db}
}

// Record writes job and replaces its outcomes in one transaction.
func (r *Repository) Record(ctx context.Context, job models.ProcessingJob) error {
	messages, err := json.Marshal(job.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	var userID *uuid.UUID
	if job.SubmittedBy.UserID != uuid.Nil {
		id := job.SubmittedBy.UserID
		userID = &id
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const upsertJob = `INSERT INTO processing_jobs (id, user_id, user_email, status, current_step, total_steps, messages, error_message, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_step = EXCLUDED.current_step,
			messages = EXCLUDED.messages,
			error_message = EXCLUDED.error_message,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at`
	if _, err := tx.Exec(ctx, upsertJob, job.ID, userID, job.SubmittedBy.Email, string(job.Status), job.Current, job.Total,
		string(messages), job.ErrorMessage, job.CreatedAt, job.StartedAt, job.CompletedAt); err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM event_matches WHERE processing_job_id = $1`, job.ID); err != nil {
		return fmt.Errorf("clear outcomes: %w", err)
	}
	const insertOutcome = `INSERT INTO event_matches (processing_job_id, session_id, session_topic, session_start, event_id, event_name, event_start, outcome, file_path, file_size, video_id, error_message, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	for _, o := range job.Outcomes {
		if _, err := tx.Exec(ctx, insertOutcome, job.ID, o.SessionID, o.SessionTopic, o.SessionStart, o.EventID, o.EventName,
			o.EventStart, o.Outcome, o.FilePath, o.FileSize, o.VideoID, o.Error, o.ProcessedAt); err != nil {
			return fmt.Errorf("insert outcome: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// List returns the most recent runs, newest first, without messages or outcomes.
func (r *Repository) List(ctx context.Context, limit int) ([]models.ProcessingJob, error) {
	if limit <= 0 || limit > 500 {
		limit = DefaultListLimit
	}
	const q = `SELECT id, COALESCE(user_email,''), status, current_step, total_steps, COALESCE(error_message,''), created_at, started_at, completed_at
		FROM processing_jobs ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]models.ProcessingJob, 0)
	for rows.Next() {
		var (
			j      models.ProcessingJob
			status string
		)
		if err := rows.Scan(&j.ID, &j.SubmittedBy.Email, &status, &j.Current, &j.Total, &j.ErrorMessage,
			&j.CreatedAt, &j.StartedAt, &j.CompletedAt); err != nil {
			return nil, err
		}
		j.Status = models.JobStatus(status)
		j.Messages = []string{}
		list = append(list, j)
	}
	return list, rows.Err()
}

// Outcomes returns the recorded outcomes of one run in processing order.
func (r *Repository) Outcomes(ctx context.Context, runID string) ([]models.MatchOutcome, error) {
	const q = `SELECT session_id, COALESCE(session_topic,''), event_id, COALESCE(event_name,''), outcome,
		COALESCE(file_path,''), COALESCE(video_id,''), COALESCE(error_message,''), processed_at
		FROM event_matches WHERE processing_job_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, q, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]models.MatchOutcome, 0)
	for rows.Next() {
		var o models.MatchOutcome
		if err := rows.Scan(&o.SessionID, &o.SessionTopic, &o.EventID, &o.EventName, &o.Outcome,
			&o.FilePath, &o.VideoID, &o.Error, &o.ProcessedAt); err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
