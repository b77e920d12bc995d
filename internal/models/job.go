package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a processing run.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
	// JobStatusNotFound is reported by polls for unknown run IDs; it is never stored.
	JobStatusNotFound JobStatus = "not_found"
)

// Terminal reports whether no further transitions can happen.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// Match outcomes recorded per processed pair.
const (
	OutcomeDuplicate      = "duplicate"
	OutcomeListFailed     = "list_failed"
	OutcomeNoVideo        = "no_video"
	OutcomeDownloadFailed = "download_failed"
	OutcomeDownloaded     = "downloaded"
	OutcomeUploaded       = "uploaded"
	OutcomeUploadFailed   = "upload_failed"
)

// MatchOutcome records what happened to one confirmed match within a run.
type MatchOutcome struct {
	SessionID    string    `json:"session_id"`
	SessionTopic string    `json:"session_topic"`
	SessionStart time.Time `json:"session_start"`
	EventID      string    `json:"event_id"`
	EventName    string    `json:"event_name"`
	EventStart   time.Time `json:"event_start"`
	Outcome      string    `json:"outcome"`
	FilePath     string    `json:"file_path,omitempty"`
	FileSize     int64     `json:"file_size,omitempty"`
	VideoID      string    `json:"video_id,omitempty"`
	Error        string    `json:"error,omitempty"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// Operator is the authenticated caller that submitted a run. Used for audit only.
type Operator struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

// ProcessingJob is one pipeline run over a set of confirmed matches.
type ProcessingJob struct {
	ID           string         `json:"id"`
	Status       JobStatus      `json:"status"`
	Current      int            `json:"current"`
	Total        int            `json:"total"`
	Messages     []string       `json:"messages"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Outcomes     []MatchOutcome `json:"outcomes,omitempty"`
	SubmittedBy  Operator       `json:"submitted_by"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// ProgressPercent returns the share of matches started, 0 when the run is empty.
func (j ProcessingJob) ProgressPercent() float64 {
	if j.Total <= 0 {
		return 0
	}
	return float64(j.Current) / float64(j.Total) * 100
}

// Clone returns a deep copy so the caller can mutate it without affecting readers.
func (j ProcessingJob) Clone() ProcessingJob {
	c := j
	c.Messages = append([]string(nil), j.Messages...)
	if c.Messages == nil {
		c.Messages = []string{}
	}
	c.Outcomes = append([]MatchOutcome(nil), j.Outcomes...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return c
}
