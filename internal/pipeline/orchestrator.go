// Package pipeline runs operator-confirmed matches through duplicate check,
// file discovery, download and publish on a bounded worker pool.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recbridge/backend/internal/metrics"
	"github.com/recbridge/backend/internal/models"
	"github.com/recbridge/backend/internal/progress"
	"github.com/recbridge/backend/internal/youtube"
	"github.com/recbridge/backend/pkg/queue"
)

var (
	// ErrInvalidInput is returned by Submit for an empty or malformed match list.
	ErrInvalidInput = errors.New("invalid input")
	// ErrQueueFull is returned by Submit when no worker slot can be reserved.
	ErrQueueFull = queue.ErrQueueFull
)

// DefaultWorkers is the worker pool size when none is configured.
const DefaultWorkers = 4

// RecordingSource fetches recorded media.
type RecordingSource interface {
	AccessToken(ctx context.Context) (string, error)
	ListFiles(ctx context.Context, token, sessionID string) ([]models.MediaFile, error)
	Download(ctx context.Context, token string, file models.MediaFile, dir string) (string, int64, error)
}

// Publisher uploads recordings to the hosting platform.
type Publisher interface {
	Reachable(ctx context.Context) bool
	Upload(ctx context.Context, path string, req youtube.UploadRequest) (*models.PublishedVideo, error)
}

// DuplicateChecker consults and updates the video cache.
type DuplicateChecker interface {
	Check(ctx context.Context, title string) (*models.PublishedVideo, bool, error)
	Remember(ctx context.Context, v models.PublishedVideo) error
}

// Archiver copies downloads to object storage.
type Archiver interface {
	ArchiveFile(ctx context.Context, localPath, key string) (string, error)
}

// History records finished runs.
type History interface {
	Record(ctx context.Context, job models.ProcessingJob) error
}

// deadLetterer is implemented by queues that keep undecodable jobs.
type deadLetterer interface {
	DeadLetter(ctx context.Context, job *queue.Job) error
}

// Config tunes the orchestrator.
type Config struct {
	Workers     int
	DownloadDir string
	// CheckExisting enables the duplicate check before download.
	CheckExisting bool
	// Location renders session start times in descriptions.
	Location *time.Location
}

// Deps are the orchestrator's collaborators. Archiver and History may be nil.
type Deps struct {
	Queue     queue.Queue
	Store     progress.Store
	Source    RecordingSource
	Publisher Publisher
	Checker   DuplicateChecker
	Archiver  Archiver
	History   History
}

// Payload is the queued unit of work for one run.
type Payload struct {
	RunID    string                  `json:"run_id"`
	Matches  []models.CandidateMatch `json:"matches"`
	Operator models.Operator         `json:"operator"`
}

// Orchestrator accepts runs and executes them.
type Orchestrator struct {
	cfg          Config
	deps         Deps
	logger       *zap.Logger
	now          func() time.Time
	retryBackoff time.Duration
}

// New creates an orchestrator.
func New(cfg Config, deps Deps, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "downloads"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Orchestrator{cfg: cfg, deps: deps, logger: logger, now: time.Now, retryBackoff: queue.RetryBackoff}
}

// Submit validates matches, stores a queued run and hands it to the queue.
// It returns without waiting for any pipeline work.
func (o *Orchestrator) Submit(ctx context.Context, matches []models.CandidateMatch, op models.Operator) (string, error) {
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: no matches provided", ErrInvalidInput)
	}
	for i, m := range matches {
		if err := m.Validate(); err != nil {
			return "", fmt.Errorf("%w: match %d: %v", ErrInvalidInput, i+1, err)
		}
	}

	runID := uuid.NewString()
	job := models.ProcessingJob{
		ID:          runID,
		Status:      models.JobStatusQueued,
		Total:       len(matches),
		Messages:    []string{},
		SubmittedBy: op,
		CreatedAt:   o.now(),
	}
	if err := o.deps.Store.Put(ctx, job); err != nil {
		return "", fmt.Errorf("store run: %w", err)
	}

	qjob, err := queue.NewJob(queue.JobTypeProcessMatches, Payload{RunID: runID, Matches: matches, Operator: op})
	if err != nil {
		return "", err
	}
	qjob.ID = runID
	if err := o.deps.Queue.Enqueue(ctx, qjob); err != nil {
		job.Status = models.JobStatusError
		job.ErrorMessage = "Failed to start processing: " + err.Error()
		job.Messages = append(job.Messages, job.ErrorMessage)
		done := o.now()
		job.CompletedAt = &done
		if perr := o.deps.Store.Put(ctx, job); perr != nil {
			o.logger.Warn("store rejected run failed", zap.String("run_id", runID), zap.Error(perr))
		}
		return "", fmt.Errorf("enqueue run: %w", err)
	}

	o.logger.Info("run submitted",
		zap.String("run_id", runID),
		zap.Int("matches", len(matches)),
		zap.String("operator", op.Email),
		zap.String("operator_id", op.UserID.String()))
	return runID, nil
}

// Poll returns the latest snapshot for runID. Unknown runs, and runs the store
// cannot read, come back with status not_found.
func (o *Orchestrator) Poll(ctx context.Context, runID string) models.ProcessingJob {
	job, ok, err := o.deps.Store.Get(ctx, runID)
	if err != nil {
		o.logger.Warn("progress read failed", zap.String("run_id", runID), zap.Error(err))
	}
	if err != nil || !ok {
		return models.ProcessingJob{ID: runID, Status: models.JobStatusNotFound, Messages: []string{}}
	}
	return job
}

// Run starts the worker pool and blocks until ctx is done or the queue is closed.
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info("pipeline workers starting", zap.Int("workers", o.cfg.Workers))
	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			o.work(ctx, id)
		}(i + 1)
	}
	wg.Wait()
	o.logger.Info("pipeline workers stopped")
}

func (o *Orchestrator) work(ctx context.Context, id int) {
	log := o.logger.With(zap.Int("worker", id))
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := o.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			log.Warn("dequeue error", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(queue.RetryBackoff):
			}
			continue
		}
		if job == nil {
			continue
		}
		o.handle(ctx, job, log)
	}
}

func (o *Orchestrator) handle(ctx context.Context, job *queue.Job, log *zap.Logger) {
	if job.Type != queue.JobTypeProcessMatches {
		log.Warn("unknown job type", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		o.deadLetter(ctx, job, log)
		return
	}
	var p Payload
	if err := json.Unmarshal(job.Payload, &p); err != nil || p.RunID == "" {
		log.Warn("invalid run payload", zap.String("job_id", job.ID), zap.Error(err))
		o.deadLetter(ctx, job, log)
		return
	}
	if err := o.Execute(ctx, p); err != nil {
		log.Warn("run not started", zap.String("run_id", p.RunID), zap.Int("attempt", job.Attempt), zap.Error(err))
		o.retry(ctx, job, p, log)
	}
}

// retry hands job back to the queue after a backoff. The job is re-enqueued
// even when ctx ends during the wait so that shutdown does not lose it.
func (o *Orchestrator) retry(ctx context.Context, job *queue.Job, p Payload, log *zap.Logger) {
	bg := context.WithoutCancel(ctx)
	if o.retryBackoff > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(o.retryBackoff):
		}
	}
	err := o.deps.Queue.Retry(bg, job)
	switch {
	case err == nil:
	case errors.Is(err, queue.ErrRetriesExhausted):
		log.Error("run abandoned after retries", zap.String("run_id", p.RunID), zap.Int("attempt", job.Attempt))
		o.abandon(bg, p, log)
	default:
		log.Error("retry failed", zap.String("run_id", p.RunID), zap.Error(err))
	}
}

// abandon records a terminal error for a run that never started. The write
// is best effort since the store was failing.
func (o *Orchestrator) abandon(ctx context.Context, p Payload, log *zap.Logger) {
	done := o.now()
	msg := "Error: progress store unavailable, run abandoned"
	job := models.ProcessingJob{
		ID:           p.RunID,
		Status:       models.JobStatusError,
		Total:        len(p.Matches),
		Messages:     []string{msg},
		ErrorMessage: msg,
		SubmittedBy:  p.Operator,
		CreatedAt:    done,
		CompletedAt:  &done,
	}
	if err := o.deps.Store.Put(ctx, job); err != nil {
		log.Warn("store abandoned run failed", zap.String("run_id", p.RunID), zap.Error(err))
	}
	metrics.RunsTotal.WithLabelValues(string(models.JobStatusError)).Inc()
}

func (o *Orchestrator) deadLetter(ctx context.Context, job *queue.Job, log *zap.Logger) {
	if dl, ok := o.deps.Queue.(deadLetterer); ok {
		if err := dl.DeadLetter(ctx, job); err != nil {
			log.Error("dead letter failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}
