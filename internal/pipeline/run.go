package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/recbridge/backend/internal/metrics"
	"github.com/recbridge/backend/internal/models"
	"github.com/recbridge/backend/internal/youtube"
	"github.com/recbridge/backend/pkg/storage"
)

// run is the mutable state of one execution. Only its worker touches it.
type run struct {
	o *Orchestrator
	// bg carries values but not cancellation, so the final snapshot is written during shutdown.
	bg      context.Context
	job     models.ProcessingJob
	log     *zap.Logger
	started time.Time
}

// errProgressUnavailable means the run's snapshot could not be read, so it is
// not known whether the run already finished.
var errProgressUnavailable = errors.New("progress store unavailable")

// Execute processes p to a terminal state on the calling goroutine. It returns
// errProgressUnavailable, without doing any work, when the stored run cannot be read.
func (o *Orchestrator) Execute(ctx context.Context, p Payload) error {
	r, err := o.begin(ctx, p)
	if err != nil || r == nil {
		return err
	}
	defer r.finish()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("run panicked", zap.Any("panic", rec), zap.Stack("stack"))
			r.fail(fmt.Sprintf("Error: %v", rec))
		}
	}()
	r.process(ctx, p.Matches)
	return nil
}

// begin returns a nil run when p already reached a terminal state.
func (o *Orchestrator) begin(ctx context.Context, p Payload) (*run, error) {
	bg := context.WithoutCancel(ctx)
	log := o.logger.With(zap.String("run_id", p.RunID))

	job, found, err := o.deps.Store.Get(bg, p.RunID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errProgressUnavailable, err)
	}
	if found && job.Status.Terminal() {
		log.Info("run already finished, skipping", zap.String("status", string(job.Status)))
		return nil, nil
	}
	if !found {
		job = models.ProcessingJob{ID: p.RunID, SubmittedBy: p.Operator, CreatedAt: o.now()}
	}
	job.Total = len(p.Matches)
	job.Status = models.JobStatusProcessing
	if job.Messages == nil {
		job.Messages = []string{}
	}
	now := o.now()
	job.StartedAt = &now

	r := &run{o: o, bg: bg, job: job, log: log, started: now}
	r.flush()
	metrics.RunStarted()
	log.Info("run started", zap.Int("matches", job.Total), zap.String("operator", job.SubmittedBy.Email))
	return r, nil
}

func (r *run) process(ctx context.Context, matches []models.CandidateMatch) {
	o := r.o
	token, err := o.deps.Source.AccessToken(ctx)
	if err != nil {
		r.fail("Failed to get Zoom access token: " + err.Error())
		return
	}
	reachable := o.deps.Publisher != nil && o.deps.Publisher.Reachable(ctx)
	if !reachable {
		r.say("YouTube not authenticated - videos will be downloaded only")
	}

	for i, m := range matches {
		if err := ctx.Err(); err != nil {
			r.fail("Error: processing interrupted: " + err.Error())
			return
		}
		r.job.Current = i + 1
		out := r.processMatch(ctx, token, m, reachable)
		r.job.Outcomes = append(r.job.Outcomes, out)
		metrics.RecordOutcome(out.Outcome)
		r.flush()
	}
	r.job.Status = models.JobStatusCompleted
}

// processMatch runs the step sequence for one match. Every failure in here is soft.
func (r *run) processMatch(ctx context.Context, token string, m models.CandidateMatch, reachable bool) (out models.MatchOutcome) {
	o := r.o
	title := m.Event.Title()
	out = models.MatchOutcome{
		SessionID:    m.Session.ID,
		SessionTopic: m.Session.Topic,
		SessionStart: m.Session.StartTime,
		EventID:      m.Event.ID,
		EventName:    title,
		EventStart:   m.Event.Start,
	}
	defer func() { out.ProcessedAt = o.now() }()
	r.say("Processing: %s", title)

	if reachable && o.cfg.CheckExisting && o.deps.Checker != nil {
		existing, _, err := o.deps.Checker.Check(ctx, title)
		if err != nil {
			r.log.Warn("duplicate check failed, treating as new", zap.String("title", title), zap.Error(err))
		} else if existing != nil {
			r.say("Video already exists on YouTube: %s (%s)", title, existing.VideoID)
			out.Outcome = models.OutcomeDuplicate
			out.VideoID = existing.VideoID
			return out
		}
	}

	files, err := o.deps.Source.ListFiles(ctx, token, m.Session.ID)
	if err != nil {
		r.say("Failed to list recording files for: %s: %v", title, err)
		out.Outcome, out.Error = models.OutcomeListFailed, err.Error()
		return out
	}
	if len(files) == 0 {
		r.say("No recording files found for: %s", title)
		out.Outcome = models.OutcomeNoVideo
		return out
	}
	file, ok := models.FirstVideo(files)
	if !ok {
		r.say("No MP4 video found for: %s", title)
		out.Outcome = models.OutcomeNoVideo
		return out
	}

	path, size, err := o.deps.Source.Download(ctx, token, file, o.cfg.DownloadDir)
	if err != nil {
		r.say("Failed to download video for: %s: %v", title, err)
		out.Outcome, out.Error = models.OutcomeDownloadFailed, err.Error()
		return out
	}
	r.say("Downloaded: %s", title)
	out.Outcome, out.FilePath, out.FileSize = models.OutcomeDownloaded, path, size

	if o.deps.Archiver != nil {
		key := storage.RecordingKey(m.Session.StartTime, m.Session.ID, path)
		if url, err := o.deps.Archiver.ArchiveFile(ctx, path, key); err != nil {
			r.log.Warn("archive failed", zap.String("title", title), zap.Error(err))
		} else {
			r.log.Info("recording archived", zap.String("title", title), zap.String("url", url))
		}
	}

	if !reachable {
		return out
	}
	v, err := o.deps.Publisher.Upload(ctx, path, youtube.UploadRequest{
		Title:         title,
		Description:   r.description(m.Session),
		RecordingDate: m.Session.StartTime,
	})
	if err != nil {
		reason := "Upload failed"
		var pe *youtube.PublishError
		if errors.As(err, &pe) && pe.Reason != "" {
			reason = pe.Reason
		}
		r.say("YouTube upload failed for %s: %s", title, reason)
		out.Outcome, out.Error = models.OutcomeUploadFailed, err.Error()
		return out
	}
	r.say("Uploaded to YouTube: %s (%s)", title, v.VideoID)
	out.Outcome, out.VideoID = models.OutcomeUploaded, v.VideoID

	if o.deps.Checker != nil {
		if err := o.deps.Checker.Remember(ctx, *v); err != nil {
			r.log.Warn("video cache store failed", zap.String("video_id", v.VideoID), zap.Error(err))
		}
	}
	if err := os.Remove(path); err != nil {
		r.log.Warn("remove uploaded file failed", zap.String("file", path), zap.Error(err))
	}
	return out
}

func (r *run) description(s models.RecordingSession) string {
	if s.StartTime.IsZero() {
		return "Event recording"
	}
	return "Event recording from " + s.StartTime.In(r.o.cfg.Location).Format(time.RFC3339)
}

func (r *run) say(format string, args ...any) {
	r.job.Messages = append(r.job.Messages, fmt.Sprintf(format, args...))
	r.flush()
}

func (r *run) fail(msg string) {
	r.job.Status = models.JobStatusError
	r.job.ErrorMessage = msg
	r.job.Messages = append(r.job.Messages, msg)
	r.log.Error("run failed", zap.String("error", msg))
}

func (r *run) flush() {
	if err := r.o.deps.Store.Put(r.bg, r.job); err != nil {
		r.log.Warn("progress write failed", zap.Error(err))
	}
}

func (r *run) finish() {
	if !r.job.Status.Terminal() {
		r.fail("Error: run stopped before completion")
	}
	done := r.o.now()
	r.job.CompletedAt = &done
	r.flush()

	metrics.RunFinished(string(r.job.Status), done.Sub(r.started))
	if h := r.o.deps.History; h != nil {
		if err := h.Record(r.bg, r.job); err != nil {
			r.log.Warn("history write failed", zap.Error(err))
		}
	}
	r.log.Info("run finished",
		zap.String("status", string(r.job.Status)),
		zap.Int("processed", r.job.Current),
		zap.Int("total", r.job.Total),
		zap.Duration("took", done.Sub(r.started)))
}
