// Package matcher pairs recording sessions with scheduled events held on the
// same calendar date and annotates the pairs with likely duplicates.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/recbridge/backend/internal/models"
)

var (
	// ErrUpstreamUnavailable is returned when sessions or events cannot be listed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrInvalidInput is returned for a missing organization or date.
	ErrInvalidInput = errors.New("invalid input")
)

// SessionSource lists recorded sessions.
type SessionSource interface {
	AccessToken(ctx context.Context) (string, error)
	ListSessions(ctx context.Context, token string, from, to time.Time, ownerID string) ([]models.RecordingSession, error)
}

// EventSource lists scheduled events.
type EventSource interface {
	ListEvents(ctx context.Context, organizationID string, date time.Time) ([]models.ScheduledEvent, error)
}

// DuplicateChecker finds an already published video for a title.
type DuplicateChecker interface {
	Check(ctx context.Context, title string) (*models.PublishedVideo, bool, error)
}

// Publisher reports whether duplicate checks can reach the hosting platform.
type Publisher interface {
	Reachable(ctx context.Context) bool
}

// Pair returns every (session, event) combination whose start times fall on the
// same calendar date in loc, in session order then event order.
func Pair(sessions []models.RecordingSession, events []models.ScheduledEvent, loc *time.Location) []models.CandidateMatch {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]models.CandidateMatch, 0)
	for _, s := range sessions {
		sd := dateOf(s.StartTime, loc)
		for _, e := range events {
			if dateOf(e.Start, loc) == sd {
				out = append(out, models.CandidateMatch{Session: s, Event: e})
			}
		}
	}
	return out
}

func dateOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// Query selects the organization, calendar date and recording owner to match.
type Query struct {
	OrganizationID string
	Date           time.Time
	// OwnerID is the conferencing account; empty means the credential owner.
	OwnerID string
}

func (q Query) validate() error {
	if strings.TrimSpace(q.OrganizationID) == "" {
		return fmt.Errorf("%w: organization id required", ErrInvalidInput)
	}
	if q.Date.IsZero() {
		return fmt.Errorf("%w: date required", ErrInvalidInput)
	}
	return nil
}

// EventAnnotation is an event with its duplicate-check result.
type EventAnnotation struct {
	Event    models.ScheduledEvent  `json:"event"`
	Existing *models.PublishedVideo `json:"existing_video,omitempty"`
	Cached   bool                   `json:"existing_cached,omitempty"`
}

// Service builds candidate lists from both sources.
type Service struct {
	sessions  SessionSource
	events    EventSource
	checker   DuplicateChecker
	publisher Publisher
	loc       *time.Location
	logger    *zap.Logger
}

// NewService creates a matcher service. Dates are compared in loc (UTC when nil).
// A nil checker disables duplicate annotation.
func NewService(sessions SessionSource, events EventSource, checker DuplicateChecker, publisher Publisher, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{sessions: sessions, events: events, checker: checker, publisher: publisher, loc: loc, logger: logger}
}

// Location returns the zone used to compare calendar dates.
func (s *Service) Location() *time.Location {
	return s.loc
}

// FindCandidates lists sessions and events for the date concurrently and pairs them.
// Either listing failing yields ErrUpstreamUnavailable and no candidates.
func (s *Service) FindCandidates(ctx context.Context, q Query) ([]models.CandidateMatch, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	y, m, d := q.Date.In(s.loc).Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, s.loc)

	var (
		sessions []models.RecordingSession
		events   []models.ScheduledEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		token, err := s.sessions.AccessToken(gctx)
		if err != nil {
			return fmt.Errorf("recording source credential: %w", err)
		}
		sessions, err = s.sessions.ListSessions(gctx, token, day, day, q.OwnerID)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		events, err = s.events.ListEvents(gctx, q.OrganizationID, day)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("candidate lookup failed", zap.String("organization_id", q.OrganizationID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	candidates := Pair(sessions, events, s.loc)
	if len(candidates) > 0 && s.checks(ctx) {
		cache := map[string]annotation{}
		for i := range candidates {
			a := s.annotate(ctx, candidates[i].Event.Title(), cache)
			candidates[i].Existing, candidates[i].Cached = a.existing, a.cached
		}
	}
	s.logger.Info("candidates found",
		zap.String("organization_id", q.OrganizationID),
		zap.String("date", day.Format("2006-01-02")),
		zap.Int("sessions", len(sessions)),
		zap.Int("events", len(events)),
		zap.Int("candidates", len(candidates)))
	return candidates, nil
}

// AnnotateEvents lists the organization's events for the date with duplicate checks.
func (s *Service) AnnotateEvents(ctx context.Context, organizationID string, date time.Time) ([]EventAnnotation, error) {
	if err := (Query{OrganizationID: organizationID, Date: date}).validate(); err != nil {
		return nil, err
	}
	y, m, d := date.In(s.loc).Date()
	events, err := s.events.ListEvents(ctx, organizationID, time.Date(y, m, d, 0, 0, 0, 0, s.loc))
	if err != nil {
		return nil, fmt.Errorf("%w: list events: %v", ErrUpstreamUnavailable, err)
	}
	out := make([]EventAnnotation, 0, len(events))
	reachable := len(events) > 0 && s.checks(ctx)
	cache := map[string]annotation{}
	for _, e := range events {
		ea := EventAnnotation{Event: e}
		if reachable {
			a := s.annotate(ctx, e.Title(), cache)
			ea.Existing, ea.Cached = a.existing, a.cached
		}
		out = append(out, ea)
	}
	return out, nil
}

// checks reports whether duplicate annotation is enabled and can reach the platform.
func (s *Service) checks(ctx context.Context) bool {
	return s.checker != nil && s.publisher != nil && s.publisher.Reachable(ctx)
}

type annotation struct {
	existing *models.PublishedVideo
	cached   bool
}

// annotate checks each distinct title once per call. Check errors leave the pair unannotated.
func (s *Service) annotate(ctx context.Context, title string, seen map[string]annotation) annotation {
	if a, ok := seen[title]; ok {
		return a
	}
	v, cached, err := s.checker.Check(ctx, title)
	if err != nil {
		s.logger.Warn("duplicate check failed", zap.String("title", title), zap.Error(err))
	}
	a := annotation{existing: v, cached: cached}
	seen[title] = a
	return a
}
