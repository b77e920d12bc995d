// Package api exposes the operator HTTP surface.
package api

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recbridge/backend/internal/matcher"
	"github.com/recbridge/backend/internal/middleware"
	"github.com/recbridge/backend/internal/models"
	"github.com/recbridge/backend/internal/pipeline"
	"github.com/recbridge/backend/internal/videocache"
	"github.com/recbridge/backend/internal/youtube"
	"github.com/recbridge/backend/pkg/response"
)

// RefreshLimit caps how many recent uploads a cache refresh pulls.
const RefreshLimit = 500

// Conference is the recording platform as seen by the API.
type Conference interface {
	AccessToken(ctx context.Context) (string, error)
	ListSessions(ctx context.Context, token string, from, to time.Time, ownerID string) ([]models.RecordingSession, error)
	ListUsers(ctx context.Context, token string) ([]models.ConferenceUser, error)
}

// Organizations lists event-platform organizations.
type Organizations interface {
	ListOrganizations(ctx context.Context) ([]models.Organization, error)
}

// Matcher builds candidate lists.
type Matcher interface {
	FindCandidates(ctx context.Context, q matcher.Query) ([]models.CandidateMatch, error)
	AnnotateEvents(ctx context.Context, organizationID string, date time.Time) ([]matcher.EventAnnotation, error)
}

// Runs accepts and reports pipeline runs.
type Runs interface {
	Submit(ctx context.Context, matches []models.CandidateMatch, op models.Operator) (string, error)
	Poll(ctx context.Context, runID string) models.ProcessingJob
}

// RunHistory reads finished runs.
type RunHistory interface {
	List(ctx context.Context, limit int) ([]models.ProcessingJob, error)
	Outcomes(ctx context.Context, runID string) ([]models.MatchOutcome, error)
}

// VideoPlatform reports publish-target authorization.
type VideoPlatform interface {
	Status(ctx context.Context) youtube.AuthStatus
}

// CacheRefresher reloads the video cache from the platform and reports its size.
type CacheRefresher interface {
	Refresh(ctx context.Context, max int64) (int, error)
	Stats(ctx context.Context) (videocache.Stats, error)
}

// YouTubeStatusResponse is the credential state plus the local cache summary.
type YouTubeStatusResponse struct {
	youtube.AuthStatus
	Cache *videocache.Stats `json:"cache,omitempty"`
}

// Deps are the handler's collaborators. History may be nil.
type Deps struct {
	Conference    Conference
	Organizations Organizations
	Matcher       Matcher
	Runs          Runs
	History       RunHistory
	Videos        VideoPlatform
	Cache         CacheRefresher
}

// Handler serves the /api routes.
type Handler struct {
	deps         Deps
	loc          *time.Location
	logger       *zap.Logger
	pollInterval time.Duration
}

// NewHandler creates an API handler. Dates in requests are read in loc.
func NewHandler(deps Deps, loc *time.Location, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{deps: deps, loc: loc, logger: logger, pollInterval: 500 * time.Millisecond}
}

// Register mounts the routes on rg.
func (h *Handler) Register(rg gin.IRoutes) {
	rg.GET("/organizations", h.ListOrganizations)
	rg.GET("/users", h.ListUsers)
	rg.POST("/meetings", h.ListMeetings)
	rg.POST("/events", h.ListEvents)
	rg.POST("/candidates", h.FindCandidates)
	rg.POST("/process_matches", h.ProcessMatches)
	rg.GET("/processing_status/:id", h.ProcessingStatus)
	rg.GET("/processing_status/:id/watch", h.WatchStatus)
	rg.GET("/runs", h.ListRuns)
	rg.GET("/runs/:id/outcomes", h.RunOutcomes)
	rg.GET("/youtube/status", h.YouTubeStatus)
	rg.POST("/youtube/refresh_cache", h.RefreshCache)
}

// ListOrganizations handles GET /api/organizations.
func (h *Handler) ListOrganizations(c *gin.Context) {
	orgs, err := h.deps.Organizations.ListOrganizations(c.Request.Context())
	if err != nil {
		h.logger.Error("list organizations failed", zap.Error(err))
		response.BadGateway(c, "Failed to get organizations")
		return
	}
	response.OK(c, gin.H{"organizations": orgs})
}

// ListUsers handles GET /api/users.
func (h *Handler) ListUsers(c *gin.Context) {
	ctx := c.Request.Context()
	token, err := h.deps.Conference.AccessToken(ctx)
	if err != nil {
		h.logger.Error("zoom token failed", zap.Error(err))
		response.BadGateway(c, "Failed to get Zoom access token")
		return
	}
	users, err := h.deps.Conference.ListUsers(ctx, token)
	if err != nil {
		h.logger.Error("list users failed", zap.Error(err))
		response.BadGateway(c, "Failed to get users")
		return
	}
	response.OK(c, gin.H{"users": users})
}

// MeetingsRequest is the body for POST /api/meetings.
type MeetingsRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	UserID    string `json:"user_id"`
}

// ListMeetings handles POST /api/meetings.
func (h *Handler) ListMeetings(c *gin.Context) {
	var req MeetingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.StartDate == "" || req.EndDate == "" {
		response.BadRequest(c, "Start date and end date are required")
		return
	}
	from, err := h.parseDate(req.StartDate)
	if err != nil {
		response.BadRequest(c, "Invalid date format: "+req.StartDate)
		return
	}
	to, err := h.parseDate(req.EndDate)
	if err != nil {
		response.BadRequest(c, "Invalid date format: "+req.EndDate)
		return
	}
	if to.Before(from) {
		response.BadRequest(c, "end_date is before start_date")
		return
	}

	ctx := c.Request.Context()
	token, err := h.deps.Conference.AccessToken(ctx)
	if err != nil {
		h.logger.Error("zoom token failed", zap.Error(err))
		response.BadGateway(c, "Failed to get Zoom access token")
		return
	}
	meetings, err := h.deps.Conference.ListSessions(ctx, token, from, to, req.UserID)
	if err != nil {
		h.logger.Error("list meetings failed", zap.Error(err))
		response.BadGateway(c, "Failed to get meetings")
		return
	}
	response.OK(c, gin.H{"meetings": meetings})
}

// EventsRequest is the body for POST /api/events.
type EventsRequest struct {
	MeetingDate    string `json:"meeting_date"`
	OrganizationID string `json:"organization_id"`
}

// ListEvents handles POST /api/events.
func (h *Handler) ListEvents(c *gin.Context) {
	var req EventsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.MeetingDate == "" || req.OrganizationID == "" {
		response.BadRequest(c, "Meeting date and organization ID are required")
		return
	}
	date, err := h.parseDate(req.MeetingDate)
	if err != nil {
		response.BadRequest(c, "Invalid date format: "+req.MeetingDate)
		return
	}
	events, err := h.deps.Matcher.AnnotateEvents(c.Request.Context(), req.OrganizationID, date)
	if err != nil {
		h.matchError(c, err, "Failed to get events")
		return
	}
	response.OK(c, gin.H{"events": events})
}

// CandidatesRequest is the body for POST /api/candidates.
type CandidatesRequest struct {
	OrganizationID string `json:"organization_id"`
	Date           string `json:"date"`
	UserID         string `json:"user_id"`
}

// FindCandidates handles POST /api/candidates.
func (h *Handler) FindCandidates(c *gin.Context) {
	var req CandidatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		response.BadRequest(c, "Invalid date format: "+req.Date)
		return
	}
	candidates, err := h.deps.Matcher.FindCandidates(c.Request.Context(), matcher.Query{
		OrganizationID: req.OrganizationID,
		Date:           date,
		OwnerID:        req.UserID,
	})
	if err != nil {
		h.matchError(c, err, "Failed to find candidates")
		return
	}
	response.OK(c, gin.H{"candidates": candidates})
}

func (h *Handler) matchError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, matcher.ErrInvalidInput):
		response.BadRequest(c, err.Error())
	case errors.Is(err, matcher.ErrUpstreamUnavailable):
		h.logger.Error(msg, zap.Error(err))
		response.BadGateway(c, msg)
	default:
		h.logger.Error(msg, zap.Error(err))
		response.Internal(c, msg)
	}
}

// ProcessRequest is the body for POST /api/process_matches.
type ProcessRequest struct {
	Matches []models.CandidateMatch `json:"matches"`
}

// ProcessMatches handles POST /api/process_matches.
func (h *Handler) ProcessMatches(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if len(req.Matches) == 0 {
		response.BadRequest(c, "No matches provided")
		return
	}
	runID, err := h.deps.Runs.Submit(c.Request.Context(), req.Matches, middleware.Operator(c))
	switch {
	case err == nil:
		response.Accepted(c, gin.H{"run_id": runID, "status": models.JobStatusQueued})
	case errors.Is(err, pipeline.ErrInvalidInput):
		response.BadRequest(c, err.Error())
	case errors.Is(err, pipeline.ErrQueueFull):
		response.ServiceUnavailable(c, "Processing queue is full, try again later")
	default:
		h.logger.Error("submit run failed", zap.Error(err))
		response.Internal(c, "Failed to start processing")
	}
}

// RunStatus is a run snapshot with its progress percentage.
type RunStatus struct {
	models.ProcessingJob
	Progress float64 `json:"progress"`
}

func statusOf(job models.ProcessingJob) RunStatus {
	return RunStatus{ProcessingJob: job, Progress: job.ProgressPercent()}
}

// ProcessingStatus handles GET /api/processing_status/:id.
func (h *Handler) ProcessingStatus(c *gin.Context) {
	response.OK(c, statusOf(h.deps.Runs.Poll(c.Request.Context(), c.Param("id"))))
}

// ListRuns handles GET /api/runs.
func (h *Handler) ListRuns(c *gin.Context) {
	if h.deps.History == nil {
		response.ServiceUnavailable(c, "run history not configured")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	runs, err := h.deps.History.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		response.Internal(c, "Failed to list runs")
		return
	}
	response.OK(c, gin.H{"runs": runs})
}

// RunOutcomes handles GET /api/runs/:id/outcomes.
func (h *Handler) RunOutcomes(c *gin.Context) {
	if h.deps.History == nil {
		response.ServiceUnavailable(c, "run history not configured")
		return
	}
	if _, err := uuid.Parse(c.Param("id")); err != nil {
		response.BadRequest(c, "invalid run id")
		return
	}
	outcomes, err := h.deps.History.Outcomes(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("list outcomes failed", zap.String("run_id", c.Param("id")), zap.Error(err))
		response.Internal(c, "Failed to list outcomes")
		return
	}
	response.OK(c, gin.H{"outcomes": outcomes})
}

// YouTubeStatus handles GET /api/youtube/status.
// The cache summary is omitted when it cannot be read.
func (h *Handler) YouTubeStatus(c *gin.Context) {
	ctx := c.Request.Context()
	resp := YouTubeStatusResponse{AuthStatus: h.deps.Videos.Status(ctx)}
	if st, err := h.deps.Cache.Stats(ctx); err != nil {
		h.logger.Warn("video cache stats failed", zap.Error(err))
	} else {
		resp.Cache = &st
	}
	response.OK(c, resp)
}

// RefreshCache handles POST /api/youtube/refresh_cache.
func (h *Handler) RefreshCache(c *gin.Context) {
	ctx := c.Request.Context()
	if st := h.deps.Videos.Status(ctx); !st.Authenticated {
		response.Unauthorized(c, "YouTube not authenticated")
		return
	}
	n, err := h.deps.Cache.Refresh(ctx, RefreshLimit)
	if err != nil {
		h.logger.Error("cache refresh failed", zap.Error(err))
		response.BadGateway(c, "Failed to refresh cache")
		return
	}
	response.OK(c, gin.H{"cached_videos": n})
}

// parseDate accepts a calendar date or an RFC 3339 timestamp and returns
// the start of that day in the handler's zone.
func (h *Handler) parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.ParseInLocation("2006-01-02", s, h.loc)
	if err != nil {
		ts, terr := time.Parse(time.RFC3339, s)
		if terr != nil {
			return time.Time{}, err
		}
		t = ts.In(h.loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, h.loc), nil
}
