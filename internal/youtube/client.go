// Package youtube publishes recordings to a channel and searches it for
// already published titles.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/recbridge/backend/internal/models"
	"github.com/recbridge/backend/internal/titles"
	"github.com/recbridge/backend/pkg/storage"
)

const (
	searchPageSize = 50
	categoryPeople = "22"
	searchTimeout  = 30 * time.Second
	uploadTimeout  = 2 * time.Hour
)

// DefaultTags are attached to every upload.
var DefaultTags = []string{"event", "recording"}

// ErrNotAuthenticated is returned when no usable credential is available.
var ErrNotAuthenticated = errors.New("youtube not authenticated")

// PublishError is an upload failure. Reason carries the remote message when there is one.
type PublishError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *PublishError) Error() string {
	if e.Reason != "" {
		return "YouTube API error: " + e.Reason
	}
	if e.Err != nil {
		return "upload failed: " + e.Err.Error()
	}
	return "upload failed"
}

func (e *PublishError) Unwrap() error { return e.Err }

// UploadRequest is the metadata of a new video.
type UploadRequest struct {
	Title         string
	Description   string
	RecordingDate time.Time
	Tags          []string
}

// Auth status values reported by Status.
const (
	StatusValid        = "valid"
	StatusRefreshable  = "expired_but_refreshable"
	StatusNoTokenFile  = "no_token_file"
	StatusInvalidToken = "invalid_token"
	StatusServiceError = "service_error"
	StatusError        = "error"
)

// AuthStatus describes the credential state.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// Config selects the token file and an optional channel restriction.
type Config struct {
	CredentialsPath string
	ChannelID       string
}

// Client wraps the Data API service, built lazily from the token file.
type Client struct {
	cfg    Config
	logger *zap.Logger

	mu  sync.Mutex
	svc *yt.Service
	// build creates the service; replaced in tests.
	build func(ctx context.Context) (*yt.Service, error)
}

// NewClient creates a client reading credentials from cfg.CredentialsPath.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{cfg: cfg, logger: logger}
	c.build = c.buildFromTokenFile
	return c
}

// NewClientWithOptions creates a client whose service is built from opts instead of the token file.
func NewClientWithOptions(channelID string, logger *zap.Logger, opts ...option.ClientOption) *Client {
	c := NewClient(Config{ChannelID: channelID}, logger)
	c.build = func(ctx context.Context) (*yt.Service, error) {
		return yt.NewService(ctx, opts...)
	}
	return c
}

func (c *Client) buildFromTokenFile(ctx context.Context) (*yt.Service, error) {
	tf, err := readTokenFile(c.cfg.CredentialsPath)
	if err != nil {
		return nil, err
	}
	// The token source outlives ctx.
	ts := newTokenSource(context.Background(), c.cfg.CredentialsPath, tf)
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("youtube credentials invalid: %w", err)
	}
	return yt.NewService(ctx, option.WithTokenSource(ts))
}

func (c *Client) service(ctx context.Context) (*yt.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.svc != nil {
		return c.svc, nil
	}
	svc, err := c.build(ctx)
	if err != nil {
		return nil, err
	}
	c.svc = svc
	c.logger.Info("YouTube service authenticated")
	return svc, nil
}

// Reachable reports whether a service with a valid credential can be obtained.
func (c *Client) Reachable(ctx context.Context) bool {
	if _, err := c.service(ctx); err != nil {
		c.logger.Debug("youtube unavailable", zap.Error(err))
		return false
	}
	return true
}

// Status reports the credential state. A missing or expired token is reported without a network call.
func (c *Client) Status(ctx context.Context) AuthStatus {
	if c.cfg.CredentialsPath != "" {
		tf, err := readTokenFile(c.cfg.CredentialsPath)
		switch {
		case errors.Is(err, ErrNoTokenFile):
			return AuthStatus{Status: StatusNoTokenFile, Message: "YouTube token file not found"}
		case err != nil:
			return AuthStatus{Status: StatusError, Message: "Authentication error: " + err.Error()}
		}
		if tok := tf.token(); !tok.Valid() {
			if tok.RefreshToken == "" {
				return AuthStatus{Status: StatusInvalidToken, Message: "Token is invalid and cannot be refreshed"}
			}
			return AuthStatus{Authenticated: true, Status: StatusRefreshable, Message: "Token expired but can be refreshed"}
		}
	}
	if _, err := c.service(ctx); err != nil {
		return AuthStatus{Status: StatusServiceError, Message: "Failed to create YouTube service"}
	}
	return AuthStatus{Authenticated: true, Status: StatusValid, Message: "YouTube API authenticated successfully"}
}

// SearchByTitle looks through the first page of results for an exact normalized-title match.
func (c *Client) SearchByTitle(ctx context.Context, title string) (*models.PublishedVideo, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, ErrNotAuthenticated
	}
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	call := svc.Search.List([]string{"snippet"}).
		Q(title).
		Type("video").
		MaxResults(searchPageSize).
		Order("relevance")
	if c.cfg.ChannelID != "" {
		call = call.ChannelId(c.cfg.ChannelID)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}
	key := titles.Normalize(title)
	for _, item := range resp.Items {
		if item.Id == nil || item.Snippet == nil {
			continue
		}
		if titles.Normalize(item.Snippet.Title) == key {
			v := fromSearchResult(item)
			c.logger.Info("found exact title match", zap.String("title", title), zap.String("video_id", v.VideoID))
			return &v, nil
		}
	}
	return nil, nil
}

// Recent returns up to max of the newest videos on the channel, or the
// authenticated account's uploads when no channel is configured.
func (c *Client) Recent(ctx context.Context, max int64) ([]models.PublishedVideo, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, ErrNotAuthenticated
	}
	var videos []models.PublishedVideo
	pageToken := ""
	for int64(len(videos)) < max {
		size := max - int64(len(videos))
		if size > searchPageSize {
			size = searchPageSize
		}
		call := svc.Search.List([]string{"snippet"}).Type("video").MaxResults(size).Order("date")
		if c.cfg.ChannelID != "" {
			call = call.ChannelId(c.cfg.ChannelID)
		} else {
			call = call.ForMine(true)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		pctx, cancel := context.WithTimeout(ctx, searchTimeout)
		resp, err := call.Context(pctx).Do()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("youtube list recent: %w", err)
		}
		for _, item := range resp.Items {
			if item.Id == nil || item.Snippet == nil {
				continue
			}
			videos = append(videos, fromSearchResult(item))
		}
		if resp.NextPageToken == "" || len(resp.Items) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}
	return videos, nil
}

// Upload publishes the file at path as a private video.
func (c *Client) Upload(ctx context.Context, path string, req UploadRequest) (*models.PublishedVideo, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, &PublishError{Err: ErrNotAuthenticated}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &PublishError{Err: err}
	}
	defer f.Close()

	tags := req.Tags
	if len(tags) == 0 {
		tags = DefaultTags
	}
	video := &yt.Video{
		Snippet: &yt.VideoSnippet{
			Title:       req.Title,
			Description: req.Description,
			Tags:        tags,
			CategoryId:  categoryPeople,
		},
		Status: &yt.VideoStatus{
			PrivacyStatus:           models.PrivacyPrivate,
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}
	parts := []string{"snippet", "status"}
	if !req.RecordingDate.IsZero() {
		video.RecordingDetails = &yt.VideoRecordingDetails{RecordingDate: req.RecordingDate.UTC().Format(time.RFC3339)}
		parts = append(parts, "recordingDetails")
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	c.logger.Info("starting upload", zap.String("title", req.Title), zap.String("file", path))
	resp, err := svc.Videos.Insert(parts, video).
		Media(f, googleapi.ContentType(storage.SniffContentType(path))).
		Context(ctx).
		Do()
	if err != nil {
		return nil, toPublishError(err)
	}

	v := models.PublishedVideo{VideoID: resp.Id, Title: req.Title, Description: req.Description}
	if resp.Snippet != nil {
		v.Title = resp.Snippet.Title
		v.Description = resp.Snippet.Description
		v.ChannelID = resp.Snippet.ChannelId
		v.PublishedAt = parseTime(resp.Snippet.PublishedAt)
	}
	if resp.Status != nil {
		v.PrivacyStatus = resp.Status.PrivacyStatus
	}
	if resp.ContentDetails != nil {
		v.Duration = resp.ContentDetails.Duration
	}
	c.logger.Info("upload successful", zap.String("video_id", v.VideoID))
	return &v, nil
}

func toPublishError(err error) *PublishError {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		reason := gerr.Message
		if reason == "" && len(gerr.Errors) > 0 {
			reason = gerr.Errors[0].Message
			if reason == "" {
				reason = gerr.Errors[0].Reason
			}
		}
		return &PublishError{StatusCode: gerr.Code, Reason: reason, Err: err}
	}
	return &PublishError{Err: err}
}

func fromSearchResult(item *yt.SearchResult) models.PublishedVideo {
	return models.PublishedVideo{
		VideoID:     item.Id.VideoId,
		Title:       item.Snippet.Title,
		Description: item.Snippet.Description,
		PublishedAt: parseTime(item.Snippet.PublishedAt),
		ChannelID:   item.Snippet.ChannelId,
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
