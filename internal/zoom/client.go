// Package zoom is the client for the conferencing platform's recordings API.
package zoom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/recbridge/backend/internal/models"
)

const (
	DefaultAuthURL = "https://zoom.us/oauth/token"
	DefaultBaseURL = "https://api.zoom.us/v2"

	// chunkDays is the widest from/to range the recordings endpoint accepts.
	chunkDays = 30
	pageSize  = 300

	apiTimeout  = 30 * time.Second
	listTimeout = 60 * time.Second
	// DefaultDownloadTimeout bounds the wait for response headers and for
	// each read of the body. The transfer as a whole is unbounded.
	DefaultDownloadTimeout = 300 * time.Second
	dateLayout             = "2006-01-02"
)

// ErrDownloadStalled is returned when a download sends nothing for the idle timeout.
var ErrDownloadStalled = errors.New("zoom download stalled")

// ErrNoCredential is returned when account credentials are not configured.
var ErrNoCredential = errors.New("zoom credentials not configured")

// APIError is a non-success response from the platform.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zoom %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Config holds server-to-server OAuth credentials and endpoints.
type Config struct {
	AccountID     string
	ClientID      string
	ClientSecret  string
	AuthURL       string
	BaseURL       string
	RatePerSecond float64
	Burst         int
	// DownloadHeaderTimeout and DownloadIdleTimeout default to DefaultDownloadTimeout.
	DownloadHeaderTimeout time.Duration
	DownloadIdleTimeout   time.Duration
}

// Client talks to the recordings API. Safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	tokens  oauth2.TokenSource
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.DownloadHeaderTimeout <= 0 {
		cfg.DownloadHeaderTimeout = DefaultDownloadTimeout
	}
	if cfg.DownloadIdleTimeout <= 0 {
		cfg.DownloadIdleTimeout = DefaultDownloadTimeout
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.AuthURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
		EndpointParams: url.Values{
			"grant_type": {"account_credentials"},
			"account_id": {cfg.AccountID},
		},
	}
	tokenHTTP := &http.Client{Transport: httpClient.Transport, Timeout: apiTimeout}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, tokenHTTP)

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		tokens:  cc.TokenSource(tokenCtx),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:  logger,
	}
}

// Configured reports whether account credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.AccountID != "" && c.cfg.ClientID != "" && c.cfg.ClientSecret != ""
}

// AccessToken returns a bearer token, reusing the cached one until it expires.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", ErrNoCredential
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	tok, err := c.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("zoom token: %w", err)
	}
	return tok.AccessToken, nil
}

type recordingFile struct {
	ID            string `json:"id"`
	FileType      string `json:"file_type"`
	FileExtension string `json:"file_extension"`
	FileSize      int64  `json:"file_size"`
	DownloadURL   string `json:"download_url"`
	Status        string `json:"status"`
	RecordingType string `json:"recording_type"`
}

func (f recordingFile) toModel() models.MediaFile {
	return models.MediaFile{
		ID:            f.ID,
		FileType:      f.FileType,
		RecordingType: f.RecordingType,
		FileExtension: f.FileExtension,
		FileSize:      f.FileSize,
		DownloadURL:   f.DownloadURL,
		Status:        f.Status,
	}
}

type meeting struct {
	ID             json.Number     `json:"id"`
	UUID           string          `json:"uuid"`
	Topic          string          `json:"topic"`
	StartTime      time.Time       `json:"start_time"`
	Duration       int             `json:"duration"`
	RecordingCount int             `json:"recording_count"`
	HostEmail      string          `json:"host_email"`
	RecordingFiles []recordingFile `json:"recording_files"`
}

type recordingsPage struct {
	NextPageToken string    `json:"next_page_token"`
	Meetings      []meeting `json:"meetings"`
}

// ListSessions returns meetings with recording files that started on a calendar
// day in [from, to], as seen in from's location. ownerID "" or "me" means the
// token owner. The API takes UTC dates, so the query covers every UTC date the
// local days touch and the results are filtered back to the local range. The
// range is walked in 30-day chunks; any failed chunk fails the whole call.
func (c *Client) ListSessions(ctx context.Context, token string, from, to time.Time, ownerID string) ([]models.RecordingSession, error) {
	if ownerID == "" {
		ownerID = "me"
	}
	endpoint := c.cfg.BaseURL + "/users/" + url.PathEscape(ownerID) + "/recordings"

	rangeStart := truncateDay(from)
	rangeEnd := truncateDay(to.In(from.Location())).AddDate(0, 0, 1)
	from = truncateDay(rangeStart.UTC())
	to = truncateDay(rangeEnd.Add(-time.Nanosecond).UTC())
	sessions := make([]models.RecordingSession, 0)
	for cur := from; !cur.After(to); {
		end := cur.AddDate(0, 0, chunkDays)
		if end.After(to) {
			end = to
		}
		pageToken := ""
		for {
			q := url.Values{}
			q.Set("from", cur.Format(dateLayout))
			q.Set("to", end.Format(dateLayout))
			q.Set("page_size", strconv.Itoa(pageSize))
			if pageToken != "" {
				q.Set("next_page_token", pageToken)
			}
			var page recordingsPage
			if err := c.getJSON(ctx, token, endpoint+"?"+q.Encode(), listTimeout, "list recordings", &page); err != nil {
				return nil, err
			}
			for _, m := range page.Meetings {
				if len(m.RecordingFiles) == 0 {
					continue
				}
				if !m.StartTime.IsZero() && (m.StartTime.Before(rangeStart) || !m.StartTime.Before(rangeEnd)) {
					continue
				}
				sessions = append(sessions, m.toModel())
			}
			if page.NextPageToken == "" {
				break
			}
			pageToken = page.NextPageToken
		}
		cur = end.AddDate(0, 0, 1)
	}
	c.logger.Info("listed recording sessions", zap.Int("count", len(sessions)),
		zap.String("from", from.Format(dateLayout)), zap.String("to", to.Format(dateLayout)))
	return sessions, nil
}

func (m meeting) toModel() models.RecordingSession {
	topic := m.Topic
	if topic == "" {
		topic = "Untitled Meeting"
	}
	files := make([]models.MediaFile, 0, len(m.RecordingFiles))
	for _, f := range m.RecordingFiles {
		files = append(files, f.toModel())
	}
	return models.RecordingSession{
		ID:             m.ID.String(),
		UUID:           m.UUID,
		Topic:          topic,
		StartTime:      m.StartTime,
		Duration:       m.Duration,
		HostEmail:      m.HostEmail,
		RecordingCount: m.RecordingCount,
		Files:          files,
	}
}

// ListFiles returns the recording files of one meeting.
func (c *Client) ListFiles(ctx context.Context, token, sessionID string) ([]models.MediaFile, error) {
	var body struct {
		RecordingFiles []recordingFile `json:"recording_files"`
	}
	endpoint := c.cfg.BaseURL + "/meetings/" + url.PathEscape(sessionID) + "/recordings"
	if err := c.getJSON(ctx, token, endpoint, apiTimeout, "list recording files", &body); err != nil {
		return nil, err
	}
	files := make([]models.MediaFile, 0, len(body.RecordingFiles))
	for _, f := range body.RecordingFiles {
		files = append(files, f.toModel())
	}
	return files, nil
}

// ListUsers returns active accounts that can own recordings.
func (c *Client) ListUsers(ctx context.Context, token string) ([]models.ConferenceUser, error) {
	var body struct {
		Users []struct {
			ID          string `json:"id"`
			Email       string `json:"email"`
			DisplayName string `json:"display_name"`
			FirstName   string `json:"first_name"`
			LastName    string `json:"last_name"`
			Type        int    `json:"type"`
		} `json:"users"`
	}
	q := url.Values{"status": {"active"}, "page_size": {strconv.Itoa(pageSize)}}
	if err := c.getJSON(ctx, token, c.cfg.BaseURL+"/users?"+q.Encode(), apiTimeout, "list users", &body); err != nil {
		return nil, err
	}
	users := make([]models.ConferenceUser, 0, len(body.Users))
	for _, u := range body.Users {
		name := u.DisplayName
		if name == "" {
			name = u.Email
		}
		if name == "" {
			name = "Unknown User"
		}
		typ := u.Type
		if typ == 0 {
			typ = 1
		}
		users = append(users, models.ConferenceUser{
			ID:          u.ID,
			Email:       u.Email,
			DisplayName: name,
			FirstName:   u.FirstName,
			LastName:    u.LastName,
			Type:        typ,
		})
	}
	return users, nil
}

// Download streams file into dir as zoom_video_<id>.<ext> and returns the path.
// A failed transfer leaves no file behind.
func (c *Client) Download(ctx context.Context, token string, file models.MediaFile, dir string) (string, int64, error) {
	if file.DownloadURL == "" {
		return "", 0, errors.New("zoom download: no download url")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create download dir: %w", err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", 0, err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stall := time.AfterFunc(c.cfg.DownloadHeaderTimeout, func() { cancel(ErrDownloadStalled) })
	defer stall.Stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.DownloadURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("zoom download: %w", stallCause(ctx, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, &APIError{Op: "download", StatusCode: resp.StatusCode, Body: readSnippet(resp.Body)}
	}

	path := filepath.Join(dir, LocalFileName(file))
	out, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create file: %w", err)
	}
	stall.Reset(c.cfg.DownloadIdleTimeout)
	n, err := io.Copy(out, &idleReader{r: resp.Body, timer: stall, idle: c.cfg.DownloadIdleTimeout})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("write %s: %w", path, stallCause(ctx, err))
	}
	c.logger.Info("downloaded recording", zap.String("file", path), zap.Int64("bytes", n))
	return path, n, nil
}

// idleReader pushes the stall timer back after every read that returns data.
type idleReader struct {
	r     io.Reader
	timer *time.Timer
	idle  time.Duration
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.timer.Reset(ir.idle)
	}
	return n, err
}

// stallCause reports ErrDownloadStalled in place of the bare cancellation error.
func stallCause(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, ErrDownloadStalled) {
		return cause
	}
	return err
}

// LocalFileName is the scratch file name for a recording file.
func LocalFileName(file models.MediaFile) string {
	id := filepath.Base(file.ID)
	if id == "" || id == "." || id == string(filepath.Separator) {
		id = "temp"
	}
	return "zoom_video_" + id + "." + file.Extension()
}

func (c *Client) getJSON(ctx context.Context, token, endpoint string, timeout time.Duration, op string, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("zoom %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: readSnippet(resp.Body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("zoom %s: decode: %w", op, err)
	}
	return nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
