// Package eventbrite is the client for the event-management platform.
package eventbrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/recbridge/backend/internal/models"
)

const (
	DefaultBaseURL = "https://www.eventbriteapi.com/v3"

	apiTimeout = 30 * time.Second
	// DefaultMaxPages bounds continuation following for one query.
	DefaultMaxPages = 20
)

// ErrTooManyPages is returned when a listing still has more items after the page limit.
var ErrTooManyPages = errors.New("eventbrite: page limit reached")

// APIError is a non-success response from the platform.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("eventbrite %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client queries organizations and events with a private token.
type Client struct {
	token    string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
	maxPages int
}

// NewClient creates a client. baseURL defaults to the public API and httpClient may be nil.
func NewClient(token, baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		token:    token,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		limiter:  rate.NewLimiter(rate.Limit(5), 5),
		logger:   logger,
		maxPages: DefaultMaxPages,
	}
}

type pagination struct {
	HasMoreItems bool   `json:"has_more_items"`
	Continuation string `json:"continuation"`
}

type richText struct {
	Text string `json:"text"`
}

type dateTime struct {
	Timezone string `json:"timezone"`
	Local    string `json:"local"`
	UTC      string `json:"utc"`
}

// time prefers the UTC instant and falls back to the local wall clock in its zone.
func (d dateTime) time() time.Time {
	if t, err := time.Parse(time.RFC3339, d.UTC); err == nil {
		return t
	}
	loc := time.UTC
	if d.Timezone != "" {
		if l, err := time.LoadLocation(d.Timezone); err == nil {
			loc = l
		}
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", d.Local, loc); err == nil {
		return t
	}
	return time.Time{}
}

type event struct {
	ID             string   `json:"id"`
	Name           richText `json:"name"`
	Description    richText `json:"description"`
	URL            string   `json:"url"`
	Start          dateTime `json:"start"`
	OrganizationID string   `json:"organization_id"`
}

// ListOrganizations returns the organizations the token's user belongs to.
func (c *Client) ListOrganizations(ctx context.Context) ([]models.Organization, error) {
	orgs := make([]models.Organization, 0)
	continuation := ""
	for page := 0; ; page++ {
		if page == c.maxPages {
			return nil, fmt.Errorf("list organizations: %w", ErrTooManyPages)
		}
		q := url.Values{}
		if continuation != "" {
			q.Set("continuation", continuation)
		}
		var body struct {
			Organizations []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"organizations"`
			Pagination pagination `json:"pagination"`
		}
		if err := c.getJSON(ctx, "/users/me/organizations/", q, "list organizations", &body); err != nil {
			return nil, err
		}
		for _, o := range body.Organizations {
			orgs = append(orgs, models.Organization{ID: o.ID, Name: o.Name})
		}
		if !body.Pagination.HasMoreItems || body.Pagination.Continuation == "" {
			break
		}
		continuation = body.Pagination.Continuation
	}
	c.logger.Info("retrieved organizations", zap.Int("count", len(orgs)))
	return orgs, nil
}

// ListEvents returns the organization's events starting on date's calendar day (in date's location).
func (c *Client) ListEvents(ctx context.Context, organizationID string, date time.Time) ([]models.ScheduledEvent, error) {
	y, m, d := date.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1).Add(-time.Second)

	events := make([]models.ScheduledEvent, 0)
	continuation := ""
	for page := 0; ; page++ {
		if page == c.maxPages {
			return nil, fmt.Errorf("list events: %w", ErrTooManyPages)
		}
		q := url.Values{}
		q.Set("start_date.range_start", dayStart.Format("2006-01-02T15:04:05"))
		q.Set("start_date.range_end", dayEnd.Format("2006-01-02T15:04:05"))
		q.Set("expand", "description")
		if continuation != "" {
			q.Set("continuation", continuation)
		}
		var body struct {
			Events     []event    `json:"events"`
			Pagination pagination `json:"pagination"`
		}
		path := "/organizations/" + url.PathEscape(organizationID) + "/events/"
		if err := c.getJSON(ctx, path, q, "list events", &body); err != nil {
			return nil, err
		}
		for _, e := range body.Events {
			orgID := e.OrganizationID
			if orgID == "" {
				orgID = organizationID
			}
			events = append(events, models.ScheduledEvent{
				ID:             e.ID,
				Name:           e.Name.Text,
				Description:    e.Description.Text,
				URL:            e.URL,
				Start:          e.Start.time(),
				OrganizationID: orgID,
			})
		}
		if !body.Pagination.HasMoreItems || body.Pagination.Continuation == "" {
			break
		}
		continuation = body.Pagination.Continuation
	}
	c.logger.Info("retrieved events", zap.String("organization_id", organizationID),
		zap.String("date", dayStart.Format("2006-01-02")), zap.Int("count", len(events)))
	return events, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, op string, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()
	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("eventbrite %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("eventbrite %s: decode: %w", op, err)
	}
	return nil
}
