package models

import (
	"errors"
	"strings"
	"time"
)

// ErrMissingEventID is returned when a scheduled event has no identifier.
var ErrMissingEventID = errors.New("event id required")

// UntitledEvent is used when an event carries no display title.
const UntitledEvent = "Untitled"

// ScheduledEvent is one calendar event from the event-management platform.
type ScheduledEvent struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	URL            string    `json:"url,omitempty"`
	Start          time.Time `json:"start"`
	OrganizationID string    `json:"organization_id"`
}

// Title returns the display title used for publishing and duplicate checks.
func (e ScheduledEvent) Title() string {
	if t := strings.TrimSpace(e.Name); t != "" {
		return t
	}
	return UntitledEvent
}

// Validate checks the fields the pipeline depends on.
func (e ScheduledEvent) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrMissingEventID
	}
	return nil
}
