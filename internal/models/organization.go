package models

// Organization is an event-platform organization the operator can search events in.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ConferenceUser is an account on the conferencing platform that owns recordings.
type ConferenceUser struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Type        int    `json:"type"`
}
