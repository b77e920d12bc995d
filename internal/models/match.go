package models

// CandidateMatch pairs a recording session with a scheduled event held on the same calendar date.
type CandidateMatch struct {
	Session  RecordingSession `json:"recording_session"`
	Event    ScheduledEvent   `json:"event"`
	Existing *PublishedVideo  `json:"existing_video,omitempty"`
	Cached   bool             `json:"existing_cached,omitempty"`
}

// Validate checks both sides of the pair.
func (m CandidateMatch) Validate() error {
	if err := m.Session.Validate(); err != nil {
		return err
	}
	return m.Event.Validate()
}
