package models

import "time"

// Privacy states of a published video.
const (
	PrivacyPrivate  = "private"
	PrivacyUnlisted = "unlisted"
	PrivacyPublic   = "public"
)

// PublishedVideo is a video known to exist on the hosting platform (video cache entry).
type PublishedVideo struct {
	VideoID         string    `json:"video_id"`
	Title           string    `json:"title"`
	NormalizedTitle string    `json:"-"`
	Description     string    `json:"description,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	Duration        string    `json:"duration,omitempty"` // ISO 8601
	PrivacyStatus   string    `json:"privacy_status,omitempty"`
	ChannelID       string    `json:"channel_id,omitempty"`
	LastRefreshed   time.Time `json:"last_refreshed"`
}

// URL returns the watch URL of the video.
func (v PublishedVideo) URL() string {
	return "https://www.youtube.com/watch?v=" + v.VideoID
}
