package models

import (
	"errors"
	"strings"
	"time"
)

// ErrMissingSessionID is returned when a recording session has no identifier.
var ErrMissingSessionID = errors.New("recording session id required")

// Media file types reported by the conferencing platform.
const (
	FileTypeMP4 = "MP4"
	FileTypeM4A = "M4A"
)

// MediaFile is one recorded file attached to a session.
type MediaFile struct {
	ID            string `json:"id"`
	FileType      string `json:"file_type"`
	RecordingType string `json:"recording_type,omitempty"`
	FileExtension string `json:"file_extension,omitempty"`
	FileSize      int64  `json:"file_size"`
	DownloadURL   string `json:"download_url"`
	Status        string `json:"status,omitempty"`
}

// IsVideo reports whether the file is a primary video (MP4).
func (f MediaFile) IsVideo() bool {
	return strings.EqualFold(f.FileType, FileTypeMP4)
}

// Extension returns the lower-case extension used for the local file name.
func (f MediaFile) Extension() string {
	ext := f.FileExtension
	if ext == "" {
		ext = f.FileType
	}
	if ext == "" {
		return "mp4"
	}
	return strings.ToLower(ext)
}

// RecordingSession is one conferencing session with recorded media (provider → local scratch).
type RecordingSession struct {
	ID             string      `json:"id"`
	UUID           string      `json:"uuid,omitempty"`
	Topic          string      `json:"topic"`
	StartTime      time.Time   `json:"start_time"`
	Duration       int         `json:"duration"` // minutes
	HostEmail      string      `json:"host_email,omitempty"`
	RecordingCount int         `json:"recording_count"`
	Files          []MediaFile `json:"recording_files"`
}

// Validate checks the fields the pipeline depends on. A session without files is valid.
func (s RecordingSession) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return ErrMissingSessionID
	}
	return nil
}

// FirstVideo returns the first primary video file among files, if any.
func FirstVideo(files []MediaFile) (MediaFile, bool) {
	for _, f := range files {
		if f.IsVideo() {
			return f, true
		}
	}
	return MediaFile{}, false
}
