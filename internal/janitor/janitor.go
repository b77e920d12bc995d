// Package janitor removes stale downloads from the scratch directory.
package janitor

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/recbridge/backend/internal/metrics"
)

const (
	DefaultRetention = 7 * 24 * time.Hour
	DefaultInterval  = time.Hour
)

// Janitor deletes video files older than a retention period.
type Janitor struct {
	dir       string
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a janitor for dir.
func New(dir string, retention, interval time.Duration, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Janitor{dir: dir, retention: retention, interval: interval, logger: logger, now: time.Now}
}

// Sweep removes every .mp4 in the directory last modified before the cutoff.
// A missing directory is not an error.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	cutoff := j.now().Add(-j.retention)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".mp4") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(j.dir, e.Name())
		if err := os.Remove(path); err != nil {
			j.logger.Warn("remove stale download failed", zap.String("file", path), zap.Error(err))
			continue
		}
		removed++
		j.logger.Debug("stale download removed", zap.String("file", e.Name()))
	}
	if removed > 0 {
		metrics.JanitorRemovedTotal.Add(float64(removed))
	}
	return removed, nil
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		n, err := j.Sweep()
		if err != nil {
			j.logger.Warn("download sweep failed", zap.String("dir", j.dir), zap.Error(err))
		} else if n > 0 {
			j.logger.Info("old downloads cleaned", zap.Int("files", n), zap.Duration("retention", j.retention))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
