package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniffContentType(t *testing.T) {
	dir := t.TempDir()

	// ISO base media header with an mp4 brand.
	mp4 := filepath.Join(dir, "clip.bin")
	require.NoError(t, os.WriteFile(mp4, []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 0, 0}, 0o644))
	assert.Equal(t, "video/mp4", SniffContentType(mp4))

	byExt := filepath.Join(dir, "zoom_video_1.mp4")
	require.NoError(t, os.WriteFile(byExt, []byte("not a real header"), 0o644))
	assert.Equal(t, "video/mp4", SniffContentType(byExt))

	unknown := filepath.Join(dir, "blob")
	require.NoError(t, os.WriteFile(unknown, []byte("???"), 0o644))
	assert.Equal(t, DefaultVideoType, SniffContentType(unknown))

	assert.Equal(t, DefaultVideoType, SniffContentType(filepath.Join(dir, "missing")))
}

func TestRecordingKey(t *testing.T) {
	start := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "recordings/2024-03-01/8574/zoom_video_f1.mp4",
		RecordingKey(start, "8574", "/tmp/downloads/zoom_video_f1.mp4"))
	assert.Equal(t, "recordings/2024-03-01/a_b/x.mp4", RecordingKey(start, "a/b", "x.mp4"))
}
