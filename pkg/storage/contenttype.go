package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// DefaultVideoType is used when a recording's content cannot be identified.
const DefaultVideoType = "video/mp4"

// sniffLen covers every matcher in filetype.
const sniffLen = 261

// SniffContentType identifies a media file by its magic bytes, then by extension.
func SniffContentType(path string) string {
	f, err := os.Open(path)
	if err == nil {
		head := make([]byte, sniffLen)
		n, _ := io.ReadFull(f, head)
		f.Close()
		if kind, err := filetype.Match(head[:n]); err == nil && kind != filetype.Unknown {
			return kind.MIME.Value
		}
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext != "" {
		if t := filetype.GetType(ext); t != filetype.Unknown {
			return t.MIME.Value
		}
	}
	return DefaultVideoType
}
