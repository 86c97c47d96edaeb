package media

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DefaultExtensions are the file extensions treated as video without sniffing.
var DefaultExtensions = []string{
	".mp4", ".mkv", ".mov", ".avi", ".webm", ".m4v", ".wmv", ".flv", ".mpg", ".mpeg", ".ts", ".3gp",
}

// sniffLen is how much of a file http.DetectContentType looks at.
const sniffLen = 512

// VideoFilter decides which discovered files are videos.
type VideoFilter struct {
	extensions map[string]bool
}

// NewVideoFilter builds a filter from an extension list. An empty list uses
// DefaultExtensions.
func NewVideoFilter(extensions []string) *VideoFilter {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	f := &VideoFilter{extensions: make(map[string]bool, len(extensions))}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.extensions[ext] = true
	}
	return f
}

// IsVideo reports whether path has a video extension or, failing that,
// starts with bytes that sniff as video.
func (f *VideoFilter) IsVideo(path string) bool {
	if f.extensions[strings.ToLower(filepath.Ext(path))] {
		return true
	}
	return sniffVideo(path)
}

func sniffVideo(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return false
	}
	return strings.HasPrefix(http.DetectContentType(buf[:n]), "video/")
}
