package media

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoFilter_Extensions(t *testing.T) {
	f := NewVideoFilter(nil)

	for _, name := range []string{"a.mp4", "B.MKV", "c.webm", "dir/d.mov"} {
		assert.True(t, f.IsVideo(name), name)
	}
	for _, name := range []string{"notes.txt", "photo.jpg", "missing"} {
		assert.False(t, f.IsVideo(name), name)
	}
}

func TestVideoFilter_CustomExtensions(t *testing.T) {
	f := NewVideoFilter([]string{"MP4", " .rec "})

	assert.True(t, f.IsVideo("a.mp4"))
	assert.True(t, f.IsVideo("cam.rec"))
	assert.False(t, f.IsVideo("a.mkv"))
}

func TestVideoFilter_Sniff(t *testing.T) {
	dir := t.TempDir()

	// WebM files start with the EBML magic followed by the webm doctype.
	webm := append([]byte{0x1A, 0x45, 0xDF, 0xA3}, []byte("\x9fB\x86\x81\x01B\xf7\x81\x01B\xf2\x81\x04B\xf3\x81\x08B\x82\x84webm")...)
	noExt := filepath.Join(dir, "recording")
	require.NoError(t, os.WriteFile(noExt, webm, 0644))

	text := filepath.Join(dir, "readme")
	require.NoError(t, os.WriteFile(text, []byte("just some text"), 0644))

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0644))

	f := NewVideoFilter(nil)
	assert.True(t, f.IsVideo(noExt))
	assert.False(t, f.IsVideo(text))
	assert.False(t, f.IsVideo(empty))
}
