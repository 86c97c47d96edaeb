package vidup

import (
	"io/fs"
	"path/filepath"
	"time"
)

// Path is an absolute filesystem path with the stat info captured when it
// was resolved. Paths come from FilesystemManager.Resolve or FindFiles.
type Path struct {
	absPath string
	isDir   bool
	info    fs.FileInfo
}

// NewPath creates a Path from its components.
// This is primarily for use by FilesystemManager implementations.
func NewPath(absPath string, isDir bool, info fs.FileInfo) *Path {
	return &Path{
		absPath: absPath,
		isDir:   isDir,
		info:    info,
	}
}

// String returns the absolute path as a string.
func (p *Path) String() string {
	return p.absPath
}

// Name returns the final path element.
func (p *Path) Name() string {
	return filepath.Base(p.absPath)
}

// Dir returns the directory containing the path.
func (p *Path) Dir() string {
	return filepath.Dir(p.absPath)
}

// IsDir returns true if this path points to a directory.
func (p *Path) IsDir() bool {
	return p.isDir
}

// Info returns the cached file info from when the path was resolved.
func (p *Path) Info() fs.FileInfo {
	return p.info
}

// Size is shorthand for Info().Size().
func (p *Path) Size() int64 {
	return p.info.Size()
}

// ModTime is shorthand for Info().ModTime().
func (p *Path) ModTime() time.Time {
	return p.info.ModTime()
}
