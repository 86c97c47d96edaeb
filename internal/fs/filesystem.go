package fs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"vidup/internal/vidup"
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
// It performs actual filesystem operations using the os package.
type OSFilesystemManager struct {
	global *IgnoreMatcher

	mu       sync.Mutex
	dirRules map[string]*IgnoreMatcher
}

// NewOSFilesystemManager creates a new filesystem manager that operates on the real filesystem.
// ignorePatterns apply everywhere in addition to the built-in defaults and
// any .vidupignore files.
func NewOSFilesystemManager(ignorePatterns []string) *OSFilesystemManager {
	patterns := append(append([]string{}, defaultIgnorePatterns...), ignorePatterns...)
	return &OSFilesystemManager{
		global:   NewIgnoreMatcher(patterns),
		dirRules: make(map[string]*IgnoreMatcher),
	}
}

// Resolve validates a raw path and returns a Path object.
func (m *OSFilesystemManager) Resolve(rawPath string) (*vidup.Path, error) {
	// Convert to absolute path
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	// Stat the path
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	// Check for special file types we don't support
	mode := info.Mode()
	if mode&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("symlinks not supported: %s", absPath)
	}
	if mode&os.ModeDevice != 0 {
		return nil, fmt.Errorf("device files not supported: %s", absPath)
	}
	if mode&os.ModeNamedPipe != 0 {
		return nil, fmt.Errorf("named pipes not supported: %s", absPath)
	}
	if mode&os.ModeSocket != 0 {
		return nil, fmt.Errorf("sockets not supported: %s", absPath)
	}

	return vidup.NewPath(absPath, info.IsDir(), info), nil
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path *vidup.Path) (io.ReadCloser, error) {
	if path.IsDir() {
		return nil, fmt.Errorf("cannot open directory as file: %s", path.String())
	}
	return os.Open(path.String())
}

// Stat returns fresh file info for a path.
func (m *OSFilesystemManager) Stat(path *vidup.Path) (fs.FileInfo, error) {
	return os.Stat(path.String())
}

// FindFiles discovers regular files under the given directory path.
func (m *OSFilesystemManager) FindFiles(path *vidup.Path, recursive bool) ([]*vidup.Path, error) {
	if !path.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", path.String())
	}

	var paths []*vidup.Path

	if recursive {
		err := filepath.WalkDir(path.String(), func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return fmt.Errorf("stat %s: %w", p, err)
			}
			paths = append(paths, vidup.NewPath(p, false, info))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking directory: %w", err)
		}
	} else {
		entries, err := os.ReadDir(path.String())
		if err != nil {
			return nil, fmt.Errorf("reading directory: %w", err)
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
			}
			fullPath := filepath.Join(path.String(), entry.Name())
			paths = append(paths, vidup.NewPath(fullPath, false, info))
		}
	}

	return paths, nil
}

// IsIgnored reports whether path is excluded by the global patterns or by a
// .vidupignore in root or any directory between root and the file. Patterns
// in a .vidupignore are relative to the directory holding it. Files outside
// root are checked against their own directory only.
func (m *OSFilesystemManager) IsIgnored(path *vidup.Path, root string) (bool, error) {
	rel, err := filepath.Rel(root, path.String())
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		root = path.Dir()
		rel = path.Name()
	}
	if m.global.Match(rel) {
		return true, nil
	}

	dir := root
	remaining := rel
	for {
		matcher, err := m.dirMatcher(dir)
		if err != nil {
			return false, err
		}
		if matcher.Match(remaining) {
			return true, nil
		}
		first, rest, found := strings.Cut(remaining, string(filepath.Separator))
		if !found {
			return false, nil
		}
		dir = filepath.Join(dir, first)
		remaining = rest
	}
}

// dirMatcher returns the parsed .vidupignore for dir, cached for the
// lifetime of the manager.
func (m *OSFilesystemManager) dirMatcher(dir string) (*IgnoreMatcher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if matcher, ok := m.dirRules[dir]; ok {
		return matcher, nil
	}
	patterns, err := ParseIgnoreFile(filepath.Join(dir, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	matcher := NewIgnoreMatcher(patterns)
	m.dirRules[dir] = matcher
	return matcher, nil
}

// FreeSpace returns the bytes available to unprivileged users in dir.
func (m *OSFilesystemManager) FreeSpace(dir string) (int64, error) {
	free, err := freeSpace(dir)
	if err != nil {
		if errors.Is(err, errFreeSpaceUnsupported) {
			return 0, err
		}
		return 0, fmt.Errorf("checking free space in %s: %w", dir, err)
	}
	return free, nil
}

// Compile-time check that OSFilesystemManager implements vidup.FilesystemManager interface
var _ vidup.FilesystemManager = (*OSFilesystemManager)(nil)
