package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"vidup/internal/vidup"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
}

// MockFilesystemManager is an in-memory filesystem for testing.
// Safe for concurrent use.
type MockFilesystemManager struct {
	mu        sync.Mutex
	files     map[string]*MockFile
	ignored   map[string]bool
	freeSpace int64
	freeErr   error
}

// NewMockFilesystemManager creates a new mock filesystem with 1 TiB free.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files:     make(map[string]*MockFile),
		ignored:   make(map[string]bool),
		freeSpace: 1 << 40,
	}
}

// AddFile adds a file to the mock filesystem, creating parent directories.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.AddFileWithTime(path, content, time.Now())
}

// AddFileWithTime adds a file with a specific modification time.
func (m *MockFilesystemManager) AddFileWithTime(path string, content []byte, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addParents(path)
	m.files[path] = &MockFile{
		Content:     content,
		Permissions: 0644,
		ModTime:     modTime,
	}
}

// AddDirectory adds a directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addParents(path)
	m.files[path] = &MockFile{
		Permissions: 0755,
		ModTime:     time.Now(),
		IsDirectory: true,
	}
}

func (m *MockFilesystemManager) addParents(path string) {
	for dir := filepath.Dir(path); dir != "/" && dir != "."; dir = filepath.Dir(dir) {
		if _, ok := m.files[dir]; ok {
			return
		}
		m.files[dir] = &MockFile{Permissions: 0755, ModTime: time.Now(), IsDirectory: true}
	}
}

// RemoveFile deletes a path from the mock filesystem.
func (m *MockFilesystemManager) RemoveFile(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
}

// SetModTime changes a file's modification time.
func (m *MockFilesystemManager) SetModTime(path string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[path]; ok {
		f.ModTime = t
	}
}

// SetIgnored makes IsIgnored report path as ignored.
func (m *MockFilesystemManager) SetIgnored(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignored[path] = true
}

// SetFreeSpace sets the value FreeSpace returns. A non-nil err is returned
// instead.
func (m *MockFilesystemManager) SetFreeSpace(n int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freeSpace = n
	m.freeErr = err
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*vidup.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[absPath]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", absPath)
	}
	return vidup.NewPath(absPath, file.IsDirectory, newMockFileInfo(absPath, file)), nil
}

func (m *MockFilesystemManager) Open(path *vidup.Path) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path.String())
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", path.String())
	}
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

func (m *MockFilesystemManager) Stat(path *vidup.Path) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path.String())
	}
	return newMockFileInfo(path.String(), file), nil
}

// FindFiles returns regular files under path in lexical order.
func (m *MockFilesystemManager) FindFiles(path *vidup.Path, recursive bool) ([]*vidup.Path, error) {
	if !path.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", path.String())
	}
	prefix := strings.TrimSuffix(path.String(), "/") + "/"

	m.mu.Lock()
	defer m.mu.Unlock()
	var found []*vidup.Path
	for p, file := range m.files {
		if file.IsDirectory || !strings.HasPrefix(p, prefix) {
			continue
		}
		if !recursive && strings.Contains(p[len(prefix):], "/") {
			continue
		}
		found = append(found, vidup.NewPath(p, false, newMockFileInfo(p, file)))
	}
	sort.Slice(found, func(i, j int) bool { return found[i].String() < found[j].String() })
	return found, nil
}

func (m *MockFilesystemManager) IsIgnored(path *vidup.Path, root string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ignored[path.String()], nil
}

func (m *MockFilesystemManager) FreeSpace(dir string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freeSpace, m.freeErr
}

// mockFileInfo implements fs.FileInfo as a snapshot of a MockFile.
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func newMockFileInfo(path string, f *MockFile) *mockFileInfo {
	mode := f.Permissions
	if f.IsDirectory {
		mode |= fs.ModeDir
	}
	return &mockFileInfo{
		name:    filepath.Base(path),
		size:    int64(len(f.Content)),
		mode:    mode,
		modTime: f.ModTime,
		isDir:   f.IsDirectory,
	}
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ vidup.FilesystemManager = (*MockFilesystemManager)(nil)
