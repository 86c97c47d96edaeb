package staging

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vidup/internal/ledger"
	"vidup/internal/vidup"
)

// mockFSMgr is a minimal filesystem mock for staging tests.
type mockFSMgr struct {
	files map[string]*mockEntry
}

type mockEntry struct {
	content []byte
	mode    fs.FileMode
	modTime time.Time
}

func newMockFSMgr() *mockFSMgr {
	return &mockFSMgr{files: make(map[string]*mockEntry)}
}

func (m *mockFSMgr) addFile(path string, content []byte) {
	m.files[path] = &mockEntry{content: content, mode: 0644, modTime: time.Now()}
}

func (m *mockFSMgr) Resolve(rawPath string) (*vidup.Path, error) {
	absPath, _ := filepath.Abs(rawPath)
	e, ok := m.files[absPath]
	if !ok {
		return nil, fmt.Errorf("not found: %s", absPath)
	}
	snapshot := *e
	return vidup.NewPath(absPath, false, &mockFileInfo{name: filepath.Base(absPath), entry: &snapshot}), nil
}

func (m *mockFSMgr) Open(path *vidup.Path) (io.ReadCloser, error) {
	e, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("not found: %s", path.String())
	}
	return io.NopCloser(bytes.NewReader(e.content)), nil
}

func (m *mockFSMgr) Stat(path *vidup.Path) (fs.FileInfo, error) {
	e, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("not found: %s", path.String())
	}
	return &mockFileInfo{name: filepath.Base(path.String()), entry: e}, nil
}

func (m *mockFSMgr) FindFiles(path *vidup.Path, recursive bool) ([]*vidup.Path, error) {
	return nil, nil
}

func (m *mockFSMgr) IsIgnored(path *vidup.Path, root string) (bool, error) {
	return false, nil
}

func (m *mockFSMgr) FreeSpace(dir string) (int64, error) {
	return 1 << 40, nil
}

type mockFileInfo struct {
	name  string
	entry *mockEntry
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return int64(len(m.entry.content)) }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.entry.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.entry.modTime }
func (m *mockFileInfo) IsDir() bool        { return false }
func (m *mockFileInfo) Sys() any           { return m.entry }

var _ vidup.FilesystemManager = (*mockFSMgr)(nil)

// helpers

func newTestSA(t *testing.T, maxSize int64) (vidup.StagingArea, *mockFSMgr) {
	t.Helper()
	fsmgr := newMockFSMgr()
	return NewMemoryStagingArea(fsmgr, maxSize), fsmgr
}

func stageFile(t *testing.T, sa vidup.StagingArea, fsmgr *mockFSMgr, path string, content []byte, hash ledger.ContentHash) error {
	t.Helper()
	fsmgr.addFile(path, content)
	p, err := fsmgr.Resolve(path)
	if err != nil {
		t.Fatalf("resolve %s: %v", path, err)
	}
	return sa.Stage(p, hash)
}

// Tests

func TestStagingArea_Stage(t *testing.T) {
	t.Run("stages a file and increments count", func(t *testing.T) {
		sa, fsmgr := newTestSA(t, 0)
		if err := stageFile(t, sa, fsmgr, "/videos/a.mp4", []byte("hello"), "h1"); err != nil {
			t.Fatalf("Stage() error = %v", err)
		}

		count, err := sa.Count()
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if count != 1 {
			t.Errorf("Count() = %d, want 1", count)
		}
		size, _ := sa.Size()
		if size != 5 {
			t.Errorf("Size() = %d, want 5", size)
		}
	})

	t.Run("records file details", func(t *testing.T) {
		sa, fsmgr := newTestSA(t, 0)
		if err := stageFile(t, sa, fsmgr, "/videos/a.mp4", []byte("hello"), "h1"); err != nil {
			t.Fatalf("Stage() error = %v", err)
		}
		items, _ := sa.List()
		if len(items) != 1 {
			t.Fatalf("List() len = %d, want 1", len(items))
		}
		got := items[0]
		if got.Hash != "h1" || got.Path != "/videos/a.mp4" || got.Filename != "a.mp4" || got.Size != 5 {
			t.Errorf("staged = %+v", got)
		}
		if got.StagedAt.IsZero() {
			t.Error("StagedAt is zero")
		}
	})

	t.Run("same content is queued once", func(t *testing.T) {
		sa, fsmgr := newTestSA(t, 0)
		if err := stageFile(t, sa, fsmgr, "/videos/a.mp4", []byte("same"), "h1"); err != nil {
			t.Fatalf("Stage() error = %v", err)
		}
		err := stageFile(t, sa, fsmgr, "/videos/copy.mp4", []byte("same"), "h1")
		if !errors.Is(err, vidup.ErrAlreadyStaged) {
			t.Fatalf("Stage() error = %v, want ErrAlreadyStaged", err)
		}
		count, _ := sa.Count()
		if count != 1 {
			t.Errorf("Count() = %d, want 1", count)
		}
	})

	t.Run("restaging a changed path replaces the stale entry", func(t *testing.T) {
		sa, fsmgr := newTestSA(t, 0)
		stageFile(t, sa, fsmgr, "/videos/a.mp4", []byte("v1"), "h1")
		if err := stageFile(t, sa, fsmgr, "/videos/a.mp4", []byte("version2"), "h2"); err != nil {
			t.Fatalf("Stage() error = %v", err)
		}
		items, _ := sa.List()
		if len(items) != 1 || items[0].Hash != "h2" {
			t.Errorf("List() = %+v, want only h2", items)
		}
	})

	t.Run("rejects file changed after resolve", func(t *testing.T) {
		sa, fsmgr := newTestSA(t, 0)
		fsmgr.addFile("/videos/a.mp4", []byte("hello"))
		p, _ := fsmgr.Resolve("/videos/a.mp4")
		fsmgr.files["/videos/a.mp4"].content = []byte("hello, world")

		if err := sa.Stage(p, "h1"); err == nil {
			t.Fatal("Stage() expected error for changed file")
		}
		count, _ := sa.Count()
		if count != 0 {
			t.Errorf("Count() = %d, want 0", count)
		}
	})

	t.Run("rejects empty hash", func(t *testing.T) {
		sa, fsmgr := newTestSA(t, 0)
		err := stageFile(t, sa, fsmgr, "/videos/a.mp4", []byte("x"), "")
		if !errors.Is(err, ledger.ErrEmptyHash) {
			t.Errorf("Stage() error = %v, want ErrEmptyHash", err)
		}
	})

	t.Run("enforces max size", func(t *testing.T) {
		sa, fsmgr := newTestSA(t, 8)
		if err := stageFile(t, sa, fsmgr, "/videos/a.mp4", []byte("12345"), "h1"); err != nil {
			t.Fatalf("Stage() error = %v", err)
		}
		err := stageFile(t, sa, fsmgr, "/videos/b.mp4", []byte("6789"), "h2")
		if !errors.Is(err, ErrStagingFull) {
			t.Fatalf("Stage() error = %v, want ErrStagingFull", err)
		}
		if err := stageFile(t, sa, fsmgr, "/videos/c.mp4", []byte("678"), "h3"); err != nil {
			t.Errorf("Stage() at exactly max size error = %v", err)
		}
	})
}

func TestStagingArea_Remove(t *testing.T) {
	sa, fsmgr := newTestSA(t, 0)
	stageFile(t, sa, fsmgr, "/videos/a.mp4", []byte("a"), "h1")
	stageFile(t, sa, fsmgr, "/videos/b.mp4", []byte("b"), "h2")
	stageFile(t, sa, fsmgr, "/videos/c.mp4", []byte("c"), "h3")

	removed, err := sa.Remove("h2")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !removed {
		t.Error("Remove() = false, want true")
	}

	items, _ := sa.List()
	if len(items) != 2 || items[0].Hash != "h1" || items[1].Hash != "h3" {
		t.Errorf("List() after remove = %+v, want [h1 h3] in order", items)
	}

	removed, err = sa.Remove("h2")
	if err != nil || removed {
		t.Errorf("second Remove() = %v, %v; want false, nil", removed, err)
	}
}

func TestStagingArea_FindByPath(t *testing.T) {
	sa, fsmgr := newTestSA(t, 0)
	stageFile(t, sa, fsmgr, "/videos/a.mp4", []byte("a"), "h1")

	got, err := sa.FindByPath("/videos/a.mp4")
	if err != nil {
		t.Fatalf("FindByPath() error = %v", err)
	}
	if got == nil || got.Hash != "h1" {
		t.Errorf("FindByPath() = %+v, want h1", got)
	}

	got, err = sa.FindByPath("/videos/missing.mp4")
	if err != nil || got != nil {
		t.Errorf("FindByPath(missing) = %+v, %v; want nil, nil", got, err)
	}
}

func TestStagingArea_ListReturnsCopies(t *testing.T) {
	sa, fsmgr := newTestSA(t, 0)
	stageFile(t, sa, fsmgr, "/videos/a.mp4", []byte("a"), "h1")

	items, _ := sa.List()
	items[0].Hash = "mutated"

	again, _ := sa.List()
	if again[0].Hash != "h1" {
		t.Errorf("List() exposed internal state: got %s", again[0].Hash)
	}
}

func TestFileSystemStagingArea_Persists(t *testing.T) {
	dir := t.TempDir()
	fsmgr := newMockFSMgr()

	sa, err := NewFileSystemStagingArea(fsmgr, dir, 0)
	if err != nil {
		t.Fatalf("NewFileSystemStagingArea() error = %v", err)
	}
	if err := stageFile(t, sa, fsmgr, "/videos/a.mp4", []byte("hello"), "h1"); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if err := stageFile(t, sa, fsmgr, "/videos/b.mp4", []byte("bye"), "h2"); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, queueFileName)); err != nil {
		t.Fatalf("queue file not written: %v", err)
	}

	reopened, err := NewFileSystemStagingArea(fsmgr, dir, 0)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	items, err := reopened.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 2 || items[0].Hash != "h1" || items[1].Hash != "h2" {
		t.Fatalf("List() after reopen = %+v", items)
	}
	if items[0].Size != 5 || items[0].Filename != "a.mp4" {
		t.Errorf("item[0] = %+v", items[0])
	}

	if _, err := reopened.Remove("h1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	third, _ := NewFileSystemStagingArea(fsmgr, dir, 0)
	if n, _ := third.Count(); n != 1 {
		t.Errorf("Count() after remove and reopen = %d, want 1", n)
	}
}

func TestFileSystemStagingArea_CorruptQueue(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, queueFileName), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	sa, err := NewFileSystemStagingArea(newMockFSMgr(), dir, 0)
	if err != nil {
		t.Fatalf("NewFileSystemStagingArea() error = %v", err)
	}
	if _, err := sa.List(); err == nil {
		t.Error("List() expected error for corrupt queue")
	}
}
