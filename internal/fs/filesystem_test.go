package fs

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestOSFilesystemManager_Resolve(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "clip.mp4")
	writeFile(t, file, "video")

	m := NewOSFilesystemManager(nil)

	t.Run("regular file", func(t *testing.T) {
		p, err := m.Resolve(file)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if p.IsDir() {
			t.Error("IsDir() = true, want false")
		}
		if p.Size() != 5 {
			t.Errorf("Size() = %d, want 5", p.Size())
		}
		if p.Name() != "clip.mp4" {
			t.Errorf("Name() = %q, want clip.mp4", p.Name())
		}
	})

	t.Run("directory", func(t *testing.T) {
		p, err := m.Resolve(dir)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !p.IsDir() {
			t.Error("IsDir() = false, want true")
		}
	})

	t.Run("missing path", func(t *testing.T) {
		if _, err := m.Resolve(filepath.Join(dir, "nope.mp4")); err == nil {
			t.Error("Resolve() expected error for missing path")
		}
	})
}

func TestOSFilesystemManager_FindFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.mp4"), "a")
	writeFile(t, filepath.Join(dir, "sub", "b.mkv"), "b")

	m := NewOSFilesystemManager(nil)
	root, err := m.Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	names := func(recursive bool) []string {
		paths, err := m.FindFiles(root, recursive)
		if err != nil {
			t.Fatalf("FindFiles() error = %v", err)
		}
		var out []string
		for _, p := range paths {
			rel, _ := filepath.Rel(dir, p.String())
			out = append(out, rel)
		}
		sort.Strings(out)
		return out
	}

	if got := names(false); len(got) != 1 || got[0] != "a.mp4" {
		t.Errorf("FindFiles(non-recursive) = %v, want [a.mp4]", got)
	}
	if got := names(true); len(got) != 2 || got[1] != filepath.Join("sub", "b.mkv") {
		t.Errorf("FindFiles(recursive) = %v, want [a.mp4 sub/b.mkv]", got)
	}
}

func TestOSFilesystemManager_IsIgnored(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, IgnoreFileName), "*.tmp.mp4\nraw/*\n")
	writeFile(t, filepath.Join(dir, "keep.mp4"), "k")
	writeFile(t, filepath.Join(dir, "scratch.tmp.mp4"), "s")
	writeFile(t, filepath.Join(dir, "raw", "take1.mp4"), "r")
	writeFile(t, filepath.Join(dir, "show", IgnoreFileName), "trailer.mp4\n")
	writeFile(t, filepath.Join(dir, "show", "trailer.mp4"), "t")
	writeFile(t, filepath.Join(dir, "show", "ep1.mp4"), "e")
	writeFile(t, filepath.Join(dir, "show", "ep1.mp4.part"), "p")
	writeFile(t, filepath.Join(dir, "notes-draft.mp4"), "n")
	writeFile(t, filepath.Join(dir, ".hidden.mp4"), "h")

	m := NewOSFilesystemManager([]string{"*-draft.mp4"})

	tests := []struct {
		rel  string
		want bool
	}{
		{"keep.mp4", false},
		{"scratch.tmp.mp4", true},
		{filepath.Join("raw", "take1.mp4"), true},
		{filepath.Join("show", "trailer.mp4"), true},
		{filepath.Join("show", "ep1.mp4"), false},
		{filepath.Join("show", "ep1.mp4.part"), true},
		{"notes-draft.mp4", true},
		{".hidden.mp4", true},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			p, err := m.Resolve(filepath.Join(dir, tt.rel))
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			got, err := m.IsIgnored(p, dir)
			if err != nil {
				t.Fatalf("IsIgnored() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsIgnored(%s) = %v, want %v", tt.rel, got, tt.want)
			}
		})
	}

	t.Run("file outside root uses its own directory", func(t *testing.T) {
		p, err := m.Resolve(filepath.Join(dir, "show", "trailer.mp4"))
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		got, err := m.IsIgnored(p, t.TempDir())
		if err != nil {
			t.Fatalf("IsIgnored() error = %v", err)
		}
		if !got {
			t.Error("IsIgnored() = false, want true from show/.vidupignore")
		}
	})
}

func TestOSFilesystemManager_FreeSpace(t *testing.T) {
	m := NewOSFilesystemManager(nil)
	free, err := m.FreeSpace(t.TempDir())
	if err != nil {
		if err == errFreeSpaceUnsupported {
			t.Skip("free space not supported on this platform")
		}
		t.Fatalf("FreeSpace() error = %v", err)
	}
	if free <= 0 {
		t.Errorf("FreeSpace() = %d, want > 0", free)
	}
}
