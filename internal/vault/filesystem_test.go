package vault

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFileSystemVault(t *testing.T) {
	t.Run("creates directory structure", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "vault")

		v, err := NewFileSystemVault("test", root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}

		if _, err := os.Stat(filepath.Join(root, "metadata")); err != nil {
			t.Errorf("metadata directory not created: %v", err)
		}
		if v.name != "test" {
			t.Errorf("name = %q, want %q", v.name, "test")
		}
	})

	t.Run("works with existing directory", func(t *testing.T) {
		if _, err := NewFileSystemVault("test", t.TempDir()); err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
	})
}

func TestFileSystemVault_PutMetadata(t *testing.T) {
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	hostID := "host-123"
	data := "ledger snapshot"

	if err := v.PutMetadata(hostID, "ledger", strings.NewReader(data), int64(len(data)), 7); err != nil {
		t.Fatalf("PutMetadata() error = %v", err)
	}

	content, err := os.ReadFile(filepath.Join(v.metadataDir, hostID, "ledger"))
	if err != nil {
		t.Fatalf("failed to read metadata file: %v", err)
	}
	if string(content) != data {
		t.Errorf("metadata = %q, want %q", string(content), data)
	}

	version, err := v.GetMetadataVersion(hostID, "ledger")
	if err != nil {
		t.Fatalf("GetMetadataVersion() error = %v", err)
	}
	if version != 7 {
		t.Errorf("GetMetadataVersion() = %d, want 7", version)
	}
}

func TestFileSystemVault_PutMetadata_Overwrites(t *testing.T) {
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	hostID := "host-123"

	data1 := "version 1"
	if err := v.PutMetadata(hostID, "db", strings.NewReader(data1), int64(len(data1)), 1); err != nil {
		t.Fatalf("first PutMetadata() error = %v", err)
	}
	data2 := "version 2"
	if err := v.PutMetadata(hostID, "db", strings.NewReader(data2), int64(len(data2)), 2); err != nil {
		t.Fatalf("second PutMetadata() error = %v", err)
	}

	var buf bytes.Buffer
	if err := v.GetMetadata(hostID, "db", &buf); err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	if buf.String() != data2 {
		t.Errorf("metadata = %q, want %q", buf.String(), data2)
	}
	if version, _ := v.GetMetadataVersion(hostID, "db"); version != 2 {
		t.Errorf("GetMetadataVersion() = %d, want 2", version)
	}
}

func TestFileSystemVault_PutMetadata_SizeMismatch(t *testing.T) {
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	if err := v.PutMetadata("host", "db", strings.NewReader("short"), 100, 1); err == nil {
		t.Fatal("PutMetadata() expected size mismatch error")
	}
	if version, _ := v.GetMetadataVersion("host", "db"); version != 0 {
		t.Errorf("version written despite failed put: %d", version)
	}
}

func TestFileSystemVault_NamesAreIndependent(t *testing.T) {
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	v.PutMetadata("host", "ledger", strings.NewReader("L"), 1, 3)
	v.PutMetadata("host", "db", strings.NewReader("D"), 1, 4)
	v.PutMetadata("other", "ledger", strings.NewReader("O"), 1, 9)

	for _, tc := range []struct {
		host, name, want string
		version          int64
	}{
		{"host", "ledger", "L", 3},
		{"host", "db", "D", 4},
		{"other", "ledger", "O", 9},
	} {
		var buf bytes.Buffer
		if err := v.GetMetadata(tc.host, tc.name, &buf); err != nil {
			t.Fatalf("GetMetadata(%s, %s) error = %v", tc.host, tc.name, err)
		}
		if buf.String() != tc.want {
			t.Errorf("GetMetadata(%s, %s) = %q, want %q", tc.host, tc.name, buf.String(), tc.want)
		}
		if got, _ := v.GetMetadataVersion(tc.host, tc.name); got != tc.version {
			t.Errorf("GetMetadataVersion(%s, %s) = %d, want %d", tc.host, tc.name, got, tc.version)
		}
	}
}

func TestFileSystemVault_GetMetadata(t *testing.T) {
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	t.Run("metadata not found", func(t *testing.T) {
		var buf bytes.Buffer
		err := v.GetMetadata("nonexistent", "ledger", &buf)
		if !errors.Is(err, ErrMetadataNotFound) {
			t.Errorf("GetMetadata() error = %v, want ErrMetadataNotFound", err)
		}
	})

	t.Run("missing version is zero", func(t *testing.T) {
		version, err := v.GetMetadataVersion("nonexistent", "ledger")
		if err != nil {
			t.Fatalf("GetMetadataVersion() error = %v", err)
		}
		if version != 0 {
			t.Errorf("GetMetadataVersion() = %d, want 0", version)
		}
	})

	t.Run("rejects path traversal", func(t *testing.T) {
		var buf bytes.Buffer
		if err := v.GetMetadata("..", "ledger", &buf); err == nil {
			t.Error("GetMetadata() expected error for traversal host")
		}
		if err := v.PutMetadata("host", "../x", strings.NewReader(""), 0, 1); err == nil {
			t.Error("PutMetadata() expected error for traversal name")
		}
	})
}

func TestFileSystemVault_ValidateSetup(t *testing.T) {
	t.Run("valid setup", func(t *testing.T) {
		v, err := NewFileSystemVault("test", t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		if err := v.ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})

	t.Run("missing root directory", func(t *testing.T) {
		v := &FileSystemVault{
			name:        "test",
			root:        "/nonexistent/path",
			metadataDir: "/nonexistent/path/metadata",
		}
		if err := v.ValidateSetup(); err == nil {
			t.Error("ValidateSetup() expected error for missing root")
		}
	})
}

func TestFileSystemVault_AtomicWrite(t *testing.T) {
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	data := "hello world"
	if err := v.PutMetadata("host", "db", strings.NewReader(data), int64(len(data)), 1); err != nil {
		t.Fatalf("PutMetadata() error = %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(v.metadataDir, "host"))
	if err != nil {
		t.Fatalf("failed to read host dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", entry.Name())
		}
	}
}
