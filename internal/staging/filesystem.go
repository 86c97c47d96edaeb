package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"vidup/internal/vidup"
)

const queueFileName = "queue.json"

// fileStore persists the queue as JSON so `vidup add` and `vidup push` can
// run as separate invocations.
//
// Directory structure:
//
//	<staging_dir>/
//	  queue.json    (ordered list of staged uploads)
type fileStore struct {
	stagingDir string
	queuePath  string
}

// NewFileSystemStagingArea creates a new filesystem-based staging area.
// maxSize is the maximum total size in bytes; 0 means unlimited.
func NewFileSystemStagingArea(fsmgr vidup.FilesystemManager, stagingDir string, maxSize int64) (vidup.StagingArea, error) {
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &stagingArea{
		fsmgr: fsmgr,
		store: &fileStore{
			stagingDir: stagingDir,
			queuePath:  filepath.Join(stagingDir, queueFileName),
		},
		maxSize: maxSize,
		now:     time.Now,
	}, nil
}

func (f *fileStore) Load() ([]*vidup.StagedUpload, error) {
	data, err := os.ReadFile(f.queuePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading queue: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var items []*vidup.StagedUpload
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing queue %s: %w", f.queuePath, err)
	}
	return items, nil
}

func (f *fileStore) Save(items []*vidup.StagedUpload) error {
	if items == nil {
		items = []*vidup.StagedUpload{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding queue: %w", err)
	}

	tmp, err := os.CreateTemp(f.stagingDir, ".queue-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing queue: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.queuePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing queue: %w", err)
	}
	return nil
}
