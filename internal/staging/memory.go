package staging

import (
	"time"

	"vidup/internal/vidup"
)

// memoryStore keeps the queue in memory. Useful for testing.
type memoryStore struct {
	items []*vidup.StagedUpload
}

// NewMemoryStagingArea creates a new in-memory staging area.
// maxSize is the maximum total size in bytes; 0 means unlimited.
func NewMemoryStagingArea(fsmgr vidup.FilesystemManager, maxSize int64) vidup.StagingArea {
	return &stagingArea{
		fsmgr:   fsmgr,
		store:   &memoryStore{},
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (m *memoryStore) Load() ([]*vidup.StagedUpload, error) {
	return append([]*vidup.StagedUpload(nil), m.items...), nil
}

func (m *memoryStore) Save(items []*vidup.StagedUpload) error {
	m.items = append([]*vidup.StagedUpload(nil), items...)
	return nil
}
