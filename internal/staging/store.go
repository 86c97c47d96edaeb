package staging

import "vidup/internal/vidup"

// stagingStore abstracts where the queue lives.
// Concurrency is managed by the caller (stagingArea.mu), so stores
// do not need to be safe for concurrent use.
type stagingStore interface {
	// Load returns the queue in staging order. An empty store returns nil.
	Load() ([]*vidup.StagedUpload, error)

	// Save replaces the stored queue.
	Save(items []*vidup.StagedUpload) error
}
