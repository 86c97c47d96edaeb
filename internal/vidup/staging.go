package vidup

import (
	"errors"
	"time"

	"vidup/internal/ledger"
)

// ErrAlreadyStaged is returned by Stage when the same content is queued.
var ErrAlreadyStaged = errors.New("content already staged")

// StagedUpload is a file waiting to be uploaded, as it looked when staged.
type StagedUpload struct {
	Hash     ledger.ContentHash `json:"hash"`
	Path     string             `json:"path"`
	Filename string             `json:"filename"`
	Size     int64              `json:"size"`
	ModTime  time.Time          `json:"mod_time"`
	StagedAt time.Time          `json:"staged_at"`
}

// StagingArea is the persistent queue between `vidup add` and `vidup push`.
// Each piece of content is queued at most once. The queue enforces a maximum
// total size of pending uploads.
type StagingArea interface {
	// Stage queues a file whose content hash the caller already computed.
	// It re-stats the file and fails if size or mtime changed since path was
	// resolved. Returns ErrAlreadyStaged if the hash is queued.
	Stage(path *Path, hash ledger.ContentHash) error

	// List returns the queued uploads in staging order.
	List() ([]*StagedUpload, error)

	// Remove drops the upload with this hash. It reports whether one was queued.
	Remove(hash ledger.ContentHash) (bool, error)

	// FindByPath returns the queued upload for a source path, or nil.
	FindByPath(path string) (*StagedUpload, error)

	// Count returns the number of queued uploads.
	Count() (int, error)

	// Size returns the total bytes of queued uploads.
	Size() (int64, error)
}
