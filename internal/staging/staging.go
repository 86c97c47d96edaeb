package staging

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"vidup/internal/ledger"
	"vidup/internal/vidup"
)

// ErrStagingFull is returned when staging a file would exceed the size cap.
var ErrStagingFull = errors.New("staging area full")

// stagingArea implements vidup.StagingArea using a pluggable stagingStore
// for the storage mechanics. All shared queue logic lives here.
type stagingArea struct {
	fsmgr   vidup.FilesystemManager
	store   stagingStore
	maxSize int64
	now     func() time.Time
	mu      sync.Mutex
}

var _ vidup.StagingArea = (*stagingArea)(nil)

// Stage queues a file for upload.
func (s *stagingArea) Stage(path *vidup.Path, hash ledger.ContentHash) error {
	if hash == "" {
		return ledger.ErrEmptyHash
	}
	if path.IsDir() {
		return fmt.Errorf("cannot stage directory: %s", path.String())
	}

	// 1. Re-stat to make sure the file is the one that was hashed
	info, err := s.fsmgr.Stat(path)
	if err != nil {
		return fmt.Errorf("re-stat file: %w", err)
	}
	if err := validateStatUnchanged(path.Info(), info); err != nil {
		return fmt.Errorf("file changed since it was hashed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("loading queue: %w", err)
	}

	// 2. One entry per content; a path restaged with new content replaces
	// its stale entry
	kept := items[:0]
	var total int64
	for _, item := range items {
		if item.Hash == hash {
			return vidup.ErrAlreadyStaged
		}
		if item.Path == path.String() {
			continue
		}
		total += item.Size
		kept = append(kept, item)
	}

	// 3. Check size limit
	if s.maxSize > 0 && total+info.Size() > s.maxSize {
		return fmt.Errorf("%w: would exceed max size of %d bytes", ErrStagingFull, s.maxSize)
	}

	// 4. Enqueue
	kept = append(kept, &vidup.StagedUpload{
		Hash:     hash,
		Path:     path.String(),
		Filename: path.Name(),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		StagedAt: s.now().UTC(),
	})
	if err := s.store.Save(kept); err != nil {
		return fmt.Errorf("adding to queue: %w", err)
	}
	return nil
}

// List returns a copy of the queue in staging order.
func (s *stagingArea) List() ([]*vidup.StagedUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	out := make([]*vidup.StagedUpload, len(items))
	for i, item := range items {
		cp := *item
		out[i] = &cp
	}
	return out, nil
}

// Remove drops the queued upload with this hash.
func (s *stagingArea) Remove(hash ledger.ContentHash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.store.Load()
	if err != nil {
		return false, err
	}
	for i, item := range items {
		if item.Hash != hash {
			continue
		}
		items = append(items[:i], items[i+1:]...)
		if err := s.store.Save(items); err != nil {
			return false, fmt.Errorf("removing from queue: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// FindByPath returns the queued upload for a source path, or nil.
func (s *stagingArea) FindByPath(path string) (*vidup.StagedUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.Path == path {
			cp := *item
			return &cp, nil
		}
	}
	return nil, nil
}

// Count returns the number of queued uploads.
func (s *stagingArea) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.store.Load()
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Size returns the total size of queued files in bytes.
func (s *stagingArea) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.store.Load()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, item := range items {
		total += item.Size
	}
	return total, nil
}
