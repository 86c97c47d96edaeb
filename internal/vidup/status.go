package vidup

import (
	"fmt"
	"path/filepath"

	"vidup/internal/ledger"
)

// FileStatus represents the upload state of a single video.
type FileStatus struct {
	RelativePath string
	Hash         ledger.ContentHash
	IsUploaded   bool
	// DuplicateOf is set when the content itself was never uploaded but is
	// marked as a duplicate of content that was.
	DuplicateOf     ledger.ContentHash
	IsStaged        bool
	IsModifiedSince bool
}

// GetStatus returns the upload status of videos under the given path.
// If path is a file, only that file is reported. If recursive is true,
// files in subdirectories are included.
func (s *UploadService) GetStatus(path *Path, recursive bool) ([]*FileStatus, error) {
	s.logger.Debug("computing status", "path", path.String())

	if !path.IsDir() {
		status, err := s.getFileStatus(path.Dir(), path)
		if err != nil {
			return nil, err
		}
		return []*FileStatus{status}, nil
	}

	files, err := s.fsmgr.FindFiles(path, recursive)
	if err != nil {
		return nil, fmt.Errorf("finding files: %w", err)
	}

	var statuses []*FileStatus
	for _, f := range files {
		if !s.isVideo(f.String()) {
			continue
		}
		status, err := s.getFileStatus(path.String(), f)
		if err != nil {
			return nil, fmt.Errorf("getting status for %s: %w", f.String(), err)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// getFileStatus computes the status for a single file on disk.
func (s *UploadService) getFileStatus(root string, path *Path) (*FileStatus, error) {
	relPath, err := filepath.Rel(root, path.String())
	if err != nil {
		return nil, fmt.Errorf("computing relative path: %w", err)
	}
	status := &FileStatus{RelativePath: relPath}

	staged, err := s.stagingArea.FindByPath(path.String())
	if err != nil {
		return nil, fmt.Errorf("checking staged: %w", err)
	}
	if staged != nil {
		status.IsStaged = true
		status.IsModifiedSince = path.Size() != staged.Size || !path.ModTime().Equal(staged.ModTime)
	}

	hash, err := s.hasher.Hash(path)
	if err != nil {
		return nil, fmt.Errorf("hashing file: %w", err)
	}
	status.Hash = hash
	status.IsUploaded = s.ledger.IsUploaded(hash)
	if !status.IsUploaded {
		if of, ok := s.uploadedDuplicate(hash); ok {
			status.DuplicateOf = of
		}
	}
	return status, nil
}

// uploadedDuplicate returns an uploaded hash that hash is marked as a
// duplicate of, if there is one.
func (s *UploadService) uploadedDuplicate(hash ledger.ContentHash) (ledger.ContentHash, bool) {
	for _, other := range s.ledger.GetDuplicatesOf(hash) {
		if s.ledger.IsUploaded(other) {
			return other, true
		}
	}
	return "", false
}
