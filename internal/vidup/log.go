package vidup

import "fmt"

// GetFileHistory returns every recorded upload attempt for the current
// content of a file, newest first.
func (s *UploadService) GetFileHistory(path *Path) ([]*Attempt, error) {
	s.logger.Debug("fetching file history", "path", path.String())

	if path.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path.String())
	}

	hash, err := s.hasher.Hash(path)
	if err != nil {
		return nil, fmt.Errorf("hashing file: %w", err)
	}

	attempts, err := s.database.FindAttemptsByHash(hash)
	if err != nil {
		return nil, fmt.Errorf("finding attempts: %w", err)
	}
	return attempts, nil
}
