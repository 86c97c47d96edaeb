package vidup

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"vidup/internal/ledger"
)

// ListUploads returns every upload record, newest first.
func (s *UploadService) ListUploads() []ledger.UploadRecord {
	all := s.ledger.GetAllUploads()
	records := make([]ledger.UploadRecord, 0, len(all))
	for _, rec := range all {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].UploadedAt.Equal(records[j].UploadedAt) {
			return records[i].UploadedAt.After(records[j].UploadedAt)
		}
		return records[i].Hash < records[j].Hash
	})
	return records
}

// UploadInfo returns the record for hash and its duplicate relations.
func (s *UploadService) UploadInfo(hash ledger.ContentHash) (ledger.UploadRecord, []ledger.ContentHash, bool) {
	rec, ok := s.ledger.GetUploadInfo(hash)
	return rec, s.ledger.GetDuplicatesOf(hash), ok
}

// DuplicatesOf returns the hashes marked as duplicates of hash, in either direction.
func (s *UploadService) DuplicatesOf(hash ledger.ContentHash) []ledger.ContentHash {
	return s.ledger.GetDuplicatesOf(hash)
}

// RemoveUpload forgets an upload so the content can be sent again.
func (s *UploadService) RemoveUpload(hash ledger.ContentHash) (bool, error) {
	removed, err := s.ledger.RemoveUpload(hash)
	if err != nil {
		return removed, fmt.Errorf("removing upload: %w", err)
	}
	if removed {
		s.logger.Info("upload removed from ledger", "hash", hash.Short())
	}
	return removed, nil
}

// ClearLedger forgets every upload and duplicate mark.
func (s *UploadService) ClearLedger() error {
	n := s.ledger.Len()
	if err := s.ledger.Clear(); err != nil {
		return fmt.Errorf("clearing ledger: %w", err)
	}
	s.logger.Info("ledger cleared", "uploads", n)
	return nil
}

// MarkDuplicate records that hash is a duplicate of of.
func (s *UploadService) MarkDuplicate(hash, of ledger.ContentHash) error {
	if err := s.ledger.AddDuplicate(hash, of); err != nil {
		return fmt.Errorf("marking duplicate: %w", err)
	}
	s.logger.Info("duplicate marked", "hash", hash.Short(), "of", of.Short())
	return nil
}

// UnmarkDuplicate removes a duplicate mark between two hashes.
func (s *UploadService) UnmarkDuplicate(hash, of ledger.ContentHash) (bool, error) {
	changed, err := s.ledger.RemoveDuplicate(hash, of)
	if err != nil {
		return changed, fmt.Errorf("unmarking duplicate: %w", err)
	}
	return changed, nil
}

// ImportLedger replaces the ledger with the document read from r.
func (s *UploadService) ImportLedger(r io.Reader) error {
	if err := s.ledger.ReplaceWith(r); err != nil {
		return fmt.Errorf("importing ledger: %w", err)
	}
	s.logger.Info("ledger imported", "uploads", s.ledger.Len())
	return nil
}

// HashFile returns the content hash of a file.
func (s *UploadService) HashFile(path *Path) (ledger.ContentHash, error) {
	if path.IsDir() {
		return "", fmt.Errorf("path is a directory: %s", path.String())
	}
	return s.hasher.Hash(path)
}

// ResolveHash expands a hash or an unambiguous prefix of an uploaded hash.
// Strings that match no upload are returned unchanged, since duplicate marks
// may name content that was never uploaded.
func (s *UploadService) ResolveHash(ref string) (ledger.ContentHash, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return "", ledger.ErrEmptyHash
	}
	if s.ledger.IsUploaded(ledger.ContentHash(ref)) {
		return ledger.ContentHash(ref), nil
	}

	var matches []ledger.ContentHash
	for hash := range s.ledger.GetAllUploads() {
		if strings.HasPrefix(string(hash), ref) {
			matches = append(matches, hash)
		}
	}
	switch len(matches) {
	case 0:
		return ledger.ContentHash(ref), nil
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("hash prefix %q is ambiguous (%d matches)", ref, len(matches))
	}
}
