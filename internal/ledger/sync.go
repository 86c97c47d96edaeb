package ledger

import (
	"io"
	"sync"
)

// Synchronized guards a Ledger with a mutex so it can be shared between
// upload workers. Every method holds the lock for the full
// mutate-then-persist sequence.
type Synchronized struct {
	mu sync.Mutex
	l  *Ledger
}

// NewSynchronized wraps l. The caller must stop using l directly.
func NewSynchronized(l *Ledger) *Synchronized {
	return &Synchronized{l: l}
}

func (s *Synchronized) Path() string {
	return s.l.Path()
}

func (s *Synchronized) LoadErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.LoadErr()
}

func (s *Synchronized) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.Len()
}

func (s *Synchronized) IsUploaded(hash ContentHash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.IsUploaded(hash)
}

func (s *Synchronized) AddUpload(hash ContentHash, filename, sourcePath string, fileSize int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.AddUpload(hash, filename, sourcePath, fileSize)
}

func (s *Synchronized) AddDuplicate(hash, of ContentHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.AddDuplicate(hash, of)
}

func (s *Synchronized) RemoveDuplicate(hash, of ContentHash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.RemoveDuplicate(hash, of)
}

func (s *Synchronized) GetUploadInfo(hash ContentHash) (UploadRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.GetUploadInfo(hash)
}

func (s *Synchronized) GetAllUploads() map[ContentHash]UploadRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.GetAllUploads()
}

func (s *Synchronized) GetDuplicatesOf(hash ContentHash) []ContentHash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.GetDuplicatesOf(hash)
}

func (s *Synchronized) RemoveUpload(hash ContentHash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.RemoveUpload(hash)
}

func (s *Synchronized) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.Clear()
}

func (s *Synchronized) ReplaceWith(r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.ReplaceWith(r)
}

func (s *Synchronized) WriteTo(w io.Writer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.WriteTo(w)
}
