package vidup

import (
	"io"

	"vidup/internal/ledger"
)

// UploadLedger is the upload history the service consults before every
// upload and updates after every success. *ledger.Ledger satisfies it for
// single-goroutine use; *ledger.Synchronized when uploads run in parallel.
type UploadLedger interface {
	IsUploaded(hash ledger.ContentHash) bool
	AddUpload(hash ledger.ContentHash, filename, sourcePath string, fileSize int64) error
	AddDuplicate(hash, of ledger.ContentHash) error
	RemoveDuplicate(hash, of ledger.ContentHash) (bool, error)
	GetUploadInfo(hash ledger.ContentHash) (ledger.UploadRecord, bool)
	GetAllUploads() map[ledger.ContentHash]ledger.UploadRecord
	GetDuplicatesOf(hash ledger.ContentHash) []ledger.ContentHash
	RemoveUpload(hash ledger.ContentHash) (bool, error)
	Clear() error
	ReplaceWith(r io.Reader) error
	WriteTo(w io.Writer) (int64, error)
	Path() string
	Len() int
	LoadErr() error
}

var (
	_ UploadLedger = (*ledger.Ledger)(nil)
	_ UploadLedger = (*ledger.Synchronized)(nil)
)
