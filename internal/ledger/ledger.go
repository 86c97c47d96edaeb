// Package ledger keeps the persistent, content-addressed history of uploads
// and the user-maintained graph of duplicate content.
//
// The ledger is a single JSON document that is loaded fully on Open and
// rewritten synchronously after every mutation. Before each overwrite the
// previous document is copied to a ".bak" sibling.
package ledger

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ContentHash is the fingerprint of a file's bytes. Two files with equal
// hashes are the same upload.
type ContentHash string

// Short returns the first 12 characters of the hash for display.
func (h ContentHash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// UploadRecord describes one uploaded piece of content.
type UploadRecord struct {
	Hash       ContentHash
	Filename   string
	SourcePath string
	FileSize   int64
	UploadedAt time.Time

	// rawDate keeps an upload_date that could not be parsed so that saving
	// writes it back unchanged. UploadedAt is zero in that case.
	rawDate string
}

// Logger is the subset of structured logging the ledger needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Clock supplies upload timestamps.
type Clock interface {
	Now() time.Time
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures a Ledger at Open time.
type Option func(*Ledger)

// WithLogger sets the logger used for load warnings and save traces.
func WithLogger(logger Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock sets the clock used to timestamp new uploads.
func WithClock(clock Clock) Option {
	return func(l *Ledger) { l.clock = clock }
}

// WithReadOnly keeps Open from moving an unreadable file aside. Use it when
// the caller does not hold the ledger lock.
func WithReadOnly() Option {
	return func(l *Ledger) { l.readOnly = true }
}

// Ledger is the in-memory upload history bound to a file on disk.
//
// A Ledger is not safe for concurrent use. Wrap it with NewSynchronized when
// more than one goroutine needs it.
type Ledger struct {
	path       string
	uploads    map[ContentHash]UploadRecord
	duplicates map[ContentHash]map[ContentHash]struct{}
	loadErr    *LoadError
	readOnly   bool
	logger     Logger
	clock      Clock
}

// Open loads the ledger stored at path. A missing file yields an empty
// ledger; no file is created until the first mutation.
//
// Open never fails. If the file exists but cannot be read or parsed, the
// ledger starts empty, a warning is logged and the failure is reported by
// LoadErr. A document that is not valid JSON is moved aside to
// "<path>.corrupt" unless WithReadOnly is given. A document written by a
// newer version is left in place.
func Open(path string, opts ...Option) *Ledger {
	l := &Ledger{
		path:       path,
		uploads:    make(map[ContentHash]UploadRecord),
		duplicates: make(map[ContentHash]map[ContentHash]struct{}),
		logger:     nopLogger{},
		clock:      systemClock{},
	}
	for _, opt := range opts {
		opt(l)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Debug("ledger not found, starting empty", "path", path)
			return l
		}
		l.recordLoadError(err, false)
		return l
	}

	uploads, duplicates, err := decodeDocument(data)
	if err != nil {
		l.recordLoadError(err, !l.readOnly && !errors.Is(err, ErrUnsupportedVersion))
		return l
	}
	l.uploads = uploads
	l.duplicates = duplicates
	l.warnUnparsedDates()
	l.logger.Debug("ledger loaded", "path", path, "uploads", len(uploads), "duplicates", len(duplicates))
	return l
}

// warnUnparsedDates logs every record whose upload_date was kept verbatim.
func (l *Ledger) warnUnparsedDates() {
	for hash, rec := range l.uploads {
		if rec.rawDate != "" {
			l.logger.Warn("unrecognized upload date kept as is", "hash", hash.Short(), "upload_date", rec.rawDate)
		}
	}
}

func (l *Ledger) recordLoadError(err error, moveAside bool) {
	loadErr := &LoadError{Path: l.path, Err: err}
	if moveAside {
		corrupt := l.path + ".corrupt"
		if renameErr := os.Rename(l.path, corrupt); renameErr == nil {
			loadErr.Preserved = corrupt
		} else {
			l.logger.Warn("could not move unreadable ledger aside", "path", l.path, "error", renameErr)
		}
	}
	l.loadErr = loadErr
	l.logger.Warn("ledger unreadable, starting empty", "path", l.path, "preserved", loadErr.Preserved, "error", err)
}

// LoadErr returns the error recovered from during Open, or nil.
func (l *Ledger) LoadErr() error {
	if l.loadErr == nil {
		return nil
	}
	return l.loadErr
}

// Path returns the file the ledger persists to.
func (l *Ledger) Path() string {
	return l.path
}

// Len returns the number of upload records.
func (l *Ledger) Len() int {
	return len(l.uploads)
}

// IsUploaded reports whether content with this hash has been uploaded.
// Duplicate marks do not count.
func (l *Ledger) IsUploaded(hash ContentHash) bool {
	_, ok := l.uploads[hash]
	return ok
}

// AddUpload records a successful upload, replacing any record with the same
// hash. The timestamp comes from the ledger's clock.
func (l *Ledger) AddUpload(hash ContentHash, filename, sourcePath string, fileSize int64) error {
	if hash == "" {
		return ErrEmptyHash
	}
	if fileSize < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeSize, fileSize)
	}

	l.uploads[hash] = UploadRecord{
		Hash:       hash,
		Filename:   filename,
		SourcePath: sourcePath,
		FileSize:   fileSize,
		UploadedAt: l.clock.Now().Truncate(time.Second),
	}
	return l.save()
}

// AddDuplicate marks hash as a duplicate of of. Neither hash has to be a
// recorded upload. Marking an existing pair again, or a hash as a duplicate
// of itself, changes nothing and does not write.
func (l *Ledger) AddDuplicate(hash, of ContentHash) error {
	if hash == "" || of == "" {
		return ErrEmptyHash
	}
	if hash == of {
		return nil
	}

	set, ok := l.duplicates[hash]
	if !ok {
		set = make(map[ContentHash]struct{})
		l.duplicates[hash] = set
	}
	if _, exists := set[of]; exists {
		return nil
	}
	set[of] = struct{}{}
	return l.save()
}

// RemoveDuplicate removes the duplicate relation between hash and of in
// whichever direction it was stored. It reports whether anything changed.
func (l *Ledger) RemoveDuplicate(hash, of ContentHash) (bool, error) {
	changed := l.unlink(hash, of)
	if l.unlink(of, hash) {
		changed = true
	}
	if !changed {
		return false, nil
	}
	return true, l.save()
}

func (l *Ledger) unlink(from, to ContentHash) bool {
	set, ok := l.duplicates[from]
	if !ok {
		return false
	}
	if _, ok := set[to]; !ok {
		return false
	}
	delete(set, to)
	if len(set) == 0 {
		delete(l.duplicates, from)
	}
	return true
}

// GetUploadInfo returns the record for hash, if any.
func (l *Ledger) GetUploadInfo(hash ContentHash) (UploadRecord, bool) {
	rec, ok := l.uploads[hash]
	return rec, ok
}

// GetAllUploads returns a copy of every upload record keyed by hash.
func (l *Ledger) GetAllUploads() map[ContentHash]UploadRecord {
	out := make(map[ContentHash]UploadRecord, len(l.uploads))
	for hash, rec := range l.uploads {
		out[hash] = rec
	}
	return out
}

// GetDuplicatesOf returns every hash related to hash by a duplicate mark, in
// either stored direction, sorted. The result is empty, never nil, when
// there are none.
func (l *Ledger) GetDuplicatesOf(hash ContentHash) []ContentHash {
	related := make(map[ContentHash]struct{})
	for other := range l.duplicates[hash] {
		related[other] = struct{}{}
	}
	for owner, set := range l.duplicates {
		if _, ok := set[hash]; ok {
			related[owner] = struct{}{}
		}
	}
	delete(related, hash)

	out := make([]ContentHash, 0, len(related))
	for other := range related {
		out = append(out, other)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RemoveUpload deletes the record for hash together with every duplicate
// relation that mentions it. Unknown hashes return false and do not write.
func (l *Ledger) RemoveUpload(hash ContentHash) (bool, error) {
	if _, ok := l.uploads[hash]; !ok {
		return false, nil
	}

	delete(l.uploads, hash)
	delete(l.duplicates, hash)
	for owner, set := range l.duplicates {
		delete(set, hash)
		if len(set) == 0 {
			delete(l.duplicates, owner)
		}
	}
	return true, l.save()
}

// Clear drops all uploads and duplicate marks and persists the empty ledger.
func (l *Ledger) Clear() error {
	l.uploads = make(map[ContentHash]UploadRecord)
	l.duplicates = make(map[ContentHash]map[ContentHash]struct{})
	return l.save()
}

// ReplaceWith parses a ledger document from r and makes it the ledger's
// entire state. A document that does not parse leaves the ledger untouched.
func (l *Ledger) ReplaceWith(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading ledger document: %w", err)
	}
	uploads, duplicates, err := decodeDocument(data)
	if err != nil {
		return err
	}
	l.uploads = uploads
	l.duplicates = duplicates
	l.warnUnparsedDates()
	return l.save()
}

// WriteTo writes the current state in the persisted format.
func (l *Ledger) WriteTo(w io.Writer) (int64, error) {
	data, err := encodeDocument(l.uploads, l.duplicates)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// save copies the current file to the .bak sibling, then atomically replaces
// it with the serialized state.
func (l *Ledger) save() error {
	data, err := encodeDocument(l.uploads, l.duplicates)
	if err != nil {
		return &PersistError{Path: l.path, Op: "encode", Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return &PersistError{Path: l.path, Op: "mkdir", Err: err}
	}

	if err := backupFile(l.path, l.path+".bak"); err != nil {
		return &PersistError{Path: l.path, Op: "backup", Err: err}
	}

	if err := writeFileAtomic(l.path, data); err != nil {
		return &PersistError{Path: l.path, Op: "write", Err: err}
	}

	l.logger.Debug("ledger saved", "path", l.path, "uploads", len(l.uploads))
	return nil
}

// backupFile copies src to dst. A missing src is not an error.
func backupFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading current ledger: %w", err)
	}
	return writeFileAtomic(dst, data)
}

// writeFileAtomic writes data to a temp file in the destination directory,
// syncs it and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ledger-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}
