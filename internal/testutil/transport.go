package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vidup/internal/vidup"
)

// UploadCall records one call to FakeTransport.Upload.
type UploadCall struct {
	Path string
	Dest vidup.Destination
	Opts vidup.UploadOptions
}

// FakeTransport records uploads and returns scripted errors. Message IDs
// start at 1 and increase with every successful upload.
type FakeTransport struct {
	mode    vidup.TransportMode
	maxSize int64

	mu     sync.Mutex
	calls  []UploadCall
	errs   []error
	nextID int64
	closed bool
}

// NewFakeTransport creates a transport for mode accepting files up to maxSize.
func NewFakeTransport(mode vidup.TransportMode, maxSize int64) *FakeTransport {
	return &FakeTransport{mode: mode, maxSize: maxSize}
}

// FailNext queues errors returned by the next calls, one per call, before
// uploads succeed again.
func (f *FakeTransport) FailNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, errs...)
}

// Calls returns a copy of every Upload call so far.
func (f *FakeTransport) Calls() []UploadCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]UploadCall(nil), f.calls...)
}

// Closed reports whether Close was called.
func (f *FakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeTransport) Mode() vidup.TransportMode { return f.mode }

func (f *FakeTransport) MaxFileSize() int64 { return f.maxSize }

func (f *FakeTransport) Upload(ctx context.Context, path string, dest vidup.Destination, opts vidup.UploadOptions) (*vidup.RemoteRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, UploadCall{Path: path, Dest: dest, Opts: opts})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.nextID++
	return &vidup.RemoteRef{Mode: f.mode, ChatID: dest.ChatID, MessageIDs: []int64{f.nextID}}, nil
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

var _ vidup.Transport = (*FakeTransport)(nil)

// FloodWait builds the error a transport returns when Telegram asks for a pause.
func FloodWait(mode vidup.TransportMode, seconds int) error {
	return &vidup.TransportError{
		Mode:       mode,
		RetryAfter: time.Duration(seconds) * time.Second,
		Err:        fmt.Errorf("FLOOD_WAIT_%d", seconds),
	}
}

// FakeSplitter pretends to split a file into a fixed number of parts. Part
// files are created empty in outDir so callers can clean them up.
type FakeSplitter struct {
	Parts int
	Err   error

	mu    sync.Mutex
	calls []string
}

func (s *FakeSplitter) Split(ctx context.Context, path string, maxPartSize int64, outDir string) ([]string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, path)
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	ext := filepath.Ext(path)
	stem := filepath.Base(path[:len(path)-len(ext)])
	parts := make([]string, s.Parts)
	for i := range parts {
		parts[i] = filepath.Join(outDir, fmt.Sprintf("%s.vidup-part-%03d%s", stem, i+1, ext))
		if err := os.WriteFile(parts[i], nil, 0644); err != nil {
			return nil, err
		}
	}
	return parts, nil
}

// Calls returns the source paths Split was called with.
func (s *FakeSplitter) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

var _ vidup.Splitter = (*FakeSplitter)(nil)
