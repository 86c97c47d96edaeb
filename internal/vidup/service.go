package vidup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc/pool"

	"vidup/internal/ledger"
)

// DefaultCaptionTemplate is used when Options.CaptionTemplate is empty.
// Placeholders: {filename}, {size}, {part}, {parts}.
const DefaultCaptionTemplate = "{filename}"

// DefaultMaxRetries bounds retries of a single part upload.
const DefaultMaxRetries = 3

// maxFloodWaits is how many consecutive flood waits one attempt sits out.
const maxFloodWaits = 10

var (
	// ErrNoTransport means no configured transport can take the upload.
	ErrNoTransport = errors.New("no transport configured")

	// ErrInsufficientSpace means there is not enough free disk to split a file.
	ErrInsufficientSpace = errors.New("insufficient disk space to split file")
)

// Options are the user-tunable knobs of the upload loop.
type Options struct {
	HostID          string
	Mode            TransportMode
	Destination     Destination
	Workers         int
	Delay           time.Duration
	MaxRetries      uint64
	CaptionTemplate string
	// SplitDir receives split parts; empty means next to the source file.
	SplitDir string
}

// Deps are the collaborators of UploadService. Vault, Encryptor and Splitter
// are optional; everything else is required.
type Deps struct {
	Ledger      UploadLedger
	Database    Database
	Staging     StagingArea
	Vault       Vault
	Encryptor   Encryptor
	Transports  []Transport
	Hasher      Hasher
	Splitter    Splitter
	SplitPolicy SplitPolicy
	Filesystem  FilesystemManager
	// VideoFilter selects which discovered files are videos. nil accepts all.
	VideoFilter func(path string) bool
	Logger      Logger
	Clock       Clock
	IDGen       IDGenerator
	// BackOff builds the retry schedule for one part. nil means exponential.
	BackOff func() backoff.BackOff
	// Sleep waits out flood waits and inter-upload delays. nil means Sleep.
	Sleep SleepFunc
}

// UploadService is the orchestration layer that coordinates hashing, the
// ledger, staging, transports and the operation log for the CLI.
type UploadService struct {
	ledger      UploadLedger
	database    Database
	stagingArea StagingArea
	vault       Vault
	encryptor   Encryptor
	transports  map[TransportMode]Transport
	hasher      Hasher
	splitter    Splitter
	splitPolicy SplitPolicy
	fsmgr       FilesystemManager
	videoFilter func(string) bool
	logger      Logger
	clock       Clock
	idgen       IDGenerator
	newBackOff  func() backoff.BackOff
	sleep       SleepFunc
	opts        Options

	mu          sync.Mutex
	operationID int64
	inflight    map[ledger.ContentHash]struct{}
}

// NewUploadService creates an UploadService, filling defaults for optional
// dependencies and zero options.
func NewUploadService(deps Deps, opts Options) *UploadService {
	s := &UploadService{
		ledger:      deps.Ledger,
		database:    deps.Database,
		stagingArea: deps.Staging,
		vault:       deps.Vault,
		encryptor:   deps.Encryptor,
		transports:  make(map[TransportMode]Transport, len(deps.Transports)),
		hasher:      deps.Hasher,
		splitter:    deps.Splitter,
		splitPolicy: deps.SplitPolicy,
		fsmgr:       deps.Filesystem,
		videoFilter: deps.VideoFilter,
		logger:      deps.Logger,
		clock:       deps.Clock,
		idgen:       deps.IDGen,
		newBackOff:  deps.BackOff,
		sleep:       deps.Sleep,
		opts:        opts,
		inflight:    make(map[ledger.ContentHash]struct{}),
	}
	for _, t := range deps.Transports {
		s.transports[t.Mode()] = t
	}
	if s.splitPolicy == nil {
		s.splitPolicy = NewSizeSplitPolicy(deps.Transports...)
	}
	if s.logger == nil {
		s.logger = NewNopLogger()
	}
	if s.clock == nil {
		s.clock = RealClock{}
	}
	if s.idgen == nil {
		s.idgen = UUIDGenerator{}
	}
	if s.newBackOff == nil {
		s.newBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	if s.sleep == nil {
		s.sleep = Sleep
	}
	if s.opts.Mode == "" {
		s.opts.Mode = ModeAuto
	}
	if s.opts.Workers < 1 {
		s.opts.Workers = 1
	}
	if s.opts.MaxRetries == 0 {
		s.opts.MaxRetries = DefaultMaxRetries
	}
	return s
}

// SetOperationID tags subsequent attempt records with the running operation.
func (s *UploadService) SetOperationID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operationID = id
}

// StageResult counts what StageFiles did with each discovered file.
type StageResult struct {
	Staged          int
	AlreadyUploaded int
	AlreadyStaged   int
	Ignored         int
}

// StageFiles hashes and queues videos for upload.
// If path is a regular file, it stages that single file regardless of its
// extension. If path is a directory, it discovers videos and stages them.
// When recursive is true, files in subdirectories are included.
// Content already in the ledger or already queued is skipped.
func (s *UploadService) StageFiles(path *Path, recursive bool) (*StageResult, error) {
	result := &StageResult{}

	if !path.IsDir() {
		if err := s.stageOneFile(path, path.Dir(), result); err != nil {
			return result, err
		}
		return result, nil
	}

	files, err := s.fsmgr.FindFiles(path, recursive)
	if err != nil {
		return result, fmt.Errorf("finding files: %w", err)
	}

	for _, f := range files {
		if !s.isVideo(f.String()) {
			continue
		}
		if err := s.stageOneFile(f, path.String(), result); err != nil {
			return result, err
		}
	}

	s.logger.Info("staging complete", "path", path.String(),
		"staged", result.Staged, "already_uploaded", result.AlreadyUploaded,
		"already_staged", result.AlreadyStaged, "ignored", result.Ignored)
	return result, nil
}

// stageOneFile hashes a single file and queues it unless it is ignored,
// already uploaded or already staged.
func (s *UploadService) stageOneFile(path *Path, root string, result *StageResult) error {
	ignored, err := s.fsmgr.IsIgnored(path, root)
	if err != nil {
		return fmt.Errorf("checking ignore rules: %w", err)
	}
	if ignored {
		result.Ignored++
		s.logger.Debug("file ignored", "path", path.String())
		return nil
	}

	hash, err := s.hasher.Hash(path)
	if err != nil {
		return fmt.Errorf("hashing file: %w", err)
	}

	if s.ledger.IsUploaded(hash) {
		result.AlreadyUploaded++
		s.logger.Info("already uploaded, skipping", "path", path.String(), "hash", hash.Short())
		return nil
	}
	if of, ok := s.uploadedDuplicate(hash); ok {
		result.AlreadyUploaded++
		s.logger.Info("duplicate of uploaded content, skipping", "path", path.String(), "hash", hash.Short(), "of", of.Short())
		return nil
	}

	if err := s.stagingArea.Stage(path, hash); err != nil {
		if errors.Is(err, ErrAlreadyStaged) {
			result.AlreadyStaged++
			s.logger.Debug("content already staged", "path", path.String(), "hash", hash.Short())
			return nil
		}
		return fmt.Errorf("staging file: %w", err)
	}

	result.Staged++
	s.logger.Debug("file staged", "path", path.String(), "hash", hash.Short())
	return nil
}

func (s *UploadService) isVideo(path string) bool {
	if s.videoFilter == nil {
		return true
	}
	return s.videoFilter(path)
}

// UploadFailure pairs a staged file with the error that stopped its upload.
type UploadFailure struct {
	Path string
	Err  error
}

// UploadSummary totals one UploadAll run.
type UploadSummary struct {
	Uploaded int
	Skipped  int
	Failed   int
	Bytes    int64
	Failures []UploadFailure
}

type uploadOutcome int

const (
	outcomeFailed uploadOutcome = iota
	outcomeUploaded
	outcomeSkipped
)

func (sum *UploadSummary) record(item *StagedUpload, outcome uploadOutcome, err error) {
	switch outcome {
	case outcomeUploaded:
		sum.Uploaded++
		sum.Bytes += item.Size
	case outcomeSkipped:
		sum.Skipped++
	default:
		sum.Failed++
	}
	if err != nil {
		sum.Failures = append(sum.Failures, UploadFailure{Path: item.Path, Err: err})
	}
}

// UploadAll drains the staging queue. Each staged file is re-checked against
// the ledger, sent with the selected transport (split first if the split
// policy says so) and recorded in the ledger only after the transport
// reports success. Failed files stay staged for the next run.
func (s *UploadService) UploadAll(ctx context.Context) (*UploadSummary, error) {
	items, err := s.stagingArea.List()
	if err != nil {
		return nil, fmt.Errorf("listing staged uploads: %w", err)
	}

	summary := &UploadSummary{}
	if len(items) == 0 {
		return summary, nil
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(s.opts.Workers)
	for _, item := range items {
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			outcome, err := s.uploadStaged(ctx, item)
			if err != nil {
				s.logger.Error("upload failed", "path", item.Path, "error", err)
			}

			mu.Lock()
			summary.record(item, outcome, err)
			mu.Unlock()

			if outcome == outcomeUploaded && s.opts.Delay > 0 {
				s.sleep(ctx, s.opts.Delay)
			}
		})
	}
	p.Wait()

	s.logger.Info("upload complete", "uploaded", summary.Uploaded, "skipped", summary.Skipped,
		"failed", summary.Failed, "bytes", humanize.Bytes(uint64(summary.Bytes)))

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// uploadStaged runs the full pipeline for one queued file.
func (s *UploadService) uploadStaged(ctx context.Context, item *StagedUpload) (uploadOutcome, error) {
	path, err := s.fsmgr.Resolve(item.Path)
	if err != nil {
		return outcomeFailed, fmt.Errorf("resolving staged file: %w", err)
	}

	hash := item.Hash
	if path.Size() != item.Size || !path.ModTime().Equal(item.ModTime) {
		s.logger.Info("file changed since staging, re-hashing", "path", item.Path)
		hash, err = s.hasher.Hash(path)
		if err != nil {
			return outcomeFailed, fmt.Errorf("re-hashing file: %w", err)
		}
	}

	if !s.claim(hash) {
		s.logger.Info("same content is uploading on another worker, skipping", "path", item.Path)
		return outcomeSkipped, nil
	}
	defer s.release(hash)

	if _, dup := s.uploadedDuplicate(hash); dup || s.ledger.IsUploaded(hash) {
		s.logger.Info("already uploaded, skipping", "path", item.Path, "hash", hash.Short())
		s.recordAttempt(hash, path, "", AttemptSkipped, nil, nil)
		s.dequeue(item.Hash)
		return outcomeSkipped, nil
	}

	ref, mode, err := s.send(ctx, path)
	if err != nil {
		s.recordAttempt(hash, path, mode, AttemptFailed, nil, err)
		return outcomeFailed, err
	}

	s.recordAttempt(hash, path, mode, AttemptSuccess, ref, nil)

	// The item stays queued until the ledger has the upload on disk.
	if err := s.ledger.AddUpload(hash, path.Name(), path.String(), path.Size()); err != nil {
		return outcomeFailed, fmt.Errorf("recording upload %s in ledger: %w", ref.String(), err)
	}
	s.dequeue(item.Hash)

	s.logger.Info("file uploaded", "path", path.String(), "hash", hash.Short(),
		"size", humanize.Bytes(uint64(path.Size())), "ref", ref.String())
	return outcomeUploaded, nil
}

// claim marks hash as in flight. It returns false if another worker holds it.
func (s *UploadService) claim(hash ledger.ContentHash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[hash]; busy {
		return false
	}
	s.inflight[hash] = struct{}{}
	return true
}

func (s *UploadService) release(hash ledger.ContentHash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, hash)
}

func (s *UploadService) dequeue(hash ledger.ContentHash) {
	if _, err := s.stagingArea.Remove(hash); err != nil {
		s.logger.Warn("could not remove upload from staging", "hash", hash.Short(), "error", err)
	}
}

// send uploads path, splitting it first when the split policy requires.
func (s *UploadService) send(ctx context.Context, path *Path) (*RemoteRef, TransportMode, error) {
	t, err := s.selectTransport(path.Size())
	if err != nil {
		return nil, "", err
	}

	parts := []string{path.String()}
	if s.splitPolicy.ShouldSplit(path.Size(), t.Mode()) {
		parts, err = s.split(ctx, path, t)
		if err != nil {
			return nil, t.Mode(), err
		}
		defer s.removeParts(parts)
	}

	ref := &RemoteRef{Mode: t.Mode(), ChatID: s.opts.Destination.ChatID}
	for i, part := range parts {
		opts := UploadOptions{
			FileName: filepath.Base(part),
			Caption:  s.caption(path, i+1, len(parts)),
		}
		r, err := s.uploadWithRetry(ctx, t, part, opts)
		if err != nil {
			if len(parts) > 1 {
				return nil, t.Mode(), fmt.Errorf("uploading part %d/%d: %w", i+1, len(parts), err)
			}
			return nil, t.Mode(), err
		}
		ref.MessageIDs = append(ref.MessageIDs, r.MessageIDs...)
	}
	return ref, t.Mode(), nil
}

// selectTransport picks the transport for a file of the given size.
func (s *UploadService) selectTransport(size int64) (Transport, error) {
	switch s.opts.Mode {
	case ModeBot, ModeUser:
		t, ok := s.transports[s.opts.Mode]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoTransport, s.opts.Mode)
		}
		return t, nil
	case ModeAuto:
		bot, hasBot := s.transports[ModeBot]
		user, hasUser := s.transports[ModeUser]
		switch {
		case hasBot && size <= bot.MaxFileSize():
			return bot, nil
		case hasUser:
			return user, nil
		case hasBot:
			return bot, nil
		}
		return nil, ErrNoTransport
	default:
		return nil, fmt.Errorf("unknown transport mode: %q", s.opts.Mode)
	}
}

// split cuts path into parts small enough for t.
func (s *UploadService) split(ctx context.Context, path *Path, t Transport) ([]string, error) {
	if s.splitter == nil {
		return nil, fmt.Errorf("%w: %s is %s, %s limit is %s and splitting is unavailable",
			ErrFileTooLarge, path.Name(), humanize.Bytes(uint64(path.Size())),
			t.Mode(), humanize.Bytes(uint64(t.MaxFileSize())))
	}

	outDir := s.opts.SplitDir
	if outDir == "" {
		outDir = path.Dir()
	}

	free, err := s.fsmgr.FreeSpace(outDir)
	if err != nil {
		s.logger.Warn("could not determine free space", "dir", outDir, "error", err)
	} else if free < path.Size() {
		return nil, fmt.Errorf("%w: need %s in %s, have %s", ErrInsufficientSpace,
			humanize.Bytes(uint64(path.Size())), outDir, humanize.Bytes(uint64(free)))
	}

	s.logger.Info("splitting file", "path", path.String(), "max_part", humanize.Bytes(uint64(t.MaxFileSize())))
	parts, err := s.splitter.Split(ctx, path.String(), t.MaxFileSize(), outDir)
	if err != nil {
		return nil, fmt.Errorf("splitting %s: %w", path.Name(), err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("splitting %s produced no parts", path.Name())
	}
	return parts, nil
}

func (s *UploadService) removeParts(parts []string) {
	for _, p := range parts {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("could not remove split part", "path", p, "error", err)
		}
	}
}

// uploadWithRetry sends one file, retrying transient failures with backoff.
// Flood waits sleep for the server-requested time and try again right away;
// they do not use up a retry unless there are more than maxFloodWaits in a row.
func (s *UploadService) uploadWithRetry(ctx context.Context, t Transport, path string, opts UploadOptions) (*RemoteRef, error) {
	var ref *RemoteRef
	operation := func() error {
		for waits := 0; ; waits++ {
			r, err := t.Upload(ctx, path, s.opts.Destination, opts)
			if err == nil {
				ref = r
				return nil
			}

			var te *TransportError
			if !errors.As(err, &te) {
				return err
			}
			if te.Permanent {
				return backoff.Permanent(err)
			}
			if te.RetryAfter <= 0 || waits >= maxFloodWaits {
				return err
			}
			s.logger.Warn("rate limited by telegram", "path", path, "wait", te.RetryAfter)
			if sleepErr := s.sleep(ctx, te.RetryAfter); sleepErr != nil {
				return backoff.Permanent(sleepErr)
			}
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), s.opts.MaxRetries), ctx)
	err := backoff.RetryNotify(operation, b, func(err error, next time.Duration) {
		s.logger.Warn("upload failed, retrying", "path", path, "transport", t.Mode(), "next", next, "error", err)
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// caption renders the caption template for one part.
func (s *UploadService) caption(path *Path, part, parts int) string {
	tmpl := s.opts.CaptionTemplate
	if tmpl == "" {
		tmpl = DefaultCaptionTemplate
	}
	r := strings.NewReplacer(
		"{filename}", path.Name(),
		"{size}", humanize.Bytes(uint64(path.Size())),
		"{part}", strconv.Itoa(part),
		"{parts}", strconv.Itoa(parts),
	)
	caption := r.Replace(tmpl)
	if parts > 1 && !strings.Contains(tmpl, "{part}") {
		caption += fmt.Sprintf(" (part %d/%d)", part, parts)
	}
	return caption
}

// recordAttempt writes an attempt row. Failures to record are logged only.
func (s *UploadService) recordAttempt(hash ledger.ContentHash, path *Path, mode TransportMode, status string, ref *RemoteRef, uploadErr error) {
	s.mu.Lock()
	opID := s.operationID
	s.mu.Unlock()

	attempt := &Attempt{
		ID:          s.idgen.New(),
		OperationID: opID,
		Hash:        hash,
		SourcePath:  path.String(),
		FileSize:    path.Size(),
		Transport:   mode,
		Status:      status,
		RemoteRef:   ref.String(),
		AttemptedAt: s.clock.Now(),
	}
	if uploadErr != nil {
		attempt.Error = uploadErr.Error()
	}
	if err := s.database.RecordAttempt(attempt); err != nil {
		s.logger.Warn("could not record upload attempt", "path", path.String(), "error", err)
	}
}
