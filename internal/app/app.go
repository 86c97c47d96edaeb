package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"vidup/internal/config"
	"vidup/internal/database"
	"vidup/internal/encryption"
	"vidup/internal/fs"
	"vidup/internal/hasher"
	"vidup/internal/ledger"
	"vidup/internal/media"
	"vidup/internal/staging"
	"vidup/internal/transport"
	"vidup/internal/vault"
	"vidup/internal/vidup"
)

// Option customizes how NewVidupApp wires the application.
type Option func(*appOptions)

type appOptions struct {
	readOnly    bool
	telegram    bool
	transports  []vidup.Transport
	splitter    vidup.Splitter
	setSplitter bool
	logLevel    slog.Leveler
}

// ReadOnly opens the app for commands that only inspect state. The ledger
// lock is not taken, so a read-only command can run beside a running push.
func ReadOnly() Option {
	return func(o *appOptions) { o.readOnly = true }
}

// WithTelegram connects the transports described by the telegram config.
// Only commands that upload need it.
func WithTelegram() Option {
	return func(o *appOptions) { o.telegram = true }
}

// WithTransports uses the given transports instead of the configured ones.
func WithTransports(ts ...vidup.Transport) Option {
	return func(o *appOptions) { o.transports = ts }
}

// WithSplitter replaces the ffmpeg splitter. A nil splitter disables splitting.
func WithSplitter(s vidup.Splitter) Option {
	return func(o *appOptions) {
		o.splitter = s
		o.setSplitter = true
	}
}

// WithLogLevel sets the minimum level written to the log.
func WithLogLevel(level slog.Leveler) Option {
	return func(o *appOptions) { o.logLevel = level }
}

// VidupApp is the application layer between the CLI and UploadService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths and hash references, and snapshots state to
// the vault on Close.
type VidupApp struct {
	cfg        *config.Config
	db         vidup.Database
	vault      vidup.Vault
	staging    vidup.StagingArea
	fsmgr      vidup.FilesystemManager
	encryptor  vidup.Encryptor
	ledger     *ledger.Synchronized
	lock       *ledger.FileLock
	transports []vidup.Transport
	service    *vidup.UploadService
	logger     vidup.Logger
	op         *UploadOperation
	logFile    *os.File
}

// NewVidupApp creates a fully wired VidupApp from the given config.
// operation identifies the CLI command being run (e.g. "Push", "Watch").
// The caller must call Close when done.
func NewVidupApp(cfg *config.Config, operation string, opts ...Option) (_ *VidupApp, err error) {
	o := &appOptions{logLevel: slog.LevelInfo}
	for _, opt := range opts {
		opt(o)
	}

	a := &VidupApp{cfg: cfg, op: NewUploadOperation(operation)}
	defer func() {
		if err != nil {
			a.abort()
		}
	}()

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID, o.logLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a.logFile = logFile
	a.logger = &slogAdapter{l: logger}

	a.fsmgr = fs.NewOSFilesystemManager(cfg.Filesystem.Ignore)

	if len(cfg.Vaults) > 0 {
		v, err := vault.NewVaultFromConfig(cfg.Vaults[0])
		if err != nil {
			return nil, fmt.Errorf("creating vault: %w", err)
		}
		a.vault = v
	}

	a.staging, err = staging.NewStagingAreaFromConfig(cfg.Staging, a.fsmgr)
	if err != nil {
		return nil, fmt.Errorf("creating staging area: %w", err)
	}

	if cfg.Database.Type == "sqlite" {
		if err := os.MkdirAll(cfg.Database.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.HostID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	a.db = db
	if err := db.MigrateUp(); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	if err := a.checkRemoteVersion(o.readOnly); err != nil {
		return nil, err
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	a.encryptor = enc

	if err := os.MkdirAll(filepath.Dir(cfg.LedgerPath), 0700); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	if !o.readOnly {
		a.lock, err = ledger.AcquireLock(cfg.LedgerPath)
		if err != nil {
			if errors.Is(err, ledger.ErrLocked) {
				return nil, fmt.Errorf("another vidup command is running: %w", err)
			}
			return nil, err
		}
	}
	ledgerOpts := []ledger.Option{ledger.WithLogger(a.logger)}
	if o.readOnly {
		ledgerOpts = append(ledgerOpts, ledger.WithReadOnly())
	}
	a.ledger = ledger.NewSynchronized(ledger.Open(cfg.LedgerPath, ledgerOpts...))
	if loadErr := a.ledger.LoadErr(); loadErr != nil {
		if !o.readOnly && errors.Is(loadErr, ledger.ErrUnsupportedVersion) {
			return nil, fmt.Errorf("ledger was written by a newer vidup: %w", loadErr)
		}
		a.logger.Warn("ledger could not be loaded, starting empty", "path", cfg.LedgerPath, "error", loadErr)
	}

	switch {
	case len(o.transports) > 0:
		a.transports = o.transports
	case o.telegram:
		a.transports, err = transport.NewTransportsFromConfig(cfg.Telegram)
		if err != nil {
			return nil, fmt.Errorf("connecting to telegram: %w", err)
		}
	}

	deps := vidup.Deps{
		Ledger:      a.ledger,
		Database:    a.db,
		Staging:     a.staging,
		Vault:       a.vault,
		Transports:  a.transports,
		Hasher:      hasher.NewSHA256Hasher(a.fsmgr),
		Filesystem:  a.fsmgr,
		VideoFilter: media.NewVideoFilter(cfg.Upload.Extensions).IsVideo,
		Logger:      a.logger,
	}
	if enc.IsConfigured() {
		deps.Encryptor = enc
	}
	if o.setSplitter {
		deps.Splitter = o.splitter
	} else if len(a.transports) > 0 {
		ff, err := media.NewFFmpeg(a.logger)
		if err != nil {
			a.logger.Warn("splitting disabled", "error", err)
		} else {
			deps.Splitter = ff
		}
	}

	a.service = vidup.NewUploadService(deps, vidup.Options{
		HostID:          cfg.HostID,
		Mode:            vidup.TransportMode(cfg.Telegram.Mode),
		Destination:     vidup.Destination{ChatID: cfg.Telegram.ChatID},
		Workers:         cfg.Upload.Workers,
		Delay:           cfg.Upload.Delay.Duration,
		MaxRetries:      cfg.Upload.MaxRetries,
		CaptionTemplate: cfg.Upload.CaptionTemplate,
		SplitDir:        cfg.Upload.SplitDir,
	})
	return a, nil
}

// checkRemoteVersion refuses to run mutating commands when the vault holds a
// newer operation database than this host.
func (a *VidupApp) checkRemoteVersion(readOnly bool) error {
	if a.vault == nil {
		return nil
	}
	remoteVersion, err := a.vault.GetMetadataVersion(a.cfg.HostID, vidup.MetadataDB)
	if err != nil {
		return fmt.Errorf("checking remote metadata version: %w", err)
	}
	localMax, err := a.db.MaxUploadOperationID()
	if err != nil {
		return fmt.Errorf("checking local metadata version: %w", err)
	}
	if remoteVersion <= localMax {
		return nil
	}
	if readOnly {
		a.logger.Warn("local database is behind remote", "local", localMax, "remote", remoteVersion)
		return nil
	}
	return fmt.Errorf("local database is behind remote (local=%d, remote=%d): restore from vault or re-initialize", localMax, remoteVersion)
}

// abort releases whatever a failed NewVidupApp managed to open.
func (a *VidupApp) abort() {
	closeTransports(a.transports)
	if a.db != nil {
		a.db.Close()
	}
	if a.lock != nil {
		a.lock.Release()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// persistOperation saves the operation to the database, giving it an
// auto-increment ID. Only commands that change the ledger or upload call it.
func (a *VidupApp) persistOperation() error {
	if a.op.Persisted() {
		return nil
	}
	dbOp, err := a.db.CreateUploadOperation(a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting upload operation: %w", err)
	}
	a.op.ID = dbOp.ID
	a.service.SetOperationID(dbOp.ID)
	return nil
}

// track records the outcome of a mutating call on the operation.
func (a *VidupApp) track(err error) error {
	if err != nil {
		a.op.Fail()
	}
	return err
}

// Service exposes the underlying service for callers that need it directly.
func (a *VidupApp) Service() *vidup.UploadService {
	return a.service
}

// StageFiles resolves the given path and queues video(s) for upload.
// If the path is a directory, all discovered videos are staged.
// When recursive is true, files in subdirectories are included.
func (a *VidupApp) StageFiles(rawPath string, recursive bool) (*vidup.StageResult, error) {
	p, err := a.fsmgr.Resolve(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	return a.service.StageFiles(p, recursive)
}

// Staged returns the queued uploads in staging order.
func (a *VidupApp) Staged() ([]*vidup.StagedUpload, error) {
	return a.staging.List()
}

// Push uploads everything in the staging queue.
func (a *VidupApp) Push(ctx context.Context) (*vidup.UploadSummary, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	summary, err := a.service.UploadAll(ctx)
	if err == nil && summary.Failed > 0 {
		a.op.Fail()
	}
	return summary, a.track(err)
}

// Upload stages rawPath and pushes the whole queue.
func (a *VidupApp) Upload(ctx context.Context, rawPath string, recursive bool) (*vidup.StageResult, *vidup.UploadSummary, error) {
	staged, err := a.StageFiles(rawPath, recursive)
	if err != nil {
		return staged, nil, err
	}
	summary, err := a.Push(ctx)
	return staged, summary, err
}

// Watch stages and uploads videos appearing under rawPath until ctx ends.
func (a *VidupApp) Watch(ctx context.Context, rawPath string, recursive bool, interval time.Duration) error {
	p, err := a.fsmgr.Resolve(rawPath)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	if err := a.persistOperation(); err != nil {
		return err
	}
	return a.track(a.service.Watch(ctx, p, recursive, interval))
}

// GetStatus returns the upload status of videos under the given path.
func (a *VidupApp) GetStatus(rawPath string, recursive bool) ([]*vidup.FileStatus, error) {
	p, err := a.fsmgr.Resolve(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	return a.service.GetStatus(p, recursive)
}

// GetFileHistory resolves the given path and returns its upload attempts.
func (a *VidupApp) GetFileHistory(rawPath string) ([]*vidup.Attempt, error) {
	p, err := a.fsmgr.Resolve(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	return a.service.GetFileHistory(p)
}

// GetHistory returns the most recent upload operations.
func (a *VidupApp) GetHistory(limit int) ([]*vidup.UploadOperation, error) {
	return a.service.GetHistory(limit)
}

// ResolveRef turns a user-supplied reference into a content hash. A path to
// an existing file is hashed; anything else is treated as a hash or an
// unambiguous prefix of an uploaded hash.
func (a *VidupApp) ResolveRef(ref string) (ledger.ContentHash, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		p, err := a.fsmgr.Resolve(ref)
		if err != nil {
			return "", fmt.Errorf("resolving path: %w", err)
		}
		return a.service.HashFile(p)
	}
	return a.service.ResolveHash(ref)
}

// ListUploads returns every upload record, newest first.
func (a *VidupApp) ListUploads() []ledger.UploadRecord {
	return a.service.ListUploads()
}

// UploadInfo returns the upload record for ref and its duplicate relations.
func (a *VidupApp) UploadInfo(ref string) (ledger.ContentHash, ledger.UploadRecord, []ledger.ContentHash, bool, error) {
	hash, err := a.ResolveRef(ref)
	if err != nil {
		return "", ledger.UploadRecord{}, nil, false, err
	}
	rec, dups, ok := a.service.UploadInfo(hash)
	return hash, rec, dups, ok, nil
}

// RemoveUpload forgets the upload for ref so it can be sent again.
func (a *VidupApp) RemoveUpload(ref string) (bool, error) {
	hash, err := a.ResolveRef(ref)
	if err != nil {
		return false, err
	}
	if err := a.persistOperation(); err != nil {
		return false, err
	}
	removed, err := a.service.RemoveUpload(hash)
	return removed, a.track(err)
}

// ClearLedger forgets every upload.
func (a *VidupApp) ClearLedger() error {
	if err := a.persistOperation(); err != nil {
		return err
	}
	return a.track(a.service.ClearLedger())
}

// MarkDuplicate records that ref has the same video as of.
func (a *VidupApp) MarkDuplicate(ref, of string) error {
	hash, other, err := a.resolvePair(ref, of)
	if err != nil {
		return err
	}
	if err := a.persistOperation(); err != nil {
		return err
	}
	return a.track(a.service.MarkDuplicate(hash, other))
}

// UnmarkDuplicate removes a duplicate mark between ref and of.
func (a *VidupApp) UnmarkDuplicate(ref, of string) (bool, error) {
	hash, other, err := a.resolvePair(ref, of)
	if err != nil {
		return false, err
	}
	if err := a.persistOperation(); err != nil {
		return false, err
	}
	changed, err := a.service.UnmarkDuplicate(hash, other)
	return changed, a.track(err)
}

func (a *VidupApp) resolvePair(ref, of string) (ledger.ContentHash, ledger.ContentHash, error) {
	hash, err := a.ResolveRef(ref)
	if err != nil {
		return "", "", err
	}
	other, err := a.ResolveRef(of)
	if err != nil {
		return "", "", err
	}
	return hash, other, nil
}

// ImportLedger replaces the ledger with the JSON document at path.
func (a *VidupApp) ImportLedger(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening ledger to import: %w", err)
	}
	defer f.Close()

	if err := a.persistOperation(); err != nil {
		return err
	}
	return a.track(a.service.ImportLedger(f))
}

// RestoreLedger replaces the local ledger with the vault's latest snapshot.
// Returns the restored snapshot version.
func (a *VidupApp) RestoreLedger(passphrase string) (int64, error) {
	if !a.encryptor.IsConfigured() {
		return 0, fmt.Errorf("encryption keys not found: run 'vidup config init' first")
	}
	decryptCtx, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return 0, err
	}
	if err := a.persistOperation(); err != nil {
		return 0, err
	}
	version, err := a.service.RestoreLedger(decryptCtx)
	return version, a.track(err)
}

// Close finalizes the operation and closes all resources.
// For persisted operations: finishes the operation record, backs up the DB
// and the encrypted ledger to the vault with version = operation ID.
// For non-persisted operations: just closes everything.
func (a *VidupApp) Close() error {
	var errs []error

	if a.op.Persisted() {
		if err := a.db.FinishUploadOperation(a.op.ID, a.op.Status); err != nil {
			errs = append(errs, fmt.Errorf("finishing upload operation: %w", err))
		}
		if a.vault != nil {
			if err := a.backupDatabase(); err != nil {
				errs = append(errs, err)
			}
		} else if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
		if err := a.snapshotLedger(); err != nil {
			errs = append(errs, err)
		}
	} else if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}

	closeTransports(a.transports)

	if a.lock != nil {
		if err := a.lock.Release(); err != nil {
			errs = append(errs, fmt.Errorf("releasing ledger lock: %w", err))
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}

// backupDatabase snapshots the DB to a temp file, closes it and uploads the
// snapshot to the vault.
func (a *VidupApp) backupDatabase() error {
	var errs []error

	tmpFile, err := os.CreateTemp("", "vidup-db-backup-*.db")
	var tmpPath string
	if err != nil {
		errs = append(errs, fmt.Errorf("creating temp file for db backup: %w", err))
	} else {
		tmpPath = tmpFile.Name()
		tmpFile.Close()
		defer os.Remove(tmpPath)

		if err := a.db.BackupTo(tmpPath); err != nil {
			errs = append(errs, fmt.Errorf("backing up database: %w", err))
			tmpPath = ""
		}
	}

	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}

	if tmpPath != "" {
		if err := a.uploadMetadata(tmpPath, a.op.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// uploadMetadata opens the temp DB file and uploads it to the vault as metadata.
func (a *VidupApp) uploadMetadata(path string, version int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening db backup for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat db backup: %w", err)
	}

	if err := a.vault.PutMetadata(a.cfg.HostID, vidup.MetadataDB, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading metadata to vault: %w", err)
	}
	return nil
}

func (a *VidupApp) snapshotLedger() error {
	if a.vault == nil {
		return nil
	}
	if !a.encryptor.IsConfigured() {
		a.logger.Warn("encryption keys missing, ledger snapshot skipped")
		return nil
	}
	if err := a.service.SnapshotLedger(a.op.ID); err != nil {
		return fmt.Errorf("snapshotting ledger: %w", err)
	}
	return nil
}

func closeTransports(ts []vidup.Transport) {
	for _, t := range ts {
		t.Close()
	}
}

// ExportLedger writes the ledger document to w.
func (a *VidupApp) ExportLedger(w io.Writer) error {
	if _, err := a.ledger.WriteTo(w); err != nil {
		return fmt.Errorf("exporting ledger: %w", err)
	}
	return nil
}

// Duplicates returns the hashes marked as duplicates of ref.
func (a *VidupApp) Duplicates(ref string) (ledger.ContentHash, []ledger.ContentHash, error) {
	hash, err := a.ResolveRef(ref)
	if err != nil {
		return "", nil, err
	}
	return hash, a.service.DuplicatesOf(hash), nil
}
