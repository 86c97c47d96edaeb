package vidup

import "vidup/internal/ledger"

// Database records what vidup did: one operation per mutating command and
// one attempt per upload outcome. The ledger stays the source of truth for
// what has been uploaded; the database is the audit trail.
type Database interface {
	// Operation tracking

	// CreateUploadOperation starts a new operation record and assigns its ID.
	CreateUploadOperation(operation string, parameters string) (*UploadOperation, error)

	// FinishUploadOperation stamps the finish time and final status.
	FinishUploadOperation(id int64, status string) error

	// ListUploadOperations returns the most recent operations, newest first.
	ListUploadOperations(limit int) ([]*UploadOperation, error)

	// MaxUploadOperationID returns the highest operation ID, or 0 if none.
	MaxUploadOperationID() (int64, error)

	// Attempts

	// RecordAttempt stores the outcome of one upload.
	RecordAttempt(attempt *Attempt) error

	// FindAttemptsByHash returns every attempt for the content, newest first.
	FindAttemptsByHash(hash ledger.ContentHash) ([]*Attempt, error)

	// CheckMigrations verifies the schema is at the latest version.
	CheckMigrations() error

	// BackupTo writes a consistent copy of the database to destPath.
	BackupTo(destPath string) error

	// Close closes the database connection.
	Close() error
}
