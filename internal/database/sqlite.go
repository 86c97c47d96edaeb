package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vidup/internal/database/migrations"
	"vidup/internal/ledger"
	"vidup/internal/vidup"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the Database interface using SQLite.
type SQLiteDatabase struct {
	db      *sql.DB
	queries *Queries
	path    string
	now     func() time.Time
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// Each pooled connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	return &SQLiteDatabase{
		db:      db,
		queries: newQueries(db),
		path:    path,
		now:     time.Now,
	}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{
		db:      db,
		queries: newQueries(db),
		path:    "",
		now:     time.Now,
	}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	// PRAGMAs are per connection, so they go in the DSN where the driver
	// applies them to every pooled connection. foreign_keys is off by
	// default in SQLite; busy_timeout lets parallel upload workers wait
	// for each other's attempt inserts.
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Operation tracking

func (s *SQLiteDatabase) CreateUploadOperation(operation string, parameters string) (*vidup.UploadOperation, error) {
	row, err := s.queries.InsertUploadOperation(context.Background(), insertUploadOperationParams{
		StartedAt:  s.now().UTC(),
		Operation:  operation,
		Parameters: parameters,
	})
	if err != nil {
		return nil, fmt.Errorf("creating upload operation: %w", err)
	}
	return toUploadOperation(row), nil
}

func (s *SQLiteDatabase) FinishUploadOperation(id int64, status string) error {
	n, err := s.queries.UpdateUploadOperationFinished(context.Background(), updateUploadOperationFinishedParams{
		FinishedAt: sql.NullTime{Time: s.now().UTC(), Valid: true},
		Status:     status,
		ID:         id,
	})
	if err != nil {
		return fmt.Errorf("finishing upload operation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finishing upload operation: no operation with id %d", id)
	}
	return nil
}

func (s *SQLiteDatabase) ListUploadOperations(limit int) ([]*vidup.UploadOperation, error) {
	rows, err := s.queries.GetUploadOperations(context.Background(), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("listing upload operations: %w", err)
	}

	result := make([]*vidup.UploadOperation, len(rows))
	for i := range rows {
		result[i] = toUploadOperation(rows[i])
	}
	return result, nil
}

func (s *SQLiteDatabase) MaxUploadOperationID() (int64, error) {
	id, err := s.queries.GetMaxUploadOperationID(context.Background())
	if err != nil {
		return 0, fmt.Errorf("getting max upload operation ID: %w", err)
	}
	return id, nil
}

// Attempts

func (s *SQLiteDatabase) RecordAttempt(attempt *vidup.Attempt) error {
	if attempt.ID == "" {
		return fmt.Errorf("recording upload attempt: missing id")
	}
	err := s.queries.InsertUploadAttempt(context.Background(), uploadAttemptRow{
		ID:          attempt.ID,
		OperationID: sql.NullInt64{Int64: attempt.OperationID, Valid: attempt.OperationID != 0},
		ContentHash: string(attempt.Hash),
		SourcePath:  attempt.SourcePath,
		FileSize:    attempt.FileSize,
		Transport:   string(attempt.Transport),
		Status:      attempt.Status,
		RemoteRef:   attempt.RemoteRef,
		Error:       attempt.Error,
		AttemptedAt: attempt.AttemptedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("recording upload attempt: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindAttemptsByHash(hash ledger.ContentHash) ([]*vidup.Attempt, error) {
	rows, err := s.queries.GetUploadAttemptsByHash(context.Background(), string(hash))
	if err != nil {
		return nil, fmt.Errorf("finding upload attempts: %w", err)
	}

	result := make([]*vidup.Attempt, len(rows))
	for i, r := range rows {
		result[i] = &vidup.Attempt{
			ID:          r.ID,
			OperationID: r.OperationID.Int64,
			Hash:        ledger.ContentHash(r.ContentHash),
			SourcePath:  r.SourcePath,
			FileSize:    r.FileSize,
			Transport:   vidup.TransportMode(r.Transport),
			Status:      r.Status,
			RemoteRef:   r.RemoteRef,
			Error:       r.Error,
			AttemptedAt: r.AttemptedAt,
		}
	}
	return result, nil
}

func toUploadOperation(r uploadOperationRow) *vidup.UploadOperation {
	return &vidup.UploadOperation{
		ID:         r.ID,
		Operation:  r.Operation,
		Parameters: r.Parameters,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.Check(s.db)
}

// MigrateUp applies any pending schema migrations.
func (s *SQLiteDatabase) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements vidup.Database interface
var _ vidup.Database = (*SQLiteDatabase)(nil)
