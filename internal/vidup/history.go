package vidup

import (
	"database/sql"
	"fmt"
	"time"

	"vidup/internal/ledger"
)

// Attempt statuses.
const (
	AttemptSuccess = "success"
	AttemptFailed  = "failed"
	AttemptSkipped = "skipped"
)

// UploadOperation is one mutating CLI invocation.
type UploadOperation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

// Attempt is the outcome of trying to upload one file.
type Attempt struct {
	ID          string
	OperationID int64
	Hash        ledger.ContentHash
	SourcePath  string
	FileSize    int64
	Transport   TransportMode
	Status      string
	RemoteRef   string
	Error       string
	AttemptedAt time.Time
}

// GetHistory returns the most recent upload operations, ordered newest first.
func (s *UploadService) GetHistory(limit int) ([]*UploadOperation, error) {
	ops, err := s.database.ListUploadOperations(limit)
	if err != nil {
		return nil, fmt.Errorf("listing upload operations: %w", err)
	}
	return ops, nil
}
