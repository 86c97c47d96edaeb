package app

import "strings"

// Operation statuses recorded in the operation log.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// UploadOperation tracks a CLI invocation that may change what vidup knows.
// Operations are created in memory with ID=0. Only mutating commands
// persist them (giving them an auto-increment ID from the database), and
// that ID versions the snapshots mirrored to the vault.
type UploadOperation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
}

// NewUploadOperation creates a new in-memory operation. args are joined into
// the recorded parameters.
func NewUploadOperation(operation string, args ...string) *UploadOperation {
	return &UploadOperation{
		Operation:  operation,
		Parameters: strings.Join(args, " "),
		Status:     StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *UploadOperation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed. Close records the final status.
func (op *UploadOperation) Fail() {
	op.Status = StatusError
}
