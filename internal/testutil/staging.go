package testutil

import (
	"vidup/internal/staging"
	"vidup/internal/vidup"
)

// NewTestStagingArea creates a new in-memory staging area with no size cap.
func NewTestStagingArea(fsmgr *MockFilesystemManager) vidup.StagingArea {
	return staging.NewMemoryStagingArea(fsmgr, 0)
}

// NewTestStagingAreaWithSize creates a new in-memory staging area with a custom max size.
func NewTestStagingAreaWithSize(fsmgr *MockFilesystemManager, maxSize int64) vidup.StagingArea {
	return staging.NewMemoryStagingArea(fsmgr, maxSize)
}
