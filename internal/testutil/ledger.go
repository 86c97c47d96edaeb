package testutil

import (
	"path/filepath"
	"testing"

	"vidup/internal/ledger"
)

// NewTestLedger opens an empty ledger in a temp directory, stamped by clock.
func NewTestLedger(t *testing.T, clock ledger.Clock) *ledger.Ledger {
	t.Helper()
	return ledger.Open(filepath.Join(t.TempDir(), "uploaded.json"), ledger.WithClock(clock))
}
