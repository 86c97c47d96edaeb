//go:build !unix

package ledger

// FileLock is a no-op on platforms without flock(2).
type FileLock struct{}

// AcquireLock always succeeds on this platform.
func AcquireLock(ledgerPath string) (*FileLock, error) {
	return &FileLock{}, nil
}

func (l *FileLock) Release() error { return nil }
