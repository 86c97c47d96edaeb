//go:build unix

package ledger

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FileLock is an advisory lock on "<ledger path>.lock".
type FileLock struct {
	f *os.File
}

// AcquireLock takes an exclusive, non-blocking flock on the ledger's lock
// file. It returns ErrLocked if another process already holds it.
func AcquireLock(ledgerPath string) (*FileLock, error) {
	f, err := os.OpenFile(ledgerPath+".lock", os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, ledgerPath)
		}
		return nil, fmt.Errorf("locking %s: %w", ledgerPath, err)
	}

	return &FileLock{f: f}, nil
}

// Release drops the lock. The lock file itself is left in place.
func (l *FileLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unlockErr := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	closeErr := l.f.Close()
	l.f = nil
	if unlockErr != nil {
		return fmt.Errorf("unlocking: %w", unlockErr)
	}
	return closeErr
}
