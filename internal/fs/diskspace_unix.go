//go:build unix

package fs

import (
	"errors"

	"golang.org/x/sys/unix"
)

var errFreeSpaceUnsupported = errors.New("free space check not supported on this platform")

func freeSpace(dir string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
