//go:build !unix

package fs

import "errors"

var errFreeSpaceUnsupported = errors.New("free space check not supported on this platform")

func freeSpace(string) (int64, error) {
	return 0, errFreeSpaceUnsupported
}
