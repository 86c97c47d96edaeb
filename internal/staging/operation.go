package staging

import (
	"fmt"
	"io/fs"
)

// validateStatUnchanged checks that the file has not been modified between
// the caller resolving it and the stage. Access time is ignored since
// hashing reads the file.
func validateStatUnchanged(before, after fs.FileInfo) error {
	if before.Size() != after.Size() {
		return fmt.Errorf("size changed: %d -> %d", before.Size(), after.Size())
	}
	if before.Mode() != after.Mode() {
		return fmt.Errorf("mode changed: %v -> %v", before.Mode(), after.Mode())
	}
	if !before.ModTime().Equal(after.ModTime()) {
		return fmt.Errorf("mtime changed: %v -> %v", before.ModTime(), after.ModTime())
	}
	return nil
}
