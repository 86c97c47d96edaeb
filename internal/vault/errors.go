package vault

import "errors"

// ErrMetadataNotFound is returned by GetMetadata when nothing is stored for
// the host and name.
var ErrMetadataNotFound = errors.New("metadata not found")
