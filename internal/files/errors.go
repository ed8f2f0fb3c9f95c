package files

import "errors"

var (
	// ErrNotFound means the file metadata record does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrUnsupported means blob storage is not available in this mode.
	ErrUnsupported = errors.New("storage not supported in memory mode")
	// ErrInvalidInput means the upload request was malformed.
	ErrInvalidInput = errors.New("invalid input")
)
