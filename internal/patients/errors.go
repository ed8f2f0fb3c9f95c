package patients

import "errors"

var (
	// ErrNotFound means the patient (or parent patient) does not exist.
	ErrNotFound = errors.New("patient not found")
	// ErrForbidden means the record belongs to a different user.
	ErrForbidden = errors.New("forbidden")
	// ErrMissingID means the caller did not supply a record id.
	ErrMissingID = errors.New("record id is required")
)
