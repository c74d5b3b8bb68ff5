package file

import "errors"

// Module errors.
var (
	ErrFileNotFound      = errors.New("file not found")
	ErrInvalidTransition = errors.New("invalid file state transition")
	ErrInvalidTTL        = errors.New("expiry must be in the future")
)
