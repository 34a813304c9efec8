package tensor

import "errors"

// Common errors.
var (
	ErrIndex         = errors.New("index out of range")
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrInvalidShape  = errors.New("invalid shape")
	ErrNoBackend     = errors.New("no compute backend attached")
)
