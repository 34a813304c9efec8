package serialization

import "errors"

// Common errors.
var (
	ErrUnsupportedEndianness  = errors.New("unsupported endianness")
	ErrDataType               = errors.New("data type mismatch")
	ErrChecksumMismatch       = errors.New("checksum mismatch: payload may be corrupted")
	ErrUnsupportedCompression = errors.New("unsupported compression")
	ErrCorrupt                = errors.New("corrupt frame")
)
