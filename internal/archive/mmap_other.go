//go:build !unix

package archive

import (
	"errors"
	"os"
)

var errMmapUnsupported = errors.New("mmap is not supported on this platform")

func mapFile(*os.File, int) ([]byte, error) {
	return nil, errMmapUnsupported
}

func unmapFile([]byte) error {
	return errMmapUnsupported
}
