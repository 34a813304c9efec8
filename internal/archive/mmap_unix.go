//go:build unix

package archive

import (
	"os"

	"golang.org/x/sys/unix"
)

// mapFile maps the file copy-on-write, so tensors viewing the mapping can
// be written without touching the file.
func mapFile(f *os.File, size int) ([]byte, error) {
	return unix.Mmap(
		int(f.Fd()), //nolint:gosec // G115: file descriptor fits in int
		0,
		size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE,
	)
}

func unmapFile(data []byte) error {
	return unix.Munmap(data)
}
