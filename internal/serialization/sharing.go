package serialization

import (
	"fmt"

	"github.com/born-ml/thpp/internal/iobuf"
)

// SharingMode decides whether a payload segment may be referenced
// instead of copied.
type SharingMode int

// Sharing modes.
const (
	// ShareNone always copies.
	ShareNone SharingMode = iota
	// ShareIOBufManaged references a segment only when its memory is
	// reference-counted, so the reference keeps it alive.
	ShareIOBufManaged
	// ShareAll references any segment, including borrowed memory the
	// caller must keep valid.
	ShareAll
)

// ShouldShare reports whether buf may be referenced under mode m.
func (m SharingMode) ShouldShare(buf *iobuf.Buf) bool {
	switch m {
	case ShareIOBufManaged:
		return buf.IsManagedOne()
	case ShareAll:
		return true
	default:
		return false
	}
}

// String returns the configuration name of the mode.
func (m SharingMode) String() string {
	switch m {
	case ShareNone:
		return "none"
	case ShareIOBufManaged:
		return "iobuf_managed"
	case ShareAll:
		return "all"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseSharingMode is the inverse of SharingMode.String.
func ParseSharingMode(s string) (SharingMode, error) {
	switch s {
	case "none":
		return ShareNone, nil
	case "iobuf_managed", "":
		return ShareIOBufManaged, nil
	case "all":
		return ShareAll, nil
	default:
		return 0, fmt.Errorf("unknown sharing mode %q", s)
	}
}

// share returns buf itself when the mode permits referencing it, and a
// managed copy otherwise. The caller's reference moves to the result.
func (m SharingMode) share(buf *iobuf.Buf) *iobuf.Buf {
	if m.ShouldShare(buf) {
		return buf
	}
	c := iobuf.CopyBuffer(buf.Bytes())
	buf.Release()
	return c
}
