// Package serialization converts tensors to and from a wire value made of
// a type tag, a byte order, the sizes, and a chain of payload segments.
//
// Encoding walks the tensor in row-major order. The innermost dimensions
// that are laid out contiguously in storage are emitted as whole runs:
// a fully contiguous tensor becomes a single segment, a transposed one
// becomes one segment per element. Runs that are large enough may be
// emitted by reference to the tensor's storage instead of by copy; the
// SharingMode decides when that is allowed.
//
// Decoding adopts a single aligned payload segment as the new tensor's
// storage when the SharingMode permits, and copies otherwise.
//
// Marshal and Unmarshal add a self-describing frame around a wire value:
//
//	[CBOR header: version, dtype, endian, sizes, compression, length, stored, digest]
//	[payload: stored bytes]
//
// Example usage:
//
//	w, err := serialization.Encode(t, serialization.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Release()
//	frame, err := serialization.Marshal(w, serialization.FrameOptions{Compression: serialization.CompressionZstd})
//
//	w2, err := serialization.Unmarshal(frame)
//	t2, err := serialization.Decode[float32](w2, serialization.ShareAll)
package serialization
