// Package archive stores named tensors in a single file.
//
// File layout:
//
//	[4 bytes: magic "THPP"]
//	[4 bytes: version (uint32 LE)]
//	[4 bytes: flags (uint32 LE)]
//	[8 bytes: header size (uint64 LE)]
//	[header: CBOR]
//	[padding to the data alignment]
//	[tensor payloads, each starting at an aligned offset]
//
// Payloads are the row-major bytes produced by the serialization codec,
// optionally compressed, each with its own BLAKE3 digest. A memory-mapped
// Reader hands out tensors whose storage references the mapping; the
// mapping is removed once the reader and every such tensor are released.
//
// Example usage:
//
//	w, err := archive.Create("weights.thpp", archive.WriterOptions{})
//	if err != nil {
//	    return err
//	}
//	if err := archive.Add(w, "layer.0.weight", weight); err != nil {
//	    return err
//	}
//	if err := w.Close(); err != nil {
//	    return err
//	}
//
//	r, err := archive.Open("weights.thpp", archive.ReaderOptions{Mmap: true, Sharing: serialization.ShareAll})
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	weight, err := archive.Load[float32](r, "layer.0.weight")
package archive
