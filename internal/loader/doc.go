// Package loader reads tensors stored in foreign weight formats so they
// can be decoded or re-packed into archives.
//
// Supported formats:
//   - SafeTensors: an 8-byte little-endian header length, a JSON header,
//     then raw little-endian payloads
//
// Payloads are exposed as wires that reference the file contents, so
// importing a file into an archive never copies a tensor more than once.
//
// Example:
//
//	r, err := loader.OpenSafeTensors("model.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	w, err := r.Wire("model.embed_tokens.weight")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Release()
package loader
