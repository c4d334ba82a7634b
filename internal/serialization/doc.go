// Package serialization implements the .born container used for training
// checkpoints.
//
// A .born file is a fixed 64-byte header followed by a JSON header and the
// raw tensor bytes:
//
//	0x00  [4]  magic "BORN"
//	0x04  [4]  format version (uint32 LE, currently 2)
//	0x08  [4]  flags (uint32 LE)
//	0x0C  [4]  reserved
//	0x10  [8]  JSON header size (uint64 LE)
//	0x18  [8]  tensor data size (uint64 LE)
//	0x20  [32] SHA-256 of the tensor data
//	0x40  JSON header, zero padded to a 64-byte boundary
//	      tensor data, little-endian, tensors back to back
//
// Only float32 and int32 tensors are stored. The JSON header lists every
// tensor with its dtype, shape, offset and size, plus free-form metadata and
// an optional checkpoint section owned by the caller.
//
// Example:
//
//	err := serialization.WriteFile("lm.born", tensors, serialization.Header{
//		ModelType: "lstm",
//	})
//	...
//	r, err := serialization.Open("lm.born", serialization.ReaderOptions{})
//	defer r.Close()
//	params, err := r.LoadTensor("params", tensor.CPU)
package serialization
