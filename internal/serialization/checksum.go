package serialization

import (
	"crypto/sha256"
	"hash"
	"io"
)

// ComputeChecksum returns the SHA-256 of data.
func ComputeChecksum(data []byte) [ChecksumSize]byte {
	return sha256.Sum256(data)
}

// ComputeChecksumReader hashes everything r yields.
func ComputeChecksumReader(r io.Reader) ([ChecksumSize]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return [ChecksumSize]byte{}, err
	}
	return sum(h), nil
}

// ValidateChecksum returns ErrChecksumMismatch unless computed equals stored.
func ValidateChecksum(computed, stored [ChecksumSize]byte) error {
	if computed != stored {
		return ErrChecksumMismatch
	}
	return nil
}

func sum(h hash.Hash) [ChecksumSize]byte {
	var out [ChecksumSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// dataHasher hashes the data section incrementally while it is written.
type dataHasher struct {
	h hash.Hash
}

func newDataHasher() *dataHasher {
	return &dataHasher{h: sha256.New()}
}

func (d *dataHasher) Write(p []byte) {
	_, _ = d.h.Write(p) // hash.Hash never fails
}

func (d *dataHasher) Sum() [ChecksumSize]byte {
	return sum(d.h)
}
