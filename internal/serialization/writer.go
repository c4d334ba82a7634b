package serialization

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// WriterVersion is recorded in every header written by this package.
const WriterVersion = "charrnn/1"

// Write encodes tensors, in the given order, into w.
//
// header.Tensors, FormatVersion and WriterVersion are filled in; a zero
// CreatedAt is set to the current time.
func Write(w io.Writer, tensors []Tensor, header Header) error {
	header.FormatVersion = FormatVersion
	header.WriterVersion = WriterVersion
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}

	header.Tensors = make([]TensorMeta, 0, len(tensors))
	seen := make(map[string]bool, len(tensors))
	hasher := newDataHasher()
	var offset int64
	for _, t := range tensors {
		if err := ValidateTensorName(t.Name); err != nil {
			return err
		}
		if seen[t.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateTensor, t.Name)
		}
		seen[t.Name] = true

		dtype, ok := dtypeToString(t.Data.DType())
		if !ok {
			return fmt.Errorf("%w: %s for tensor %q", ErrUnsupportedDType, t.Data.DType(), t.Name)
		}
		size := int64(t.Data.ByteSize())
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   t.Name,
			DType:  dtype,
			Shape:  []int(t.Data.Shape().Clone()),
			Offset: offset,
			Size:   size,
		})
		hasher.Write(t.Data.Data())
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	flags := uint32(0)
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if len(header.Checkpoint) > 0 {
		flags |= FlagHasCheckpoint
	}

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[headerSizeOffset:headerSizeOffset+8], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[dataSizeOffset:dataSizeOffset+8], uint64(offset))
	checksum := hasher.Sum()
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(fixed); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := bw.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	end := int64(FixedHeaderSize + len(headerJSON))
	if padding := alignedSize(end) - end; padding > 0 {
		if _, err := bw.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}
	for _, t := range tensors {
		if _, err := bw.Write(t.Data.Data()); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", t.Name, err)
		}
	}
	return bw.Flush()
}

// WriteFile writes a .born file at path. The file is first written next to
// its destination and then renamed, so an existing file at path is either
// left intact or fully replaced.
func WriteFile(path string, tensors []Tensor, header Header) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = Write(tmp, tensors, header); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}
