package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/charrnn/internal/tensor"
)

// Reader reads tensors from a .born file.
type Reader struct {
	src        io.ReaderAt
	closer     io.Closer
	header     Header
	flags      uint32
	dataOffset int64
	dataSize   int64
	checksum   [ChecksumSize]byte
}

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	SkipChecksumValidation bool
	ValidationLevel        ValidationLevel // zero value is ValidationStrict
}

// Open opens and validates the .born file at path.
func Open(path string, opts ReaderOptions) (*Reader, error) {
	//nolint:gosec // G304: checkpoint paths come from the command line
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	r, err := newReader(file, info.Size(), opts)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = file
	return r, nil
}

// ReadFrom reads a complete .born stream into memory and validates it.
func ReadFrom(src io.Reader, opts ReaderOptions) (*Reader, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}
	return newReader(bytes.NewReader(data), int64(len(data)), opts)
}

func newReader(src io.ReaderAt, size int64, opts ReaderOptions) (*Reader, error) {
	r := &Reader{src: src}

	fixed := make([]byte, FixedHeaderSize)
	if _, err := src.ReadAt(fixed, 0); err != nil {
		return nil, fmt.Errorf("%w: fixed header: %v", ErrTruncated, err)
	}
	if string(fixed[0:4]) != MagicBytes {
		return nil, ErrInvalidMagic
	}
	if version := binary.LittleEndian.Uint32(fixed[4:8]); version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}
	r.flags = binary.LittleEndian.Uint32(fixed[8:12])
	headerSize := binary.LittleEndian.Uint64(fixed[headerSizeOffset : headerSizeOffset+8])
	dataSize := binary.LittleEndian.Uint64(fixed[dataSizeOffset : dataSizeOffset+8])
	copy(r.checksum[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}
	headerJSON := make([]byte, headerSize)
	if _, err := src.ReadAt(headerJSON, FixedHeaderSize); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrTruncated, err)
	}
	if err := json.Unmarshal(headerJSON, &r.header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	r.dataOffset = alignedSize(FixedHeaderSize + int64(headerSize))
	//nolint:gosec // G115: checked against the real size just below
	r.dataSize = int64(dataSize)
	if r.dataSize < 0 || r.dataOffset+r.dataSize > size {
		return nil, fmt.Errorf("%w: data section needs %d bytes, file has %d", ErrTruncated, r.dataOffset+r.dataSize, size)
	}

	if err := ValidateHeader(&r.header, r.dataSize, opts.ValidationLevel); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if !opts.SkipChecksumValidation {
		computed, err := ComputeChecksumReader(io.NewSectionReader(src, r.dataOffset, r.dataSize))
		if err != nil {
			return nil, fmt.Errorf("failed to read tensor data for checksum: %w", err)
		}
		if err := ValidateChecksum(computed, r.checksum); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Header returns the parsed JSON header.
func (r *Reader) Header() Header {
	return r.header
}

// Flags returns the fixed-header flags.
func (r *Reader) Flags() uint32 {
	return r.flags
}

// Metadata returns the free-form metadata map.
func (r *Reader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns the stored tensor names in file order.
func (r *Reader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, t := range r.header.Tensors {
		names[i] = t.Name
	}
	return names
}

// TensorInfo returns the table entry of name.
func (r *Reader) TensorInfo(name string) (TensorMeta, error) {
	for _, t := range r.header.Tensors {
		if t.Name == name {
			return t, nil
		}
	}
	return TensorMeta{}, fmt.Errorf("%w: %q", ErrTensorNotFound, name)
}

// ReadTensorData returns the raw bytes of name.
func (r *Reader) ReadTensorData(name string) ([]byte, error) {
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	data := make([]byte, meta.Size)
	if _, err := r.src.ReadAt(data, r.dataOffset+meta.Offset); err != nil {
		return nil, fmt.Errorf("failed to read tensor %s: %w", name, err)
	}
	return data, nil
}

// LoadTensor reads name into a new tensor on device.
func (r *Reader) LoadTensor(name string, device tensor.Device) (*tensor.RawTensor, error) {
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	dtype, ok := stringToDtype(meta.DType)
	if !ok {
		return nil, fmt.Errorf("%w: %q for tensor %q", ErrUnsupportedDType, meta.DType, name)
	}
	raw, err := tensor.NewRaw(tensor.Shape(meta.Shape), dtype, device)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	if int64(raw.ByteSize()) != meta.Size {
		return nil, fmt.Errorf("tensor %s: shape %v does not match %d bytes", name, meta.Shape, meta.Size)
	}
	if _, err := r.src.ReadAt(raw.Data(), r.dataOffset+meta.Offset); err != nil {
		return nil, fmt.Errorf("failed to read tensor %s: %w", name, err)
	}
	return raw, nil
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
