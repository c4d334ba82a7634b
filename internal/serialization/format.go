package serialization

import (
	"encoding/json"
	"time"

	"github.com/born-ml/charrnn/internal/tensor"
)

// Format constants.
const (
	MagicBytes       = "BORN"
	FormatVersion    = 2
	HeaderAlignment  = 64
	FixedHeaderSize  = 64
	ChecksumSize     = 32
	ChecksumOffset   = 0x20
	headerSizeOffset = 0x10
	dataSizeOffset   = 0x18
)

// Flags stored in the fixed header.
const (
	FlagHasMetadata   uint32 = 1 << 0
	FlagHasCheckpoint uint32 = 1 << 1
)

// DType names used in the JSON header.
const (
	DTypeFloat32 = "float32"
	DTypeInt32   = "int32"
)

// Header is the JSON header of a .born file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	WriterVersion string            `json:"writer_version"`
	ModelType     string            `json:"model_type"`
	CreatedAt     time.Time         `json:"created_at"`
	Tensors       []TensorMeta      `json:"tensors"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	// Checkpoint holds caller-defined training state. It is stored verbatim.
	Checkpoint json.RawMessage `json:"checkpoint,omitempty"`
}

// TensorMeta describes one tensor of the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // relative to the start of the data section
	Size   int64  `json:"size"`   // in bytes
}

// Tensor pairs a name with the tensor to store under it.
type Tensor struct {
	Name string
	Data *tensor.RawTensor
}

func dtypeToString(dt tensor.DataType) (string, bool) {
	switch dt {
	case tensor.Float32:
		return DTypeFloat32, true
	case tensor.Int32:
		return DTypeInt32, true
	default:
		return "", false
	}
}

func stringToDtype(s string) (tensor.DataType, bool) {
	switch s {
	case DTypeFloat32:
		return tensor.Float32, true
	case DTypeInt32:
		return tensor.Int32, true
	default:
		return 0, false
	}
}

// alignedSize rounds n up to the header alignment.
func alignedSize(n int64) int64 {
	return n + (HeaderAlignment-n%HeaderAlignment)%HeaderAlignment
}
