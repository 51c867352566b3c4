package checkpoint

import (
	"time"

	"github.com/rvckit/rvckit/internal/tensor"
)

// Format constants.
const (
	MagicBytes      = "RVCK"
	FormatVersion   = 1
	HeaderAlignment = 64   // Align tensor data to 64 bytes
	FixedHeaderSize = 64   // Fixed header size (0x40 bytes)
	ChecksumSize    = 32   // SHA-256 checksum size
	ChecksumOffset  = 0x20 // Checksum offset in the fixed header
)

// ModelField is the top-level JSON header field that nests the parameter
// table. The downstream trainer loads checkpoints through this field.
const ModelField = "model"

// Data type string constants for serialization.
const (
	DTypeFloat32 = "float32"
	DTypeFloat64 = "float64"
	DTypeInt32   = "int32"
	DTypeInt64   = "int64"
	DTypeUint8   = "uint8"
	DTypeBool    = "bool"
)

// Flags for the .rvck format.
const (
	FlagHasTrainState uint32 = 1 << 0 // bit 0: training state included
	FlagHasMetadata   uint32 = 1 << 1 // bit 1: custom metadata included
)

// Header represents the JSON header in a .rvck file.
type Header struct {
	FormatVersion int               `json:"format_version"`     // Version of the .rvck format
	ToolVersion   string            `json:"tool_version"`       // Version of the tool that created this file
	CreatedAt     time.Time         `json:"created_at"`         // When the file was created
	Model         []TensorMeta      `json:"model"`              // Parameter table (the wrapper field)
	Train         *TrainMeta        `json:"train,omitempty"`    // Training state (optional)
	Metadata      map[string]string `json:"metadata,omitempty"` // Custom metadata (optional)
}

// TensorMeta describes one parameter tensor in the model table.
type TensorMeta struct {
	Name   string `json:"name"`   // Parameter name (e.g., "enc_p.encoder.attn_layers.0.conv_q.weight")
	DType  string `json:"dtype"`  // Data type (e.g., "float32")
	Shape  []int  `json:"shape"`  // Tensor shape
	Offset int64  `json:"offset"` // Offset in the data section (bytes from start of tensor data)
	Size   int64  `json:"size"`   // Size in bytes
}

// dtypeToString converts tensor.DataType to its string representation.
func dtypeToString(dt tensor.DataType) string {
	switch dt {
	case tensor.Float32:
		return DTypeFloat32
	case tensor.Float64:
		return DTypeFloat64
	case tensor.Int32:
		return DTypeInt32
	case tensor.Int64:
		return DTypeInt64
	case tensor.Uint8:
		return DTypeUint8
	case tensor.Bool:
		return DTypeBool
	default:
		return "unknown"
	}
}

// stringToDtype converts a string representation to tensor.DataType.
func stringToDtype(s string) (tensor.DataType, bool) {
	switch s {
	case DTypeFloat32:
		return tensor.Float32, true
	case DTypeFloat64:
		return tensor.Float64, true
	case DTypeInt32:
		return tensor.Int32, true
	case DTypeInt64:
		return tensor.Int64, true
	case DTypeUint8:
		return tensor.Uint8, true
	case DTypeBool:
		return tensor.Bool, true
	default:
		return 0, false
	}
}
