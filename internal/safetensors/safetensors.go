// Package safetensors reads and writes the safetensors tensor-dict format
// used by the wider voice-model ecosystem to ship weights.
//
//	Format Structure:
//	  [8 bytes: header_size (uint64 LE)]
//	  [header_size bytes: JSON header]
//	  [tensor data: raw bytes]
//
// Half-precision tensors (F16, BF16) are widened to float32 on load; the
// merge pipeline operates on full-precision tensors only.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/x448/float16"

	"github.com/rvckit/rvckit/internal/tensor"
)

// DType represents supported safetensors data types.
type DType string

// Supported safetensors dtypes.
const (
	F16  DType = "F16"
	F32  DType = "F32"
	F64  DType = "F64"
	BF16 DType = "BF16"
	I32  DType = "I32"
	I64  DType = "I64"
	U8   DType = "U8"
	BOOL DType = "BOOL"
)

// TensorInfo describes a tensor in the safetensors header.
type TensorInfo struct {
	DType       DType    `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end]
}

// Header is the JSON header of a safetensors file.
type Header struct {
	Metadata map[string]string     `json:"__metadata__"`
	Tensors  map[string]TensorInfo `json:"-"`
}

// UnmarshalJSON implements custom JSON unmarshaling for Header: the
// "__metadata__" entry is split from the tensor entries, which share the
// top-level namespace.
func (h *Header) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap["__metadata__"]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	h.Tensors = make(map[string]TensorInfo)
	for key, value := range rawMap {
		if key == "__metadata__" {
			continue
		}
		var info TensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}

	return nil
}

// Reader reads safetensors format files.
type Reader struct {
	file       *os.File
	header     Header
	dataOffset int64 // Offset where tensor data starts
}

// NewReader creates a new safetensors reader.
func NewReader(path string) (*Reader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	// Read header size (8 bytes, little-endian uint64)
	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		_ = file.Close() // Best effort close on error
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}

	if headerSize > 100*1024*1024 {
		_ = file.Close()
		return nil, fmt.Errorf("invalid header size: %d (too large)", headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	//nolint:gosec // G115: headerSize is bounded above, conversion is safe
	dataOffset := int64(8 + headerSize)

	return &Reader{
		file:       file,
		header:     header,
		dataOffset: dataOffset,
	}, nil
}

// Close closes the safetensors file.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Metadata returns the metadata map from the header.
func (r *Reader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns the names of all tensors in the file, sorted.
func (r *Reader) TensorNames() []string {
	names := make([]string, 0, len(r.header.Tensors))
	for name := range r.header.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *Reader) TensorInfo(name string) (*TensorInfo, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("tensor %s not found", name)
	}
	return &info, nil
}

// ReadTensorData reads raw tensor data for a given tensor name.
func (r *Reader) ReadTensorData(name string) ([]byte, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	start := r.dataOffset + info.DataOffsets[0]
	end := r.dataOffset + info.DataOffsets[1]
	size := end - start

	if size < 0 {
		return nil, fmt.Errorf("invalid data offsets for tensor %s: [%d, %d]",
			name, info.DataOffsets[0], info.DataOffsets[1])
	}

	if _, err := r.file.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to tensor data: %w", err)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r.file, data); err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	return data, nil
}

// ReadTensor loads a tensor. F16 and BF16 tensors are widened to float32;
// all other dtypes load in their native representation.
func (r *Reader) ReadTensor(name string) (*tensor.RawTensor, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	shape := tensor.Shape(info.Shape)
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape for tensor %s: %w", name, err)
	}

	data, err := r.ReadTensorData(name)
	if err != nil {
		return nil, err
	}

	switch info.DType {
	case F16:
		return widenHalf(shape, data, func(bits uint16) float32 {
			return float16.Frombits(bits).Float32()
		})
	case BF16:
		return widenHalf(shape, data, func(bits uint16) float32 {
			return math.Float32frombits(uint32(bits) << 16)
		})
	default:
	}

	dtype, err := toDataType(info.DType)
	if err != nil {
		return nil, fmt.Errorf("failed to convert dtype for tensor %s: %w", name, err)
	}

	raw, err := tensor.NewRaw(shape, dtype)
	if err != nil {
		return nil, fmt.Errorf("failed to create tensor: %w", err)
	}
	if len(data) != raw.ByteSize() {
		return nil, fmt.Errorf("tensor %s: data size %d does not match shape %v (%s)",
			name, len(data), shape, dtype)
	}
	copy(raw.Data(), data)

	return raw, nil
}

// widenHalf converts 16-bit float data into a float32 tensor.
func widenHalf(shape tensor.Shape, data []byte, conv func(uint16) float32) (*tensor.RawTensor, error) {
	if len(data) != shape.NumElements()*2 {
		return nil, fmt.Errorf("half-precision data size %d does not match shape %v", len(data), shape)
	}

	raw, err := tensor.NewRaw(shape, tensor.Float32)
	if err != nil {
		return nil, fmt.Errorf("failed to create tensor: %w", err)
	}

	out := raw.AsFloat32()
	for i := range out {
		out[i] = conv(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}

	return raw, nil
}

// toDataType converts a safetensors dtype to the native DataType.
func toDataType(dtype DType) (tensor.DataType, error) {
	switch dtype {
	case F32:
		return tensor.Float32, nil
	case F64:
		return tensor.Float64, nil
	case I32:
		return tensor.Int32, nil
	case I64:
		return tensor.Int64, nil
	case U8:
		return tensor.Uint8, nil
	case BOOL:
		return tensor.Bool, nil
	default:
		return 0, fmt.Errorf("unsupported dtype: %s", dtype)
	}
}

// fromDataType converts a native DataType to the safetensors dtype string.
func fromDataType(dt tensor.DataType) DType {
	switch dt {
	case tensor.Float32:
		return F32
	case tensor.Float64:
		return F64
	case tensor.Int32:
		return I32
	case tensor.Int64:
		return I64
	case tensor.Uint8:
		return U8
	case tensor.Bool:
		return BOOL
	default:
		return F32
	}
}
