package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rvckit/rvckit/internal/tensor"
)

// Reader reads checkpoints from .rvck format.
type Reader struct {
	file       *os.File
	header     Header
	topLevel   map[string]json.RawMessage // Raw top-level header fields
	flags      uint32
	version    uint32
	dataOffset int64    // Offset where tensor data starts
	dataSize   int64    // Size of the data section, from the fixed header
	checksum   [32]byte // SHA-256 checksum of the data section
	opts       ReaderOptions
	closed     bool
}

// ReaderOptions configures the behavior of Reader.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster, header-only inspection)
	ValidationLevel        ValidationLevel // Validation strictness level
}

// NewReader creates a new .rvck file reader with default options
// (strict validation, checksum verified).
func NewReader(path string) (*Reader, error) {
	return NewReaderWithOptions(path, ReaderOptions{
		ValidationLevel: ValidationStrict,
	})
}

// NewReaderWithOptions creates a new .rvck file reader with custom options.
//
// Opening succeeds for any well-formed container, including one whose
// header lacks the "model" field; HasModelTable reports that case so the
// verifier can turn it into a compatibility finding instead of a crash.
func NewReaderWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for checkpoint loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	reader := &Reader{
		file:   file,
		opts:   opts,
		closed: false,
	}

	if err := reader.parseHeader(); err != nil {
		_ = file.Close() // Best effort close on error
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	// The declared data section must fit in the file.
	fileInfo, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if reader.dataOffset+reader.dataSize > fileInfo.Size() {
		_ = file.Close()
		return nil, fmt.Errorf("%w: need %d bytes, have %d",
			ErrTruncated, reader.dataOffset+reader.dataSize, fileInfo.Size())
	}

	if err := ValidateHeader(&reader.header, reader.dataSize, opts.ValidationLevel); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if !opts.SkipChecksumValidation {
		if err := reader.validateChecksum(); err != nil {
			_ = file.Close()
			return nil, err
		}
	}

	return reader, nil
}

// parseHeader reads and parses the .rvck file header.
func (r *Reader) parseHeader() error {
	fixedHeader := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r.file, fixedHeader); err != nil {
		return fmt.Errorf("failed to read fixed header: %w", err)
	}

	// 0x00-0x03: magic bytes
	if string(fixedHeader[0:4]) != MagicBytes {
		return ErrInvalidMagic
	}

	// 0x04-0x07: version
	r.version = binary.LittleEndian.Uint32(fixedHeader[4:8])
	if r.version != FormatVersion {
		return fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, r.version, FormatVersion)
	}

	// 0x08-0x0B: flags
	r.flags = binary.LittleEndian.Uint32(fixedHeader[8:12])

	// 0x10-0x17: header size
	headerSize := binary.LittleEndian.Uint64(fixedHeader[16:24])
	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	// 0x18-0x1F: data size
	//nolint:gosec // G115: bounded by the truncation check against the real file size
	r.dataSize = int64(binary.LittleEndian.Uint64(fixedHeader[24:32]))

	// 0x20-0x3F: SHA-256 checksum
	copy(r.checksum[:], fixedHeader[ChecksumOffset:ChecksumOffset+ChecksumSize])

	// Read header JSON (positioned right after the fixed header)
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r.file, headerBytes); err != nil {
		return fmt.Errorf("failed to read header JSON: %w", err)
	}

	// Keep the raw top-level field set so a missing "model" field is
	// observable, then parse the typed header.
	if err := json.Unmarshal(headerBytes, &r.topLevel); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}
	if err := json.Unmarshal(headerBytes, &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}

	// Calculate data offset (with alignment padding)
	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	currentPos := int64(FixedHeaderSize) + int64(headerSize)
	padding := (HeaderAlignment - (currentPos % HeaderAlignment)) % HeaderAlignment
	r.dataOffset = currentPos + padding

	return nil
}

// validateChecksum reads the whole data section and compares its SHA-256
// against the stored checksum.
func (r *Reader) validateChecksum() error {
	if _, err := r.file.Seek(r.dataOffset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to tensor data: %w", err)
	}

	computed, err := ComputeChecksumReader(io.LimitReader(r.file, r.dataSize))
	if err != nil {
		return fmt.Errorf("failed to read tensor data for checksum: %w", err)
	}

	return ValidateChecksum(computed, r.checksum)
}

// Header returns the file header.
func (r *Reader) Header() Header {
	return r.header
}

// HasModelTable reports whether the header carries the top-level "model"
// field at all. A file can be structurally valid yet lack it; such a file
// is unusable by the downstream trainer.
func (r *Reader) HasModelTable() bool {
	_, ok := r.topLevel[ModelField]
	return ok
}

// TopLevelFields returns the sorted top-level JSON header field names.
func (r *Reader) TopLevelFields() []string {
	fields := make([]string, 0, len(r.topLevel))
	for name := range r.topLevel {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

// Metadata returns the metadata map from the header, nil if absent.
func (r *Reader) Metadata() map[string]string {
	return r.header.Metadata
}

// Train returns the training state from the header, nil if absent.
func (r *Reader) Train() *TrainMeta {
	return r.header.Train
}

// TensorNames returns the names of all tensors in the model table.
func (r *Reader) TensorNames() []string {
	names := make([]string, len(r.header.Model))
	for i, meta := range r.header.Model {
		names[i] = meta.Name
	}
	return names
}

// TensorInfo returns metadata for a specific tensor.
func (r *Reader) TensorInfo(name string) (*TensorMeta, error) {
	for _, meta := range r.header.Model {
		if meta.Name == name {
			return &meta, nil
		}
	}
	return nil, fmt.Errorf("tensor %s not found", name)
}

// ReadTensorData reads raw tensor data for a given tensor name.
func (r *Reader) ReadTensorData(name string) ([]byte, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}

	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	absoluteOffset := r.dataOffset + meta.Offset
	if _, err := r.file.Seek(absoluteOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to tensor data: %w", err)
	}

	data := make([]byte, meta.Size)
	if _, err := io.ReadFull(r.file, data); err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	return data, nil
}

// ReadTensor loads a single tensor from the file.
func (r *Reader) ReadTensor(name string) (*tensor.RawTensor, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}

	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	dtype, ok := stringToDtype(meta.DType)
	if !ok {
		return nil, fmt.Errorf("unsupported dtype: %s", meta.DType)
	}

	shape := tensor.Shape(meta.Shape)
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape for tensor %s: %w", name, err)
	}

	data, err := r.ReadTensorData(name)
	if err != nil {
		return nil, err
	}

	raw, err := tensor.NewRaw(shape, dtype)
	if err != nil {
		return nil, fmt.Errorf("failed to create tensor: %w", err)
	}
	copy(raw.Data(), data)

	return raw, nil
}

// ReadModel reads all tensors of the model table into a parameter mapping.
func (r *Reader) ReadModel() (map[string]*tensor.RawTensor, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}

	model := make(map[string]*tensor.RawTensor, len(r.header.Model))
	for _, meta := range r.header.Model {
		raw, err := r.ReadTensor(meta.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to load tensor %s: %w", meta.Name, err)
		}
		model[meta.Name] = raw
	}

	return model, nil
}

// ReadCheckpoint reads the full checkpoint: model table plus auxiliary
// fields. Returns ErrNoModelTable if the header lacks the "model" field.
func (r *Reader) ReadCheckpoint() (*Checkpoint, error) {
	if !r.HasModelTable() {
		return nil, ErrNoModelTable
	}

	model, err := r.ReadModel()
	if err != nil {
		return nil, err
	}

	return &Checkpoint{
		Model:    model,
		Train:    r.header.Train,
		Metadata: r.header.Metadata,
	}, nil
}

// Close closes the reader and the underlying file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// Load reads a full checkpoint from path with default options.
func Load(path string) (*Checkpoint, error) {
	return LoadWithOptions(path, ReaderOptions{
		ValidationLevel: ValidationStrict,
	})
}

// LoadWithOptions reads a full checkpoint from path with custom options.
func LoadWithOptions(path string, opts ReaderOptions) (*Checkpoint, error) {
	reader, err := NewReaderWithOptions(path, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = reader.Close() // Best effort close
	}()

	return reader.ReadCheckpoint()
}
