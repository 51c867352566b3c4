package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const toolVersion = "0.3.0"

// Writer writes checkpoints in .rvck format.
type Writer struct {
	file   *os.File
	closed bool
}

// NewWriter creates a new .rvck file writer.
func NewWriter(path string) (*Writer, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for checkpoint saving
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	return &Writer{
		file:   file,
		closed: false,
	}, nil
}

// WriteCheckpoint writes a checkpoint to the .rvck file.
//
// Tensors are laid out in sorted name order so identical checkpoints
// produce byte-identical files.
func (w *Writer) WriteCheckpoint(ck *Checkpoint) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}

	// Build header
	header := Header{
		FormatVersion: FormatVersion,
		ToolVersion:   toolVersion,
		CreatedAt:     time.Now().UTC(),
		Model:         make([]TensorMeta, 0, len(ck.Model)),
		Train:         ck.Train,
		Metadata:      ck.Metadata,
	}

	// Calculate tensor offsets in sorted name order
	tensorOrder := make([]string, 0, len(ck.Model))
	for name := range ck.Model {
		tensorOrder = append(tensorOrder, name)
	}
	sort.Strings(tensorOrder)

	var currentOffset int64
	for _, name := range tensorOrder {
		raw := ck.Model[name]
		size := int64(raw.ByteSize())

		header.Model = append(header.Model, TensorMeta{
			Name:   name,
			DType:  dtypeToString(raw.DType()),
			Shape:  []int(raw.Shape()),
			Offset: currentOffset,
			Size:   size,
		})

		currentOffset += size
	}

	// Collect all tensor data to compute the checksum
	tensorDataBuf := make([]byte, 0, currentOffset)
	for _, name := range tensorOrder {
		tensorDataBuf = append(tensorDataBuf, ck.Model[name].Data()...)
	}
	checksum := ComputeChecksum(tensorDataBuf)

	// Marshal header to JSON
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	headerSize := uint64(len(headerJSON))
	dataSize := uint64(len(tensorDataBuf))

	// Build the 64-byte fixed header
	fixedHeader := make([]byte, FixedHeaderSize)

	// 0x00-0x03: Magic bytes "RVCK"
	copy(fixedHeader[0:4], MagicBytes)

	// 0x04-0x07: Version
	binary.LittleEndian.PutUint32(fixedHeader[4:8], uint32(FormatVersion))

	// 0x08-0x0B: Flags
	flags := uint32(0)
	if ck.Train != nil {
		flags |= FlagHasTrainState
	}
	if len(ck.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	binary.LittleEndian.PutUint32(fixedHeader[8:12], flags)

	// 0x0C-0x0F: Reserved (zero from make)

	// 0x10-0x17: Header size
	binary.LittleEndian.PutUint64(fixedHeader[16:24], headerSize)

	// 0x18-0x1F: Data size
	binary.LittleEndian.PutUint64(fixedHeader[24:32], dataSize)

	// 0x20-0x3F: SHA-256 checksum
	copy(fixedHeader[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	if _, err := w.file.Write(fixedHeader); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}

	if _, err := w.file.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header JSON: %w", err)
	}

	// Pad tensor data to a 64-byte boundary
	//nolint:gosec // G115: headerSize is small (< 100MB max), conversion is safe
	currentPos := int64(FixedHeaderSize) + int64(headerSize)
	padding := (HeaderAlignment - (currentPos % HeaderAlignment)) % HeaderAlignment
	if padding > 0 {
		paddingBytes := make([]byte, padding)
		if _, err := w.file.Write(paddingBytes); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	if _, err := w.file.Write(tensorDataBuf); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}

	return nil
}

// Close closes the writer and the underlying file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// Save writes a checkpoint to path, creating parent directories as needed.
func Save(path string, ck *Checkpoint) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	writer, err := NewWriter(path)
	if err != nil {
		return err
	}

	if err := writer.WriteCheckpoint(ck); err != nil {
		_ = writer.Close() // Best effort close on error
		return err
	}

	return writer.Close()
}
