package checkpoint

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rvckit/rvckit/internal/tensor"
)

// writeRawContainer builds a container file by hand: fixed header with the
// given magic and version, then headerJSON, padding, and data.
func writeRawContainer(t *testing.T, path, magic string, version uint32, headerJSON string, data []byte) {
	t.Helper()

	checksum := ComputeChecksum(data)

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], magic)
	binary.LittleEndian.PutUint32(fixed[4:8], version)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(data)))
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	buf := append([]byte{}, fixed...)
	buf = append(buf, headerJSON...)
	padding := (HeaderAlignment - (len(buf) % HeaderAlignment)) % HeaderAlignment
	buf = append(buf, make([]byte, padding)...)
	buf = append(buf, data...)

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("writing container: %v", err)
	}
}

func TestReaderMissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "nope.rvck"))
	if err == nil {
		t.Fatal("NewReader on missing file should fail")
	}
}

func TestReaderInvalidMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad_magic.rvck")
	writeRawContainer(t, path, "JUNK", FormatVersion, `{"format_version":1,"model":[]}`, nil)

	_, err := NewReader(path)
	if !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("error = %v, want ErrInvalidMagic", err)
	}
}

func TestReaderUnsupportedVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad_version.rvck")
	writeRawContainer(t, path, MagicBytes, 99, `{"format_version":99,"model":[]}`, nil)

	_, err := NewReader(path)
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("error = %v, want ErrUnsupportedVersion", err)
	}
}

func TestReaderMissingModelTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no_model.rvck")
	headerJSON := `{"format_version":1,"tool_version":"0.3.0","weights":[],"metadata":{"source":"elsewhere"}}`
	writeRawContainer(t, path, MagicBytes, FormatVersion, headerJSON, nil)

	// Opening must succeed: the verifier inspects such files.
	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	if reader.HasModelTable() {
		t.Error("HasModelTable should be false")
	}

	fields := reader.TopLevelFields()
	want := []string{"format_version", "metadata", "tool_version", "weights"}
	if len(fields) != len(want) {
		t.Fatalf("TopLevelFields = %v, want %v", fields, want)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Fatalf("TopLevelFields = %v, want %v", fields, want)
		}
	}

	// Reading the checkpoint must fail with the dedicated error.
	if _, err := reader.ReadCheckpoint(); !errors.Is(err, ErrNoModelTable) {
		t.Fatalf("ReadCheckpoint error = %v, want ErrNoModelTable", err)
	}
}

func TestReaderChecksumMismatch(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "corrupt.rvck")

	ck := New()
	raw, _ := tensor.NewRaw(tensor.Shape{4}, tensor.Float32)
	copy(raw.AsFloat32(), []float32{1, 2, 3, 4})
	ck.Model["w"] = raw
	if err := Save(path, ck); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Flip the last byte, which lives in the data section.
	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading file: %v", err)
	}
	buf[len(buf)-1] ^= 0xFF
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	if _, err := NewReader(path); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("error = %v, want ErrChecksumMismatch", err)
	}

	// Skipping checksum validation must let the file open.
	reader, err := NewReaderWithOptions(path, ReaderOptions{
		SkipChecksumValidation: true,
		ValidationLevel:        ValidationStrict,
	})
	if err != nil {
		t.Fatalf("NewReaderWithOptions(skip checksum) failed: %v", err)
	}
	reader.Close()
}

func TestReaderTruncatedFile(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "short.rvck")

	ck := New()
	raw, _ := tensor.NewRaw(tensor.Shape{8}, tensor.Float32)
	ck.Model["w"] = raw
	if err := Save(path, ck); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading file: %v", err)
	}
	if err := os.WriteFile(path, buf[:len(buf)-8], 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	if _, err := NewReader(path); !errors.Is(err, ErrTruncated) {
		t.Fatalf("error = %v, want ErrTruncated", err)
	}
}

func TestReaderRejectsOverlappingOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlap.rvck")
	headerJSON := `{"format_version":1,"model":[` +
		`{"name":"a","dtype":"float32","shape":[2],"offset":0,"size":8},` +
		`{"name":"b","dtype":"float32","shape":[2],"offset":4,"size":8}]}`
	writeRawContainer(t, path, MagicBytes, FormatVersion, headerJSON, make([]byte, 12))

	_, err := NewReader(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if verr.Type != "offset_overlap" {
		t.Errorf("validation type = %q, want offset_overlap", verr.Type)
	}
}

func TestReaderRejectsOutOfBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oob.rvck")
	headerJSON := `{"format_version":1,"model":[` +
		`{"name":"a","dtype":"float32","shape":[4],"offset":0,"size":16}]}`
	writeRawContainer(t, path, MagicBytes, FormatVersion, headerJSON, make([]byte, 8))

	_, err := NewReader(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if verr.Type != "out_of_bounds" {
		t.Errorf("validation type = %q, want out_of_bounds", verr.Type)
	}
}

func TestReaderRejectsTraversalName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traversal.rvck")
	headerJSON := `{"format_version":1,"model":[` +
		`{"name":"../evil","dtype":"float32","shape":[1],"offset":0,"size":4}]}`
	writeRawContainer(t, path, MagicBytes, FormatVersion, headerJSON, make([]byte, 4))

	_, err := NewReader(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if verr.Type != "invalid_name" {
		t.Errorf("validation type = %q, want invalid_name", verr.Type)
	}
}

func TestReaderSingleTensorAccess(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "single.rvck")

	ck := New()
	w, _ := tensor.NewRaw(tensor.Shape{3}, tensor.Float32)
	copy(w.AsFloat32(), []float32{2, 2, 2})
	ck.Model["w"] = w
	b, _ := tensor.NewRaw(tensor.Shape{2}, tensor.Float32)
	ck.Model["b"] = b
	if err := Save(path, ck); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	info, err := reader.TensorInfo("w")
	if err != nil {
		t.Fatalf("TensorInfo failed: %v", err)
	}
	if info.DType != DTypeFloat32 || info.Size != 12 {
		t.Errorf("TensorInfo = %+v", info)
	}

	loaded, err := reader.ReadTensor("w")
	if err != nil {
		t.Fatalf("ReadTensor failed: %v", err)
	}
	got := loaded.AsFloat32()
	for i, v := range []float32{2, 2, 2} {
		if got[i] != v {
			t.Errorf("element %d = %f, want %f", i, got[i], v)
		}
	}

	if _, err := reader.TensorInfo("missing"); err == nil {
		t.Error("TensorInfo on missing tensor should fail")
	}
}
