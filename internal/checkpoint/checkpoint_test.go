package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rvckit/rvckit/internal/tensor"
)

func newTestTensor(t *testing.T, shape tensor.Shape, values []float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	copy(raw.AsFloat32(), values)
	return raw
}

func tensorsEqual(a, b *tensor.RawTensor) bool {
	if !a.Shape().Equal(b.Shape()) || a.DType() != b.DType() {
		return false
	}
	aData, bData := a.Data(), b.Data()
	if len(aData) != len(bData) {
		return false
	}
	for i := range aData {
		if aData[i] != bData[i] {
			return false
		}
	}
	return true
}

func TestCheckpointRoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "roundtrip.rvck")

	ck := New()
	ck.Model["dec.conv_pre.weight"] = newTestTensor(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	ck.Model["dec.conv_pre.bias"] = newTestTensor(t, tensor.Shape{3}, []float32{0.1, 0.2, 0.3})
	ck.Train = &TrainMeta{Iteration: 35200, Epoch: 220, LearningRate: 1e-4}
	ck.Metadata = map[string]string{"sample_rate": "40000"}

	if err := Save(testFile, ck); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(testFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(loaded.Model) != 2 {
		t.Fatalf("loaded %d tensors, want 2", len(loaded.Model))
	}
	for name, raw := range ck.Model {
		got, ok := loaded.Model[name]
		if !ok {
			t.Fatalf("tensor %q missing after round-trip", name)
		}
		if !tensorsEqual(raw, got) {
			t.Errorf("tensor %q mismatch after round-trip", name)
		}
	}

	if loaded.Train == nil {
		t.Fatal("train state missing after round-trip")
	}
	if loaded.Train.Iteration != 35200 || loaded.Train.Epoch != 220 || loaded.Train.LearningRate != 1e-4 {
		t.Errorf("train state mismatch: %+v", loaded.Train)
	}
	if loaded.Metadata["sample_rate"] != "40000" {
		t.Errorf("metadata mismatch: %v", loaded.Metadata)
	}
}

func TestCheckpointRoundTripAllDTypes(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "dtypes.rvck")

	ck := New()

	f64, _ := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float64)
	copy(f64.AsFloat64(), []float64{1.1, 2.2, 3.3, 4.4})
	ck.Model["f64"] = f64

	i32, _ := tensor.NewRaw(tensor.Shape{3}, tensor.Int32)
	copy(i32.AsInt32(), []int32{-1, 0, 1})
	ck.Model["i32"] = i32

	i64, _ := tensor.NewRaw(tensor.Shape{2}, tensor.Int64)
	copy(i64.AsInt64(), []int64{1 << 40, -5})
	ck.Model["i64"] = i64

	u8, _ := tensor.NewRaw(tensor.Shape{4}, tensor.Uint8)
	copy(u8.AsUint8(), []uint8{0, 127, 128, 255})
	ck.Model["u8"] = u8

	b, _ := tensor.NewRaw(tensor.Shape{2}, tensor.Bool)
	b.AsBool()[0] = true
	ck.Model["flags"] = b

	scalar, _ := tensor.NewRaw(tensor.Shape{}, tensor.Float32)
	scalar.AsFloat32()[0] = 42
	ck.Model["scalar"] = scalar

	if err := Save(testFile, ck); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(testFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for name, raw := range ck.Model {
		got, ok := loaded.Model[name]
		if !ok {
			t.Fatalf("tensor %q missing after round-trip", name)
		}
		if !tensorsEqual(raw, got) {
			t.Errorf("tensor %q mismatch after round-trip", name)
		}
	}
	if loaded.Train != nil {
		t.Error("train state should be nil when not written")
	}
}

func TestWriterSortedLayout(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "sorted.rvck")

	ck := New()
	ck.Model["z_last"] = newTestTensor(t, tensor.Shape{1}, []float32{3})
	ck.Model["a_first"] = newTestTensor(t, tensor.Shape{1}, []float32{1})
	ck.Model["m_mid"] = newTestTensor(t, tensor.Shape{1}, []float32{2})

	if err := Save(testFile, ck); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reader, err := NewReader(testFile)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	names := reader.TensorNames()
	want := []string{"a_first", "m_mid", "z_last"}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("tensor order = %v, want %v", names, want)
		}
	}

	// Offsets must be contiguous in that order
	var expectOffset int64
	for _, meta := range reader.Header().Model {
		if meta.Offset != expectOffset {
			t.Errorf("tensor %q offset = %d, want %d", meta.Name, meta.Offset, expectOffset)
		}
		expectOffset += meta.Size
	}
}

func TestWriterDeterministicOutput(t *testing.T) {
	tempDir := t.TempDir()

	build := func() *Checkpoint {
		ck := New()
		ck.Model["w"] = newTestTensor(t, tensor.Shape{3}, []float32{2, 2, 2})
		ck.Model["b"] = newTestTensor(t, tensor.Shape{2}, []float32{0, 0})
		return ck
	}

	fileA := filepath.Join(tempDir, "a.rvck")
	fileB := filepath.Join(tempDir, "b.rvck")
	if err := Save(fileA, build()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := Save(fileB, build()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	readerA, err := NewReader(fileA)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer readerA.Close()
	readerB, err := NewReader(fileB)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer readerB.Close()

	// Same tensor layout regardless of map iteration order
	metaA, metaB := readerA.Header().Model, readerB.Header().Model
	if len(metaA) != len(metaB) {
		t.Fatalf("tensor counts differ: %d vs %d", len(metaA), len(metaB))
	}
	for i := range metaA {
		if metaA[i].Name != metaB[i].Name || metaA[i].Offset != metaB[i].Offset {
			t.Errorf("layout differs at %d: %+v vs %+v", i, metaA[i], metaB[i])
		}
	}
}

func TestSaveCreatesParentDirs(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "nested", "out", "G.rvck")

	ck := New()
	ck.Model["w"] = newTestTensor(t, tensor.Shape{1}, []float32{1})

	if err := Save(testFile, ck); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(testFile); err != nil {
		t.Fatalf("output file missing: %v", err)
	}
}

func TestCheckpointKeysSorted(t *testing.T) {
	ck := New()
	ck.Model["flow.w"] = newTestTensor(t, tensor.Shape{1}, []float32{1})
	ck.Model["dec.w"] = newTestTensor(t, tensor.Shape{1}, []float32{1})
	ck.Model["enc_p.w"] = newTestTensor(t, tensor.Shape{1}, []float32{1})

	keys := ck.Keys()
	want := []string{"dec.w", "enc_p.w", "flow.w"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Keys() = %v, want %v", keys, want)
		}
	}
}

func TestCheckpointCounters(t *testing.T) {
	ck := New()
	ck.Model["w"] = newTestTensor(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	ck.Model["b"] = newTestTensor(t, tensor.Shape{2}, []float32{0, 0})

	if got := ck.NumParameters(); got != 8 {
		t.Errorf("NumParameters = %d, want 8", got)
	}
	if got := ck.DataSize(); got != 32 {
		t.Errorf("DataSize = %d, want 32", got)
	}
}
