package safetensors

import (
	"path/filepath"
	"testing"

	"github.com/rvckit/rvckit/internal/checkpoint"
	"github.com/rvckit/rvckit/internal/tensor"
)

func TestImportExportRoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	stFile := filepath.Join(tempDir, "model.safetensors")

	ck := checkpoint.New()
	w, _ := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float32)
	copy(w.AsFloat32(), []float32{1, 2, 3, 4})
	ck.Model["dec.weight"] = w
	b, _ := tensor.NewRaw(tensor.Shape{2}, tensor.Float64)
	copy(b.AsFloat64(), []float64{0.5, -0.5})
	ck.Model["dec.bias"] = b
	ck.Metadata = map[string]string{"origin": "trainer"}

	if err := Export(ck, stFile); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	imported, err := Import(stFile)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if len(imported.Model) != 2 {
		t.Fatalf("imported %d tensors, want 2", len(imported.Model))
	}

	gotW := imported.Model["dec.weight"]
	if gotW == nil || gotW.DType() != tensor.Float32 || !gotW.Shape().Equal(tensor.Shape{2, 2}) {
		t.Fatalf("dec.weight mismatch: %+v", gotW)
	}
	for i, want := range []float32{1, 2, 3, 4} {
		if gotW.AsFloat32()[i] != want {
			t.Errorf("dec.weight[%d] = %f, want %f", i, gotW.AsFloat32()[i], want)
		}
	}

	gotB := imported.Model["dec.bias"]
	if gotB == nil || gotB.DType() != tensor.Float64 {
		t.Fatalf("dec.bias mismatch: %+v", gotB)
	}
	if gotB.AsFloat64()[0] != 0.5 || gotB.AsFloat64()[1] != -0.5 {
		t.Errorf("dec.bias values = %v", gotB.AsFloat64())
	}

	if imported.Metadata["origin"] != "trainer" {
		t.Errorf("metadata = %v, want origin=trainer", imported.Metadata)
	}
	if imported.Train != nil {
		t.Error("imported checkpoint should have no training state")
	}
}
