// Copyright 2025 The rvckit Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package checkpoint_test

import (
	"path/filepath"
	"testing"

	"github.com/rvckit/rvckit/checkpoint"
	"github.com/rvckit/rvckit/tensor"
)

// TestSaveLoadRoundtrip exercises the public save/load API.
func TestSaveLoadRoundtrip(t *testing.T) {
	ck := checkpoint.New()
	raw, err := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float32)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	copy(raw.AsFloat32(), []float32{1, 2, 3, 4})
	ck.Model["enc_p.emb_phone.weight"] = raw
	ck.Train = &checkpoint.TrainMeta{Iteration: 35200, Epoch: 110, LearningRate: 1e-4}
	ck.Metadata = map[string]string{"note": "fixture"}

	path := filepath.Join(t.TempDir(), "roundtrip.rvck")
	if err := checkpoint.Save(path, ck); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := checkpoint.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got := loaded.Model["enc_p.emb_phone.weight"]
	if got == nil {
		t.Fatal("loaded checkpoint is missing the tensor")
	}
	want := []float32{1, 2, 3, 4}
	for i, v := range got.AsFloat32() {
		if v != want[i] {
			t.Errorf("element %d = %v, want %v", i, v, want[i])
		}
	}
	if loaded.Train == nil || loaded.Train.Iteration != 35200 {
		t.Errorf("Train = %+v, want iteration 35200", loaded.Train)
	}
	if loaded.Metadata["note"] != "fixture" {
		t.Errorf("Metadata = %v, want note=fixture", loaded.Metadata)
	}
}

// TestReaderHeaderAccess exercises the public reader API.
func TestReaderHeaderAccess(t *testing.T) {
	ck := checkpoint.New()
	raw, err := tensor.NewRaw(tensor.Shape{3}, tensor.Float32)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	ck.Model["flow.flows.0.weight"] = raw

	path := filepath.Join(t.TempDir(), "header.rvck")
	if err := checkpoint.Save(path, ck); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	r, err := checkpoint.NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	if !r.HasModelTable() {
		t.Error("HasModelTable() = false, want true")
	}
	names := r.TensorNames()
	if len(names) != 1 || names[0] != "flow.flows.0.weight" {
		t.Errorf("TensorNames() = %v", names)
	}
	meta, err := r.TensorInfo("flow.flows.0.weight")
	if err != nil {
		t.Fatalf("TensorInfo failed: %v", err)
	}
	if meta.Size != 12 {
		t.Errorf("Size = %d, want 12", meta.Size)
	}
}
