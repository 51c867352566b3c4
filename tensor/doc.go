// Copyright 2025 The rvckit Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the raw tensor representation used by rvckit
// checkpoints.
//
// # Overview
//
// Checkpoint parameters are stored as RawTensor values: a flat byte
// buffer plus shape and data type. There is no compute layer; merging
// only ever needs element access and copies.
//
// # Basic Usage
//
//	raw, err := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32)
//	if err != nil {
//	    return err
//	}
//	data := raw.AsFloat32() // Type-safe view of the buffer
//	data[0] = 1.5
//
// # Supported Data Types
//
//   - float32, float64 (floating-point, averaged during merges)
//   - int32, int64 (signed integers)
//   - uint8 (unsigned integers)
//   - bool (boolean masks)
//
// Non-float tensors are never averaged; a merge copies them from its
// first input.
package tensor
