// Copyright 2025 The rvckit Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/rvckit/rvckit/internal/tensor"
)

// RawTensor is the byte-backed tensor representation.
//
// RawTensor provides:
//   - Shape and type information via Shape(), DType()
//   - Type-safe data access via AsFloat32(), AsInt64(), etc.
//   - Deep copies via Clone()
//
// Example:
//
//	raw, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32)
//	data := raw.AsFloat32() // Type-safe access
type RawTensor = tensor.RawTensor

// NewRaw creates a zero-filled tensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype)
}
