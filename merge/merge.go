// Copyright 2025 The rvckit Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package merge

import (
	"github.com/rvckit/rvckit/internal/checkpoint"
	"github.com/rvckit/rvckit/internal/merge"
)

// Type aliases for public API

// Job merges the checkpoint files of one role into a single output file.
type Job = merge.Job

// Accumulator folds checkpoints into a weighted mean one at a time.
type Accumulator = merge.Accumulator

// KeyMismatchError reports an input whose key set diverges from the
// first input.
type KeyMismatchError = merge.KeyMismatchError

// ShapeMismatchError reports a parameter whose shape differs between
// inputs.
type ShapeMismatchError = merge.ShapeMismatchError

// DTypeMismatchError reports a parameter whose data type differs
// between inputs.
type DTypeMismatchError = merge.DTypeMismatchError

// Sentinel errors.
var (
	ErrNoInputs     = merge.ErrNoInputs
	ErrTooFewInputs = merge.ErrTooFewInputs
)

// NewAccumulator creates an accumulator expecting one checkpoint per
// weight.
func NewAccumulator(weights []float64) (*Accumulator, error) {
	return merge.NewAccumulator(weights)
}

// Average merges checkpoints with equal weights.
func Average(cks []*checkpoint.Checkpoint) (*checkpoint.Checkpoint, error) {
	return merge.Average(cks)
}

// WeightedAverage merges checkpoints with explicit positive weights,
// normalized to sum to 1.
func WeightedAverage(cks []*checkpoint.Checkpoint, weights []float64) (*checkpoint.Checkpoint, error) {
	return merge.WeightedAverage(cks, weights)
}
