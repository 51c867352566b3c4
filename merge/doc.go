// Copyright 2025 The rvckit Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package merge averages RVC checkpoints element-wise.
//
// # Overview
//
// Merging folds N checkpoints into one by averaging every
// floating-point parameter tensor; non-float tensors are copied from
// the first input. All inputs must agree on key set, shapes and data
// types, and any divergence aborts the merge.
//
// # Basic Usage
//
//	job := &merge.Job{
//	    Inputs: []string{"a/G_35200.rvck", "b/G_28800.rvck"},
//	    Output: "merged/G.rvck",
//	}
//	if err := job.Run(); err != nil {
//	    return err
//	}
//
// Setting Job.Base merges in two stages: the inputs are averaged among
// themselves, then blended 50/50 with the base checkpoint.
//
// In-memory checkpoints merge through Average and WeightedAverage, or
// one at a time through an Accumulator.
package merge
