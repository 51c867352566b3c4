// Package merge averages the parameter tensors of RVC checkpoints.
//
// All inputs must share the exact key set, and every shared parameter
// must agree on shape and dtype; any divergence is fatal. Floating-point
// tensors are averaged element-wise (accumulated in float64, written back
// in their native dtype); non-float tensors are taken from the first
// input unchanged.
package merge

import (
	"fmt"

	"github.com/rvckit/rvckit/internal/checkpoint"
	"github.com/rvckit/rvckit/internal/tensor"
)

// refMeta pins the shape and dtype every later input must match.
type refMeta struct {
	shape tensor.Shape
	dtype tensor.DataType
}

// Accumulator folds checkpoints into a running weighted sum one at a
// time, so at most one input needs to be resident besides the
// accumulator itself.
type Accumulator struct {
	weights     []float64                    // normalized weights, one per expected input
	count       int                          // inputs folded so far
	ref         map[string]refMeta           // reference meta from the first input
	sums        map[string][]float64         // running weighted sums for float tensors
	passthrough map[string]*tensor.RawTensor // non-float tensors, copied from the first input
}

// NewAccumulator creates an accumulator expecting one checkpoint per
// weight. Weights must be positive; they are normalized to sum to 1.
func NewAccumulator(weights []float64) (*Accumulator, error) {
	if len(weights) == 0 {
		return nil, ErrNoInputs
	}

	var total float64
	for i, w := range weights {
		if w <= 0 {
			return nil, fmt.Errorf("weight %d is %g, must be positive", i, w)
		}
		total += w
	}

	normalized := make([]float64, len(weights))
	for i, w := range weights {
		normalized[i] = w / total
	}

	return &Accumulator{
		weights:     normalized,
		ref:         make(map[string]refMeta),
		sums:        make(map[string][]float64),
		passthrough: make(map[string]*tensor.RawTensor),
	}, nil
}

// equalWeights returns n identical weights.
func equalWeights(n int) []float64 {
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1
	}
	return weights
}

// Add folds the next checkpoint into the running sum. The first
// checkpoint fixes the key set, shapes, and dtypes; later checkpoints
// must match exactly.
func (a *Accumulator) Add(ck *checkpoint.Checkpoint) error {
	if a.count >= len(a.weights) {
		return fmt.Errorf("accumulator is full: expected %d checkpoints", len(a.weights))
	}
	w := a.weights[a.count]
	idx := a.count

	if idx == 0 {
		for name, raw := range ck.Model {
			a.ref[name] = refMeta{shape: raw.Shape().Clone(), dtype: raw.DType()}
			if raw.DType().IsFloat() {
				a.sums[name] = make([]float64, raw.NumElements())
				addScaled(a.sums[name], raw, w)
			} else {
				a.passthrough[name] = raw.Clone()
			}
		}
		a.count++
		return nil
	}

	// Every reference key must be present.
	for name := range a.ref {
		if _, ok := ck.Model[name]; !ok {
			return &KeyMismatchError{Input: idx, Key: name, Missing: true}
		}
	}
	// No extra keys allowed.
	if len(ck.Model) != len(a.ref) {
		for name := range ck.Model {
			if _, ok := a.ref[name]; !ok {
				return &KeyMismatchError{Input: idx, Key: name, Missing: false}
			}
		}
	}

	for name, raw := range ck.Model {
		ref := a.ref[name]
		if !raw.Shape().Equal(ref.shape) {
			return &ShapeMismatchError{Input: idx, Key: name, Want: ref.shape, Got: raw.Shape()}
		}
		if raw.DType() != ref.dtype {
			return &DTypeMismatchError{Input: idx, Key: name, Want: ref.dtype, Got: raw.DType()}
		}
		if ref.dtype.IsFloat() {
			addScaled(a.sums[name], raw, w)
		}
	}

	a.count++
	return nil
}

// addScaled adds w * raw element-wise into sum.
func addScaled(sum []float64, raw *tensor.RawTensor, w float64) {
	switch raw.DType() {
	case tensor.Float32:
		for i, v := range raw.AsFloat32() {
			sum[i] += w * float64(v)
		}
	case tensor.Float64:
		for i, v := range raw.AsFloat64() {
			sum[i] += w * v
		}
	}
}

// Result finalizes the merge into a fresh checkpoint. All expected
// checkpoints must have been added. Auxiliary fields of the inputs are
// dropped; the caller decides what provenance the output carries.
func (a *Accumulator) Result() (*checkpoint.Checkpoint, error) {
	if a.count != len(a.weights) {
		return nil, fmt.Errorf("expected %d checkpoints, folded %d", len(a.weights), a.count)
	}

	out := checkpoint.New()
	for name, ref := range a.ref {
		if !ref.dtype.IsFloat() {
			out.Model[name] = a.passthrough[name]
			continue
		}

		raw, err := tensor.NewRaw(ref.shape, ref.dtype)
		if err != nil {
			return nil, fmt.Errorf("failed to create tensor %s: %w", name, err)
		}
		sum := a.sums[name]
		switch ref.dtype {
		case tensor.Float32:
			dst := raw.AsFloat32()
			for i, v := range sum {
				dst[i] = float32(v)
			}
		case tensor.Float64:
			copy(raw.AsFloat64(), sum)
		}
		out.Model[name] = raw
	}

	return out, nil
}

// Average merges checkpoints with equal weights. A single checkpoint
// yields a copy of itself; zero checkpoints is an error.
func Average(cks []*checkpoint.Checkpoint) (*checkpoint.Checkpoint, error) {
	if len(cks) == 0 {
		return nil, ErrNoInputs
	}
	return WeightedAverage(cks, equalWeights(len(cks)))
}

// WeightedAverage merges checkpoints with explicit weights, one per
// checkpoint. Weights must be positive; they are normalized to sum to 1.
func WeightedAverage(cks []*checkpoint.Checkpoint, weights []float64) (*checkpoint.Checkpoint, error) {
	if len(cks) == 0 {
		return nil, ErrNoInputs
	}
	if len(weights) != len(cks) {
		return nil, fmt.Errorf("got %d weights for %d checkpoints", len(weights), len(cks))
	}

	acc, err := NewAccumulator(weights)
	if err != nil {
		return nil, err
	}
	for _, ck := range cks {
		if err := acc.Add(ck); err != nil {
			return nil, err
		}
	}
	return acc.Result()
}
