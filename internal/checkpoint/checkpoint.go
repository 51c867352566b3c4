package checkpoint

import (
	"sort"

	"github.com/rvckit/rvckit/internal/tensor"
)

// TrainMeta carries the auxiliary training state an RVC trainer stores
// next to the model weights. It is opaque to merging: either passed
// through or dropped wholesale, never averaged.
type TrainMeta struct {
	Iteration    int64   `json:"iteration"`     // Global training iteration
	Epoch        int     `json:"epoch"`         // Training epoch number
	LearningRate float64 `json:"learning_rate"` // Learning rate at save time
}

// Checkpoint is an in-memory RVC checkpoint: the parameter mapping plus
// auxiliary fields.
type Checkpoint struct {
	Model    map[string]*tensor.RawTensor // Parameter name → tensor
	Train    *TrainMeta                   // Training state, nil if absent
	Metadata map[string]string            // Free-form string metadata, nil if absent
}

// New returns an empty checkpoint with an allocated model mapping.
func New() *Checkpoint {
	return &Checkpoint{
		Model: make(map[string]*tensor.RawTensor),
	}
}

// Keys returns the parameter names in sorted order.
func (c *Checkpoint) Keys() []string {
	keys := make([]string, 0, len(c.Model))
	for name := range c.Model {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}

// NumParameters returns the total number of scalar parameters across
// all tensors in the model mapping.
func (c *Checkpoint) NumParameters() int64 {
	var n int64
	for _, raw := range c.Model {
		n += int64(raw.NumElements())
	}
	return n
}

// DataSize returns the total byte size of all tensors.
func (c *Checkpoint) DataSize() int64 {
	var n int64
	for _, raw := range c.Model {
		n += int64(raw.ByteSize())
	}
	return n
}
