package safetensors

import (
	"fmt"

	"github.com/rvckit/rvckit/internal/checkpoint"
)

// Import reads a safetensors file into a checkpoint. All tensors become
// the model mapping; half-precision tensors arrive widened to float32.
// String metadata is carried over.
func Import(path string) (*checkpoint.Checkpoint, error) {
	reader, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = reader.Close() // Best effort close
	}()

	ck := checkpoint.New()
	for _, name := range reader.TensorNames() {
		raw, err := reader.ReadTensor(name)
		if err != nil {
			return nil, fmt.Errorf("failed to load tensor %s: %w", name, err)
		}
		ck.Model[name] = raw
	}

	if md := reader.Metadata(); len(md) > 0 {
		ck.Metadata = make(map[string]string, len(md))
		for k, v := range md {
			ck.Metadata[k] = v
		}
	}

	return ck, nil
}

// Export writes a checkpoint's model mapping and metadata to a
// safetensors file. Training state has no safetensors representation and
// is dropped.
func Export(ck *checkpoint.Checkpoint, path string) error {
	return WriteFile(path, ck.Model, ck.Metadata)
}
