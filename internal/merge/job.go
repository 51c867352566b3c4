package merge

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rvckit/rvckit/internal/checkpoint"
)

// Job merges the checkpoint files of one role (generator or
// discriminator) into a single output file.
//
// With a Base set, merging is two-stage: the inputs are first averaged
// among themselves, then blended 50/50 with the base checkpoint. The
// effective input count (inputs plus base) must be at least two.
type Job struct {
	Inputs  []string  // Input checkpoint paths
	Weights []float64 // Optional per-input weights; equal weights when empty
	Base    string    // Optional base checkpoint path for two-stage merging
	Output  string    // Output checkpoint path

	// OnLoad, when set, is invoked with each path right before it is
	// read. Used for progress reporting.
	OnLoad func(path string)
}

// Validate checks the job before any file is touched.
func (j *Job) Validate() error {
	effective := len(j.Inputs)
	if j.Base != "" {
		effective++
	}
	if effective < 2 {
		return fmt.Errorf("%w: got %d", ErrTooFewInputs, effective)
	}
	if len(j.Weights) > 0 && len(j.Weights) != len(j.Inputs) {
		return fmt.Errorf("got %d weights for %d inputs", len(j.Weights), len(j.Inputs))
	}
	if j.Output == "" {
		return fmt.Errorf("no output path configured")
	}
	return nil
}

// Run executes the merge. Inputs are loaded one at a time and folded
// into the accumulator; the output file is written only after the whole
// merge has succeeded, so a failed run leaves no output behind.
func (j *Job) Run() error {
	if err := j.Validate(); err != nil {
		return err
	}

	weights := j.Weights
	if len(weights) == 0 {
		weights = equalWeights(len(j.Inputs))
	}

	acc, err := NewAccumulator(weights)
	if err != nil {
		return err
	}

	for _, path := range j.Inputs {
		ck, err := j.load(path)
		if err != nil {
			return err
		}
		if err := acc.Add(ck); err != nil {
			return fmt.Errorf("merging %q: %w", path, err)
		}
	}

	merged, err := acc.Result()
	if err != nil {
		return err
	}

	if j.Base != "" {
		base, err := j.load(j.Base)
		if err != nil {
			return err
		}
		merged, err = WeightedAverage([]*checkpoint.Checkpoint{base, merged}, []float64{0.5, 0.5})
		if err != nil {
			return fmt.Errorf("merging base %q: %w", j.Base, err)
		}
	}

	merged.Metadata = j.provenance(weights)

	if err := checkpoint.Save(j.Output, merged); err != nil {
		return fmt.Errorf("writing %q: %w", j.Output, err)
	}
	return nil
}

// load reads one input checkpoint, reporting progress.
func (j *Job) load(path string) (*checkpoint.Checkpoint, error) {
	if j.OnLoad != nil {
		j.OnLoad(path)
	}
	ck, err := checkpoint.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading %q: %w", path, err)
	}
	return ck, nil
}

// provenance builds the metadata of the merged output. Input metadata is
// dropped wholesale; the output records where it came from instead.
func (j *Job) provenance(weights []float64) map[string]string {
	sources := make([]string, len(j.Inputs))
	for i, path := range j.Inputs {
		sources[i] = filepath.Base(path)
	}
	formatted := make([]string, len(weights))
	for i, w := range weights {
		formatted[i] = strconv.FormatFloat(w, 'g', -1, 64)
	}

	md := map[string]string{
		"merge_id":      uuid.NewString(),
		"merge_sources": strings.Join(sources, ","),
		"merge_weights": strings.Join(formatted, ","),
	}
	if j.Base != "" {
		md["merge_base"] = filepath.Base(j.Base)
	}
	return md
}
