// Package mergeplan loads YAML merge plans describing a full two-role
// merge: which checkpoint files to average for the generator and the
// discriminator, optional per-input weights, and optional base
// checkpoints for two-stage merging.
package mergeplan

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rvckit/rvckit/internal/merge"
)

// PlanVersion is the schema version this tool understands.
const PlanVersion = 1

// ModelRef is the shorthand form for one trained model: a directory
// holding G_<epoch>.rvck and D_<epoch>.rvck.
type ModelRef struct {
	Dir   string `yaml:"dir"`
	Epoch int    `yaml:"epoch"`
}

// RoleSpec configures one role's merge. A role takes part in the plan
// when its output path is set; its inputs are the expanded model
// shorthands followed by the explicit Inputs entries.
type RoleSpec struct {
	Inputs []string `yaml:"inputs,omitempty"`
	Output string   `yaml:"output"`
}

// BaseSpec names optional base checkpoints for two-stage merging.
type BaseSpec struct {
	Generator     string `yaml:"generator,omitempty"`
	Discriminator string `yaml:"discriminator,omitempty"`
}

// Plan is a parsed merge plan.
type Plan struct {
	Version       int        `yaml:"version"`
	Models        []ModelRef `yaml:"models,omitempty"`
	Generator     RoleSpec   `yaml:"generator,omitempty"`
	Discriminator RoleSpec   `yaml:"discriminator,omitempty"`
	Base          *BaseSpec  `yaml:"base,omitempty"`
	Weights       []float64  `yaml:"weights,omitempty"`
}

// Parse decodes and validates a plan from YAML bytes.
func Parse(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Load reads and validates a plan file. Every error names the file.
func Load(path string) (*Plan, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for plan loading
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	plan, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return plan, nil
}

// GeneratorInputs returns the generator input paths after shorthand
// expansion.
func (p *Plan) GeneratorInputs() []string {
	return p.roleInputs("G", p.Generator.Inputs)
}

// DiscriminatorInputs returns the discriminator input paths after
// shorthand expansion.
func (p *Plan) DiscriminatorInputs() []string {
	return p.roleInputs("D", p.Discriminator.Inputs)
}

func (p *Plan) roleInputs(prefix string, explicit []string) []string {
	inputs := make([]string, 0, len(p.Models)+len(explicit))
	for _, m := range p.Models {
		inputs = append(inputs, filepath.Join(m.Dir, fmt.Sprintf("%s_%d.rvck", prefix, m.Epoch)))
	}
	return append(inputs, explicit...)
}

// Jobs converts the plan into one merge job per configured role,
// generator first.
func (p *Plan) Jobs() []merge.Job {
	var jobs []merge.Job
	if p.Generator.Output != "" {
		jobs = append(jobs, merge.Job{
			Inputs:  p.GeneratorInputs(),
			Weights: p.Weights,
			Base:    p.baseGenerator(),
			Output:  p.Generator.Output,
		})
	}
	if p.Discriminator.Output != "" {
		jobs = append(jobs, merge.Job{
			Inputs:  p.DiscriminatorInputs(),
			Weights: p.Weights,
			Base:    p.baseDiscriminator(),
			Output:  p.Discriminator.Output,
		})
	}
	return jobs
}

func (p *Plan) baseGenerator() string {
	if p.Base == nil {
		return ""
	}
	return p.Base.Generator
}

func (p *Plan) baseDiscriminator() string {
	if p.Base == nil {
		return ""
	}
	return p.Base.Discriminator
}

// Validate checks the plan without touching any checkpoint file.
func (p *Plan) Validate() error {
	if p.Version != PlanVersion {
		return fmt.Errorf("unsupported plan version %d (want %d)", p.Version, PlanVersion)
	}

	for i, m := range p.Models {
		if m.Dir == "" {
			return fmt.Errorf("models[%d]: missing dir", i)
		}
		if m.Epoch <= 0 {
			return fmt.Errorf("models[%d]: epoch must be positive, got %d", i, m.Epoch)
		}
	}

	for _, w := range p.Weights {
		if w <= 0 {
			return fmt.Errorf("weight %g must be positive", w)
		}
	}

	if p.Generator.Output == "" && p.Discriminator.Output == "" {
		return fmt.Errorf("plan configures no outputs")
	}

	if err := p.validateRole("generator", p.GeneratorInputs(), p.Generator, p.baseGenerator()); err != nil {
		return err
	}
	return p.validateRole("discriminator", p.DiscriminatorInputs(), p.Discriminator, p.baseDiscriminator())
}

func (p *Plan) validateRole(role string, inputs []string, spec RoleSpec, base string) error {
	if spec.Output == "" {
		if len(spec.Inputs) > 0 {
			return fmt.Errorf("%s: inputs configured but no output", role)
		}
		return nil
	}

	effective := len(inputs)
	if base != "" {
		effective++
	}
	if effective < 2 {
		return fmt.Errorf("%s: merging requires at least two checkpoints, got %d", role, effective)
	}
	if len(p.Weights) > 0 && len(p.Weights) != len(inputs) {
		return fmt.Errorf("%s: got %d weights for %d inputs", role, len(p.Weights), len(inputs))
	}
	return nil
}
