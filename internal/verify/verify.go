// Package verify checks merged checkpoint files for structural
// compatibility with RVC.
//
// A compatible checkpoint is a container whose header carries the
// wrapper field "model", whose parameter mapping is non-empty, and
// whose parameter names carry the key prefixes the target role
// requires. Verification reads only the header; tensor data is never
// touched.
package verify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rvckit/rvckit/internal/checkpoint"
)

// Role selects the prefix convention a checkpoint is checked against.
type Role string

const (
	// RoleGenerator checks for the synthesizer component prefixes.
	RoleGenerator Role = "generator"
	// RoleDiscriminator checks for the discriminator component prefix.
	RoleDiscriminator Role = "discriminator"
	// RoleAuto detects the role from the parameter names.
	RoleAuto Role = "auto"
)

// ParseRole converts a flag value into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleGenerator, RoleDiscriminator, RoleAuto:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q (want generator, discriminator or auto)", s)
}

// Required key prefixes per role, from the RVC v2 module layout.
var rolePrefixes = map[Role][]string{
	RoleGenerator: {
		"enc_p.", // text encoder
		"dec.",   // decoder
		"enc_q.", // posterior encoder
		"flow.",  // normalizing flow
		"emb_g.", // speaker embedding
	},
	RoleDiscriminator: {
		"discriminators.",
	},
}

// sampleSize caps the number of key names quoted in a report.
const sampleSize = 5

// Check is a single verification step.
type Check struct {
	Name    string // What was checked
	OK      bool   // Whether the check passed
	Details string // Failure context, empty on success
}

// Report is the result of verifying one checkpoint file.
type Report struct {
	Path string // File that was checked
	Role Role   // Effective role after auto-detection

	Checks        []Check  // Individual checks in evaluation order
	FoundPrefixes []string // Sorted first-segment prefixes of the parameter names
	SampleKeys    []string // Up to sampleSize parameter names

	Compatible bool // True when every check passed
}

// File verifies the checkpoint at path against the given role. Files
// that cannot be opened or whose container is malformed return an
// error; a well-formed container that fails a compatibility check
// returns a Report with Compatible false.
func File(path string, role Role) (*Report, error) {
	r, err := checkpoint.NewReaderWithOptions(path, checkpoint.ReaderOptions{
		SkipChecksumValidation: true,
	})
	if err != nil {
		return nil, err
	}
	defer r.Close()

	report := &Report{Path: path, Role: role}
	report.add("container readable", true, "")

	if !r.HasModelTable() {
		report.add(`wrapper field "model"`, false,
			fmt.Sprintf("header fields: %s", strings.Join(r.TopLevelFields(), ", ")))
		if role == RoleAuto {
			report.Role = RoleGenerator
		}
		return report, nil
	}
	report.add(`wrapper field "model"`, true, "")

	names := r.TensorNames()
	if role == RoleAuto {
		report.Role = detectRole(names)
	}

	report.FoundPrefixes = firstSegmentPrefixes(names)
	report.SampleKeys = sample(names)

	if len(names) == 0 {
		report.add("parameters present", false, "model mapping is empty")
	} else {
		report.add("parameters present", true, "")
	}

	for _, prefix := range rolePrefixes[report.Role] {
		report.add("prefix "+prefix, hasPrefix(names, prefix), "")
	}

	report.Compatible = true
	for _, c := range report.Checks {
		if !c.OK {
			report.Compatible = false
			break
		}
	}
	return report, nil
}

func (r *Report) add(name string, ok bool, details string) {
	r.Checks = append(r.Checks, Check{Name: name, OK: ok, Details: details})
}

// detectRole picks the role from the parameter names: a discriminator
// carries sub-discriminator modules, anything else is treated as a
// generator.
func detectRole(names []string) Role {
	if hasPrefix(names, "discriminators.") {
		return RoleDiscriminator
	}
	return RoleGenerator
}

func hasPrefix(names []string, prefix string) bool {
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// firstSegmentPrefixes reduces parameter names to their first dotted
// segment, e.g. "flow.flows.0.weight" contributes "flow.".
func firstSegmentPrefixes(names []string) []string {
	set := make(map[string]struct{})
	for _, name := range names {
		segment, _, _ := strings.Cut(name, ".")
		set[segment+"."] = struct{}{}
	}
	prefixes := make([]string, 0, len(set))
	for p := range set {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return prefixes
}

func sample(names []string) []string {
	if len(names) <= sampleSize {
		return names
	}
	return names[:sampleSize]
}
