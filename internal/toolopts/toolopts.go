// Package toolopts holds the simulator flag policy: compile flags attached to
// every source file, elaboration and simulation flags attached to every test
// configuration, and the run-wide global flags.
//
// Option keys follow the "<backend>.<option>" convention of the execution
// framework, e.g. "ghdl.a_flags" or "nvc.elab_flags".
package toolopts

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// GateMarker is the target-name substring that marks a post-synthesis
// (gate-level) target. Gate-level netlists are never coverage-instrumented.
const GateMarker = "gate"

// CoverageDirName is the directory, below the output directory, that holds
// per-test coverage databases.
const CoverageDirName = "code_coverage"

// CosimLibrary is the VHPI co-simulation library loaded into every NVC run.
const CosimLibrary = "main_tb/iso-16845-compliance-tests/build/Debug/src/cosimulation/libNVC_VHPI_COSIM_LIB.so"

// Value is either a list of flags or a single scalar setting such as a heap
// size. In YAML a scalar decodes to a scalar Value and a sequence to a list.
type Value struct {
	items  []string
	scalar bool
}

// List returns a list value.
func List(flags ...string) Value {
	return Value{items: append([]string(nil), flags...)}
}

// Scalar returns a single-string value.
func Scalar(s string) Value {
	return Value{items: []string{s}, scalar: true}
}

// Strings returns a copy of the flags. A scalar yields a one-element slice.
func (v Value) Strings() []string {
	return append([]string(nil), v.items...)
}

// IsScalar reports whether v was built from a single string.
func (v Value) IsScalar() bool { return v.scalar }

// String renders the value the way it would appear on a command line.
func (v Value) String() string { return strings.Join(v.items, " ") }

// MarshalYAML writes a scalar as a string and a list as a sequence.
func (v Value) MarshalYAML() (any, error) {
	if v.scalar {
		return v.items[0], nil
	}
	if v.items == nil {
		return []string{}, nil
	}
	return v.items, nil
}

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (v *Value) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*v = Scalar(n.Value)
		return nil
	case yaml.SequenceNode:
		var flags []string
		if err := n.Decode(&flags); err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		*v = List(flags...)
		return nil
	default:
		return fmt.Errorf("line %d: option must be a string or a list of strings", n.Line)
	}
}

// Options maps an option key to its value.
type Options map[string]Value

// Keys returns the option keys in sorted order.
func (o Options) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge returns a new Options holding o overlaid with other. Lists under the
// same key are concatenated (o first); a scalar in other replaces whatever o
// holds.
func (o Options) Merge(other Options) Options {
	out := make(Options, len(o)+len(other))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range other {
		prev, ok := out[k]
		if !ok || v.scalar || prev.scalar {
			out[k] = v
			continue
		}
		out[k] = List(append(prev.Strings(), v.items...)...)
	}
	return out
}

// CompileOptions returns the flags attached to every compile unit: the
// fixed policy followed by any per-file flags from the source manifest. A
// per-file string on a policy key is one more flag, never a replacement.
func CompileOptions(extra Options) Options {
	base := Options{
		"ghdl.a_flags":     List("-fpsl", "-frelaxed-rules", "--ieee=synopsys"),
		"nvc.global_flags": List("-M", "256M"),
		"nvc.a_flags":      List("--psl"),
	}
	perFile := make(Options, len(extra))
	for k, v := range extra {
		if policy, ok := base[k]; ok && !policy.scalar && v.scalar {
			v = List(v.items...)
		}
		perFile[k] = v
	}
	return base.Merge(perFile)
}

// GlobalOptions returns the run-wide simulation options.
func GlobalOptions() Options {
	return Options{
		"nvc.global_flags": List(
			"-M", "512M",
			"--load="+CosimLibrary,
			"--ieee-warnings=off",
			"--messages=compact",
		),
	}
}

// IsGateLevel reports whether target names a post-synthesis target.
func IsGateLevel(target string) bool {
	return strings.Contains(target, GateMarker)
}

// CoverageFile returns the NVC coverage database path for one test.
// qualifiedName is the "<target>.<test>" name of the configuration.
func CoverageFile(outputDir, target, qualifiedName string) string {
	return filepath.Join(outputDir, CoverageDirName, fmt.Sprintf("%s_%s.ncdb", target, qualifiedName))
}

// TestOptions returns the elaboration and simulation options for one test
// configuration of target. Coverage instrumentation is added unless target
// is gate-level.
func TestOptions(outputDir, target, qualifiedName string) Options {
	nvcElab := []string{"-V"}
	if !IsGateLevel(target) {
		nvcElab = append(nvcElab,
			"--cover=all,include-mems,exclude-unreachable,count-from-undefined",
			"--cover-file="+CoverageFile(outputDir, target, qualifiedName),
			"--cover-spec=nvc_cover_spec",
		)
	}
	nvcElab = append(nvcElab, "--no-collapse", "--jit")

	return Options{
		"ghdl.elab_flags": List("-Wl,-no-pie", "-fpsl", "-frelaxed-rules", "--ieee=synopsys"),
		"ghdl.sim_flags":  List("--ieee-asserts=disable"),
		"nvc.elab_flags":  List(nvcElab...),
		"nvc.heap_size":   Scalar("256m"),
		"nvc.sim_flags":   List("--ieee-warnings=off"),
	}
}
