// Package matrix selects targets by pattern, resolves their sources and tests
// into a complete test matrix, and registers that matrix with an execution
// framework.
//
// Building and registering are separate steps: nothing reaches the framework
// until every selected target has resolved, so a failure anywhere leaves the
// framework untouched.
package matrix

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"simmatrix/internal/framework"
	"simmatrix/internal/generics"
	"simmatrix/internal/manifest"
	"simmatrix/internal/simconfig"
	"simmatrix/internal/simerr"
	"simmatrix/internal/sources"
	"simmatrix/internal/toolopts"
)

// Test is one runnable test instance.
type Test struct {
	// QualifiedName is "<target>.<test>", unique across the matrix.
	QualifiedName string
	Target        string
	Test          string
	// Library and Entity locate the target's test bench.
	Library string
	Entity  string
	Params  generics.Params
	Options toolopts.Options
}

// Matrix is the fully resolved result of one Build.
type Matrix struct {
	RunID   string
	Pattern string
	Seed    int64
	Targets []*simconfig.Target
	Sources *sources.Set
	Tests   []Test
	Global  toolopts.Options
}

// Builder builds matrices against one loaded config.
type Builder struct {
	Config *simconfig.Config
	// Root anchors source-list and test-list paths.
	Root string
	// OutputDir receives the coverage databases.
	OutputDir string
	Logger    *zap.Logger
	// Rand draws the run seed when the config does not fix one. Nil uses
	// the global source.
	Rand *rand.Rand
	// StrictGenerics rejects hierarchical generic keys that collapse to
	// the same name.
	StrictGenerics bool
	// AllowSourceMismatch downgrades differing source sets across the
	// selected targets from an error to a warning.
	AllowSourceMismatch bool
	// LookupEnv expands ${VAR} placeholders; nil uses os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

func (b *Builder) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

// Select returns the targets whose names match pattern at their start, in
// config order.
func (b *Builder) Select(pattern string) ([]*simconfig.Target, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return nil, simerr.Wrap(simerr.ErrUsage, pattern, fmt.Errorf("invalid target pattern: %w", err))
	}
	var selected []*simconfig.Target
	for _, t := range b.Config.Targets {
		if !re.MatchString(t.Name) {
			continue
		}
		b.logger().Info("target matches pattern", zap.String("target", t.Name), zap.String("pattern", pattern))
		selected = append(selected, t)
	}
	if len(selected) == 0 {
		return nil, simerr.New(simerr.ErrConfiguration, pattern, "no target matches")
	}
	return selected, nil
}

// Build resolves every target matching pattern into a Matrix.
func (b *Builder) Build(pattern string) (*Matrix, error) {
	log := b.logger()
	selected, err := b.Select(pattern)
	if err != nil {
		return nil, err
	}

	resolver := sources.NewResolver(b.Config, b.Root, log)
	if b.LookupEnv != nil {
		resolver.LookupEnv = b.LookupEnv
	}

	set, err := resolver.Resolve(selected[0])
	if err != nil {
		return nil, err
	}
	if err := b.checkSameSources(resolver, selected, set); err != nil {
		return nil, err
	}

	seed := generics.DrawSeed(b.Rand)
	if b.Config.Seed != nil {
		seed = *b.Config.Seed
	}
	log.Info("run seed", zap.Int64("seed", seed), zap.Bool("fixed", b.Config.Seed != nil))

	m := &Matrix{
		RunID:   uuid.NewString(),
		Pattern: pattern,
		Seed:    seed,
		Targets: selected,
		Sources: set,
		Global:  toolopts.GlobalOptions(),
	}
	seen := make(map[string]string)
	for _, t := range selected {
		tests, err := b.targetTests(resolver, t, seed)
		if err != nil {
			return nil, err
		}
		for _, test := range tests {
			if prev, ok := seen[test.QualifiedName]; ok {
				return nil, simerr.New(simerr.ErrConfiguration, test.QualifiedName,
					"test name produced by both target %q and target %q", prev, t.Name)
			}
			seen[test.QualifiedName] = t.Name
		}
		m.Tests = append(m.Tests, tests...)
	}

	covDir := filepath.Join(b.OutputDir, toolopts.CoverageDirName)
	if err := os.MkdirAll(covDir, 0o755); err != nil {
		return nil, fmt.Errorf("create coverage directory: %w", err)
	}
	return m, nil
}

// checkSameSources resolves every selected target after the first and
// compares its source set with want.
func (b *Builder) checkSameSources(r *sources.Resolver, selected []*simconfig.Target, want *sources.Set) error {
	fp := want.Fingerprint()
	for _, t := range selected[1:] {
		got, err := r.Resolve(t)
		if err != nil {
			return err
		}
		if got.Fingerprint() == fp {
			continue
		}
		if !b.AllowSourceMismatch {
			return simerr.New(simerr.ErrConfiguration, t.Name,
				"source set differs from target %q; select targets separately", selected[0].Name)
		}
		b.logger().Warn("source set differs from first selected target, using the first",
			zap.String("target", t.Name),
			zap.String("first", selected[0].Name))
	}
	return nil
}

func (b *Builder) targetTests(r *sources.Resolver, t *simconfig.Target, seed int64) ([]Test, error) {
	path := filepath.Join(b.Root, r.ExpandPath(t.TestListFile))
	b.logger().Info("loading test list file", zap.String("target", t.Name), zap.String("path", path))
	list, err := manifest.LoadTestList(path)
	if err != nil {
		return nil, err
	}

	tests := make([]Test, 0, len(list.Tests))
	for _, lt := range list.Tests {
		params, err := generics.Merge(generics.Input{
			Seed:        seed,
			TestNameKey: b.Config.TestNameGeneric,
			TestName:    lt.Name,
			Target:      t.Generics,
			Test:        lt.Generics,
			Strict:      b.StrictGenerics,
		})
		if err != nil {
			return nil, fmt.Errorf("target %s test %s: %w", t.Name, lt.Name, err)
		}
		qn := generics.QualifiedName(t.Name, lt.Name)
		tests = append(tests, Test{
			QualifiedName: qn,
			Target:        t.Name,
			Test:          lt.Name,
			Library:       t.Library(),
			Entity:        t.Entity(),
			Params:        params,
			Options:       toolopts.TestOptions(b.OutputDir, t.Name, qn),
		})
	}
	return tests, nil
}

// Register hands m to fw: compile units first, then one configuration per
// test on its target's test bench, then the global options. Sources go in
// before any bench lookup because benches are discovered from the registered
// files; no configuration is added until every test's bench has resolved.
func Register(fw framework.Framework, m *Matrix) error {
	for _, lib := range m.Sources.Libraries {
		for _, u := range lib.Units {
			if err := fw.AddSourceFile(lib.Name, u.Path, u.Options); err != nil {
				return fmt.Errorf("add %s to %s: %w", u.Path, lib.Name, err)
			}
		}
	}

	benches := make(map[string]framework.TestBench)
	for _, t := range m.Tests {
		key := t.Library + "." + t.Entity
		if _, ok := benches[key]; ok {
			continue
		}
		tb, err := fw.TestBench(t.Library, t.Entity)
		if err != nil {
			return simerr.Wrap(simerr.ErrConfiguration, t.Target, fmt.Errorf("top entity %s: %w", key, err))
		}
		benches[key] = tb
	}

	for _, t := range m.Tests {
		tb := benches[t.Library+"."+t.Entity]
		if err := tb.AddConfig(t.QualifiedName, t.Params, t.Options); err != nil {
			return err
		}
	}

	return fw.SetGlobalOptions(m.Global)
}
