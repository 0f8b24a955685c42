package framework

// plan.go: Plan records everything registered with it and, on Run, writes
// the plan document and hands it to the runner command.
//
// Plan document layout (YAML):
//
//	run_id: 3f6c...
//	global_options: {nvc.global_flags: [...]}
//	libraries:
//	  - name: core_lib
//	    files:
//	      - path: /abs/rtl/core.vhd
//	        options: {ghdl.a_flags: [...]}
//	test_benches:
//	  - library: core_lib
//	    name: tb_core
//	    file: /abs/tb/tb_core.vhd
//	    configs:
//	      - name: unit.core.basic
//	        generics: {seed: 42, test_name: basic}
//	        options: {nvc.elab_flags: [...]}

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"simmatrix/internal/generics"
	"simmatrix/internal/toolopts"
)

// PlanFileName is the plan document written below the output directory
// before the runner is started.
const PlanFileName = "simmatrix_plan.yaml"

// Document is the serialized plan.
type Document struct {
	RunID         string           `yaml:"run_id"`
	GlobalOptions toolopts.Options `yaml:"global_options,omitempty"`
	Libraries     []LibraryDoc     `yaml:"libraries"`
	TestBenches   []BenchDoc       `yaml:"test_benches"`
}

// LibraryDoc is one compile library of the plan.
type LibraryDoc struct {
	Name  string    `yaml:"name"`
	Files []FileDoc `yaml:"files"`
}

// FileDoc is one compile unit of the plan.
type FileDoc struct {
	Path    string           `yaml:"path"`
	Options toolopts.Options `yaml:"options,omitempty"`
}

// BenchDoc is one test bench and its configurations.
type BenchDoc struct {
	Library string      `yaml:"library"`
	Name    string      `yaml:"name"`
	File    string      `yaml:"file"`
	Configs []ConfigDoc `yaml:"configs"`
}

// ConfigDoc is one runnable test configuration.
type ConfigDoc struct {
	Name     string           `yaml:"name"`
	Generics generics.Params  `yaml:"generics"`
	Options  toolopts.Options `yaml:"options,omitempty"`
}

// Plan is a Framework that records the matrix. When Runner is empty, Run
// prints the plan to Stdout (a dry run); otherwise it writes the plan to
// OutputDir and executes Runner with "--plan <file>" and the pass-through
// arguments appended.
type Plan struct {
	RunID     string
	OutputDir string
	Runner    []string
	Stdout    io.Writer
	Stderr    io.Writer

	logger    *zap.Logger
	libraries []*LibraryDoc
	libIndex  map[string]int
	benches   []*planBench
	global    toolopts.Options
	units     map[string][]string // path → declared units, filled lazily
}

type planBench struct {
	doc BenchDoc
}

// NewPlan returns an empty Plan writing below outputDir.
func NewPlan(outputDir string, logger *zap.Logger) *Plan {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plan{
		RunID:     uuid.NewString(),
		OutputDir: outputDir,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		logger:    logger,
		libIndex:  make(map[string]int),
		units:     make(map[string][]string),
	}
}

// AddSourceFile implements Framework. Adding a path twice to the same
// library keeps the first registration.
func (p *Plan) AddSourceFile(library, path string, opts toolopts.Options) error {
	i, ok := p.libIndex[library]
	if !ok {
		i = len(p.libraries)
		p.libIndex[library] = i
		p.libraries = append(p.libraries, &LibraryDoc{Name: library})
	}
	lib := p.libraries[i]
	for _, f := range lib.Files {
		if f.Path == path {
			return nil
		}
	}
	lib.Files = append(lib.Files, FileDoc{Path: path, Options: opts})
	return nil
}

// TestBench implements Framework. The bench is the first registered file of
// library that declares entity; repeated lookups return the same bench.
func (p *Plan) TestBench(library, entity string) (TestBench, error) {
	for _, b := range p.benches {
		if b.doc.Library == library && unitMatches(languageOf(b.doc.File), b.doc.Name, entity) {
			return b, nil
		}
	}

	i, ok := p.libIndex[library]
	if !ok {
		return nil, fmt.Errorf("%w: library %q has no source files", ErrTestBenchNotFound, library)
	}
	for _, f := range p.libraries[i].Files {
		units, err := p.declaredIn(f.Path)
		if err != nil {
			return nil, err
		}
		lang := languageOf(f.Path)
		for _, u := range units {
			if unitMatches(lang, u, entity) {
				b := &planBench{doc: BenchDoc{Library: library, Name: u, File: f.Path}}
				p.benches = append(p.benches, b)
				p.logger.Debug("discovered test bench",
					zap.String("library", library),
					zap.String("entity", u),
					zap.String("file", f.Path))
				return b, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no entity %q in library %q", ErrTestBenchNotFound, entity, library)
}

func (p *Plan) declaredIn(path string) ([]string, error) {
	if units, ok := p.units[path]; ok {
		return units, nil
	}
	units, err := scanFile(path)
	if err != nil {
		return nil, err
	}
	p.units[path] = units
	return units, nil
}

// SetGlobalOptions implements Framework.
func (p *Plan) SetGlobalOptions(opts toolopts.Options) error {
	p.global = p.global.Merge(opts)
	return nil
}

// Document returns the plan recorded so far.
func (p *Plan) Document() Document {
	doc := Document{RunID: p.RunID, GlobalOptions: p.global}
	for _, lib := range p.libraries {
		doc.Libraries = append(doc.Libraries, *lib)
	}
	for _, b := range p.benches {
		doc.TestBenches = append(doc.TestBenches, b.doc)
	}
	return doc
}

// Run implements Framework.
func (p *Plan) Run(ctx context.Context, args []string) error {
	data, err := yaml.Marshal(p.Document())
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	if len(p.Runner) == 0 {
		if len(args) > 0 {
			p.logger.Warn("no runner configured, ignoring pass-through arguments", zap.Strings("args", args))
		}
		_, err := p.Stdout.Write(data)
		return err
	}

	if err := os.MkdirAll(p.OutputDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", p.OutputDir, err)
	}
	planPath := filepath.Join(p.OutputDir, PlanFileName)
	if err := os.WriteFile(planPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", planPath, err)
	}

	cmdArgs := append(append(p.Runner[1:len(p.Runner):len(p.Runner)], "--plan", planPath), args...)
	p.logger.Info("starting runner",
		zap.String("run_id", p.RunID),
		zap.String("command", p.Runner[0]),
		zap.Strings("args", cmdArgs))

	cmd := exec.CommandContext(ctx, p.Runner[0], cmdArgs...)
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("runner %s: %w", p.Runner[0], err)
	}
	return nil
}

func (b *planBench) Library() string { return b.doc.Library }
func (b *planBench) Name() string    { return b.doc.Name }

// AddConfig implements TestBench. Configuration names are unique per bench.
func (b *planBench) AddConfig(name string, params generics.Params, opts toolopts.Options) error {
	for _, c := range b.doc.Configs {
		if c.Name == name {
			return fmt.Errorf("test bench %s.%s: duplicate configuration %q", b.doc.Library, b.doc.Name, name)
		}
	}
	b.doc.Configs = append(b.doc.Configs, ConfigDoc{Name: name, Generics: params, Options: opts})
	return nil
}
