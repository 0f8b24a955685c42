// Package simconfig loads the simulation configuration: the set of targets,
// the seed policy and the name of the generic that carries a test's name.
//
// The configuration is read once per run and never mutated. It is passed
// explicitly to every component that needs it.
//
// Document layout (YAML):
//
//	seed: 42                      # optional; drawn per run when absent
//	test_name_generic: test_name
//	targets:
//	  unit.core:
//	    top_entity: core_lib.tb_core
//	    source_list_files: [sim/core.yml, other.target]
//	    test_list_file: sim/core_tests.yml
//	    generics: {block/param: 1}
//
// The same structure is accepted in HCL when the file ends in ".hcl"; see
// hcl.go.
package simconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"simmatrix/internal/generics"
	"simmatrix/internal/simerr"
)

// DefaultPath is the config location relative to the repository root.
const DefaultPath = "sim/ts_sim_config.yml"

// Config is the loaded simulation configuration.
type Config struct {
	// Targets in document order. Selection walks them in this order.
	Targets []*Target
	// Seed is the fixed seed, or nil to draw one per run.
	Seed *int64
	// TestNameGeneric is the generic that receives each test's name.
	TestNameGeneric string
	// Path is the file the config was loaded from.
	Path string
}

// Target is one named verification unit.
type Target struct {
	Name            string       `yaml:"-"`
	TopEntity       string       `yaml:"top_entity"`
	SourceListFiles []string     `yaml:"source_list_files"`
	TestListFile    string       `yaml:"test_list_file"`
	Generics        generics.Set `yaml:"generics"`
}

// Library returns the library part of TopEntity ("lib" in "lib.entity").
func (t *Target) Library() string {
	lib, _, _ := strings.Cut(t.TopEntity, ".")
	return lib
}

// Entity returns the entity part of TopEntity ("entity" in "lib.entity").
func (t *Target) Entity() string {
	_, entity, _ := strings.Cut(t.TopEntity, ".")
	return entity
}

// Target returns the target named name.
func (c *Config) Target(name string) (*Target, bool) {
	for _, t := range c.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Names returns the target names in document order.
func (c *Config) Names() []string {
	names := make([]string, len(c.Targets))
	for i, t := range c.Targets {
		names[i] = t.Name
	}
	return names
}

// document mirrors the YAML file. Targets stay a raw node so their order
// survives decoding.
type document struct {
	Targets         yaml.Node `yaml:"targets"`
	Seed            *int64    `yaml:"seed"`
	TestNameGeneric string    `yaml:"test_name_generic"`
}

// Load reads and validates the config at path. Files ending in ".hcl" are
// parsed as HCL, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, simerr.Wrap(simerr.ErrConfiguration, path, err)
	}

	var cfg *Config
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		cfg, err = parseHCL(path, data)
	} else {
		cfg, err = Parse(data)
	}
	if err != nil {
		return nil, simerr.Wrap(simerr.ErrConfiguration, path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Parse decodes and validates a YAML config document.
func Parse(data []byte) (*Config, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg := &Config{Seed: doc.Seed, TestNameGeneric: doc.TestNameGeneric}
	switch doc.Targets.Kind {
	case 0:
		// No targets key.
	case yaml.MappingNode:
		for i := 0; i+1 < len(doc.Targets.Content); i += 2 {
			keyNode, valNode := doc.Targets.Content[i], doc.Targets.Content[i+1]
			t := &Target{}
			if err := valNode.Decode(t); err != nil {
				return nil, fmt.Errorf("target %q: %w", keyNode.Value, err)
			}
			t.Name = keyNode.Value
			cfg.Targets = append(cfg.Targets, t)
		}
	default:
		return nil, fmt.Errorf("line %d: targets must be a mapping", doc.Targets.Line)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants every loader must guarantee.
func (c *Config) Validate() error {
	if c.TestNameGeneric == "" {
		return fmt.Errorf("test_name_generic is required")
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("no targets defined")
	}
	seen := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if t.Name == "" {
			return fmt.Errorf("target with empty name")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate target %q", t.Name)
		}
		seen[t.Name] = true
		if t.Library() == "" || t.Entity() == "" {
			return fmt.Errorf("target %q: top_entity %q must be <library>.<entity>", t.Name, t.TopEntity)
		}
		if t.TestListFile == "" {
			return fmt.Errorf("target %q: test_list_file is required", t.Name)
		}
	}
	return nil
}
