// Package manifest parses the two per-target documents a simulation config
// points at: source-list manifests (which files compile into which library)
// and test-list manifests (which named tests run with which generics).
//
// Source list:
//
//	library: core_lib
//	source_list:
//	  - file: rtl/core.vhd
//	  - file: tb/tb_core.vhd
//	    ghdl.a_flags: [-Wno-hide]   # optional per-file tool flags
//
// Test list:
//
//	tests:
//	  - name: basic
//	    generics: {mode: fast}
package manifest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"simmatrix/internal/generics"
	"simmatrix/internal/simerr"
	"simmatrix/internal/toolopts"
)

// SourceManifest lists the files of one compile library.
type SourceManifest struct {
	Library string `yaml:"library"`
	Files   []File `yaml:"source_list"`
}

// File is one source file entry. Path is relative to the manifest's own
// directory. Every key other than "file" is a tool flag key of the form
// <backend>.<option>.
type File struct {
	Path    string           `yaml:"file"`
	Options toolopts.Options `yaml:",inline"`
}

// TestList is the ordered list of tests of one target.
type TestList struct {
	Tests []Test `yaml:"tests"`
}

// Test is one named test and its generic overlay.
type Test struct {
	Name     string       `yaml:"name"`
	Generics generics.Set `yaml:"generics,omitempty"`
}

// LoadSourceManifest reads and validates the source list at path.
func LoadSourceManifest(path string) (*SourceManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, simerr.Wrap(simerr.ErrManifestFormat, path, fmt.Errorf("read source list: %w", err))
	}
	m, err := ParseSourceManifest(data)
	if err != nil {
		return nil, simerr.Wrap(simerr.ErrManifestFormat, path, err)
	}
	return m, nil
}

// ParseSourceManifest decodes and validates a source list document.
func ParseSourceManifest(data []byte) (*SourceManifest, error) {
	var m SourceManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal source list: %w", err)
	}
	if m.Library == "" {
		return nil, fmt.Errorf("source list has no library")
	}
	for i, f := range m.Files {
		if f.Path == "" {
			return nil, fmt.Errorf("source_list[%d]: missing file", i)
		}
		for _, k := range f.Options.Keys() {
			backend, option, ok := strings.Cut(k, ".")
			if !ok || backend == "" || option == "" {
				return nil, fmt.Errorf("source_list[%d]: %q is not a <backend>.<option> key", i, k)
			}
		}
	}
	return &m, nil
}

// LoadTestList reads and validates the test list at path. A file that
// cannot be read is a configuration error: the config points at it.
func LoadTestList(path string) (*TestList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, simerr.Wrap(simerr.ErrConfiguration, path, fmt.Errorf("read test list: %w", err))
	}
	tl, err := ParseTestList(data)
	if err != nil {
		return nil, simerr.Wrap(simerr.ErrManifestFormat, path, err)
	}
	return tl, nil
}

// ParseTestList decodes and validates a test list document. Test names must
// be present and unique.
func ParseTestList(data []byte) (*TestList, error) {
	var tl TestList
	if err := yaml.Unmarshal(data, &tl); err != nil {
		return nil, fmt.Errorf("unmarshal test list: %w", err)
	}
	seen := make(map[string]bool, len(tl.Tests))
	for i, t := range tl.Tests {
		if t.Name == "" {
			return nil, fmt.Errorf("tests[%d]: missing name", i)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("duplicate test %q", t.Name)
		}
		seen[t.Name] = true
	}
	return &tl, nil
}
