package report

// report.go: renders a resolved test matrix as a Markdown summary with YAML
// frontmatter, for CI artifact pages and quick review of what a pattern
// selected.
//
// Layout:
//
//	---
//	run_id: 3f6c...
//	pattern: unit
//	seed: 42
//	targets: [unit.core, unit.core_gate]
//	tests: 3
//	---
//	# Test matrix
//	## Sources          one line per library with its file count
//	## unit.core        table: test | generics | coverage
//	...

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"simmatrix/internal/matrix"
	"simmatrix/internal/toolopts"
)

// FileName is the summary written below the output directory.
const FileName = "simmatrix_matrix.md"

// Header is the frontmatter of a summary.
type Header struct {
	RunID   string   `yaml:"run_id"`
	Pattern string   `yaml:"pattern"`
	Seed    int64    `yaml:"seed"`
	Targets []string `yaml:"targets"`
	Tests   int      `yaml:"tests"`
}

// Render returns the summary document for m. Output is byte-identical for
// equal matrices.
func Render(m *matrix.Matrix) ([]byte, error) {
	h := Header{RunID: m.RunID, Pattern: m.Pattern, Seed: m.Seed, Tests: len(m.Tests)}
	for _, t := range m.Targets {
		h.Targets = append(h.Targets, t.Name)
	}

	var b strings.Builder
	b.WriteString("# Test matrix\n\n")

	b.WriteString("## Sources\n\n")
	for _, lib := range m.Sources.Libraries {
		fmt.Fprintf(&b, "- `%s`: %d file(s)\n", lib.Name, len(lib.Units))
	}

	for _, t := range m.Targets {
		fmt.Fprintf(&b, "\n## %s\n\n", t.Name)
		fmt.Fprintf(&b, "Top entity `%s`", t.TopEntity)
		if toolopts.IsGateLevel(t.Name) {
			b.WriteString(" (gate-level, no coverage)")
		}
		b.WriteString("\n\n")
		coverage := "on"
		if toolopts.IsGateLevel(t.Name) {
			coverage = "off"
		}
		b.WriteString("| Test | Generics | Coverage |\n")
		b.WriteString("|------|----------|----------|\n")
		for _, test := range m.Tests {
			if test.Target != t.Name {
				continue
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n", test.QualifiedName, formatParams(test.Params), coverage)
		}
	}

	return withFrontmatter(h, b.String())
}

// Write renders m to <outputDir>/FileName and returns the path.
func Write(m *matrix.Matrix, outputDir string) (string, error) {
	data, err := Render(m)
	if err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, FileName)
	if err := writeNote(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// ReadHeader parses the frontmatter of a summary written by Write.
func ReadHeader(data []byte) (*Header, error) {
	const delim = "---\n"
	if !bytes.HasPrefix(data, []byte(delim)) {
		return nil, fmt.Errorf("summary: missing opening --- delimiter")
	}
	rest := data[len(delim):]
	idx := bytes.Index(rest, []byte("\n---"))
	if idx < 0 {
		return nil, fmt.Errorf("summary: missing closing --- delimiter")
	}
	var h Header
	if err := yaml.Unmarshal(rest[:idx], &h); err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	return &h, nil
}

func withFrontmatter(h Header, body string) ([]byte, error) {
	fm, err := yaml.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("summary: marshal header: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// formatParams renders params as "k=v" pairs in key order. Pipes are escaped
// so values cannot break the table.
func formatParams(p map[string]any) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("`%s=%v`", k, p[k])
	}
	return strings.ReplaceAll(strings.Join(parts, " "), "|", `\|`)
}

// writeNote writes content to path, creating parent directories as needed.
func writeNote(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
