package main

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"simmatrix/internal/framework"
	"simmatrix/internal/report"
	"simmatrix/internal/toolopts"
)

// fixture lays out a repository with one target and returns its root.
func fixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"sim/ts_sim_config.yml": `seed: 7
test_name_generic: test_name
targets:
  unit.core:
    top_entity: core_lib.tb_core
    source_list_files: [sim/core.yml]
    test_list_file: sim/core_tests.yml
`,
		"sim/core.yml":       "library: core_lib\nsource_list:\n  - file: ../rtl/core.vhd\n  - file: ../tb/tb_core.vhd\n",
		"sim/core_tests.yml": "tests:\n  - name: basic\n  - name: stress\n    generics: {iterations: 100}\n",
		"rtl/core.vhd":       "entity core is\nend entity;\n",
		"tb/tb_core.vhd":     "entity tb_core is\nend entity;\n",
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestMissingPatternIsUsageError(t *testing.T) {
	code, _, stderr := runCLI(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "missing target pattern")
	assert.Contains(t, stderr, "Usage:")
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	code, _, stderr := runCLI(t, "--no-such-flag", "unit")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "no-such-flag")
}

func TestHelp(t *testing.T) {
	for _, flag := range []string{"--help", "-h"} {
		t.Run(flag, func(t *testing.T) {
			code, stdout, _ := runCLI(t, flag)
			assert.Equal(t, 0, code)
			assert.Contains(t, stdout, "<target-pattern>")
			assert.Contains(t, stdout, "--runner")
		})
	}
}

func TestBadLogFormat(t *testing.T) {
	code, _, stderr := runCLI(t, "--log-format", "xml", "unit")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "xml")
}

func TestDryRunPrintsPlan(t *testing.T) {
	root := fixture(t)
	out := filepath.Join(t.TempDir(), "vunit_out")

	code, stdout, stderr := runCLI(t, "--root", root, "--output", out, "--log-format", "json", "unit", "--xunit-xml", "x.xml")
	require.Equal(t, 0, code, stderr)

	var doc framework.Document
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &doc))
	require.Len(t, doc.Libraries, 1)
	assert.Len(t, doc.Libraries[0].Files, 2)
	require.Len(t, doc.TestBenches, 1)
	require.Len(t, doc.TestBenches[0].Configs, 2)
	assert.Equal(t, "unit.core.basic", doc.TestBenches[0].Configs[0].Name)
	assert.Equal(t, 7, doc.TestBenches[0].Configs[1].Generics["seed"])
	assert.Equal(t, 100, doc.TestBenches[0].Configs[1].Generics["iterations"])

	// Pass-through arguments are reported, not parsed.
	assert.Contains(t, stderr, "ignoring pass-through arguments")
	assert.Contains(t, stderr, `"msg":"loading simulation config file"`)

	_, err := os.Stat(filepath.Join(out, toolopts.CoverageDirName))
	assert.NoError(t, err)
}

func TestSummaryFlag(t *testing.T) {
	out := filepath.Join(t.TempDir(), "vunit_out")
	code, _, stderr := runCLI(t, "--root", fixture(t), "--output", out, "--summary", "unit")
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(filepath.Join(out, report.FileName))
	require.NoError(t, err)
	h, err := report.ReadHeader(data)
	require.NoError(t, err)
	assert.Equal(t, int64(7), h.Seed)
	assert.Equal(t, []string{"unit.core"}, h.Targets)
	assert.Equal(t, 2, h.Tests)
}

func TestUnmatchedPatternFails(t *testing.T) {
	code, stdout, stderr := runCLI(t, "--root", fixture(t), "--output", t.TempDir(), "core")
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "configuration error")
}

func TestMissingConfigFails(t *testing.T) {
	code, _, stderr := runCLI(t, "--root", t.TempDir(), "unit")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "ts_sim_config.yml")
}

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(dir, "runner.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestRunnerReceivesPlanAndArgs(t *testing.T) {
	root := fixture(t)
	out := filepath.Join(t.TempDir(), "vunit_out")
	script := writeScript(t, t.TempDir(), `printf '%s\n' "$@" > "$(dirname "$0")/args.txt"`)

	code, _, stderr := runCLI(t, "--root", root, "--output", out, "--runner", script, "unit.core", "-p", "2")
	require.Equal(t, 0, code, stderr)

	got, err := os.ReadFile(filepath.Join(filepath.Dir(script), "args.txt"))
	require.NoError(t, err)
	planPath := filepath.Join(out, framework.PlanFileName)
	assert.Equal(t, []string{"--plan", planPath, "-p", "2"}, strings.Fields(string(got)))

	_, err = os.Stat(planPath)
	assert.NoError(t, err)
}

func TestRunnerExitCodeIsForwarded(t *testing.T) {
	root := fixture(t)
	script := writeScript(t, t.TempDir(), "exit 3")

	code, _, stderr := runCLI(t, "--root", root, "--output", t.TempDir(), "--runner", script, "unit")
	assert.Equal(t, 3, code)
	assert.NotContains(t, stderr, "simmatrix:")
}
