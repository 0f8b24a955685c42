package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simmatrix/internal/generics"
	"simmatrix/internal/manifest"
	"simmatrix/internal/simerr"
)

func TestParseSourceManifest(t *testing.T) {
	m, err := manifest.ParseSourceManifest([]byte(`
library: core_lib
source_list:
  - file: rtl/core.vhd
  - file: tb/tb_core.vhd
    ghdl.a_flags: [-Wno-hide]
    nvc.heap_size: 64m
`))
	require.NoError(t, err)

	assert.Equal(t, "core_lib", m.Library)
	require.Len(t, m.Files, 2)
	assert.Equal(t, "rtl/core.vhd", m.Files[0].Path)
	assert.Empty(t, m.Files[0].Options)
	assert.Equal(t, "tb/tb_core.vhd", m.Files[1].Path)
	assert.Equal(t, []string{"ghdl.a_flags", "nvc.heap_size"}, m.Files[1].Options.Keys())
	assert.Equal(t, []string{"-Wno-hide"}, m.Files[1].Options["ghdl.a_flags"].Strings())
	assert.True(t, m.Files[1].Options["nvc.heap_size"].IsScalar())
}

func TestParseSourceManifestInvalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":      ":\tbad yaml:",
		"no library":    "source_list:\n  - file: a.vhd\n",
		"missing file":  "library: l\nsource_list:\n  - ghdl.a_flags: [-x]\n",
		"flag mapping":  "library: l\nsource_list:\n  - file: a.vhd\n    ghdl.a_flags: {x: y}\n",
		"list not list": "library: l\nsource_list: a.vhd\n",
		"plain key":     "library: l\nsource_list:\n  - file: a.vhd\n    comment: x\n",
		"empty backend": "library: l\nsource_list:\n  - file: a.vhd\n    .a_flags: [-x]\n",
		"empty option":  "library: l\nsource_list:\n  - file: a.vhd\n    ghdl.: [-x]\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := manifest.ParseSourceManifest([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadSourceManifestRejectsNonFlagKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.yml")
	doc := "library: l\nsource_list:\n  - file: a.vhd\n    comment: vendor drop\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := manifest.LoadSourceManifest(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, simerr.ErrManifestFormat)
	assert.Contains(t, err.Error(), `"comment"`)
}

func TestLoadSourceManifestErrorsAreManifestFormat(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("library: [x"), 0o644))

	_, err := manifest.LoadSourceManifest(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, simerr.ErrManifestFormat)
	assert.Contains(t, err.Error(), bad)

	_, err = manifest.LoadSourceManifest(filepath.Join(dir, "missing.yml"))
	assert.ErrorIs(t, err, simerr.ErrManifestFormat)
}

func TestParseTestList(t *testing.T) {
	tl, err := manifest.ParseTestList([]byte(`
tests:
  - name: basic
    generics:
      mode: fast
      tb/iterations: 10
  - name: stress
`))
	require.NoError(t, err)
	require.Len(t, tl.Tests, 2)

	assert.Equal(t, "basic", tl.Tests[0].Name)
	assert.Equal(t, generics.Set{{Key: "mode", Value: "fast"}, {Key: "tb/iterations", Value: 10}}, tl.Tests[0].Generics)
	assert.Equal(t, "stress", tl.Tests[1].Name)
	assert.Nil(t, tl.Tests[1].Generics)
}

func TestParseTestListInvalid(t *testing.T) {
	tests := map[string]string{
		"missing name":   "tests:\n  - generics: {a: 1}\n",
		"duplicate name": "tests:\n  - name: a\n  - name: a\n",
		"bad generics":   "tests:\n  - name: a\n    generics: [1, 2]\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := manifest.ParseTestList([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadTestList(t *testing.T) {
	dir := t.TempDir()

	_, err := manifest.LoadTestList(filepath.Join(dir, "missing.yml"))
	assert.ErrorIs(t, err, simerr.ErrConfiguration)

	bad := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("tests:\n  - name: a\n  - name: a\n"), 0o644))
	_, err = manifest.LoadTestList(bad)
	assert.ErrorIs(t, err, simerr.ErrManifestFormat)

	good := filepath.Join(dir, "good.yml")
	require.NoError(t, os.WriteFile(good, []byte("tests:\n  - name: a\n"), 0o644))
	tl, err := manifest.LoadTestList(good)
	require.NoError(t, err)
	assert.Len(t, tl.Tests, 1)
}
