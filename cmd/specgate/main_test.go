package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/specgate/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidate_ExampleCatalogue(t *testing.T) {
	out, err := execute(t, "validate", filepath.Join("..", "..", "examples", "catalogue.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, ": OK")
	assert.Contains(t, out, "nodes:      10")
	assert.Contains(t, out, "exclusions: 3")
	assert.Contains(t, out, "- cooling: 3 option(s)")
}

func TestValidate_Errors(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("nodes:\n  A:\n    requires:\n      x: [B]\n"), 0o600))
	_, err := execute(t, "validate", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node")

	_, err = execute(t, "validate", filepath.Join(dir, "catalogue.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported catalogue extension")

	_, err = execute(t, "validate")
	require.Error(t, err, "validate requires exactly one argument")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "specgate v"), out)
}

func TestResolveConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	_, _, err := resolveConfig(serveFlags{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no catalogue")

	cfg, path, err := resolveConfig(serveFlags{
		cataloguePath: "cat.yaml",
		httpAddr:      ":8080",
		noAudit:       true,
		logLevel:      "debug",
	})
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, "cat.yaml", filepath.Base(path))
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 3, cfg.CycleCap)
}

func TestResolveConfig_ProjectFile(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.CataloguePath = "catalogue/spec.hcl"
	cfg.CycleCap = 5
	require.NoError(t, config.NewFileStore().Save(root, cfg))

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	t.Chdir(nested)

	got, path, err := resolveConfig(serveFlags{})
	require.NoError(t, err)
	assert.Equal(t, 5, got.CycleCap)
	wantRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	gotDir, err := filepath.EvalSymlinks(filepath.Dir(filepath.Dir(path)))
	require.NoError(t, err)
	assert.Equal(t, wantRoot, gotDir)
	assert.Equal(t, "spec.hcl", filepath.Base(path))
}

func TestResolveConfig_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte("catalogue_path: nodes.json\ncycle_cap: 2\n"), 0o600))
	t.Chdir(t.TempDir())

	cfg, path, err := resolveConfig(serveFlags{configPath: file})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.CycleCap)
	assert.Equal(t, filepath.Join(dir, "nodes.json"), path)
}

func TestResolveConfig_InvalidOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	_, _, err := resolveConfig(serveFlags{cataloguePath: "c.yaml", logLevel: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
