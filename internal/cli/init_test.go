package cli

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestInit_WritesSampleConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"init", "--out", path})
	require.NoError(t, root.Execute())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "oasrouter configuration")

	// every key is commented out, so the sample decodes to nothing
	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.Empty(t, raw)
}

func TestInit_SampleKeysAreAccepted(t *testing.T) {
	t.Parallel()
	var cfg GenerateConfig
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "input: a.yaml\nincludeTags: [x]\nexcludeTags: [y]\nmethods: [get]\npaths: ['^/a']\n" +
		"out: ./api\npackageName: api\ndryRun: true\nforce: true\nverbose: false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	require.NoError(t, applyConfigFromFile(&cfg, path))
	assert.Equal(t, "a.yaml", cfg.Input)
	assert.Equal(t, []string{"^/a"}, cfg.Paths)
	assert.Equal(t, "api", cfg.PackageName)
	assert.True(t, cfg.DryRun)
}

func TestInit_ExistingWithoutForce(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"init", "--out", path})

	err := root.Execute()
	require.Error(t, err)
	assert.IsType(t, usageError{}, err)

	root = NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"init", "--out", path, "--force"})
	require.NoError(t, root.Execute())
}
