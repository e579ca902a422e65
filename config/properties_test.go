package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/containerkit/config"
)

func TestStaticProperties_GetProperty(t *testing.T) {
	props := config.StaticProperties{"framework.beginning.startlevel": "2"}

	v, ok := props.GetProperty("framework.beginning.startlevel")
	require.True(t, ok)
	assert.Equal(t, "2", v)

	_, ok = props.GetProperty("missing")
	assert.False(t, ok)
}

func TestTOMLFile_DecodesAndCoercesValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "props.toml")
	require.NoError(t, os.WriteFile(path, []byte("framework.beginning.startlevel = 3\nname = \"demo\"\n"), 0o600))

	f, err := config.NewTOMLFile(path)
	require.NoError(t, err)

	v, ok := f.GetProperty("framework.beginning.startlevel")
	require.True(t, ok)
	assert.Equal(t, "3", v)

	v, ok = f.GetProperty("name")
	require.True(t, ok)
	assert.Equal(t, "demo", v)

	_, ok = f.GetProperty("missing")
	assert.False(t, ok)
}

func TestYAMLFile_DecodesAndCoercesValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "props.yaml")
	require.NoError(t, os.WriteFile(path, []byte("framework.beginning.startlevel: 4\nname: demo\n"), 0o600))

	f, err := config.NewYAMLFile(path)
	require.NoError(t, err)

	v, ok := f.GetProperty("framework.beginning.startlevel")
	require.True(t, ok)
	assert.Equal(t, "4", v)

	v, ok = f.GetProperty("name")
	require.True(t, ok)
	assert.Equal(t, "demo", v)
}

func TestNewTOMLFile_MissingFileReturnsError(t *testing.T) {
	_, err := config.NewTOMLFile(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	assert.Error(t, err)
}
