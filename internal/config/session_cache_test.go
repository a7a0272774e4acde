package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSessionCache_MissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.yaml")

	c, err := LoadSessionCache(path)
	require.NoError(t, err)
	assert.Empty(t, c.Sessions)
	assert.Empty(t, c.Inputs)
}

func TestSessionCache_SaveAndReloadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.yaml")

	c, err := LoadSessionCache(path)
	require.NoError(t, err)
	c.Sessions["reviewer|claude"] = "sess-123"
	c.Inputs = []string{"hello", "world"}
	require.NoError(t, c.Save())

	reloaded, err := LoadSessionCache(path)
	require.NoError(t, err)
	assert.Equal(t, "sess-123", reloaded.Sessions["reviewer|claude"])
	assert.Equal(t, []string{"hello", "world"}, reloaded.Inputs)
}

func TestLoadSessionCache_EmptyPathUsesDefault(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	c, err := LoadSessionCache("")
	require.NoError(t, err)
	assert.Empty(t, c.Sessions)

	_, statErr := os.Stat(filepath.Join(dir, ".ensemble"))
	assert.NoError(t, statErr, "parent dir of default path should be created")
}

func TestSessionCache_SaveReleasesLockForSubsequentLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.yaml")

	first, err := LoadSessionCache(path)
	require.NoError(t, err)
	require.NoError(t, first.Save())

	second, err := LoadSessionCache(path)
	require.NoError(t, err)
	require.NoError(t, second.Save())
}
