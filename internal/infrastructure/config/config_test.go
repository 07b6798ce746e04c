package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	store, err := Load(path)
	require.NoError(t, err)

	s := store.Snapshot()
	assert.True(t, s.Enabled)
	assert.Equal(t, DefaultHost, s.Host)
	assert.Equal(t, DefaultPort, s.Port)
	assert.Equal(t, DefaultSessionCap, s.SessionCap)
	assert.Equal(t, DefaultLocalSessionCap, s.LocalSessionCap)
	assert.Empty(t, s.DisabledTools)
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	doc := "enabled: false\nhost: 0.0.0.0\nport: 9000\nsessionCap: 3\ndisabledTools:\n  - s3\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	store, err := Load(path)
	require.NoError(t, err)

	s := store.Snapshot()
	assert.False(t, s.Enabled)
	assert.Equal(t, "0.0.0.0", s.Host)
	assert.Equal(t, 9000, s.Port)
	assert.Equal(t, 3, s.SessionCap)
	assert.Equal(t, []string{"s3"}, s.DisabledTools)
	// Unset values fall back to defaults.
	assert.Equal(t, DefaultLocalSessionCap, s.LocalSessionCap)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("enabled: [broken"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvironmentOverridesEndpoint(t *testing.T) {
	t.Setenv(EnvHost, "10.0.0.5")
	t.Setenv(EnvPort, "9191")

	store, err := Load(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)

	s := store.Snapshot()
	assert.Equal(t, "10.0.0.5", s.Host)
	assert.Equal(t, 9191, s.Port)
}

func TestEnvironmentIgnoresInvalidPort(t *testing.T) {
	t.Setenv(EnvPort, "not-a-port")

	store, err := Load(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, store.Snapshot().Port)
}

func TestMutationsPersistAcrossLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	store, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, store.SetEnabled(false))
	require.NoError(t, store.SetSessionCap(7))
	require.NoError(t, store.SetDisabledTools([]string{"ec2", "iam"}))
	require.NoError(t, store.SetEndpoint("0.0.0.0", 9001))

	reloaded, err := Load(path)
	require.NoError(t, err)

	s := reloaded.Snapshot()
	assert.False(t, s.Enabled)
	assert.Equal(t, 7, s.SessionCap)
	assert.Equal(t, []string{"ec2", "iam"}, s.DisabledTools)
	assert.Equal(t, "0.0.0.0", s.Host)
	assert.Equal(t, 9001, s.Port)
}

func TestSetSessionCapClampsToOne(t *testing.T) {
	store := NewStore(DefaultSettings())

	require.NoError(t, store.SetSessionCap(-5))
	assert.Equal(t, 1, store.Snapshot().SessionCap)
}

func TestSnapshotIsolatesDisabledTools(t *testing.T) {
	store := NewStore(DefaultSettings())
	require.NoError(t, store.SetDisabledTools([]string{"s3"}))

	s := store.Snapshot()
	s.DisabledTools[0] = "mutated"

	assert.Equal(t, []string{"s3"}, store.Snapshot().DisabledTools)
}

func TestPortZeroSurvivesNormalization(t *testing.T) {
	s := DefaultSettings()
	s.Port = 0
	store := NewStore(s)
	assert.Equal(t, 0, store.Snapshot().Port)
}
