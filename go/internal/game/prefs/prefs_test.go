package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "nope", "prefs.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultPreferences(), got)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emojinary", "prefs.yaml")

	want := Preferences{
		SoundEnabled:    false,
		ReducedMotion:   true,
		AutoDismissSlow: true,
	}
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reduced_motion: true\n"), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	require.True(t, got.ReducedMotion)
	require.True(t, got.SoundEnabled, "unset toggles keep their defaults")
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("::: not yaml"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
