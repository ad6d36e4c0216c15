package prefs

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Preferences are the user-facing toggles this layer persists locally.
// Nothing here carries a compatibility requirement; unknown fields in an old
// file are simply dropped on the next save.
type Preferences struct {
	SoundEnabled     bool `yaml:"sound_enabled"`
	ReducedMotion    bool `yaml:"reduced_motion"`
	AutoDismissSlow  bool `yaml:"auto_dismiss_slow"`
	ShowQualityScore bool `yaml:"show_quality_score"`
}

// DefaultPreferences returns the out-of-the-box toggles.
func DefaultPreferences() Preferences {
	return Preferences{
		SoundEnabled:     true,
		ShowQualityScore: true,
	}
}

// Load reads preferences from path, falling back to defaults when the file
// does not exist yet.
func Load(path string) (Preferences, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPreferences(), nil
		}
		return Preferences{}, fmt.Errorf("failed to read preferences: %w", err)
	}

	prefs := DefaultPreferences()
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return Preferences{}, fmt.Errorf("failed to parse preferences: %w", err)
	}
	return prefs, nil
}

// Save writes preferences to path, creating parent directories as needed.
func Save(path string, prefs Preferences) error {
	data, err := yaml.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}
