package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the CLI configuration, read from a YAML file with environment
// overrides for the connection settings.
type Config struct {
	Server struct {
		URL string `yaml:"url"`
	} `yaml:"server"`
	Game struct {
		SessionID   string `yaml:"session_id"`
		DisplayName string `yaml:"display_name"`
	} `yaml:"game"`
	Sync struct {
		PollIntervalSec  int `yaml:"poll_interval_sec"`
		MaxRetries       int `yaml:"max_retries"`
		ProbeIntervalSec int `yaml:"probe_interval_sec"`
	} `yaml:"sync"`
	PrefsPath string `yaml:"prefs_path"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	var config Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.URL = getEnv("EMOJINARY_SERVER_URL", config.Server.URL)
	config.Game.SessionID = getEnv("EMOJINARY_SESSION_ID", config.Game.SessionID)
	config.Game.DisplayName = getEnv("EMOJINARY_DISPLAY_NAME", config.Game.DisplayName)
	config.Sync.PollIntervalSec = getEnvAsInt("EMOJINARY_POLL_INTERVAL_SEC", config.Sync.PollIntervalSec)
	config.Sync.MaxRetries = getEnvAsInt("EMOJINARY_MAX_RETRIES", config.Sync.MaxRetries)
	config.Sync.ProbeIntervalSec = getEnvAsInt("EMOJINARY_PROBE_INTERVAL_SEC", config.Sync.ProbeIntervalSec)

	if config.Server.URL == "" {
		return nil, fmt.Errorf("server url is required (EMOJINARY_SERVER_URL)")
	}
	if config.Game.SessionID == "" {
		return nil, fmt.Errorf("session id is required (EMOJINARY_SESSION_ID)")
	}
	return &config, nil
}

func (c *Config) pollInterval() time.Duration {
	if c.Sync.PollIntervalSec <= 0 {
		return 0
	}
	return time.Duration(c.Sync.PollIntervalSec) * time.Second
}

func (c *Config) probeInterval() time.Duration {
	if c.Sync.ProbeIntervalSec <= 0 {
		return 0
	}
	return time.Duration(c.Sync.ProbeIntervalSec) * time.Second
}
