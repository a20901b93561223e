// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Practice PracticeConfig `toml:"practice"`
	Deepgram DeepgramConfig `toml:"deepgram"`
	Actuator ActuatorConfig `toml:"actuator"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// PracticeConfig maps practice-related settings.
type PracticeConfig struct {
	Prompt     *string `toml:"prompt"`
	File       *string `toml:"file"`
	Watch      *bool   `toml:"watch"`
	Recognizer *string `toml:"recognizer"`
	FoldCase   *bool   `toml:"fold-case"`
	Hints      *bool   `toml:"hints"`
}

// DeepgramConfig maps the streaming recognizer settings.
type DeepgramConfig struct {
	APIKey   *string `toml:"api-key"`
	Model    *string `toml:"model"`
	Language *string `toml:"language"`
}

// ActuatorConfig maps the actuation channel settings.
type ActuatorConfig struct {
	Kind    *string `toml:"kind"`
	URL     *string `toml:"url"`
	Timeout *string `toml:"timeout"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level *string `toml:"level"`
	File  *string `toml:"file"`
}

// MetricsConfig maps the metrics endpoint settings.
type MetricsConfig struct {
	Addr *string `toml:"addr"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
