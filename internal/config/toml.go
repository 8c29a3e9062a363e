// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Server    ServerConfig    `toml:"server"`
	Dashboard DashboardConfig `toml:"dashboard"`
}

// ServerConfig maps settings for `trainviz serve`.
type ServerConfig struct {
	Addr         *string `toml:"addr"`
	LatencyMinMs *int    `toml:"latency-min-ms"`
	LatencyMaxMs *int    `toml:"latency-max-ms"`
	CORSOrigin   *string `toml:"cors-origin"`
	Journal      *bool   `toml:"journal"`
}

// DashboardConfig maps settings for the playback dashboard.
type DashboardConfig struct {
	APIURL       *string  `toml:"api-url"`
	Epochs       *int     `toml:"epochs"`
	LearningRate *float64 `toml:"learning-rate"`
	BatchSize    *int     `toml:"batch-size"`
	SpeedMs      *int     `toml:"speed-ms"`
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
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
