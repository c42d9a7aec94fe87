package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the trgeo configuration file (~/.config/trgeo/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	WeightsDir string   `yaml:"weights_dir"`
	Models     []string `yaml:"models"`
	Blocks     *int64   `yaml:"blocks"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "trgeo", "config.yaml")
}

// applyModelConfig applies config file defaults to the shared model flags
// when the corresponding CLI flag was not explicitly set.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.WeightsDir != "" && !c.IsSet("weights-dir") {
		weightsDir = cfg.WeightsDir
	}
	if len(cfg.Models) > 0 && !c.IsSet("models") {
		modelIDs = cfg.Models
	}
	if cfg.Blocks != nil && !c.IsSet("blocks") {
		blocks = *cfg.Blocks
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	applyModelConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't
// exist or fails to parse.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
