package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// cliConfig is the optional YAML config file for importctl.
type cliConfig struct {
	Server    string        `yaml:"server"`
	ChunkSize int64         `yaml:"chunk_size"`
	Retries   int           `yaml:"retries"`
	Backoff   time.Duration `yaml:"backoff"`
}

// loadCLIConfig reads the config file, if any. A missing default file is not
// an error; a missing explicit --config file is.
func loadCLIConfig() (*cliConfig, error) {
	path := configPath
	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return &cliConfig{}, nil
		}
		path = filepath.Join(home, ".importctl.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &cliConfig{}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg cliConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// resolveServer applies the flag > env > config precedence.
func resolveServer(cfg *cliConfig) (string, error) {
	if serverURL != "" {
		return serverURL, nil
	}
	if env := os.Getenv("IMPORTCTL_SERVER"); env != "" {
		return env, nil
	}
	if cfg.Server != "" {
		return cfg.Server, nil
	}
	return "", fmt.Errorf("no server configured: pass --server, set IMPORTCTL_SERVER, or add server: to the config file")
}
