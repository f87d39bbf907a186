package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Default file names inside the config directory.
const (
	IngestionConfigFile = "ingestion.defaults.yml"
	WorkerConfigFile    = "worker.defaults.yml"
)

// Config represents the complete application configuration
type Config struct {
	Ingestion *IngestionConfig
	Worker    *WorkerConfig
}

// LoadConfig loads all configuration files present in a directory
func LoadConfig(configDir string) (*Config, error) {
	absDir, err := filepath.Abs(configDir)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of config directory: %w", err)
	}

	config := &Config{}

	ingestionPath := filepath.Join(absDir, IngestionConfigFile)
	if _, err := os.Stat(ingestionPath); err == nil {
		ingestionCfg, err := LoadIngestionConfig(ingestionPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load ingestion config: %w", err)
		}
		config.Ingestion = ingestionCfg
	}

	workerPath := filepath.Join(absDir, WorkerConfigFile)
	if _, err := os.Stat(workerPath); err == nil {
		workerCfg, err := LoadWorkerConfig(workerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load worker config: %w", err)
		}
		config.Worker = workerCfg
	}

	return config, nil
}
