package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

// ProcessingConfig defines configuration for the worker pipeline
type ProcessingConfig struct {
	Concurrency           int           `yaml:"concurrency" validate:"gte=0"` // messages handled at once per process
	StoreTimeout          time.Duration `yaml:"store_timeout"`                // bound on one store upsert
	MaxProcessingTime     time.Duration `yaml:"max_processing_time"`          // bound on one message end to end
	ConsumerRetryDelay    time.Duration `yaml:"consumer_retry_delay"`         // pause after a consumer error
	ProcessingTimePerChar time.Duration `yaml:"processing_time_per_char"`     // simulated work; 0 disables
	EnablePIIRedaction    *bool         `yaml:"enable_pii_redaction"`
}

// SetDefaults sets reasonable default values for worker configuration
func (c *ProcessingConfig) SetDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 10 * time.Second
	}
	if c.MaxProcessingTime <= 0 {
		c.MaxProcessingTime = 5 * time.Minute
	}
	if c.ConsumerRetryDelay <= 0 {
		c.ConsumerRetryDelay = 5 * time.Second
	}
	if c.EnablePIIRedaction == nil {
		enabled := true
		c.EnablePIIRedaction = &enabled
	}
}

// RedactionEnabled reports whether PII redaction is on (default true).
func (c *ProcessingConfig) RedactionEnabled() bool {
	return c.EnablePIIRedaction == nil || *c.EnablePIIRedaction
}

// WorkerConfig defines all configuration for the worker process
type WorkerConfig struct {
	Queue      QueueConfig      `yaml:"queue"`
	Store      StoreConfig      `yaml:"store"`
	Processing ProcessingConfig `yaml:"worker"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SetDefaults sets default values for every section
func (c *WorkerConfig) SetDefaults() {
	c.Queue.SetDefaults()
	c.Store.SetDefaults()
	c.Processing.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate validates the worker configuration
func (c *WorkerConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := c.Queue.Validate(false); err != nil {
		return fmt.Errorf("queue configuration error: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store configuration error: %w", err)
	}
	return nil
}

// LoadWorkerConfig loads configuration from the specified YAML file path,
// then applies TENANTLOG_ environment overrides.
func LoadWorkerConfig(path string) (*WorkerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg WorkerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file: %w", err)
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
