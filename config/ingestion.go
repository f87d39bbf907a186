package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

// HttpServerConfig defines HTTP server configuration
type HttpServerConfig struct {
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// SetDefaults sets reasonable default values for the HTTP server
func (c *HttpServerConfig) SetDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = 1 << 20 // 1 MB
	}
}

// IngestionConfig defines all configuration required by the ingestion service
type IngestionConfig struct {
	HttpListenAddr string `yaml:"http_listen_addr"`
	GrpcListenAddr string `yaml:"grpc_listen_addr"`

	PublishTimeout  time.Duration `yaml:"publish_timeout"`   // bound on one broker round trip
	MaxRequestBytes int64         `yaml:"max_request_bytes"` // larger bodies get 413

	HttpServer HttpServerConfig `yaml:"http_server"`
	Queue      QueueConfig      `yaml:"queue" validate:"required"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SetDefaults sets default values for every section
func (c *IngestionConfig) SetDefaults() {
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	if c.MaxRequestBytes <= 0 {
		c.MaxRequestBytes = 10 * 1024 * 1024
	}
	c.HttpServer.SetDefaults()
	c.Queue.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate validates the ingestion configuration
func (c *IngestionConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if c.HttpListenAddr == "" && c.GrpcListenAddr == "" {
		return fmt.Errorf("configuration error: at least one of http_listen_addr or grpc_listen_addr must be configured")
	}
	if err := c.Queue.Validate(true); err != nil {
		return fmt.Errorf("queue configuration error: %w", err)
	}
	return nil
}

// LoadIngestionConfig loads ingestion configuration from the specified YAML file path,
// then applies TENANTLOG_ environment overrides.
func LoadIngestionConfig(path string) (*IngestionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ingestion config file '%s': %w", path, err)
	}

	var cfg IngestionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse ingestion YAML config file: %w", err)
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
