package config

import "fmt"

// Store backends.
const (
	StorePostgres = "postgres"
	StoreBadger   = "badger"
	StoreS3       = "s3"
)

// BadgerConfig configures the embedded store backend.
type BadgerConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// S3Config configures the object store backend (any S3-compatible endpoint).
type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	Bucket       string `yaml:"bucket"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// StoreConfig selects and configures the processed-log store.
type StoreConfig struct {
	Backend  string         `yaml:"backend" validate:"oneof=postgres badger s3"`
	Database DatabaseConfig `yaml:"database"`
	Badger   BadgerConfig   `yaml:"badger"`
	S3       S3Config       `yaml:"s3"`
}

// SetDefaults sets reasonable default values for the store
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = StoreBadger
	}
	c.Database.SetDefaults()
	if c.Badger.Path == "" && !c.Badger.InMemory {
		c.Badger.Path = "./data/logs"
	}
	if c.S3.Region == "" {
		c.S3.Region = "us-east-1"
	}
}

// Validate checks the settings of the selected backend only.
func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case StorePostgres:
		return c.Database.Validate()
	case StoreBadger:
		return nil
	case StoreS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3: bucket is required")
		}
		return nil
	default:
		return fmt.Errorf("unsupported store backend: %q", c.Backend)
	}
}
