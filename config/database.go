package config

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DatabaseConfig defines the PostgreSQL connection settings of the postgres store backend.
type DatabaseConfig struct {
	DSN            string        `yaml:"dsn" json:"dsn"`                         // PostgreSQL connection string
	MaxConnections int           `yaml:"max_connections" json:"max_connections"` // Maximum number of connections
	MinConnections int           `yaml:"min_connections" json:"min_connections"` // Minimum number of connections
	MaxIdleTime    time.Duration `yaml:"max_idle_time" json:"max_idle_time"`     // Maximum time a connection can be idle
	MaxLifetime    time.Duration `yaml:"max_lifetime" json:"max_lifetime"`       // Maximum lifetime of a connection
	Table          string        `yaml:"table" json:"table"`
}

// SetDefaults sets sensible default values for the database configuration
func (c *DatabaseConfig) SetDefaults() {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 20
	}
	if c.MinConnections <= 0 {
		c.MinConnections = 2
	}
	if c.MaxIdleTime <= 0 {
		c.MaxIdleTime = time.Hour
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = 24 * time.Hour
	}
	if c.Table == "" {
		c.Table = "processed_logs"
	}
}

// Validate validates the database configuration
func (c *DatabaseConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("database max_connections must be positive")
	}
	if c.MinConnections < 0 {
		return fmt.Errorf("database min_connections cannot be negative")
	}
	if c.MinConnections > c.MaxConnections {
		return fmt.Errorf("database min_connections (%d) cannot be greater than max_connections (%d)",
			c.MinConnections, c.MaxConnections)
	}
	return nil
}

// LogConfiguration logs the database configuration (excluding sensitive DSN)
func (c *DatabaseConfig) LogConfiguration(logger *zap.Logger) {
	logger.Info("database configuration",
		zap.Int("max_connections", c.MaxConnections),
		zap.Int("min_connections", c.MinConnections),
		zap.Duration("max_idle_time", c.MaxIdleTime),
		zap.Duration("max_lifetime", c.MaxLifetime),
		zap.String("table", c.Table),
		zap.String("dsn", "[configured]"), // Don't log the actual DSN
	)
}
