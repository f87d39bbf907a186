package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadIngestionConfigDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), IngestionConfigFile, "http_listen_addr: \":8080\"\n")

	cfg, err := LoadIngestionConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HttpListenAddr)
	assert.Equal(t, 5*time.Second, cfg.PublishTimeout)
	assert.EqualValues(t, 10*1024*1024, cfg.MaxRequestBytes)
	assert.Equal(t, QueueMemory, cfg.Queue.Backend)
	assert.Equal(t, "all", cfg.Queue.KafkaProducer.RequiredAcks)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadIngestionConfigRequiresListener(t *testing.T) {
	path := writeFile(t, t.TempDir(), IngestionConfigFile, "publish_timeout: 1s\n")

	_, err := LoadIngestionConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen_addr")
}

func TestLoadIngestionConfigKafkaNeedsBrokers(t *testing.T) {
	body := "http_listen_addr: \":8080\"\nqueue:\n  backend: kafka\n"
	path := writeFile(t, t.TempDir(), IngestionConfigFile, body)

	_, err := LoadIngestionConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka_producer")
}

func TestLoadWorkerConfigDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), WorkerConfigFile, "store:\n  badger:\n    in_memory: true\n")

	cfg, err := LoadWorkerConfig(path)
	require.NoError(t, err)

	assert.Equal(t, StoreBadger, cfg.Store.Backend)
	assert.Equal(t, 10, cfg.Processing.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.Processing.StoreTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Processing.MaxProcessingTime)
	assert.True(t, cfg.Processing.RedactionEnabled())
}

func TestLoadWorkerConfigRedactionToggle(t *testing.T) {
	path := writeFile(t, t.TempDir(), WorkerConfigFile, "worker:\n  enable_pii_redaction: false\n")

	cfg, err := LoadWorkerConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.Processing.RedactionEnabled())
}

func TestLoadWorkerConfigRejectsUnknownStore(t *testing.T) {
	path := writeFile(t, t.TempDir(), WorkerConfigFile, "store:\n  backend: mongo\n")

	_, err := LoadWorkerConfig(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TENANTLOG_STORE__BACKEND", "s3")
	t.Setenv("TENANTLOG_STORE__S3__BUCKET", "from-env")
	t.Setenv("TENANTLOG_WORKER__CONCURRENCY", "3")

	path := writeFile(t, t.TempDir(), WorkerConfigFile, "store:\n  backend: badger\n")

	cfg, err := LoadWorkerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, StoreS3, cfg.Store.Backend)
	assert.Equal(t, "from-env", cfg.Store.S3.Bucket)
	assert.Equal(t, 3, cfg.Processing.Concurrency)
}

func TestLoadConfigDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, IngestionConfigFile, "http_listen_addr: \":8080\"\n")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg.Ingestion)
	assert.Nil(t, cfg.Worker)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "console"}, "test")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	_, err = NewLogger(LoggingConfig{Level: "loud"}, "test")
	assert.Error(t, err)
}
