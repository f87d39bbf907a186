package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tenantlog/config"
)

// NewStore opens the configured backend. It is called once at startup.
func NewStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case config.StorePostgres:
		s, err = NewPostgresStore(ctx, cfg.Database, logger.Named("postgres"))
	case config.StoreBadger, "":
		s, err = OpenBadgerStore(cfg.Badger.Path, cfg.Badger.InMemory, logger.Named("badger"))
	case config.StoreS3:
		s, err = NewS3Store(ctx, cfg.S3, logger.Named("s3"))
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
