package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"tenantlog/internal/models"
)

// badgerLoggerAdapter adapts zap.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *zap.SugaredLogger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Errorf(msg, items...)
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warnf(msg, items...)
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Infof(msg, items...)
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debugf(msg, items...)
}

// BadgerStore keeps processed logs in an embedded BadgerDB keyed by
// tenant:{tenant_id}/log:{log_id}.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// OpenBadgerStore opens a BadgerDB database at the specified path, or an
// in-memory one when inMemory is set. Creates the directory if it doesn't exist.
func OpenBadgerStore(path string, inMemory bool, logger *zap.Logger) (*BadgerStore, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create badger directory %s: %w", path, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", path)
		}
		opts = badger.DefaultOptions(path)
	}

	opts.Logger = &badgerLoggerAdapter{logger: logger.Sugar()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}

	logger.Info("badger store opened", zap.String("path", path), zap.Bool("in_memory", inMemory))
	return &BadgerStore{db: db, logger: logger}, nil
}

// Upsert overwrites the document in a single transaction.
func (s *BadgerStore) Upsert(ctx context.Context, tenantID, logID string, doc *models.ProcessedLog) error {
	if err := prepare(tenantID, logID, doc); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode processed log: %w", err)
	}

	key := []byte(models.NamespaceKey(tenantID, logID))
	if err := s.db.Update(func(tx *badger.Txn) error {
		return tx.Set(key, value)
	}); err != nil {
		return fmt.Errorf("badger upsert %s: %w", key, err)
	}
	return nil
}

// Get reads one document.
func (s *BadgerStore) Get(ctx context.Context, tenantID, logID string) (*models.ProcessedLog, error) {
	if err := models.ValidateKey(tenantID, logID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var doc models.ProcessedLog
	err := s.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(models.NamespaceKey(tenantID, logID)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return &doc, nil
}

// List iterates the tenant prefix only.
func (s *BadgerStore) List(ctx context.Context, tenantID string, limit int) ([]*models.ProcessedLog, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	limit = listLimit(limit)

	var docs []*models.ProcessedLog
	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(models.TenantPrefix(tenantID))
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid() && len(docs) < limit; iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var doc models.ProcessedLog
			if err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			}); err != nil {
				return err
			}
			docs = append(docs, &doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger list: %w", err)
	}
	return docs, nil
}

// Ping reports whether the database is open.
func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger store is closed")
	}
	return nil
}

// Close closes the BadgerDB database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BadgerStore)(nil)
