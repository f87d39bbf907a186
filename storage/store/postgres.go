package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"tenantlog/config"
	"tenantlog/internal/models"
)

// querier is the subset of *pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// PostgresStore keeps one row per (tenant_id, log_id). The composite primary
// key is the namespace; ON CONFLICT makes every write a full overwrite.
type PostgresStore struct {
	pool   *pgxpool.Pool
	db     querier
	table  string
	logger *zap.Logger
}

const columns = `tenant_id, log_id, source, redacted_text, redaction_count, character_count,
	request_id, ingested_at, processed_at, processing_time_seconds`

// NewPostgresStore creates a new PostgresStore and ensures its table exists.
func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MinConns = int32(cfg.MinConnections)
	poolCfg.MaxConnIdleTime = cfg.MaxIdleTime
	poolCfg.MaxConnLifetime = cfg.MaxLifetime

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	s := newPostgresStore(pool, cfg.Table, logger)
	s.pool = pool
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	cfg.LogConfiguration(logger)
	logger.Info("postgres store ready", zap.String("table", s.table))
	return s, nil
}

func newPostgresStore(db querier, table string, logger *zap.Logger) *PostgresStore {
	if table == "" {
		table = "processed_logs"
	}
	return &PostgresStore{
		db:     db,
		table:  pgx.Identifier{table}.Sanitize(),
		logger: logger,
	}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	tenant_id               TEXT NOT NULL,
	log_id                  TEXT NOT NULL,
	source                  TEXT NOT NULL,
	redacted_text           TEXT NOT NULL,
	redaction_count         INTEGER NOT NULL,
	character_count         INTEGER NOT NULL,
	request_id              TEXT NOT NULL,
	ingested_at             TIMESTAMPTZ NOT NULL,
	processed_at            TIMESTAMPTZ NOT NULL,
	processing_time_seconds DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (tenant_id, log_id)
)`, s.table)
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresStore) upsertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (tenant_id, log_id) DO UPDATE SET
	source = EXCLUDED.source,
	redacted_text = EXCLUDED.redacted_text,
	redaction_count = EXCLUDED.redaction_count,
	character_count = EXCLUDED.character_count,
	request_id = EXCLUDED.request_id,
	ingested_at = EXCLUDED.ingested_at,
	processed_at = EXCLUDED.processed_at,
	processing_time_seconds = EXCLUDED.processing_time_seconds`, s.table, columns)
}

// Upsert writes the full row.
func (s *PostgresStore) Upsert(ctx context.Context, tenantID, logID string, doc *models.ProcessedLog) error {
	if err := prepare(tenantID, logID, doc); err != nil {
		return err
	}

	_, err := s.db.Exec(ctx, s.upsertSQL(),
		doc.TenantID,
		doc.LogID,
		doc.Source,
		doc.RedactedText,
		doc.RedactionCount,
		doc.CharacterCount,
		doc.RequestID,
		doc.IngestedAt,
		doc.ProcessedAt,
		doc.ProcessingTimeSeconds,
	)
	if err != nil {
		return fmt.Errorf("postgres upsert %s: %w", models.NamespaceKey(tenantID, logID), err)
	}
	return nil
}

func scanProcessedLog(row pgx.Row) (*models.ProcessedLog, error) {
	var doc models.ProcessedLog
	err := row.Scan(
		&doc.TenantID,
		&doc.LogID,
		&doc.Source,
		&doc.RedactedText,
		&doc.RedactionCount,
		&doc.CharacterCount,
		&doc.RequestID,
		&doc.IngestedAt,
		&doc.ProcessedAt,
		&doc.ProcessingTimeSeconds,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Get reads one row.
func (s *PostgresStore) Get(ctx context.Context, tenantID, logID string) (*models.ProcessedLog, error) {
	if err := models.ValidateKey(tenantID, logID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1 AND log_id = $2`, columns, s.table)
	doc, err := scanProcessedLog(s.db.QueryRow(ctx, query, tenantID, logID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get: %w", err)
	}
	return doc, nil
}

// List reads one tenant's rows ordered by log id.
func (s *PostgresStore) List(ctx context.Context, tenantID string, limit int) ([]*models.ProcessedLog, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1 ORDER BY log_id LIMIT $2`, columns, s.table)
	rows, err := s.db.Query(ctx, query, tenantID, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres list: %w", err)
	}
	defer rows.Close()

	var docs []*models.ProcessedLog
	for rows.Next() {
		doc, err := scanProcessedLog(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres list: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.logger.Info("closing postgres connection pool")
		s.pool.Close()
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
