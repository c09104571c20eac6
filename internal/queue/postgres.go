package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS queue_entries (
	id              BIGSERIAL PRIMARY KEY,
	queue           TEXT NOT NULL,
	owner_key       TEXT NOT NULL,
	row_id          TEXT NOT NULL,
	payload         TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'queued',
	tries           INTEGER NOT NULL DEFAULT 0,
	enqueued_at     TIMESTAMPTZ NOT NULL,
	next_attempt_at TIMESTAMPTZ,
	last_error      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS queue_entries_scan
	ON queue_entries (queue, status, id)`

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStoreConfig controls the Postgres connection pool.
type PostgresStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// PostgresStore is the shared-database Store backend for multi-process
// deployments.
type PostgresStore struct {
	pool pgxPool
}

// NewPostgresStore connects to Postgres and ensures the queue table exists.
func NewPostgresStore(ctx context.Context, cfg PostgresStoreConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("queue.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating queue table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStoreWithPool(pool pgxPool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

// EnqueueIfAbsent implements Store.
func (s *PostgresStore) EnqueueIfAbsent(ctx context.Context, e Entry) (bool, error) {
	enqueuedAt := e.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO queue_entries (queue, owner_key, row_id, payload, status, enqueued_at, next_attempt_at)
SELECT $1, $2, $3, $4, 'queued', $5, $6
WHERE NOT EXISTS (
	SELECT 1 FROM queue_entries
	WHERE queue = $1 AND owner_key = $2 AND row_id = $3 AND status IN ('queued', 'processing')
)`,
		string(e.Queue), e.OwnerKey, e.RowID, e.Payload, enqueuedAt, nullTime(e.NextAttemptAt))
	if err != nil {
		return false, fmt.Errorf("enqueue %s/%s/%s: %w", e.Queue, e.OwnerKey, e.RowID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListQueued implements Store.
func (s *PostgresStore) ListQueued(ctx context.Context, queue Name, max int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, queue, owner_key, row_id, payload, status, tries, enqueued_at, next_attempt_at, last_error
FROM queue_entries
WHERE queue = $1 AND status = 'queued'
ORDER BY id ASC
LIMIT $2`, string(queue), max)
	if err != nil {
		return nil, fmt.Errorf("list %s queue: %w", queue, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			q    string
			st   string
			next *time.Time
		)
		if err := rows.Scan(&e.ID, &q, &e.OwnerKey, &e.RowID, &e.Payload, &st, &e.Tries, &e.EnqueuedAt, &next, &e.LastError); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		e.Queue = Name(q)
		e.Status = Status(st)
		if next != nil {
			e.NextAttemptAt = *next
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s queue: %w", queue, err)
	}
	return out, nil
}

// Remove implements Store.
func (s *PostgresStore) Remove(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		"DELETE FROM queue_entries WHERE id = ANY($1)", ids); err != nil {
		return fmt.Errorf("remove queue entries: %w", err)
	}
	return nil
}

// SetError implements Store.
func (s *PostgresStore) SetError(ctx context.Context, id int64, msg string) error {
	if _, err := s.pool.Exec(ctx, `
UPDATE queue_entries SET status = 'error', last_error = $1, tries = tries + 1 WHERE id = $2`,
		msg, id); err != nil {
		return fmt.Errorf("mark entry %d failed: %w", id, err)
	}
	return nil
}

// Depth implements Store.
func (s *PostgresStore) Depth(ctx context.Context, queue Name) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM queue_entries WHERE queue = $1 AND status = 'queued'",
		string(queue)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("depth of %s queue: %w", queue, err)
	}
	return n, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
