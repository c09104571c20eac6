package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS queue_entries (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	queue           TEXT NOT NULL,
	owner_key       TEXT NOT NULL,
	row_id          TEXT NOT NULL,
	payload         TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'queued',
	tries           INTEGER NOT NULL DEFAULT 0,
	enqueued_at     DATETIME NOT NULL,
	next_attempt_at DATETIME,
	last_error      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS queue_entries_scan
	ON queue_entries (queue, status, id);`

// SQLiteStore is the default durable Store, a single-file embedded
// database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// queue table exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating queue table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// EnqueueIfAbsent implements Store. The existence check and the insert run
// in one statement so two callers cannot both pass the gate.
func (s *SQLiteStore) EnqueueIfAbsent(ctx context.Context, e Entry) (bool, error) {
	enqueuedAt := e.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO queue_entries (queue, owner_key, row_id, payload, status, enqueued_at, next_attempt_at)
SELECT ?, ?, ?, ?, 'queued', ?, ?
WHERE NOT EXISTS (
	SELECT 1 FROM queue_entries
	WHERE queue = ? AND owner_key = ? AND row_id = ? AND status IN ('queued', 'processing')
)`,
		string(e.Queue), e.OwnerKey, e.RowID, e.Payload, enqueuedAt, nullTime(e.NextAttemptAt),
		string(e.Queue), e.OwnerKey, e.RowID)
	if err != nil {
		return false, fmt.Errorf("enqueue %s/%s/%s: %w", e.Queue, e.OwnerKey, e.RowID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue rows affected: %w", err)
	}
	return n > 0, nil
}

// ListQueued implements Store.
func (s *SQLiteStore) ListQueued(ctx context.Context, queue Name, max int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, queue, owner_key, row_id, payload, status, tries, enqueued_at, next_attempt_at, last_error
FROM queue_entries
WHERE queue = ? AND status = 'queued'
ORDER BY id ASC
LIMIT ?`, string(queue), max)
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
			next sql.NullTime
		)
		if err := rows.Scan(&e.ID, &q, &e.OwnerKey, &e.RowID, &e.Payload, &st, &e.Tries, &e.EnqueuedAt, &next, &e.LastError); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		e.Queue = Name(q)
		e.Status = Status(st)
		if next.Valid {
			e.NextAttemptAt = next.Time
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s queue: %w", queue, err)
	}
	return out, nil
}

// Remove implements Store.
func (s *SQLiteStore) Remove(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM queue_entries WHERE id IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("remove queue entries: %w", err)
	}
	return nil
}

// SetError implements Store.
func (s *SQLiteStore) SetError(ctx context.Context, id int64, msg string) error {
	if _, err := s.db.ExecContext(ctx, `
UPDATE queue_entries SET status = 'error', last_error = ?, tries = tries + 1 WHERE id = ?`,
		msg, id); err != nil {
		return fmt.Errorf("mark entry %d failed: %w", id, err)
	}
	return nil
}

// Depth implements Store.
func (s *SQLiteStore) Depth(ctx context.Context, queue Name) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM queue_entries WHERE queue = ? AND status = 'queued'",
		string(queue)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("depth of %s queue: %w", queue, err)
	}
	return n, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
