package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "idverify/pkg/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_items (
	session_id UUID NOT NULL,
	item_key   TEXT NOT NULL,
	item_value TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, item_key)
);
CREATE INDEX IF NOT EXISTS session_items_expires_at_idx ON session_items (expires_at);
`

// PostgresStore keeps items in session_items. Expired rows are invisible to
// reads and removed by DeleteExpired.
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewPostgres returns a Postgres-backed store. Call EnsureSchema once at startup.
func NewPostgres(db *sql.DB, ttl time.Duration) *PostgresStore {
	return &PostgresStore{db: db, ttl: ttl, now: time.Now}
}

// EnsureSchema creates the table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure session_items schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetItem(ctx context.Context, sessionID id.BrowserSessionID, key, value string) error {
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set item: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_items (session_id, item_key, item_value, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, item_key)
		DO UPDATE SET item_value = EXCLUDED.item_value, expires_at = EXCLUDED.expires_at`,
		uuid.UUID(sessionID), key, value, now.Add(s.ttl))
	if err != nil {
		return fmt.Errorf("upsert item %q: %w", key, err)
	}
	// slide the whole session, matching the redis backend
	_, err = tx.ExecContext(ctx, `UPDATE session_items SET expires_at = $2 WHERE session_id = $1`,
		uuid.UUID(sessionID), now.Add(s.ttl))
	if err != nil {
		return fmt.Errorf("refresh session expiry: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) GetItem(ctx context.Context, sessionID id.BrowserSessionID, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `
		SELECT item_value FROM session_items
		WHERE session_id = $1 AND item_key = $2 AND expires_at > $3`,
		uuid.UUID(sessionID), key, s.now()).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select item %q: %w", key, err)
	}
	return v, nil
}

func (s *PostgresStore) Items(ctx context.Context, sessionID id.BrowserSessionID) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_key, item_value FROM session_items
		WHERE session_id = $1 AND expires_at > $2`,
		uuid.UUID(sessionID), s.now())
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	defer rows.Close()

	items := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items[k] = v
	}
	return items, rows.Err()
}

// DeleteExpired removes rows past their expiry and reports how many went.
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM session_items WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired items: %w", err)
	}
	return res.RowsAffected()
}
