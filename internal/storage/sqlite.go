package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversation_history (
	user_id    INTEGER NOT NULL,
	course_id  INTEGER NOT NULL,
	entries    TEXT    NOT NULL,
	updated_at TEXT    NOT NULL,
	PRIMARY KEY (user_id, course_id)
);`

// SQLiteStore keeps one row per (user, course) pair with the log as a JSON payload.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path, ensuring the parent
// directory exists, and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Load(ctx context.Context, key Key) (Log, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT entries FROM conversation_history WHERE user_id = ? AND course_id = ?`,
		key.UserID, key.CourseID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Log{}, nil
		}
		return Log{}, fmt.Errorf("query history: %w", err)
	}
	var log Log
	if err := json.Unmarshal([]byte(payload), &log); err != nil {
		return Log{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	if log == nil {
		log = Log{}
	}
	return log, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key Key, log Log) error {
	if log == nil {
		log = Log{}
	}
	payload, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversation_history (user_id, course_id, entries, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, course_id) DO UPDATE SET
			entries = excluded.entries,
			updated_at = excluded.updated_at`,
		key.UserID, key.CourseID, string(payload), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]Key, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, course_id FROM conversation_history ORDER BY user_id, course_id`)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	var keys []Key
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.UserID, &k.CourseID); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
