package marker

import (
	"context"
	"fmt"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"user_consent_gate/internal/consent"
)

// SQLiteStore keeps the marker in a local_storage table of a per-device
// database file.
type SQLiteStore struct {
	mu   sync.Mutex
	conn *sqlite.Conn
}

func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate|sqlite.OpenReadWrite|sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("failed to open local storage: %w: %w", consent.ErrLocalStorageUnavailable, err)
	}

	err = sqlitex.Execute(conn, `
		CREATE TABLE IF NOT EXISTS local_storage (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create local storage table: %w: %w", consent.ErrLocalStorageUnavailable, err)
	}

	return &SQLiteStore{conn: conn}, nil
}

func (s *SQLiteStore) Present(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return false, consent.ErrLocalStorageUnavailable
	}
	s.conn.SetInterrupt(ctx.Done())

	var value string
	err := sqlitex.Execute(s.conn, `SELECT value FROM local_storage WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{Key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to read marker: %w: %w", consent.ErrLocalStorageUnavailable, err)
	}

	return value == Value, nil
}

func (s *SQLiteStore) Set(ctx context.Context) error {
	return s.exec(ctx, `INSERT INTO local_storage (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, Key, Value)
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	return s.exec(ctx, `DELETE FROM local_storage WHERE key = ?`, Key)
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return consent.ErrLocalStorageUnavailable
	}
	s.conn.SetInterrupt(ctx.Done())

	if err := sqlitex.Execute(s.conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		return fmt.Errorf("failed to write marker: %w: %w", consent.ErrLocalStorageUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
