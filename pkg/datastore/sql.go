// Package datastore provides a SQLite-backed pending-delivery queue.
package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/caserelay/pkg/model"
	"github.com/NicolasHaas/caserelay/pkg/store"
)

// PendingStore keeps undeliverable messages in SQLite so queues survive a restart.
type PendingStore struct {
	DB *sql.DB
}

// Compile-time check: *PendingStore implements store.PendingStore.
var _ store.PendingStore = (*PendingStore)(nil)

// NewPendingStore opens (or creates) a SQLite database and runs migrations.
func NewPendingStore(dbPath string) (*PendingStore, error) {
	// WAL for concurrent readers, busy_timeout to avoid "database is locked"
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("datastore: open DB: %w", err)
	}
	// A single connection serializes writers; drain transactions stay atomic.
	db.SetMaxOpenConns(1)

	s := &PendingStore{DB: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *PendingStore) Close() error {
	return s.DB.Close()
}

func (s *PendingStore) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS pending_messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		identity   TEXT    NOT NULL CHECK(length(identity) > 0),
		body       TEXT    NOT NULL,
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);
	`
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version: 2,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS idx_pending_identity ON pending_messages (identity, id)",
			},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if err := s.execMigration(ctx, stmt); err != nil {
				return err
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *PendingStore) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.DB.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *PendingStore) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.DB.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}

func (s *PendingStore) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.DB.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("datastore: update schema version: %w", err)
	}
	return nil
}

func (s *PendingStore) execMigration(ctx context.Context, stmt string) error {
	if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("datastore: migrate: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied migration version.
func (s *PendingStore) SchemaVersion() (int, error) {
	return s.getSchemaVersion(context.Background())
}

// Enqueue appends msg to the identity's queue.
func (s *PendingStore) Enqueue(identity string, msg model.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("datastore: encode message: %w", err)
	}
	_, err = s.DB.ExecContext(context.Background(),
		"INSERT INTO pending_messages (identity, body) VALUES (?, ?)", identity, string(body))
	if err != nil {
		return fmt.Errorf("datastore: enqueue: %w", err)
	}
	return nil
}

// DrainAndClear removes and returns the identity's queue in one transaction.
func (s *PendingStore) DrainAndClear(identity string) ([]model.Message, error) {
	ctx := context.Background()
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("datastore: begin drain: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		"SELECT body FROM pending_messages WHERE identity = ? ORDER BY id", identity)
	if err != nil {
		return nil, fmt.Errorf("datastore: drain: %w", err)
	}

	var msgs []model.Message
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("datastore: scan pending: %w", err)
		}
		var m model.Message
		if err := json.Unmarshal([]byte(body), &m); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("datastore: decode pending: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("datastore: drain: %w", err)
	}
	_ = rows.Close()

	if len(msgs) == 0 {
		return nil, nil
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM pending_messages WHERE identity = ?", identity); err != nil {
		return nil, fmt.Errorf("datastore: clear pending: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("datastore: commit drain: %w", err)
	}
	return msgs, nil
}

// Len returns the queue length for identity.
func (s *PendingStore) Len(identity string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM pending_messages WHERE identity = ?", identity).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("datastore: count pending: %w", err)
	}
	return n, nil
}

// Total returns the number of queued messages.
func (s *PendingStore) Total() (int, error) {
	var n int
	if err := s.DB.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM pending_messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("datastore: count pending: %w", err)
	}
	return n, nil
}
