// Package store persists the last known state of every catalog entity in
// SQLite so values survive restarts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/zorak1103/ha-macs/internal/catalog"
	"github.com/zorak1103/ha-macs/internal/logging"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o600
	msPerSecond     = 1000

	connectionTimeout = 5 * time.Second
	writeTimeout      = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS entity_state (
	entity_id  TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// Config contains store options. These map to the store section of config.yaml.
type Config struct {
	Path string
	// WALMode allows reads while a write is in flight.
	WALMode bool
	// BusyTimeout is the lock wait in seconds.
	BusyTimeout int
}

// Store is a SQLite-backed key/value table of entity states.
type Store struct {
	db     *sql.DB
	path   string
	logger *logging.Logger
	now    func() time.Time
}

// Open creates the database file and its directory if needed and applies the schema.
func Open(cfg Config, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d", cfg.Path, cfg.BusyTimeout*msPerSecond)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // best effort on error path
		return nil, fmt.Errorf("verifying store connection: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck // best effort on error path
		return nil, fmt.Errorf("applying store schema: %w", err)
	}

	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // file may appear after first write

	return &Store{
		db:     db,
		path:   cfg.Path,
		logger: logger.Component("store"),
		now:    time.Now,
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// HealthCheck verifies the database answers queries.
func (s *Store) HealthCheck(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	return nil
}

// Load returns every persisted state keyed by logical entity id.
func (s *Store) Load(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT entity_id, value FROM entity_state")
	if err != nil {
		return nil, fmt.Errorf("loading states: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	states := make(map[string]string)
	for rows.Next() {
		var id, value string
		if err := rows.Scan(&id, &value); err != nil {
			return nil, fmt.Errorf("scanning state: %w", err)
		}
		states[id] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating states: %w", err)
	}
	return states, nil
}

// Save upserts the state of one entity.
func (s *Store) Save(ctx context.Context, id, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entity_state (entity_id, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(entity_id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		id, value, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving state of %s: %w", id, err)
	}
	return nil
}

// EntityChanged implements catalog.Observer by persisting the new state.
// Failures are logged; the in-memory value stays authoritative.
func (s *Store) EntityChanged(e *catalog.Entity, state string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := s.Save(ctx, e.ID(), state); err != nil {
		s.logger.Error("Failed to persist entity state", "entity", e.ID(), "error", err)
		return
	}
	s.logger.Trace("Persisted entity state", "entity", e.ID(), "state", state)
}

// RestoreCatalog loads persisted states into c. Invalid values are logged
// and leave the entity at its default.
func (s *Store) RestoreCatalog(ctx context.Context, c *catalog.Catalog) error {
	states, err := s.Load(ctx)
	if err != nil {
		return err
	}
	restored, rejected := c.RestoreAll(states)
	for _, id := range rejected {
		s.logger.Warn("Ignoring invalid persisted state", "entity", id, "value", states[id])
	}
	s.logger.Info("Restored entity states", "restored", restored, "rejected", len(rejected))
	return nil
}
