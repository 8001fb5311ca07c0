// Package sqlite provides the SQLite-backed local store adapter: typed
// access to the configured tables plus the durable transaction log that
// records every local mutation for the queue consumer.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	docsync "github.com/c0deZ3R0/go-docsync"
	syncErrors "github.com/c0deZ3R0/go-docsync/errors"
	"github.com/c0deZ3R0/go-docsync/logging"
	"github.com/c0deZ3R0/go-docsync/schema"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// Operation constants for consistent error reporting
const (
	opGet     = syncErrors.Op("sqlite.Get")
	opList    = syncErrors.Op("sqlite.List")
	opPut     = syncErrors.Op("sqlite.Put")
	opBulkPut = syncErrors.Op("sqlite.BulkPut")
	opRemove  = syncErrors.Op("sqlite.Remove")
	opPending = syncErrors.Op("sqlite.PendingTransactions")
	opDelTx   = syncErrors.Op("sqlite.DeleteTransaction")

	component = syncErrors.Component("storage/sqlite")
)

// Config holds configuration options for the Store.
type Config struct {
	// DataSourceName is the connection string for the SQLite database.
	DataSourceName string

	// Schema is the static table configuration driving DDL and validation.
	Schema *schema.Schema

	// EnableWAL enables Write-Ahead Logging mode for better concurrency.
	// Recommended for production use; appends "?_journal_mode=WAL" to the
	// DSN when not already present.
	EnableWAL bool

	// Connection pool settings.
	// Defaults: MaxOpen=25, MaxIdle=5, Lifetime=1h, IdleTime=5m
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.EnableWAL && !strings.Contains(c.DataSourceName, "_journal_mode=") {
		c.DataSourceName += "?_journal_mode=WAL"
	}
}

// DefaultConfig returns a Config with production-ready defaults.
func DefaultConfig(dataSourceName string, sc *schema.Schema) *Config {
	config := &Config{
		DataSourceName: dataSourceName,
		Schema:         sc,
		EnableWAL:      true,
	}
	config.setDefaults()
	return config
}

// Store implements docsync.LocalStore on SQLite, and additionally exposes
// the logging mutation entry points (Create/Save/SoftDelete/Restore/Delete)
// used by the application's write path.
type Store struct {
	db     *sql.DB
	schema *schema.Schema
	logger *logging.Logger

	mu     sync.RWMutex
	closed bool
	ready  chan struct{}
}

// Compile-time check that Store satisfies the engine's LocalStore contract.
var _ docsync.LocalStore = (*Store)(nil)

// New opens (creating if necessary) the local database described by config.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	config.setDefaults()

	if config.DataSourceName == "" {
		return nil, fmt.Errorf("DataSourceName is required")
	}
	if config.Schema == nil {
		return nil, fmt.Errorf("Schema is required")
	}

	logger := logging.WithComponent(logging.Component("sqlite-store"))

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	store := &Store{
		db:     db,
		schema: config.Schema,
		logger: logger,
		ready:  make(chan struct{}),
	}

	if err := store.setupSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database schema: %w", err)
	}
	close(store.ready)
	store.logger.Debug("local store initialized", "tables", len(config.Schema.Tables()))

	return store, nil
}

// setupSchema creates one document table per configured table plus the
// transaction log table.
func (s *Store) setupSchema() error {
	var b strings.Builder
	b.WriteString(`
    CREATE TABLE IF NOT EXISTS transaction_log (
        log_id     INTEGER PRIMARY KEY AUTOINCREMENT,
        tbl        TEXT NOT NULL,
        action     TEXT NOT NULL,
        object_id  TEXT NOT NULL,
        data       TEXT,
        old_data   TEXT,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    `)
	for _, name := range s.schema.Tables() {
		tbl, _ := s.schema.Table(name)
		fmt.Fprintf(&b, `
    CREATE TABLE IF NOT EXISTS %q (
        id       TEXT PRIMARY KEY,
        doc      TEXT NOT NULL,
        owner_id TEXT,
        state_id TEXT
    );
    `, name)
		if tbl.HasOwner() {
			fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS idx_%s_owner ON %q (owner_id);\n", name, name)
		}
		if tbl.HasState() {
			fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS idx_%s_state ON %q (state_id);\n", name, name)
		}
	}
	_, err := s.db.Exec(b.String())
	return err
}

// WaitReady blocks until the store is initialized for table access.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ready:
		return nil
	}
}

// table resolves a table definition; unknown names are API misuse.
func (s *Store) table(op syncErrors.Op, name string) (*schema.Table, error) {
	tbl, ok := s.schema.Table(name)
	if !ok {
		return nil, syncErrors.E(op, component, syncErrors.KindInvalid,
			"unknown table '"+name+"'")
	}
	return tbl, nil
}

// Get implements docsync.LocalStore.
func (s *Store) Get(ctx context.Context, table, id string) (docsync.Record, error) {
	tbl, err := s.table(opGet, table)
	if err != nil {
		return nil, err
	}

	var doc string
	query := fmt.Sprintf(`SELECT doc FROM %q WHERE id = ?`, table)
	err = s.db.QueryRowContext(ctx, query, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, syncErrors.E(opGet, component, syncErrors.KindNotFound,
			"no record '"+id+"' in table '"+table+"'")
	}
	if err != nil {
		return nil, syncErrors.WrapOpComponentKind(err, opGet, component, syncErrors.KindStorage)
	}
	return decodeRecord(tbl, doc)
}

// List implements docsync.LocalStore.
func (s *Store) List(ctx context.Context, table string) ([]docsync.Record, error) {
	tbl, err := s.table(opList, table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT doc FROM %q ORDER BY id`, table)
	return s.queryRecords(ctx, tbl, query)
}

// ListActive implements docsync.LocalStore. Soft-deleted records are
// excluded; tables without a stateId field have no soft deletes, so every
// record is returned.
func (s *Store) ListActive(ctx context.Context, table string) ([]docsync.Record, error) {
	tbl, err := s.table(opList, table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT doc FROM %q WHERE state_id IS NULL OR state_id != ? ORDER BY id`, table)
	return s.queryRecords(ctx, tbl, query, schema.StateDeleted)
}

func (s *Store) queryRecords(ctx context.Context, tbl *schema.Table, query string, args ...any) ([]docsync.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, syncErrors.WrapOpComponentKind(err, opList, component, syncErrors.KindStorage)
	}
	defer rows.Close()

	var records []docsync.Record
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, syncErrors.WrapOpComponentKind(err, opList, component, syncErrors.KindStorage)
		}
		rec, err := decodeRecord(tbl, doc)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, syncErrors.WrapOpComponentKind(err, opList, component, syncErrors.KindStorage)
	}
	return records, nil
}

// Put implements docsync.LocalStore: an upsert that does NOT create a
// transaction log entry. Used by the reconcilers and the listener bridge.
func (s *Store) Put(ctx context.Context, table string, rec docsync.Record) error {
	if _, err := s.table(opPut, table); err != nil {
		return err
	}
	return s.putTx(ctx, s.db, table, rec)
}

// execer abstracts *sql.DB and *sql.Tx for shared write helpers.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) putTx(ctx context.Context, ex execer, table string, rec docsync.Record) error {
	doc, err := encodeRecord(rec)
	if err != nil {
		return syncErrors.WrapOpComponentKind(err, opPut, component, syncErrors.KindStorage)
	}
	query := fmt.Sprintf(`
        INSERT INTO %q (id, doc, owner_id, state_id) VALUES (?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET doc = excluded.doc,
            owner_id = excluded.owner_id, state_id = excluded.state_id`, table)
	_, err = ex.ExecContext(ctx, query, rec.ID(), doc, nullable(rec.OwnerID()), nullable(rec.StateID()))
	return syncErrors.WrapOpComponentKind(err, opPut, component, syncErrors.KindStorage)
}

// BulkPut implements docsync.LocalStore: a batch upsert in one SQL
// transaction, bypassing the transaction log.
func (s *Store) BulkPut(ctx context.Context, table string, recs []docsync.Record) error {
	if _, err := s.table(opBulkPut, table); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return syncErrors.WrapOpComponentKind(err, opBulkPut, component, syncErrors.KindStorage)
	}
	defer tx.Rollback()

	for _, rec := range recs {
		if err := s.putTx(ctx, tx, table, rec); err != nil {
			return err
		}
	}
	return syncErrors.WrapOpComponentKind(tx.Commit(), opBulkPut, component, syncErrors.KindStorage)
}

// Remove implements docsync.LocalStore: a delete that does NOT create a
// transaction log entry.
func (s *Store) Remove(ctx context.Context, table, id string) error {
	if _, err := s.table(opRemove, table); err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, table)
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return syncErrors.WrapOpComponentKind(err, opRemove, component, syncErrors.KindStorage)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return syncErrors.E(opRemove, component, syncErrors.KindNotFound,
			"no record '"+id+"' in table '"+table+"'")
	}
	return nil
}

// PendingTransactions implements docsync.LocalStore, returning the log in
// FIFO order.
func (s *Store) PendingTransactions(ctx context.Context) ([]docsync.LogEntry, error) {
	query := `SELECT log_id, tbl, action, object_id, data, old_data
              FROM transaction_log ORDER BY log_id ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, syncErrors.WrapOpComponentKind(err, opPending, component, syncErrors.KindStorage)
	}
	defer rows.Close()

	var entries []docsync.LogEntry
	for rows.Next() {
		var (
			entry         docsync.LogEntry
			action        string
			data, oldData sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.Table, &action, &entry.ObjectID, &data, &oldData); err != nil {
			return nil, syncErrors.WrapOpComponentKind(err, opPending, component, syncErrors.KindStorage)
		}
		entry.Action = docsync.Action(action)
		if data.Valid {
			if err := json.Unmarshal([]byte(data.String), &entry.Data); err != nil {
				return nil, syncErrors.WrapOpComponentKind(err, opPending, component, syncErrors.KindStorage)
			}
		}
		if oldData.Valid {
			if err := json.Unmarshal([]byte(oldData.String), &entry.OldData); err != nil {
				return nil, syncErrors.WrapOpComponentKind(err, opPending, component, syncErrors.KindStorage)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, syncErrors.WrapOpComponentKind(err, opPending, component, syncErrors.KindStorage)
	}
	return entries, nil
}

// DeleteTransaction implements docsync.LocalStore.
func (s *Store) DeleteTransaction(ctx context.Context, logID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transaction_log WHERE log_id = ?`, logID)
	return syncErrors.WrapOpComponentKind(err, opDelTx, component, syncErrors.KindStorage)
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Stats returns database statistics for monitoring.
func (s *Store) Stats() sql.DBStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return sql.DBStats{}
	}
	return s.db.Stats()
}

func encodeRecord(rec docsync.Record) (string, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeRecord unmarshals a stored document and rehydrates its declared
// time fields, which JSON round-trips as RFC 3339 strings.
func decodeRecord(tbl *schema.Table, doc string) (docsync.Record, error) {
	var rec docsync.Record
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, syncErrors.WrapOpComponentKind(err, opGet, component, syncErrors.KindStorage)
	}
	return docsync.NormalizeTimestamps(tbl, rec), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
