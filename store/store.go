// Package store keeps the latest cleaned record set in a SQLite table.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/aluiziolira/go-scrape-laptops/config"
	"github.com/aluiziolira/go-scrape-laptops/models"
)

// Store wraps the SQLite database holding the laptops table.
type Store struct {
	db      *sql.DB
	table   string
	staging string

	// writeMu serializes Persist calls; readers rely on SQLite snapshots.
	writeMu sync.Mutex
}

// Open connects to the database file at path and prepares it for use.
func Open(path, table string) (*Store, error) {
	if !config.ValidTableName(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Store{
		db:      db,
		table:   table,
		staging: table + "_staging",
	}, nil
}

// OpenConfig opens the store described by cfg.
func OpenConfig(cfg *config.Config) (*Store, error) {
	return Open(cfg.DatabasePath, cfg.TableName)
}

func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Persist replaces the stored table with records. The swap happens in one
// transaction: readers see either the previous table or the new one.
func (s *Store) Persist(ctx context.Context, records models.RecordSet) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin persist: %w", err)
	}
	defer tx.Rollback()

	staging := quote(s.staging)
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+staging); err != nil {
		return fmt.Errorf("drop staging table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE TABLE `+staging+` (
		Name   TEXT    NOT NULL,
		Price  INTEGER NOT NULL,
		Rating REAL    NOT NULL
	)`); err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+staging+` (Name, Price, Rating) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, laptop := range records {
		if _, err := stmt.ExecContext(ctx, laptop.Name, laptop.Price, laptop.Rating); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+quote(s.table)); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE `+staging+` RENAME TO `+quote(s.table)); err != nil {
		return fmt.Errorf("swap tables: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit persist: %w", err)
	}
	return nil
}

// QueryAll returns every stored record in insertion order. Before the
// first Persist it returns an empty set.
func (s *Store) QueryAll(ctx context.Context) (models.RecordSet, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin query: %w", err)
	}
	defer tx.Rollback()

	exists, err := tableExists(ctx, tx, s.table)
	if err != nil {
		return nil, err
	}
	records := models.RecordSet{}
	if !exists {
		return records, nil
	}

	rows, err := tx.QueryContext(ctx, `SELECT Name, Price, Rating FROM `+quote(s.table)+` ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var laptop models.Laptop
		if err := rows.Scan(&laptop.Name, &laptop.Price, &laptop.Rating); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, laptop)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin count: %w", err)
	}
	defer tx.Rollback()

	exists, err := tableExists(ctx, tx, s.table)
	if err != nil || !exists {
		return 0, err
	}

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+quote(s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Version returns a counter that changes whenever Persist commits. It
// reads the database schema cookie, which every table swap bumps, so it
// also sees commits made by other processes sharing the file.
func (s *Store) Version(ctx context.Context) (int64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func tableExists(ctx context.Context, tx *sql.Tx, table string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup table %s: %w", table, err)
	}
	return n > 0, nil
}

func quote(identifier string) string {
	return `"` + identifier + `"`
}
