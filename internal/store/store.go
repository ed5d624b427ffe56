package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Store manages all data persistence via DuckDB.
type Store struct {
	DB      *sql.DB
	DataDir string
}

// New opens (or creates) a DuckDB database in the given data directory.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "basinmatch.duckdb")
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}

	s := &Store{DB: db, DataDir: dataDir}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS basins (
			mid BIGINT PRIMARY KEY,
			downstream_mid BIGINT,
			stream_order INTEGER NOT NULL DEFAULT 0,
			drainage_area DOUBLE NOT NULL DEFAULT 0,
			x DOUBLE,
			y DOUBLE
		)`,
		`CREATE TABLE IF NOT EXISTS gauges (
			gauge_id TEXT PRIMARY KEY,
			mid BIGINT NOT NULL,
			x DOUBLE,
			y DOUBLE
		)`,
		`CREATE TABLE IF NOT EXISTS cluster_labels (
			mid BIGINT PRIMARY KEY,
			label INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS assignments (
			mid BIGINT PRIMARY KEY,
			gauge_id TEXT,
			assigned_mid BIGINT,
			assigned_gauge_id TEXT,
			cluster_label INTEGER,
			reason TEXT NOT NULL,
			distance DOUBLE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS propagation (
			stage TEXT NOT NULL,
			mid BIGINT NOT NULL,
			gauge_mid BIGINT NOT NULL,
			gauge_id TEXT NOT NULL,
			hops INTEGER NOT NULL,
			reason TEXT NOT NULL,
			gauge_area DOUBLE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Meta returns a value from the meta table, or "" if unset.
func (s *Store) Meta(key string) string {
	var v sql.NullString
	s.DB.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&v)
	return v.String
}

func (s *Store) count(table string) int {
	var n int
	s.DB.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n)
	return n
}

// BasinCount returns the number of ingested basins.
func (s *Store) BasinCount() int { return s.count("basins") }

// GaugeCount returns the number of ingested gauges.
func (s *Store) GaugeCount() int { return s.count("gauges") }

// LabelCount returns the number of basins with a cluster label.
func (s *Store) LabelCount() int { return s.count("cluster_labels") }

// AssignmentCount returns the number of rows in the assignment table.
func (s *Store) AssignmentCount() int { return s.count("assignments") }

// CountByReason returns assignment counts per reason code.
func (s *Store) CountByReason() map[string]int {
	m := make(map[string]int)
	rows, err := s.DB.Query("SELECT reason, COUNT(*) FROM assignments GROUP BY reason ORDER BY reason")
	if err != nil {
		return m
	}
	defer rows.Close()
	for rows.Next() {
		var reason string
		var cnt int
		rows.Scan(&reason, &cnt)
		m[reason] = cnt
	}
	return m
}

// PropagationCountByStage returns propagation row counts per stage.
func (s *Store) PropagationCountByStage() map[string]int {
	m := make(map[string]int)
	rows, err := s.DB.Query("SELECT stage, COUNT(*) FROM propagation GROUP BY stage ORDER BY stage")
	if err != nil {
		return m
	}
	defer rows.Close()
	for rows.Next() {
		var stage string
		var cnt int
		rows.Scan(&stage, &cnt)
		m[stage] = cnt
	}
	return m
}
