package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
)

// Columns names the columns of the input tables. Empty optional names are
// read as NULL.
type Columns struct {
	Mid           string
	DownstreamMid string
	StreamOrder   string
	DrainageArea  string
	GaugeID       string
	X             string
	Y             string
	ClusterLabel  string
}

// source returns the DuckDB table function reading path. Parquet is chosen
// by name (".parquet", ".parquet.gzip"); everything else is sniffed as CSV,
// compressed CSV included.
func source(path string) string {
	lit := "'" + strings.ReplaceAll(path, "'", "''") + "'"
	if strings.Contains(strings.ToLower(filepath.Base(path)), ".parquet") {
		return "read_parquet(" + lit + ")"
	}
	return "read_csv_auto(" + lit + ")"
}

func ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// sourceColumns lists the columns of an input file, lower-cased. DuckDB
// resolves identifiers case-insensitively.
func (s *Store) sourceColumns(src string) (map[string]bool, error) {
	rows, err := s.DB.Query("SELECT * FROM " + src + " LIMIT 0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	cols := make(map[string]bool, len(names))
	for _, n := range names {
		cols[strings.ToLower(n)] = true
	}
	return cols, nil
}

type projection struct {
	cols map[string]bool
	err  error
}

func (p *projection) required(name, typ string) string {
	if name == "" || !p.cols[strings.ToLower(name)] {
		if p.err == nil {
			p.err = fmt.Errorf("missing required column %q", name)
		}
		return "NULL"
	}
	return fmt.Sprintf("CAST(%s AS %s)", ident(name), typ)
}

func (p *projection) optional(name, typ string) string {
	if name == "" || !p.cols[strings.ToLower(name)] {
		return "NULL"
	}
	return fmt.Sprintf("TRY_CAST(%s AS %s)", ident(name), typ)
}

// importInto replaces table with rows selected from path. build receives the
// file's columns and returns the SELECT list.
func (s *Store) importInto(table, path string, build func(*projection) string) (int, error) {
	src := source(path)
	cols, err := s.sourceColumns(src)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	p := &projection{cols: cols}
	selectList := build(p)
	if p.err != nil {
		return 0, fmt.Errorf("%s: %w", path, p.err)
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return 0, fmt.Errorf("clearing %s: %w", table, err)
	}
	if _, err := tx.Exec(fmt.Sprintf("INSERT INTO %s %s FROM %s", table, selectList, src)); err != nil {
		return 0, fmt.Errorf("loading %s into %s: %w", path, table, err)
	}
	var n int
	if err := tx.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// ImportBasins replaces the basin table with the drainage table at path.
// Downstream ids that are NULL, zero or negative mark outlets.
func (s *Store) ImportBasins(path string, c Columns) (int, error) {
	return s.importInto("basins", path, func(p *projection) string {
		ds := p.required(c.DownstreamMid, "BIGINT")
		return fmt.Sprintf(`(mid, downstream_mid, stream_order, drainage_area, x, y)
			SELECT %s, CASE WHEN %s > 0 THEN %s END, COALESCE(%s, 0), COALESCE(%s, 0), %s, %s`,
			p.required(c.Mid, "BIGINT"), ds, ds,
			p.optional(c.StreamOrder, "INTEGER"), p.optional(c.DrainageArea, "DOUBLE"),
			p.optional(c.X, "DOUBLE"), p.optional(c.Y, "DOUBLE"))
	})
}

// ImportGauges replaces the gauge table with the gauge table at path.
func (s *Store) ImportGauges(path string, c Columns) (int, error) {
	return s.importInto("gauges", path, func(p *projection) string {
		return fmt.Sprintf(`(gauge_id, mid, x, y) SELECT %s, %s, %s, %s`,
			p.required(c.GaugeID, "VARCHAR"), p.required(c.Mid, "BIGINT"),
			p.optional(c.X, "DOUBLE"), p.optional(c.Y, "DOUBLE"))
	})
}

// ImportLabels replaces the cluster labels with the table at path.
func (s *Store) ImportLabels(path string, c Columns) (int, error) {
	return s.importInto("cluster_labels", path, func(p *projection) string {
		return fmt.Sprintf(`(mid, label) SELECT %s, %s`,
			p.required(c.Mid, "BIGINT"), p.required(c.ClusterLabel, "INTEGER"))
	})
}

// WriteBasins replaces the basin table.
func (s *Store) WriteBasins(basins []model.Basin) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM basins"); err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO basins (mid, downstream_mid, stream_order, drainage_area, x, y) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range basins {
		var x, y any
		if b.HasCoords {
			x, y = b.X, b.Y
		}
		if _, err := stmt.Exec(b.Mid, nullInt64(b.DownstreamMid), b.StreamOrder, b.DrainageArea, x, y); err != nil {
			return fmt.Errorf("inserting basin %d: %w", b.Mid, err)
		}
	}
	return tx.Commit()
}

// ReadBasins loads every basin ordered by id.
func (s *Store) ReadBasins() ([]model.Basin, error) {
	rows, err := s.DB.Query("SELECT mid, downstream_mid, stream_order, drainage_area, x, y FROM basins ORDER BY mid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var basins []model.Basin
	for rows.Next() {
		var b model.Basin
		var ds sql.NullInt64
		var x, y sql.NullFloat64
		if err := rows.Scan(&b.Mid, &ds, &b.StreamOrder, &b.DrainageArea, &x, &y); err != nil {
			return nil, err
		}
		if ds.Valid {
			b.DownstreamMid = model.Int64Ptr(ds.Int64)
		}
		if x.Valid && y.Valid {
			b.X, b.Y, b.HasCoords = x.Float64, y.Float64, true
		}
		basins = append(basins, b)
	}
	return basins, rows.Err()
}

// WriteGauges replaces the gauge table.
func (s *Store) WriteGauges(gauges []model.Gauge) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM gauges"); err != nil {
		return err
	}
	for _, g := range gauges {
		var x, y any
		if g.HasCoords {
			x, y = g.X, g.Y
		}
		if _, err := tx.Exec("INSERT INTO gauges (gauge_id, mid, x, y) VALUES (?, ?, ?, ?)", g.GaugeID, g.Mid, x, y); err != nil {
			return fmt.Errorf("inserting gauge %s: %w", g.GaugeID, err)
		}
	}
	return tx.Commit()
}

// ReadGauges loads every gauge ordered by id.
func (s *Store) ReadGauges() ([]model.Gauge, error) {
	rows, err := s.DB.Query("SELECT gauge_id, mid, x, y FROM gauges ORDER BY gauge_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gauges []model.Gauge
	for rows.Next() {
		var g model.Gauge
		var x, y sql.NullFloat64
		if err := rows.Scan(&g.GaugeID, &g.Mid, &x, &y); err != nil {
			return nil, err
		}
		if x.Valid && y.Valid {
			g.X, g.Y, g.HasCoords = x.Float64, y.Float64, true
		}
		gauges = append(gauges, g)
	}
	return gauges, rows.Err()
}

// WriteLabels replaces the cluster labels.
func (s *Store) WriteLabels(labels map[int64]int) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM cluster_labels"); err != nil {
		return err
	}
	for mid, label := range labels {
		if _, err := tx.Exec("INSERT INTO cluster_labels (mid, label) VALUES (?, ?)", mid, label); err != nil {
			return fmt.Errorf("inserting label for basin %d: %w", mid, err)
		}
	}
	return tx.Commit()
}

// ReadLabels loads the cluster labels.
func (s *Store) ReadLabels() (map[int64]int, error) {
	rows, err := s.DB.Query("SELECT mid, label FROM cluster_labels")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	labels := make(map[int64]int)
	for rows.Next() {
		var mid int64
		var label int
		if err := rows.Scan(&mid, &label); err != nil {
			return nil, err
		}
		labels[mid] = label
	}
	return labels, rows.Err()
}

func nullInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
