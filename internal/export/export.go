// Package export writes the assignment and propagation tables as gzip CSV
// and the assignments as GeoJSON for GIS tools.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
)

// Tables is everything an export writes.
type Tables struct {
	Basins      []model.Basin
	Records     []model.AssignmentRecord
	Propagation map[string][]model.Candidate // keyed by stage
}

// WriteAssignmentsCSV writes the assignment table with a header row.
func WriteAssignmentsCSV(w io.Writer, records []model.AssignmentRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"mid", "gauge_id", "assigned_mid", "assigned_gauge_id", "cluster_label", "reason", "distance"}); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.Mid, 10),
			r.GaugeID,
			"",
			r.AssignedGaugeID,
			"",
			string(r.Reason),
			strconv.FormatFloat(r.Distance, 'g', -1, 64),
		}
		if r.AssignedMid != nil {
			row[2] = strconv.FormatInt(*r.AssignedMid, 10)
		}
		if r.ClusterLabel != nil {
			row[4] = strconv.Itoa(*r.ClusterLabel)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCandidatesCSV writes one propagation table with a header row.
func WriteCandidatesCSV(w io.Writer, cands []model.Candidate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"mid", "gauge_mid", "gauge_id", "hops", "reason", "gauge_area"}); err != nil {
		return err
	}
	for _, c := range cands {
		if err := cw.Write([]string{
			strconv.FormatInt(c.Mid, 10),
			strconv.FormatInt(c.GaugeMid, 10),
			c.GaugeID,
			strconv.Itoa(c.Hops),
			string(c.Reason),
			strconv.FormatFloat(c.GaugeArea, 'g', -1, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeGzip creates path and streams fn's output through gzip.
func writeGzip(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	if err := fn(zw); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

func writeJSON(path string, v interface{ MarshalJSON() ([]byte, error) }) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Dir writes every export into dir and returns the paths written.
func Dir(dir string, t Tables) ([]string, error) {
	if err := os.MkdirAll(filepath.Join(dir, "geojson"), 0o755); err != nil {
		return nil, fmt.Errorf("creating export dir: %w", err)
	}

	var written []string
	path := filepath.Join(dir, "assignments.csv.gz")
	if err := writeGzip(path, func(w io.Writer) error { return WriteAssignmentsCSV(w, t.Records) }); err != nil {
		return written, fmt.Errorf("writing %s: %w", path, err)
	}
	written = append(written, path)

	for _, stage := range model.Stages {
		path := filepath.Join(dir, "propagation_"+stage+".csv.gz")
		cands := t.Propagation[stage]
		if err := writeGzip(path, func(w io.Writer) error { return WriteCandidatesCSV(w, cands) }); err != nil {
			return written, fmt.Errorf("writing %s: %w", path, err)
		}
		written = append(written, path)
	}

	for _, by := range []Grouping{ByReason, ByCluster, Unassigned} {
		for key, fc := range Collections(t.Basins, t.Records, by) {
			name := fmt.Sprintf("%s_%s.geojson", by, key)
			if by == Unassigned {
				name = "unassigned.geojson"
			}
			path := filepath.Join(dir, "geojson", name)
			if err := writeJSON(path, fc); err != nil {
				return written, fmt.Errorf("writing %s: %w", path, err)
			}
			written = append(written, path)
		}
	}

	path = filepath.Join(dir, "geojson", "links.geojson")
	if err := writeJSON(path, Links(t.Basins, t.Records)); err != nil {
		return written, fmt.Errorf("writing %s: %w", path, err)
	}
	written = append(written, path)

	return written, nil
}
