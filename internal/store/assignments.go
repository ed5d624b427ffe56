package store

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
)

// Propagation holds the candidate tables of one run.
type Propagation struct {
	Downstream []model.Candidate
	Upstream   []model.Candidate
	Resolved   []model.Candidate
}

func (p Propagation) stage(name string) []model.Candidate {
	switch name {
	case model.StageDownstream:
		return p.Downstream
	case model.StageUpstream:
		return p.Upstream
	case model.StageResolved:
		return p.Resolved
	}
	return nil
}

// WriteRun replaces the assignment and propagation tables with one run's
// output and records its metadata.
func (s *Store) WriteRun(meta model.RunMeta, records []model.AssignmentRecord, prop Propagation) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, tbl := range []string{"assignments", "propagation"} {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", tbl)); err != nil {
			return fmt.Errorf("clearing %s: %w", tbl, err)
		}
	}

	stmt, err := tx.Prepare(`INSERT INTO assignments (mid, gauge_id, assigned_mid, assigned_gauge_id, cluster_label, reason, distance)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range records {
		if _, err := stmt.Exec(r.Mid, nullString(r.GaugeID), nullInt64(r.AssignedMid), nullString(r.AssignedGaugeID),
			nullInt(r.ClusterLabel), string(r.Reason), r.Distance); err != nil {
			return fmt.Errorf("inserting assignment %d: %w", r.Mid, err)
		}
	}

	pstmt, err := tx.Prepare(`INSERT INTO propagation (stage, mid, gauge_mid, gauge_id, hops, reason, gauge_area)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer pstmt.Close()
	for _, stage := range model.Stages {
		for _, c := range prop.stage(stage) {
			if _, err := pstmt.Exec(stage, c.Mid, c.GaugeMid, c.GaugeID, c.Hops, string(c.Reason), c.GaugeArea); err != nil {
				return fmt.Errorf("inserting %s candidate for basin %d: %w", stage, c.Mid, err)
			}
		}
	}

	kv := map[string]string{
		"run_id":               meta.RunID,
		"assigned_at":          meta.AssignedAt,
		"max_hops":             strconv.Itoa(meta.MaxHops),
		"missing_evidence":     strconv.Itoa(meta.MissingEvidence),
		"malformed_components": strconv.Itoa(meta.Malformed),
	}
	for k, v := range kv {
		if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ReadRunMeta returns the metadata of the last stored run, or false if no
// run has been stored.
func (s *Store) ReadRunMeta() (model.RunMeta, bool) {
	meta := model.RunMeta{RunID: s.Meta("run_id"), AssignedAt: s.Meta("assigned_at")}
	if meta.RunID == "" {
		return meta, false
	}
	meta.MaxHops, _ = strconv.Atoi(s.Meta("max_hops"))
	meta.MissingEvidence, _ = strconv.Atoi(s.Meta("missing_evidence"))
	meta.Malformed, _ = strconv.Atoi(s.Meta("malformed_components"))
	return meta, true
}

// ReadAssignments loads the assignment table ordered by basin id. A non-empty
// reason restricts the result to that reason.
func (s *Store) ReadAssignments(reason model.Reason) ([]model.AssignmentRecord, error) {
	q := "SELECT mid, gauge_id, assigned_mid, assigned_gauge_id, cluster_label, reason, distance FROM assignments"
	var args []any
	if reason != "" {
		q += " WHERE reason = ?"
		args = append(args, string(reason))
	}
	rows, err := s.DB.Query(q+" ORDER BY mid", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.AssignmentRecord
	for rows.Next() {
		var r model.AssignmentRecord
		var gaugeID, assignedGaugeID sql.NullString
		var assignedMid sql.NullInt64
		var label sql.NullInt32
		var reason string
		if err := rows.Scan(&r.Mid, &gaugeID, &assignedMid, &assignedGaugeID, &label, &reason, &r.Distance); err != nil {
			return nil, err
		}
		r.GaugeID = gaugeID.String
		r.AssignedGaugeID = assignedGaugeID.String
		r.Reason = model.Reason(reason)
		if assignedMid.Valid {
			r.AssignedMid = model.Int64Ptr(assignedMid.Int64)
		}
		if label.Valid {
			r.ClusterLabel = model.IntPtr(int(label.Int32))
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ReadPropagation loads one stage of the propagation tables.
func (s *Store) ReadPropagation(stage string) ([]model.Candidate, error) {
	rows, err := s.DB.Query(`SELECT mid, gauge_mid, gauge_id, hops, reason, gauge_area FROM propagation
		WHERE stage = ? ORDER BY mid, hops, gauge_id`, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		var c model.Candidate
		var reason string
		if err := rows.Scan(&c.Mid, &c.GaugeMid, &c.GaugeID, &c.Hops, &reason, &c.GaugeArea); err != nil {
			return nil, err
		}
		c.Reason = model.Reason(reason)
		out = append(out, c)
	}
	return out, rows.Err()
}
