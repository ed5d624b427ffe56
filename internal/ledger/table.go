// Package ledger holds the assignment table: one record per basin with the
// current assignment and its provenance.
package ledger

import (
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
)

// Source is a gauged basin that can lend its correction to other basins.
type Source struct {
	Basin        model.Basin
	GaugeID      string
	ClusterLabel *int
}

// Table is the assignment ledger. It is not safe for concurrent mutation;
// the orchestrator is its only writer.
type Table struct {
	basins  map[int64]model.Basin
	records map[int64]*model.AssignmentRecord
	mids    []int64
}

// New creates the table from the drainage basins. Basins carrying a gauge
// start gauged, everything else unassigned. Cluster labels may be nil.
func New(basins []model.Basin, gauges []model.Gauge, labels map[int64]int, log logrus.FieldLogger) (*Table, error) {
	t := &Table{
		basins:  make(map[int64]model.Basin, len(basins)),
		records: make(map[int64]*model.AssignmentRecord, len(basins)),
		mids:    make([]int64, 0, len(basins)),
	}

	for _, b := range basins {
		if _, dup := t.records[b.Mid]; dup {
			return nil, fmt.Errorf("duplicate basin id %d", b.Mid)
		}
		rec := &model.AssignmentRecord{Mid: b.Mid, Reason: model.ReasonUnassigned}
		if label, ok := labels[b.Mid]; ok {
			rec.ClusterLabel = model.IntPtr(label)
		}
		t.basins[b.Mid] = b
		t.records[b.Mid] = rec
		t.mids = append(t.mids, b.Mid)
	}
	slices.Sort(t.mids)

	for _, g := range gauges {
		rec, ok := t.records[g.Mid]
		if !ok {
			log.WithFields(logrus.Fields{"gauge_id": g.GaugeID, "mid": g.Mid}).Warn("gauge references unknown basin, skipping")
			continue
		}
		if rec.GaugeID != "" {
			keep := min(rec.GaugeID, g.GaugeID)
			log.WithFields(logrus.Fields{"mid": g.Mid, "gauge_id": g.GaugeID, "existing": rec.GaugeID, "kept": keep}).
				Warn("basin has more than one gauge")
			if keep == rec.GaugeID {
				continue
			}
		}
		rec.GaugeID = g.GaugeID
		rec.AssignedMid = model.Int64Ptr(g.Mid)
		rec.AssignedGaugeID = g.GaugeID
		rec.Reason = model.ReasonGauged
		rec.Distance = 0

		// Prefer the basin's own coordinates; fall back to the station's.
		if b := t.basins[g.Mid]; !b.HasCoords && g.HasCoords {
			b.X, b.Y, b.HasCoords = g.X, g.Y, true
			t.basins[g.Mid] = b
		}
	}

	return t, nil
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.mids)
}

// Get returns a copy of the record for mid.
func (t *Table) Get(mid int64) (model.AssignmentRecord, bool) {
	rec, ok := t.records[mid]
	if !ok {
		return model.AssignmentRecord{}, false
	}
	return *rec, true
}

// Basin returns the basin attributes the table was built from.
func (t *Table) Basin(mid int64) (model.Basin, bool) {
	b, ok := t.basins[mid]
	return b, ok
}

// Records returns a snapshot of every record, sorted by mid.
func (t *Table) Records() []model.AssignmentRecord {
	out := make([]model.AssignmentRecord, 0, len(t.mids))
	for _, mid := range t.mids {
		out = append(out, *t.records[mid])
	}
	return out
}

// UnassignedMids returns the ids of rows still eligible for assignment.
func (t *Table) UnassignedMids() []int64 {
	var out []int64
	for _, mid := range t.mids {
		if t.records[mid].Reason == model.ReasonUnassigned {
			out = append(out, mid)
		}
	}
	return out
}

// Gauged returns the gauged-basin lookup used by traversal: mid -> gauge id.
func (t *Table) Gauged() map[int64]string {
	out := make(map[int64]string)
	for _, mid := range t.mids {
		if rec := t.records[mid]; rec.Reason == model.ReasonGauged {
			out[mid] = rec.GaugeID
		}
	}
	return out
}

// Sources returns every gauged basin with its attributes, sorted by mid.
func (t *Table) Sources() []Source {
	var out []Source
	for _, mid := range t.mids {
		rec := t.records[mid]
		if rec.Reason != model.ReasonGauged {
			continue
		}
		out = append(out, Source{Basin: t.basins[mid], GaugeID: rec.GaugeID, ClusterLabel: rec.ClusterLabel})
	}
	return out
}

// Apply merges one decision. Only unassigned rows accept a decision, and the
// target must be a gauged record; anything else is a tier ordering bug.
func (t *Table) Apply(a model.Assignment) error {
	rec, ok := t.records[a.Mid]
	if !ok {
		return &InconsistentAssignmentError{Mid: a.Mid, Attempted: a.Reason, Detail: "basin not in table"}
	}
	if rec.Reason != model.ReasonUnassigned {
		return &InconsistentAssignmentError{Mid: a.Mid, Attempted: a.Reason, Existing: rec.Reason,
			Detail: "record already resolved"}
	}
	if !a.Reason.Valid() || a.Reason == model.ReasonGauged || a.Reason == model.ReasonUnassigned {
		return &InconsistentAssignmentError{Mid: a.Mid, Attempted: a.Reason, Existing: rec.Reason,
			Detail: "reason cannot be applied by a resolution tier"}
	}
	target, ok := t.records[a.AssignedMid]
	if !ok || target.Reason != model.ReasonGauged {
		return &InconsistentAssignmentError{Mid: a.Mid, Attempted: a.Reason, Existing: rec.Reason,
			Detail: fmt.Sprintf("assigned basin %d is not gauged", a.AssignedMid)}
	}

	rec.AssignedMid = model.Int64Ptr(a.AssignedMid)
	rec.AssignedGaugeID = target.GaugeID
	rec.Reason = a.Reason
	rec.Distance = a.Distance
	return nil
}

// Validate checks every ledger invariant over the whole table.
func (t *Table) Validate() error {
	for _, mid := range t.mids {
		rec := t.records[mid]
		fail := func(detail string) error {
			return &InconsistentAssignmentError{Mid: mid, Existing: rec.Reason, Detail: detail}
		}
		if !rec.Reason.Valid() {
			return fail("unknown reason")
		}
		switch rec.Reason {
		case model.ReasonGauged:
			if rec.AssignedMid == nil || *rec.AssignedMid != mid || rec.Distance != 0 || rec.GaugeID == "" {
				return fail("gauged record must point at itself with distance 0")
			}
		case model.ReasonUnassigned:
			if rec.AssignedMid != nil || rec.AssignedGaugeID != "" {
				return fail("unassigned record carries an assignment")
			}
		default:
			if rec.AssignedMid == nil || rec.AssignedGaugeID == "" {
				return fail("resolved record has no assignment")
			}
			target, ok := t.records[*rec.AssignedMid]
			if !ok || target.Reason != model.ReasonGauged {
				return fail(fmt.Sprintf("assigned basin %d is not gauged", *rec.AssignedMid))
			}
		}
	}
	return nil
}

// Summary counts records by reason.
func (t *Table) Summary() model.Summary {
	s := model.Summary{Total: len(t.mids), ByReason: make(map[model.Reason]int, len(model.Reasons))}
	for _, r := range model.Reasons {
		s.ByReason[r] = 0
	}
	for _, mid := range t.mids {
		s.ByReason[t.records[mid].Reason]++
	}
	return s
}
