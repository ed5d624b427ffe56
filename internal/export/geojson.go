package export

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
)

// Grouping selects how assignment features are split into collections.
type Grouping string

const (
	ByReason   Grouping = "reason"
	ByCluster  Grouping = "cluster"
	Unassigned Grouping = "unassigned"
)

// NoCluster keys basins without a cluster label.
const NoCluster = "none"

// ParseGrouping validates a grouping name.
func ParseGrouping(s string) (Grouping, error) {
	switch g := Grouping(s); g {
	case ByReason, ByCluster, Unassigned:
		return g, nil
	}
	return "", fmt.Errorf("unknown grouping %q (want reason, cluster or unassigned)", s)
}

// Feature renders one assignment record as a point at its basin.
func Feature(b model.Basin, r model.AssignmentRecord) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{b.X, b.Y})
	f.ID = r.Mid
	f.Properties["mid"] = r.Mid
	f.Properties["reason"] = string(r.Reason)
	f.Properties["distance"] = r.Distance
	f.Properties["stream_order"] = b.StreamOrder
	f.Properties["drainage_area"] = b.DrainageArea
	if r.GaugeID != "" {
		f.Properties["gauge_id"] = r.GaugeID
	}
	if r.AssignedMid != nil {
		f.Properties["assigned_mid"] = *r.AssignedMid
		f.Properties["assigned_gauge_id"] = r.AssignedGaugeID
	}
	if r.ClusterLabel != nil {
		f.Properties["cluster_label"] = *r.ClusterLabel
	}
	return f
}

func groupKey(r model.AssignmentRecord, by Grouping) (string, bool) {
	switch by {
	case ByReason:
		return string(r.Reason), true
	case ByCluster:
		if r.ClusterLabel == nil {
			return NoCluster, true
		}
		return strconv.Itoa(*r.ClusterLabel), true
	case Unassigned:
		return string(model.ReasonUnassigned), r.Reason == model.ReasonUnassigned
	}
	return "", false
}

// Collections splits the records into feature collections keyed by group.
// Basins without coordinates cannot be drawn and are skipped.
func Collections(basins []model.Basin, records []model.AssignmentRecord, by Grouping) map[string]*geojson.FeatureCollection {
	index := make(map[int64]model.Basin, len(basins))
	for _, b := range basins {
		index[b.Mid] = b
	}

	out := make(map[string]*geojson.FeatureCollection)
	for _, r := range records {
		b, ok := index[r.Mid]
		if !ok || !b.HasCoords {
			continue
		}
		key, ok := groupKey(r, by)
		if !ok {
			continue
		}
		fc, ok := out[key]
		if !ok {
			fc = geojson.NewFeatureCollection()
			out[key] = fc
		}
		fc.Append(Feature(b, r))
	}
	return out
}

// Links draws a line from every resolved ungauged basin to the gauged basin
// it was assigned to.
func Links(basins []model.Basin, records []model.AssignmentRecord) *geojson.FeatureCollection {
	index := make(map[int64]model.Basin, len(basins))
	for _, b := range basins {
		index[b.Mid] = b
	}

	fc := geojson.NewFeatureCollection()
	for _, r := range records {
		if r.AssignedMid == nil || r.Reason == model.ReasonGauged {
			continue
		}
		from, ok1 := index[r.Mid]
		to, ok2 := index[*r.AssignedMid]
		if !ok1 || !ok2 || !from.HasCoords || !to.HasCoords {
			continue
		}
		f := geojson.NewFeature(orb.LineString{{from.X, from.Y}, {to.X, to.Y}})
		f.Properties["mid"] = r.Mid
		f.Properties["assigned_mid"] = *r.AssignedMid
		f.Properties["assigned_gauge_id"] = r.AssignedGaugeID
		f.Properties["reason"] = string(r.Reason)
		f.Properties["distance"] = r.Distance
		fc.Append(f)
	}
	return fc
}
