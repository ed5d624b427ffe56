package model

// Basin is one river segment of the drainage network.
type Basin struct {
	Mid           int64   `json:"mid"`
	DownstreamMid *int64  `json:"downstream_mid,omitempty"` // nil at network outlets
	StreamOrder   int     `json:"stream_order"`
	DrainageArea  float64 `json:"drainage_area"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	HasCoords     bool    `json:"has_coords"`
}

// Gauge is an observation station located on a basin.
type Gauge struct {
	GaugeID   string  `json:"gauge_id"`
	Mid       int64   `json:"mid"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	HasCoords bool    `json:"has_coords"`
}

// Reason records which tier produced an assignment.
type Reason string

const (
	ReasonGauged                Reason = "gauged"
	ReasonPropagationDownstream Reason = "propagation-downstream"
	ReasonPropagationUpstream   Reason = "propagation-upstream"
	ReasonClusterSpatial        Reason = "cluster-spatial"
	ReasonClusterPhysical       Reason = "cluster-physical"
	ReasonUnassigned            Reason = "unassigned"
)

// Reasons lists every reason code in precedence order.
var Reasons = []Reason{
	ReasonGauged,
	ReasonPropagationDownstream,
	ReasonPropagationUpstream,
	ReasonClusterSpatial,
	ReasonClusterPhysical,
	ReasonUnassigned,
}

// Valid reports whether r is a known reason code.
func (r Reason) Valid() bool {
	for _, known := range Reasons {
		if r == known {
			return true
		}
	}
	return false
}

// Resolved reports whether a record with this reason is final.
func (r Reason) Resolved() bool {
	return r != ReasonUnassigned
}

// AssignmentRecord is one row of the assignment table.
type AssignmentRecord struct {
	Mid             int64   `json:"mid"`
	GaugeID         string  `json:"gauge_id,omitempty"`
	AssignedMid     *int64  `json:"assigned_mid,omitempty"`
	AssignedGaugeID string  `json:"assigned_gauge_id,omitempty"`
	ClusterLabel    *int    `json:"cluster_label,omitempty"`
	Reason          Reason  `json:"reason"`
	Distance        float64 `json:"distance"`
}

// Candidate is a connectivity-based proposal: basin Mid could take the
// correction of the gauge on GaugeMid, found Hops edges away.
type Candidate struct {
	Mid       int64   `json:"mid"`
	GaugeMid  int64   `json:"gauge_mid"`
	GaugeID   string  `json:"gauge_id"`
	Hops      int     `json:"hops"`
	Reason    Reason  `json:"reason"`
	GaugeArea float64 `json:"gauge_area"`
}

// Assignment is a resolved decision waiting to be merged into the table.
type Assignment struct {
	Mid             int64   `json:"mid"`
	AssignedMid     int64   `json:"assigned_mid"`
	AssignedGaugeID string  `json:"assigned_gauge_id"`
	Reason          Reason  `json:"reason"`
	Distance        float64 `json:"distance"`
}

// Summary counts final records by reason.
type Summary struct {
	Total           int            `json:"total"`
	ByReason        map[Reason]int `json:"by_reason"`
	MissingEvidence int            `json:"missing_evidence"`
	Malformed       int            `json:"malformed_components"`
}

// RunMeta describes one assignment run.
type RunMeta struct {
	RunID           string `json:"run_id"`
	AssignedAt      string `json:"assigned_at"`
	MaxHops         int    `json:"max_hops"`
	MissingEvidence int    `json:"missing_evidence"`
	Malformed       int    `json:"malformed_components"`
}

// Propagation stages persisted next to the assignment table.
const (
	StageDownstream = "downstream"
	StageUpstream   = "upstream"
	StageResolved   = "resolved"
)

// Stages lists the propagation stages in write order.
var Stages = []string{StageDownstream, StageUpstream, StageResolved}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
