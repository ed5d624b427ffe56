package resolver

import (
	"cmp"
	"errors"
	"fmt"
	"math"

	"github.com/rileyhales/hydrologic-bias-correction/internal/ledger"
	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
)

// ErrMissingEvidence matches every MissingEvidenceError.
var ErrMissingEvidence = errors.New("missing evidence")

// MissingEvidenceError means no tier could find a source for the basin. The
// basin stays unassigned; this is never fatal.
type MissingEvidenceError struct {
	Mid int64
}

func (e *MissingEvidenceError) Error() string {
	return fmt.Sprintf("basin %d: no gauge, propagation candidate or gauged basin to fall back on", e.Mid)
}

func (e *MissingEvidenceError) Unwrap() error {
	return ErrMissingEvidence
}

// Similarity resolves basins left over after propagation. It only reads the
// gauged sources it was built with, so Resolve may run concurrently.
type Similarity struct {
	sources   []ledger.Source
	byCluster map[int][]ledger.Source
	spatial   DistanceFunc
	physical  DistanceFunc
}

// NewSimilarity indexes the gauged sources by cluster label.
func NewSimilarity(sources []ledger.Source, spatial, physical DistanceFunc) *Similarity {
	s := &Similarity{
		sources:   sources,
		byCluster: make(map[int][]ledger.Source),
		spatial:   spatial,
		physical:  physical,
	}
	for _, src := range sources {
		if src.ClusterLabel != nil {
			s.byCluster[*src.ClusterLabel] = append(s.byCluster[*src.ClusterLabel], src)
		}
	}
	return s
}

// Resolve assigns b to the nearest gauged basin in its cluster, or failing
// that to the physically most similar gauged basin anywhere.
func (s *Similarity) Resolve(b model.Basin, label *int) (model.Assignment, error) {
	if label != nil {
		if src, d, ok := nearest(b, s.byCluster[*label], s.spatial); ok {
			return assignment(b.Mid, src, model.ReasonClusterSpatial, d), nil
		}
	}
	if src, d, ok := nearest(b, s.sources, s.physical); ok {
		return assignment(b.Mid, src, model.ReasonClusterPhysical, d), nil
	}
	return model.Assignment{}, &MissingEvidenceError{Mid: b.Mid}
}

func assignment(mid int64, src ledger.Source, reason model.Reason, d float64) model.Assignment {
	return model.Assignment{
		Mid:             mid,
		AssignedMid:     src.Basin.Mid,
		AssignedGaugeID: src.GaugeID,
		Reason:          reason,
		Distance:        d,
	}
}

// nearest ignores sources at a non-finite distance. Ties go to the larger
// drainage area, then the smaller gauge id.
func nearest(b model.Basin, pool []ledger.Source, dist DistanceFunc) (ledger.Source, float64, bool) {
	var (
		best  ledger.Source
		bestD float64
		found bool
	)
	for _, src := range pool {
		d := dist(b, src.Basin)
		if math.IsNaN(d) || math.IsInf(d, 0) {
			continue
		}
		if !found || better(d, src, bestD, best) {
			best, bestD, found = src, d, true
		}
	}
	return best, bestD, found
}

func better(d float64, src ledger.Source, bestD float64, best ledger.Source) bool {
	if c := cmp.Compare(d, bestD); c != 0 {
		return c < 0
	}
	if c := cmp.Compare(src.Basin.DrainageArea, best.Basin.DrainageArea); c != 0 {
		return c > 0
	}
	return src.GaugeID < best.GaugeID
}
