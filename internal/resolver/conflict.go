// Package resolver turns evidence into one assignment per ungauged basin:
// propagation conflicts first, then cluster, spatial and physical similarity.
package resolver

import (
	"cmp"
	"slices"

	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
)

// Compare orders propagation candidates for the same basin; the smallest wins.
//  1. fewer hops
//  2. downstream before upstream
//  3. larger source drainage area
//  4. smaller gauge id
//  5. smaller gauge basin id
func Compare(a, b model.Candidate) int {
	if c := cmp.Compare(a.Hops, b.Hops); c != 0 {
		return c
	}
	if c := cmp.Compare(directionRank(a.Reason), directionRank(b.Reason)); c != 0 {
		return c
	}
	if c := cmp.Compare(b.GaugeArea, a.GaugeArea); c != 0 {
		return c
	}
	if c := cmp.Compare(a.GaugeID, b.GaugeID); c != 0 {
		return c
	}
	return cmp.Compare(a.GaugeMid, b.GaugeMid)
}

func directionRank(r model.Reason) int {
	if r == model.ReasonPropagationDownstream {
		return 0
	}
	return 1
}

// Winner returns the best candidate, or false for an empty slice.
func Winner(cands []model.Candidate) (model.Candidate, bool) {
	if len(cands) == 0 {
		return model.Candidate{}, false
	}
	return slices.MinFunc(cands, Compare), true
}

// GroupByBasin buckets candidates by target basin. Keys come back sorted.
func GroupByBasin(cands []model.Candidate) ([]int64, map[int64][]model.Candidate) {
	groups := make(map[int64][]model.Candidate)
	for _, c := range cands {
		groups[c.Mid] = append(groups[c.Mid], c)
	}
	mids := make([]int64, 0, len(groups))
	for mid := range groups {
		mids = append(mids, mid)
	}
	slices.Sort(mids)
	return mids, groups
}

// ToAssignment converts a winning candidate; the hop count is the distance.
func ToAssignment(c model.Candidate) model.Assignment {
	return model.Assignment{
		Mid:             c.Mid,
		AssignedMid:     c.GaugeMid,
		AssignedGaugeID: c.GaugeID,
		Reason:          c.Reason,
		Distance:        float64(c.Hops),
	}
}

// ResolvePropagation picks one winner per basin, sorted by basin id.
func ResolvePropagation(cands []model.Candidate) []model.Candidate {
	mids, groups := GroupByBasin(cands)
	out := make([]model.Candidate, 0, len(mids))
	for _, mid := range mids {
		w, _ := Winner(groups[mid])
		out = append(out, w)
	}
	return out
}
