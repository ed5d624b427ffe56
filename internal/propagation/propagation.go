// Package propagation walks the drainage network outward from each gauge and
// proposes connectivity-based candidates for ungauged basins.
package propagation

import (
	"iter"

	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
	"github.com/rileyhales/hydrologic-bias-correction/internal/network"
)

// Downstream yields the basins below gauge, one per hop, up to maxHops.
// The walk stops before the next gauged basin: basins past it belong to the
// nearer gauge.
func Downstream(net *network.Network, gauged map[int64]string, gauge int64, maxHops int) iter.Seq[model.Candidate] {
	return func(yield func(model.Candidate) bool) {
		src, ok := source(net, gauged, gauge)
		if !ok {
			return
		}
		visited := map[int64]bool{gauge: true}
		cur := gauge
		for hop := 1; hop <= maxHops; hop++ {
			next, ok := net.Downstream(cur)
			if !ok || visited[next] {
				return
			}
			if _, isGauge := gauged[next]; isGauge {
				return
			}
			visited[next] = true
			if !yield(src.candidate(next, hop, model.ReasonPropagationDownstream)) {
				return
			}
			cur = next
		}
	}
}

// Upstream yields basins above gauge in breadth-first order, branching at
// confluences, up to maxHops. A branch ends at the first gauged basin.
func Upstream(net *network.Network, gauged map[int64]string, gauge int64, maxHops int) iter.Seq[model.Candidate] {
	return func(yield func(model.Candidate) bool) {
		src, ok := source(net, gauged, gauge)
		if !ok {
			return
		}
		visited := map[int64]bool{gauge: true}
		frontier := []int64{gauge}
		for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
			var next []int64
			for _, mid := range frontier {
				for _, up := range net.Upstream(mid) {
					if visited[up] {
						continue
					}
					visited[up] = true
					if _, isGauge := gauged[up]; isGauge {
						continue
					}
					if !yield(src.candidate(up, hop, model.ReasonPropagationUpstream)) {
						return
					}
					next = append(next, up)
				}
			}
			frontier = next
		}
	}
}

// ForGauge collects both directions for one gauge. It is the unit of work
// fanned out per gauge.
func ForGauge(net *network.Network, gauged map[int64]string, gauge int64, maxHops int) (down, up []model.Candidate) {
	for c := range Downstream(net, gauged, gauge, maxHops) {
		down = append(down, c)
	}
	for c := range Upstream(net, gauged, gauge, maxHops) {
		up = append(up, c)
	}
	return down, up
}

type origin struct {
	mid     int64
	gaugeID string
	area    float64
}

func (o origin) candidate(mid int64, hops int, reason model.Reason) model.Candidate {
	return model.Candidate{
		Mid:       mid,
		GaugeMid:  o.mid,
		GaugeID:   o.gaugeID,
		Hops:      hops,
		Reason:    reason,
		GaugeArea: o.area,
	}
}

// source resolves the gauge's attributes. Gauges outside the network or in
// a quarantined component propagate nothing.
func source(net *network.Network, gauged map[int64]string, gauge int64) (origin, bool) {
	id, ok := gauged[gauge]
	if !ok || net.Quarantined(gauge) {
		return origin{}, false
	}
	b, ok := net.Basin(gauge)
	if !ok {
		return origin{}, false
	}
	return origin{mid: gauge, gaugeID: id, area: b.DrainageArea}, true
}
