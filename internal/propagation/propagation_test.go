package propagation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
	"github.com/rileyhales/hydrologic-bias-correction/internal/network"
)

// build creates a network from "mid -> downstream" pairs; 0 marks an outlet.
func build(t *testing.T, links map[int64]int64) *network.Network {
	t.Helper()
	var basins []model.Basin
	for mid, ds := range links {
		b := model.Basin{Mid: mid, StreamOrder: 1, DrainageArea: float64(mid) * 10}
		if ds != 0 {
			b.DownstreamMid = model.Int64Ptr(ds)
		}
		basins = append(basins, b)
	}
	n, err := network.New(basins)
	require.NoError(t, err)
	return n
}

type hop struct {
	mid  int64
	hops int
}

func hops(cands []model.Candidate) []hop {
	var out []hop
	for _, c := range cands {
		out = append(out, hop{c.Mid, c.Hops})
	}
	return out
}

func TestScenarioADownstreamChain(t *testing.T) {
	// 1 -> 2 -> 3, basin 1 gauged, H=5
	net := build(t, map[int64]int64{1: 2, 2: 3, 3: 0})
	gauged := map[int64]string{1: "g1"}

	down, up := ForGauge(net, gauged, 1, 5)
	assert.Equal(t, []hop{{2, 1}, {3, 2}}, hops(down))
	assert.Empty(t, up)
	for _, c := range down {
		assert.Equal(t, model.ReasonPropagationDownstream, c.Reason)
		assert.Equal(t, int64(1), c.GaugeMid)
		assert.Equal(t, "g1", c.GaugeID)
		assert.Equal(t, 10.0, c.GaugeArea)
	}
}

func TestScenarioBGaugeInMiddle(t *testing.T) {
	// 1 -> 2 -> 3, basin 2 gauged
	net := build(t, map[int64]int64{1: 2, 2: 3, 3: 0})
	gauged := map[int64]string{2: "g2"}

	down, up := ForGauge(net, gauged, 2, 5)
	require.Len(t, down, 1)
	assert.Equal(t, hop{3, 1}, hops(down)[0])
	assert.Equal(t, model.ReasonPropagationDownstream, down[0].Reason)

	require.Len(t, up, 1)
	assert.Equal(t, hop{1, 1}, hops(up)[0])
	assert.Equal(t, model.ReasonPropagationUpstream, up[0].Reason)
}

func TestHopLimit(t *testing.T) {
	net := build(t, map[int64]int64{1: 2, 2: 3, 3: 4, 4: 5, 5: 0})
	gauged := map[int64]string{1: "g1"}

	down, _ := ForGauge(net, gauged, 1, 2)
	assert.Equal(t, []hop{{2, 1}, {3, 2}}, hops(down))
}

func TestDownstreamStopsAtNextGauge(t *testing.T) {
	// 1 -> 2 -> 3 -> 4, gauges on 1 and 3
	net := build(t, map[int64]int64{1: 2, 2: 3, 3: 4, 4: 0})
	gauged := map[int64]string{1: "g1", 3: "g3"}

	down, _ := ForGauge(net, gauged, 1, 10)
	assert.Equal(t, []hop{{2, 1}}, hops(down), "must not reach or pass basin 3")
}

func TestUpstreamBranchesAndStopsPerBranch(t *testing.T) {
	//   10 -> 11 \
	//              -> 2 -> 1 (gauge)
	//   20 -> 21 /
	// 21 is gauged, so the 20 branch is cut while the 10 branch continues.
	net := build(t, map[int64]int64{1: 0, 2: 1, 11: 2, 21: 2, 10: 11, 20: 21})
	gauged := map[int64]string{1: "g1", 21: "g21"}

	_, up := ForGauge(net, gauged, 1, 5)
	assert.Equal(t, []hop{{2, 1}, {11, 2}, {10, 3}}, hops(up))
	for _, c := range up {
		assert.NotEqual(t, int64(21), c.Mid)
		assert.NotEqual(t, int64(20), c.Mid)
	}
}

func TestSequencesAreLazyAndRestartable(t *testing.T) {
	net := build(t, map[int64]int64{1: 2, 2: 3, 3: 4, 4: 0})
	gauged := map[int64]string{1: "g1"}
	seq := Downstream(net, gauged, 1, 10)

	var first []int64
	for c := range seq {
		first = append(first, c.Mid)
		break
	}
	assert.Equal(t, []int64{2}, first)

	var all []int64
	for c := range seq {
		all = append(all, c.Mid)
	}
	assert.Equal(t, []int64{2, 3, 4}, all)
}

func TestQuarantinedGaugeProducesNothing(t *testing.T) {
	// 1 -> 2 -> 99 (missing): component {1, 2} is quarantined
	n, err := network.New([]model.Basin{
		{Mid: 1, DownstreamMid: model.Int64Ptr(2)},
		{Mid: 2, DownstreamMid: model.Int64Ptr(99)},
	})
	require.NoError(t, err)

	down, up := ForGauge(n, map[int64]string{1: "g1"}, 1, 5)
	assert.Empty(t, down)
	assert.Empty(t, up)
}

func TestUngaugedStartProducesNothing(t *testing.T) {
	net := build(t, map[int64]int64{1: 2, 2: 0})
	down, up := ForGauge(net, map[int64]string{}, 1, 5)
	assert.Empty(t, down)
	assert.Empty(t, up)
}
