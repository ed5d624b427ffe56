package ledger

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testTable(t *testing.T) *Table {
	t.Helper()
	basins := []model.Basin{
		{Mid: 1, DownstreamMid: model.Int64Ptr(2)},
		{Mid: 2, DownstreamMid: model.Int64Ptr(3)},
		{Mid: 3},
	}
	gauges := []model.Gauge{{GaugeID: "G-1", Mid: 1, X: 5, Y: 6, HasCoords: true}}
	tbl, err := New(basins, gauges, map[int64]int{1: 4, 3: 2}, quietLogger())
	require.NoError(t, err)
	return tbl
}

func TestNewSeedsGaugedRows(t *testing.T) {
	tbl := testTable(t)
	require.Equal(t, 3, tbl.Len())

	g, ok := tbl.Get(1)
	require.True(t, ok)
	assert.Equal(t, model.ReasonGauged, g.Reason)
	require.NotNil(t, g.AssignedMid)
	assert.Equal(t, int64(1), *g.AssignedMid)
	assert.Equal(t, "G-1", g.AssignedGaugeID)
	assert.Zero(t, g.Distance)
	require.NotNil(t, g.ClusterLabel)
	assert.Equal(t, 4, *g.ClusterLabel)

	u, _ := tbl.Get(2)
	assert.Equal(t, model.ReasonUnassigned, u.Reason)
	assert.Nil(t, u.AssignedMid)
	assert.Nil(t, u.ClusterLabel)

	assert.Equal(t, []int64{2, 3}, tbl.UnassignedMids())
	assert.Equal(t, map[int64]string{1: "G-1"}, tbl.Gauged())
	require.NoError(t, tbl.Validate())
}

func TestGaugeCoordinatesFillMissingBasinCoordinates(t *testing.T) {
	tbl := testTable(t)
	b, ok := tbl.Basin(1)
	require.True(t, ok)
	assert.True(t, b.HasCoords)
	assert.Equal(t, 5.0, b.X)
	assert.Equal(t, 6.0, b.Y)

	src := tbl.Sources()
	require.Len(t, src, 1)
	assert.Equal(t, "G-1", src[0].GaugeID)
}

func TestNewRejectsDuplicateBasin(t *testing.T) {
	_, err := New([]model.Basin{{Mid: 1}, {Mid: 1}}, nil, nil, quietLogger())
	require.Error(t, err)
}

func TestNewKeepsSmallestGaugeID(t *testing.T) {
	gauges := []model.Gauge{{GaugeID: "B", Mid: 1}, {GaugeID: "A", Mid: 1}, {GaugeID: "Z", Mid: 42}}
	tbl, err := New([]model.Basin{{Mid: 1}}, gauges, nil, quietLogger())
	require.NoError(t, err)

	rec, _ := tbl.Get(1)
	assert.Equal(t, "A", rec.GaugeID)
	assert.Equal(t, "A", rec.AssignedGaugeID)
}

func TestApplyResolvesUnassignedRow(t *testing.T) {
	tbl := testTable(t)
	err := tbl.Apply(model.Assignment{Mid: 2, AssignedMid: 1, Reason: model.ReasonPropagationDownstream, Distance: 1})
	require.NoError(t, err)

	rec, _ := tbl.Get(2)
	assert.Equal(t, model.ReasonPropagationDownstream, rec.Reason)
	assert.Equal(t, int64(1), *rec.AssignedMid)
	assert.Equal(t, "G-1", rec.AssignedGaugeID)
	assert.Equal(t, 1.0, rec.Distance)
	require.NoError(t, tbl.Validate())
}

func TestApplyRefusesOverwrite(t *testing.T) {
	tbl := testTable(t)
	require.NoError(t, tbl.Apply(model.Assignment{Mid: 2, AssignedMid: 1, Reason: model.ReasonPropagationDownstream, Distance: 1}))

	err := tbl.Apply(model.Assignment{Mid: 2, AssignedMid: 1, Reason: model.ReasonClusterSpatial, Distance: 3})
	require.Error(t, err)

	var iae *InconsistentAssignmentError
	require.True(t, errors.As(err, &iae))
	assert.Equal(t, int64(2), iae.Mid)
	assert.Equal(t, model.ReasonClusterSpatial, iae.Attempted)
	assert.Equal(t, model.ReasonPropagationDownstream, iae.Existing)
	assert.ErrorIs(t, err, ErrInconsistentAssignment)

	rec, _ := tbl.Get(2)
	assert.Equal(t, model.ReasonPropagationDownstream, rec.Reason, "record must be unchanged")
}

func TestApplyRefusesGaugedOverwrite(t *testing.T) {
	tbl := testTable(t)
	err := tbl.Apply(model.Assignment{Mid: 1, AssignedMid: 1, Reason: model.ReasonClusterPhysical})
	assert.ErrorIs(t, err, ErrInconsistentAssignment)
}

func TestApplyRequiresGaugedTarget(t *testing.T) {
	tbl := testTable(t)
	err := tbl.Apply(model.Assignment{Mid: 2, AssignedMid: 3, Reason: model.ReasonClusterSpatial})
	assert.ErrorIs(t, err, ErrInconsistentAssignment)

	err = tbl.Apply(model.Assignment{Mid: 99, AssignedMid: 1, Reason: model.ReasonClusterSpatial})
	assert.ErrorIs(t, err, ErrInconsistentAssignment)

	err = tbl.Apply(model.Assignment{Mid: 2, AssignedMid: 1, Reason: model.ReasonGauged})
	assert.ErrorIs(t, err, ErrInconsistentAssignment)
}

func TestSummaryCountsEveryReason(t *testing.T) {
	tbl := testTable(t)
	require.NoError(t, tbl.Apply(model.Assignment{Mid: 3, AssignedMid: 1, Reason: model.ReasonClusterPhysical, Distance: 0.4}))

	s := tbl.Summary()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.ByReason[model.ReasonGauged])
	assert.Equal(t, 1, s.ByReason[model.ReasonClusterPhysical])
	assert.Equal(t, 1, s.ByReason[model.ReasonUnassigned])
	assert.Contains(t, s.ByReason, model.ReasonPropagationUpstream)
}

func TestRecordsAreSnapshots(t *testing.T) {
	tbl := testTable(t)
	recs := tbl.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{recs[0].Mid, recs[1].Mid, recs[2].Mid})

	recs[1].Reason = model.ReasonClusterSpatial
	again, _ := tbl.Get(2)
	assert.Equal(t, model.ReasonUnassigned, again.Reason)
}
