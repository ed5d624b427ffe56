package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
)

func fixture() Tables {
	basins := []model.Basin{
		{Mid: 1, X: 0, Y: 0, HasCoords: true, StreamOrder: 2, DrainageArea: 100},
		{Mid: 2, X: 1, Y: 0, HasCoords: true, StreamOrder: 1, DrainageArea: 40},
		{Mid: 3, X: 2, Y: 0, HasCoords: true},
		{Mid: 4}, // no coordinates
	}
	records := []model.AssignmentRecord{
		{Mid: 1, GaugeID: "g1", AssignedMid: model.Int64Ptr(1), AssignedGaugeID: "g1", ClusterLabel: model.IntPtr(3), Reason: model.ReasonGauged},
		{Mid: 2, AssignedMid: model.Int64Ptr(1), AssignedGaugeID: "g1", ClusterLabel: model.IntPtr(3), Reason: model.ReasonClusterSpatial, Distance: 1},
		{Mid: 3, Reason: model.ReasonUnassigned},
		{Mid: 4, Reason: model.ReasonUnassigned},
	}
	return Tables{
		Basins:  basins,
		Records: records,
		Propagation: map[string][]model.Candidate{
			model.StageDownstream: {{Mid: 2, GaugeMid: 1, GaugeID: "g1", Hops: 1, Reason: model.ReasonPropagationDownstream, GaugeArea: 100}},
		},
	}
}

func TestWriteAssignmentsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteAssignmentsCSV(&buf, fixture().Records))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "assigned_mid", rows[0][2])
	assert.Equal(t, []string{"2", "", "1", "g1", "3", "cluster-spatial", "1"}, rows[2])
	assert.Equal(t, []string{"3", "", "", "", "", "unassigned", "0"}, rows[3])
}

func TestCollectionsByReason(t *testing.T) {
	tb := fixture()
	got := Collections(tb.Basins, tb.Records, ByReason)

	require.Contains(t, got, "gauged")
	require.Contains(t, got, "cluster-spatial")
	require.Contains(t, got, "unassigned")
	assert.Len(t, got["unassigned"].Features, 1, "basins without coordinates are skipped")

	f := got["cluster-spatial"].Features[0]
	assert.Equal(t, orb.Point{1, 0}, f.Geometry)
	assert.Equal(t, "g1", f.Properties["assigned_gauge_id"])
	assert.Equal(t, int64(1), f.Properties["assigned_mid"])
}

func TestCollectionsByClusterAndUnassigned(t *testing.T) {
	tb := fixture()

	byCluster := Collections(tb.Basins, tb.Records, ByCluster)
	assert.Len(t, byCluster["3"].Features, 2)
	assert.Len(t, byCluster[NoCluster].Features, 1)

	unassigned := Collections(tb.Basins, tb.Records, Unassigned)
	require.Len(t, unassigned, 1)
	assert.Len(t, unassigned["unassigned"].Features, 1)
}

func TestLinks(t *testing.T) {
	tb := fixture()
	fc := Links(tb.Basins, tb.Records)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, orb.LineString{{1, 0}, {0, 0}}, fc.Features[0].Geometry)
}

func TestParseGrouping(t *testing.T) {
	g, err := ParseGrouping("cluster")
	require.NoError(t, err)
	assert.Equal(t, ByCluster, g)
	_, err = ParseGrouping("county")
	assert.Error(t, err)
}

func TestDir(t *testing.T) {
	dir := t.TempDir()
	written, err := Dir(dir, fixture())
	require.NoError(t, err)
	assert.Contains(t, written, filepath.Join(dir, "assignments.csv.gz"))
	assert.Contains(t, written, filepath.Join(dir, "geojson", "unassigned.geojson"))
	assert.Contains(t, written, filepath.Join(dir, "geojson", "cluster_3.geojson"))

	f, err := os.Open(filepath.Join(dir, "propagation_downstream.csv.gz"))
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	rows, err := csv.NewReader(zr).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "g1", rows[1][2])

	data, err := os.ReadFile(filepath.Join(dir, "geojson", "reason_gauged.geojson"))
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 1)
}
