package gis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhales/hydrologic-bias-correction/internal/store"
)

var cols = store.Columns{
	Mid:           "LINKNO",
	DownstreamMid: "DSLINKNO",
	StreamOrder:   "strmOrder",
	DrainageArea:  "DSContArea",
	GaugeID:       "gauge_id",
	X:             "x",
	Y:             "y",
	ClusterLabel:  "cluster_label",
}

const drainage = `{"type":"FeatureCollection","features":[
 {"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0],[2,4]]},
  "properties":{"linkno":1,"DSLINKNO":2,"strmOrder":1,"DSContArea":10.5}},
 {"type":"Feature","geometry":{"type":"Point","coordinates":[5,6]},
  "properties":{"LINKNO":"2","DSLINKNO":-1,"strmOrder":2,"DSContArea":20}},
 {"type":"Feature","geometry":null,
  "properties":{"LINKNO":3,"DSLINKNO":null,"x":7,"y":8}},
 {"type":"Feature","geometry":null,
  "properties":{"LINKNO":4,"DSLINKNO":0}}
]}`

const gauges = `{"type":"FeatureCollection","features":[
 {"type":"Feature","geometry":{"type":"Point","coordinates":[1.5,2.5]},
  "properties":{"gauge_id":"USGS-01","LINKNO":1}},
 {"type":"Feature","geometry":null,
  "properties":{"gauge_id":1002,"LINKNO":2}}
]}`

func writeLayer(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestIsGeoJSON(t *testing.T) {
	assert.True(t, IsGeoJSON("drain.geojson"))
	assert.True(t, IsGeoJSON("DRAIN.JSON"))
	assert.False(t, IsGeoJSON("drain.parquet"))
	assert.False(t, IsGeoJSON("drain.csv"))
}

func TestBasins(t *testing.T) {
	fc, err := ReadCollection(writeLayer(t, "drain.geojson", drainage))
	require.NoError(t, err)

	basins, err := Basins(fc, cols)
	require.NoError(t, err)
	require.Len(t, basins, 4)

	line := basins[0]
	assert.Equal(t, int64(1), line.Mid)
	require.NotNil(t, line.DownstreamMid)
	assert.Equal(t, int64(2), *line.DownstreamMid)
	assert.Equal(t, 1, line.StreamOrder)
	assert.InDelta(t, 10.5, line.DrainageArea, 1e-9)
	assert.True(t, line.HasCoords)
	assert.InDelta(t, 1.0, line.X, 1e-9)
	assert.InDelta(t, 2.0, line.Y, 1e-9)

	point := basins[1]
	assert.Equal(t, int64(2), point.Mid)
	assert.Nil(t, point.DownstreamMid, "negative downstream id marks an outlet")
	assert.Equal(t, 5.0, point.X)
	assert.Equal(t, 6.0, point.Y)

	assert.Nil(t, basins[2].DownstreamMid)
	assert.True(t, basins[2].HasCoords, "x/y properties back a missing geometry")
	assert.Equal(t, 7.0, basins[2].X)

	assert.Nil(t, basins[3].DownstreamMid)
	assert.False(t, basins[3].HasCoords)
}

func TestBasinsMissingID(t *testing.T) {
	fc, err := ReadCollection(writeLayer(t, "drain.geojson",
		`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":null,"properties":{"COMID":1}}]}`))
	require.NoError(t, err)

	_, err = Basins(fc, cols)
	assert.ErrorContains(t, err, "LINKNO")
}

func TestBasinsRejectsFractionalID(t *testing.T) {
	fc, err := ReadCollection(writeLayer(t, "drain.geojson",
		`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":null,"properties":{"LINKNO":1.5}}]}`))
	require.NoError(t, err)

	_, err = Basins(fc, cols)
	assert.Error(t, err)
}

func TestGauges(t *testing.T) {
	fc, err := ReadCollection(writeLayer(t, "gauges.geojson", gauges))
	require.NoError(t, err)

	got, err := Gauges(fc, cols)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "USGS-01", got[0].GaugeID)
	assert.Equal(t, int64(1), got[0].Mid)
	assert.True(t, got[0].HasCoords)
	assert.Equal(t, 1.5, got[0].X)

	assert.Equal(t, "1002", got[1].GaugeID, "numeric ids are read as text")
	assert.False(t, got[1].HasCoords)
}

func TestReadCollectionInvalid(t *testing.T) {
	_, err := ReadCollection(writeLayer(t, "bad.geojson", "not json"))
	assert.Error(t, err)

	_, err = ReadCollection(filepath.Join(t.TempDir(), "missing.geojson"))
	assert.Error(t, err)
}

func TestImportIntoStore(t *testing.T) {
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	n, err := ImportBasins(s, writeLayer(t, "drain.geojson", drainage), cols)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, s.BasinCount())

	n, err = ImportGauges(s, writeLayer(t, "gauges.geojson", gauges), cols)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stored, err := s.ReadGauges()
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.True(t, stored[1].HasCoords)
	assert.False(t, stored[0].HasCoords)
}
