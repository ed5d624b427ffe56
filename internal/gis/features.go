// Package gis loads drainage and gauge layers stored as GeoJSON feature
// collections. Point geometries give the coordinates directly; any other
// geometry is reduced to the centre of its bounding box.
package gis

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
	"github.com/rileyhales/hydrologic-bias-correction/internal/store"
)

// IsGeoJSON reports whether path names a GeoJSON layer.
func IsGeoJSON(path string) bool {
	p := strings.ToLower(path)
	return strings.HasSuffix(p, ".geojson") || strings.HasSuffix(p, ".json")
}

// ReadCollection parses the feature collection at path.
func ReadCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return fc, nil
}

// Basins converts drainage features to basins. A downstream id that is
// missing, zero or negative marks an outlet.
func Basins(fc *geojson.FeatureCollection, c store.Columns) ([]model.Basin, error) {
	basins := make([]model.Basin, 0, len(fc.Features))
	for i, f := range fc.Features {
		p := props(f.Properties)
		mid, ok := p.int(c.Mid)
		if !ok {
			return nil, fmt.Errorf("feature %d: missing or invalid %q", i, c.Mid)
		}
		b := model.Basin{Mid: mid}
		if ds, ok := p.int(c.DownstreamMid); ok && ds > 0 {
			b.DownstreamMid = model.Int64Ptr(ds)
		}
		if order, ok := p.int(c.StreamOrder); ok {
			b.StreamOrder = int(order)
		}
		if area, ok := p.float(c.DrainageArea); ok {
			b.DrainageArea = area
		}
		b.X, b.Y, b.HasCoords = coords(f, p, c)
		basins = append(basins, b)
	}
	return basins, nil
}

// Gauges converts gauge features to gauges.
func Gauges(fc *geojson.FeatureCollection, c store.Columns) ([]model.Gauge, error) {
	gauges := make([]model.Gauge, 0, len(fc.Features))
	for i, f := range fc.Features {
		p := props(f.Properties)
		id, ok := p.string(c.GaugeID)
		if !ok || id == "" {
			return nil, fmt.Errorf("feature %d: missing %q", i, c.GaugeID)
		}
		mid, ok := p.int(c.Mid)
		if !ok {
			return nil, fmt.Errorf("feature %d (%s): missing or invalid %q", i, id, c.Mid)
		}
		g := model.Gauge{GaugeID: id, Mid: mid}
		g.X, g.Y, g.HasCoords = coords(f, p, c)
		gauges = append(gauges, g)
	}
	return gauges, nil
}

// ImportBasins replaces the stored basins with the drainage layer at path.
func ImportBasins(s *store.Store, path string, c store.Columns) (int, error) {
	fc, err := ReadCollection(path)
	if err != nil {
		return 0, err
	}
	basins, err := Basins(fc, c)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return len(basins), s.WriteBasins(basins)
}

// ImportGauges replaces the stored gauges with the gauge layer at path.
func ImportGauges(s *store.Store, path string, c store.Columns) (int, error) {
	fc, err := ReadCollection(path)
	if err != nil {
		return 0, err
	}
	gauges, err := Gauges(fc, c)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return len(gauges), s.WriteGauges(gauges)
}

// coords prefers the feature geometry and falls back to the x/y properties.
func coords(f *geojson.Feature, p props, c store.Columns) (float64, float64, bool) {
	switch g := f.Geometry.(type) {
	case nil:
	case orb.Point:
		if finite(g.X()) && finite(g.Y()) {
			return g.X(), g.Y(), true
		}
	default:
		if b := g.Bound(); !b.IsEmpty() {
			ctr := b.Center()
			return ctr.X(), ctr.Y(), true
		}
	}
	x, okX := p.float(c.X)
	y, okY := p.float(c.Y)
	if okX && okY {
		return x, y, true
	}
	return 0, 0, false
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// props looks up feature properties by name, ignoring case.
type props geojson.Properties

func (p props) get(name string) (any, bool) {
	if name == "" {
		return nil, false
	}
	if v, ok := p[name]; ok {
		return v, v != nil
	}
	for k, v := range p {
		if strings.EqualFold(k, name) {
			return v, v != nil
		}
	}
	return nil, false
}

func (p props) float(name string) (float64, bool) {
	v, ok := p.get(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, finite(n)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && finite(f)
	}
	return 0, false
}

func (p props) int(name string) (int64, bool) {
	v, ok := p.get(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		f, ok := p.float(name)
		if !ok || f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	}
}

func (p props) string(name string) (string, bool) {
	v, ok := p.get(name)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	}
	return fmt.Sprint(v), true
}
