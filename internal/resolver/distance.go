package resolver

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"

	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
)

// DistanceFunc measures how far apart two basins are for one evidence type.
type DistanceFunc func(a, b model.Basin) float64

const (
	MetricEuclidean = "euclidean"
	MetricHaversine = "haversine"
)

// minArea keeps the drainage-area ratio finite for zero or missing areas.
const minArea = 1e-9

func point(b model.Basin) orb.Point {
	return orb.Point{b.X, b.Y}
}

// Euclidean is the planar distance between basin coordinates.
func Euclidean(a, b model.Basin) float64 {
	if !a.HasCoords || !b.HasCoords {
		return math.Inf(1)
	}
	return planar.Distance(point(a), point(b))
}

// Haversine is the great-circle distance in metres, reading X as longitude
// and Y as latitude.
func Haversine(a, b model.Basin) float64 {
	if !a.HasCoords || !b.HasCoords {
		return math.Inf(1)
	}
	return geo.DistanceHaversine(point(a), point(b))
}

// Spatial returns the spatial distance function for a configured metric.
func Spatial(metric string) (DistanceFunc, error) {
	switch metric {
	case MetricEuclidean, "":
		return Euclidean, nil
	case MetricHaversine:
		return Haversine, nil
	default:
		return nil, fmt.Errorf("unknown spatial metric %q", metric)
	}
}

// Physical weighs the stream order difference against the log drainage-area
// ratio: weight*|dOrder| + (1-weight)*|ln(Aa/Ab)|.
func Physical(weight float64) DistanceFunc {
	return func(a, b model.Basin) float64 {
		order := math.Abs(float64(a.StreamOrder - b.StreamOrder))
		area := math.Abs(math.Log(math.Max(a.DrainageArea, minArea) / math.Max(b.DrainageArea, minArea)))
		return weight*order + (1-weight)*area
	}
}
