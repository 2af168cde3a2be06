package geo

import "github.com/golang/geo/s2"

// Point is a WGS84 coordinate, X is longitude and Y latitude.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Polyline struct {
	Paths [][]Point `json:"paths"`
}

type Polygon struct {
	Rings [][]Point `json:"rings"`
}

func (p Point) Equal(o Point) bool {
	return p.X == o.X && p.Y == o.Y
}

// SamePoint reports whether both points are set and equal.
func SamePoint(a, b *Point) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Equal(*b)
}

// ClockwiseRing returns ring closed and ordered clockwise, the orientation
// feature services expect for exterior polygon rings.
func ClockwiseRing(ring []Point) []Point {
	open := ring
	if len(open) > 1 && open[0].Equal(open[len(open)-1]) {
		open = open[:len(open)-1]
	}
	if len(open) < 3 {
		return closeRing(append([]Point(nil), open...))
	}

	vertices := make([]s2.Point, 0, len(open))
	for _, p := range open {
		vertices = append(vertices, s2.PointFromLatLng(s2.LatLngFromDegrees(p.Y, p.X)))
	}

	out := append([]Point(nil), open...)
	// s2 normalizes to counter-clockwise loops enclosing at most half the sphere.
	if s2.LoopFromPoints(vertices).IsNormalized() {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return closeRing(out)
}

func closeRing(ring []Point) []Point {
	if len(ring) == 0 {
		return ring
	}
	if !ring[0].Equal(ring[len(ring)-1]) {
		ring = append(ring, ring[0])
	}
	return ring
}
