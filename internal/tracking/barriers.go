package tracking

import (
	"time"

	"backend-routetracking/internal/featureservice"
	"backend-routetracking/internal/project"
	"backend-routetracking/internal/shared/geo"
)

// barriersOn converts the project's barriers active on date, grouped by
// geometry.
func (t *Tracker) barriersOn(date time.Time) featureservice.Barriers {
	var out featureservice.Barriers
	for _, b := range t.project.BarriersOn(date) {
		switch b.Geometry {
		case project.BarrierPoint:
			if b.Point != nil {
				out.Points = append(out.Points, pointBarrier(b))
			}
		case project.BarrierPolyline:
			if b.Polyline != nil {
				out.Lines = append(out.Lines, featureservice.LineBarrier{Name: b.Name, Path: *b.Polyline})
			}
		case project.BarrierPolygon:
			if b.Polygon != nil {
				out.Polygons = append(out.Polygons, polygonBarrier(b))
			}
		}
	}
	return out
}

func pointBarrier(b *project.Barrier) featureservice.PointBarrier {
	out := featureservice.PointBarrier{Name: b.Name, Location: *b.Point, Type: featureservice.BarrierRestriction}
	if !b.Effect.BlockTravel {
		out.Type = featureservice.BarrierAddedCost
		out.AddedCost = b.Effect.DelayTime.Minutes()
	}
	return out
}

// polygonBarrier maps a slowdown of speedFactorPercent to the cost factor
// 100/(100+speedFactorPercent). A slowdown to zero speed blocks travel.
func polygonBarrier(b *project.Barrier) featureservice.PolygonBarrier {
	shape := geo.Polygon{Rings: append([][]geo.Point(nil), b.Polygon.Rings...)}
	if len(shape.Rings) > 0 {
		shape.Rings[0] = geo.ClockwiseRing(shape.Rings[0])
	}

	out := featureservice.PolygonBarrier{Name: b.Name, Shape: shape, Type: featureservice.BarrierRestriction}
	if denom := 100 + b.Effect.SpeedFactorPercent; !b.Effect.BlockTravel && denom > 0 {
		out.Type = featureservice.BarrierScaledCost
		out.ScaledCostFactor = 100 / denom
	}
	return out
}
