// Package scan lays out the far-field measurement sweep: alternating arcs of
// waypoints at a fixed radius around the antenna, one arc per altitude.
package scan

import (
	"fmt"
	"time"

	"github.com/k3suav/antenna-scan/pkg/geo"
	"github.com/k3suav/antenna-scan/pkg/models"
)

const (
	// SweepHalfWidth is how far either side of the antenna heading an arc reaches.
	SweepHalfWidth = 120.0
	// AltitudeStep is the drop in meters between consecutive arcs.
	AltitudeStep = 2.0
)

// ExtremeBearings returns the compass headings of the left and right ends of
// an arc for an antenna pointing at heading.
func ExtremeBearings(heading float64) (left, right float64) {
	switch {
	case heading >= SweepHalfWidth && heading <= 360-SweepHalfWidth:
		left = heading - SweepHalfWidth
		right = heading + SweepHalfWidth
	case heading < SweepHalfWidth:
		left = 360 - (SweepHalfWidth - heading)
		right = heading + SweepHalfWidth
	default:
		left = heading - SweepHalfWidth
		right = (heading + SweepHalfWidth) - 360
	}
	return geo.NormalizeHeading(left), geo.NormalizeHeading(right)
}

// Altitudes returns one altitude per arc, starting at the antenna altitude
// and stepping down by AltitudeStep.
func Altitudes(antennaAltitude float64, arcs int) []float64 {
	alts := make([]float64, arcs)
	for i := range alts {
		alts[i] = antennaAltitude - AltitudeStep*float64(i)
	}
	return alts
}

// AngleStep returns the unit-circle spacing between adjacent waypoints of an
// arc. Each arc covers SweepHalfWidth degrees of the unit circle.
func AngleStep(pointsPerArc int) float64 {
	return SweepHalfWidth / float64(pointsPerArc-1)
}

// Generate builds the scan plan for cfg. Even arcs sweep counter-clockwise
// from the left extreme, odd arcs sweep back from the right extreme, so the
// last point of one arc sits directly above the first point of the next.
func Generate(cfg models.ScanConfig) (*models.ScanPlan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scan config: %w", err)
	}

	left, right := ExtremeBearings(cfg.Heading)
	unitLeft := geo.ToUnitCircle(left)
	unitRight := geo.ToUnitCircle(right)
	step := AngleStep(cfg.PointsPerArc)

	total := cfg.TotalPoints()
	plan := &models.ScanPlan{
		PointsPerArc:     cfg.PointsPerArc,
		NumberOfArcs:     cfg.NumberOfArcs,
		FarFieldDistance: cfg.FarFieldDistance,
		Antenna:          cfg.Antenna,
		Heading:          cfg.Heading,
		Altitudes:        Altitudes(cfg.Antenna.Altitude, cfg.NumberOfArcs),
		Waypoints:        make([]models.GeoPoint, 0, total),
		Bearings:         make([]float64, 0, total),
	}

	for z := 0; z < total; z++ {
		arc, pos := z/cfg.PointsPerArc, z%cfg.PointsPerArc

		var angle float64
		if arc%2 == 0 {
			angle = unitLeft + float64(pos)*step
			if angle >= 360 {
				angle -= 360
			}
		} else {
			angle = unitRight - float64(pos)*step
			if angle < 0 {
				angle += 360
			}
		}

		origin := cfg.Antenna.WithAltitude(plan.Altitudes[arc])
		plan.Waypoints = append(plan.Waypoints, geo.Project(origin, angle, cfg.FarFieldDistance))
		plan.Bearings = append(plan.Bearings, angle)
	}

	return plan, nil
}

// ChordDistance returns the ground distance between the first two waypoints
// of the first arc. Every leg after the first is timed from it.
func ChordDistance(plan *models.ScanPlan) float64 {
	if plan.Len() < 2 {
		return 0
	}
	return geo.Distance(plan.Waypoints[0], plan.Waypoints[1])
}

// TravelTimes gives the estimated open-loop travel time for legs of a plan.
type TravelTimes struct {
	// First leg, from the antenna out to the first waypoint
	First time.Duration
	// Every other leg, along the arc or down to the next arc
	Next time.Duration
}

// For returns the travel estimate for the leg ending at waypoint i.
func (t TravelTimes) For(i int) time.Duration {
	if i == 0 {
		return t.First
	}
	return t.Next
}

// EstimateTravelTimes computes the leg timings at groundSpeed (m/s) with a
// fixed margin. The antenna is treated as the start of the first leg; later
// legs reuse the first arc's chord and are not recomputed per arc.
func EstimateTravelTimes(plan *models.ScanPlan, groundSpeed float64, margin time.Duration) TravelTimes {
	seconds := func(meters float64) time.Duration {
		return time.Duration(meters / groundSpeed * float64(time.Second))
	}
	return TravelTimes{
		First: seconds(plan.FarFieldDistance) + margin,
		Next:  seconds(ChordDistance(plan)) + margin,
	}
}
