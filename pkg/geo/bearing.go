// Package geo holds the geodesic helpers used to lay out scan waypoints:
// compass/unit-circle conversion, destination projection on an ellipsoidal
// Earth, and ground distance.
package geo

import "math"

// NormalizeHeading folds any angle in degrees into [0,360).
func NormalizeHeading(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		// -1e-15 + 360 rounds to 360
		deg = 0
	}
	return deg
}

// ToUnitCircle converts a compass heading (clockwise from north) into a
// unit-circle angle (counter-clockwise from east). Both are in [0,360).
func ToUnitCircle(heading float64) float64 {
	return NormalizeHeading(90 - heading)
}

// FromUnitCircle is the inverse of ToUnitCircle.
func FromUnitCircle(angle float64) float64 {
	return NormalizeHeading(90 - angle)
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
