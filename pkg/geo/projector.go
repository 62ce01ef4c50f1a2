package geo

import (
	"math"

	"github.com/k3suav/antenna-scan/pkg/models"
	"gonum.org/v1/gonum/integrate/quad"
)

const (
	// EquatorialRadius of the Earth in meters
	EquatorialRadius = 6378137.0
	// PolarRadius of the Earth in meters
	PolarRadius = 6356752.0
	// MetersPerDegreeLongitudeEquator is the arc length of one degree of
	// longitude along the equator.
	MetersPerDegreeLongitudeEquator = 111317.4306
	// MeanRadius is used for haversine ground distances.
	MeanRadius = 6371000.0

	// Gauss-Legendre nodes for the meridional integral. The integrand is
	// smooth over a one degree span, so 16 nodes reach float64 precision.
	quadratureNodes = 16
)

// ReducedLatitude converts a geodetic latitude (radians) into the reduced
// (parametric) latitude of the ellipsoid.
func ReducedLatitude(lat float64) float64 {
	return math.Atan((EquatorialRadius / PolarRadius) * math.Tan(lat))
}

// MeridionalArcLength integrates the ellipse arc element
// sqrt(Re² sin²θ + Rp² cos²θ) dθ between two reduced latitudes (radians).
// The result is in meters, within 1e-6 relative of an adaptive reference.
func MeridionalArcLength(lower, upper float64) float64 {
	return quad.Fixed(arcElement, lower, upper, quadratureNodes, nil, 0)
}

func arcElement(theta float64) float64 {
	s := EquatorialRadius * math.Sin(theta)
	c := PolarRadius * math.Cos(theta)
	return math.Sqrt(s*s + c*c)
}

// MetersPerDegreeLatitude returns the length of one degree of latitude around
// lat, measured between the two integer parallels that bracket it. An origin
// exactly on a parallel uses the degree above it.
func MetersPerDegreeLatitude(lat float64) float64 {
	lower := math.Floor(lat)
	upper := math.Ceil(lat)
	if lower == upper {
		upper = lower + 1
	}
	return MeridionalArcLength(ReducedLatitude(radians(lower)), ReducedLatitude(radians(upper)))
}

// MetersPerDegreeLongitude returns the length of one degree of longitude at lat.
func MetersPerDegreeLongitude(lat float64) float64 {
	return math.Cos(radians(lat)) * MetersPerDegreeLongitudeEquator
}

// Project returns the point distance meters away from origin in the
// direction of the unit-circle angle (degrees, counter-clockwise from east).
// Altitude is carried over unchanged. Scale factors are evaluated at the
// origin only, so accuracy drops for long distances. Latitudes at the poles
// are not supported.
func Project(origin models.GeoPoint, angle, distance float64) models.GeoPoint {
	if distance == 0 {
		return origin
	}

	theta := radians(angle)
	dx := distance * math.Cos(theta)
	dy := distance * math.Sin(theta)

	return models.GeoPoint{
		Latitude:  origin.Latitude + dy/MetersPerDegreeLatitude(origin.Latitude),
		Longitude: origin.Longitude + dx/MetersPerDegreeLongitude(origin.Latitude),
		Altitude:  origin.Altitude,
	}
}

// Distance returns the great-circle ground distance between two points in
// meters using the haversine formula. Altitude is ignored.
func Distance(a, b models.GeoPoint) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * MeanRadius * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Bearing returns the initial compass heading from a to b in [0,360).
func Bearing(a, b models.GeoPoint) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return NormalizeHeading(degrees(math.Atan2(y, x)))
}
