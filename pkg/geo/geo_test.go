package geo

import (
	"math"
	"testing"

	"github.com/k3suav/antenna-scan/pkg/models"
)

func TestToUnitCircle(t *testing.T) {
	for h := 0; h < 360; h++ {
		want := math.Mod(float64(90-h)+360, 360)
		if got := ToUnitCircle(float64(h)); got != want {
			t.Fatalf("ToUnitCircle(%d) = %v, want %v", h, got, want)
		}
		if back := FromUnitCircle(ToUnitCircle(float64(h))); back != float64(h) {
			t.Fatalf("FromUnitCircle(ToUnitCircle(%d)) = %v", h, back)
		}
	}
}

func TestNormalizeHeading(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0},
		{360, 0},
		{-90, 270},
		{725, 5},
		{-1e-15, 0},
		{359.5, 359.5},
	}
	for _, tt := range tests {
		if got := NormalizeHeading(tt.in); got != tt.want {
			t.Errorf("NormalizeHeading(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestProjectZeroDistanceIsIdentity(t *testing.T) {
	origin := models.GeoPoint{Latitude: 40.0076, Longitude: -105.2659, Altitude: 1655.3}
	for angle := 0.0; angle < 360; angle += 15 {
		if got := Project(origin, angle, 0); got != origin {
			t.Fatalf("Project(origin, %v, 0) = %v, want %v", angle, got, origin)
		}
	}
}

func TestProjectNorthFromEquator(t *testing.T) {
	origin := models.GeoPoint{}
	got := Project(origin, 90, 11132)

	dLat := got.Latitude - origin.Latitude
	if math.Abs(dLat-0.1) > 0.001 {
		t.Fatalf("latitude change = %v, want 0.1 ±1%%", dLat)
	}
	if math.Abs(got.Longitude) > 1e-9 {
		t.Fatalf("longitude drifted to %v", got.Longitude)
	}
}

func TestProjectEastAlongEquator(t *testing.T) {
	got := Project(models.GeoPoint{}, 0, MetersPerDegreeLongitudeEquator)
	if math.Abs(got.Longitude-1) > 1e-9 {
		t.Fatalf("longitude = %v, want 1", got.Longitude)
	}
	if math.Abs(got.Latitude) > 1e-9 {
		t.Fatalf("latitude drifted to %v", got.Latitude)
	}
}

func TestProjectKeepsAltitude(t *testing.T) {
	origin := models.GeoPoint{Latitude: -33.86, Longitude: 151.21, Altitude: 42}
	got := Project(origin, 123, 500)
	if got.Altitude != 42 {
		t.Fatalf("altitude = %v, want 42", got.Altitude)
	}
}

func TestProjectDistanceRoundTrip(t *testing.T) {
	origins := []models.GeoPoint{
		{Latitude: 40.0076, Longitude: -105.2659},
		{Latitude: -33.86, Longitude: 151.21},
		{Latitude: 61.5, Longitude: 10.2},
	}
	for _, origin := range origins {
		for angle := 0.0; angle < 360; angle += 30 {
			dest := Project(origin, angle, 30)
			d := Distance(origin, dest)
			if math.Abs(d-30)/30 > 0.01 {
				t.Fatalf("Distance after Project(%v, %v, 30) = %v, want 30 ±1%%", origin, angle, d)
			}
			wantHeading := FromUnitCircle(angle)
			if diff := math.Abs(Bearing(origin, dest) - wantHeading); math.Min(diff, 360-diff) > 0.5 {
				t.Fatalf("Bearing = %v, want %v", Bearing(origin, dest), wantHeading)
			}
		}
	}
}

func TestMeridionalArcLengthMatchesSimpson(t *testing.T) {
	for _, lat := range []float64{0, 12.5, 40.0076, -45.2, 75.9} {
		lower := ReducedLatitude(radians(math.Floor(lat)))
		upper := ReducedLatitude(radians(math.Floor(lat) + 1))

		got := MeridionalArcLength(lower, upper)
		want := simpson(arcElement, lower, upper, 10000)
		if math.Abs(got-want)/want > 1e-6 {
			t.Fatalf("MeridionalArcLength at %v = %v, want %v", lat, got, want)
		}
	}
}

func TestMetersPerDegreeLatitudeRange(t *testing.T) {
	for _, lat := range []float64{0, 0.5, 30, 45.3, -60.1, 80} {
		m := MetersPerDegreeLatitude(lat)
		if m < 110000 || m > 112500 {
			t.Fatalf("MetersPerDegreeLatitude(%v) = %v, out of range", lat, m)
		}
	}
}

func TestDistanceKnownValue(t *testing.T) {
	a := models.GeoPoint{Latitude: 0, Longitude: 0}
	b := models.GeoPoint{Latitude: 1, Longitude: 0}
	want := MeanRadius * math.Pi / 180
	if got := Distance(a, b); math.Abs(got-want) > 1e-6 {
		t.Fatalf("Distance = %v, want %v", got, want)
	}
}

func simpson(f func(float64) float64, a, b float64, n int) float64 {
	h := (b - a) / float64(n)
	sum := f(a) + f(b)
	for i := 1; i < n; i++ {
		x := a + float64(i)*h
		if i%2 == 1 {
			sum += 4 * f(x)
		} else {
			sum += 2 * f(x)
		}
	}
	return sum * h / 3
}
