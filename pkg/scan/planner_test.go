package scan

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/k3suav/antenna-scan/pkg/geo"
	"github.com/k3suav/antenna-scan/pkg/models"
)

func testConfig(heading float64, points, arcs int) models.ScanConfig {
	return models.ScanConfig{
		FarFieldDistance: 25,
		PointsPerArc:     points,
		NumberOfArcs:     arcs,
		Antenna:          models.GeoPoint{Latitude: 40.0076, Longitude: -105.2659, Altitude: 1655},
		Heading:          heading,
	}
}

func TestExtremeBearings(t *testing.T) {
	tests := []struct {
		heading     float64
		left, right float64
	}{
		{0, 240, 120},
		{45, 285, 165},
		{120, 0, 240},
		{180, 60, 300},
		{240, 120, 0},
		{300, 180, 60},
		{359, 239, 119},
	}
	for _, tt := range tests {
		left, right := ExtremeBearings(tt.heading)
		if left != tt.left || right != tt.right {
			t.Errorf("ExtremeBearings(%v) = (%v, %v), want (%v, %v)", tt.heading, left, right, tt.left, tt.right)
		}
	}
}

func TestGenerateHeadingZeroScenario(t *testing.T) {
	plan, err := Generate(testConfig(0, 3, 2))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := []float64{210, 270, 330, 330, 270, 210}
	if !reflect.DeepEqual(plan.Bearings, want) {
		t.Fatalf("Bearings = %v, want %v", plan.Bearings, want)
	}

	// Arc boundary points share a bearing and differ only in altitude.
	last, first := plan.Waypoints[2], plan.Waypoints[3]
	if last.Latitude != first.Latitude || last.Longitude != first.Longitude {
		t.Fatalf("arc boundary points differ: %v vs %v", last, first)
	}
	if last.Altitude-first.Altitude != AltitudeStep {
		t.Fatalf("arc altitude drop = %v, want %v", last.Altitude-first.Altitude, AltitudeStep)
	}
}

func TestGenerateSizesAndAltitudes(t *testing.T) {
	for _, tc := range []struct{ points, arcs int }{{3, 1}, {5, 3}, {9, 4}, {21, 2}} {
		cfg := testConfig(77, tc.points, tc.arcs)
		plan, err := Generate(cfg)
		if err != nil {
			t.Fatalf("Generate(%d, %d): %v", tc.points, tc.arcs, err)
		}
		if plan.Len() != tc.points*tc.arcs {
			t.Fatalf("len(Waypoints) = %d, want %d", plan.Len(), tc.points*tc.arcs)
		}
		if len(plan.Altitudes) != tc.arcs {
			t.Fatalf("len(Altitudes) = %d, want %d", len(plan.Altitudes), tc.arcs)
		}
		for i, alt := range plan.Altitudes {
			if want := cfg.Antenna.Altitude - 2*float64(i); alt != want {
				t.Fatalf("Altitudes[%d] = %v, want %v", i, alt, want)
			}
		}
		for z, wp := range plan.Waypoints {
			arc, _ := plan.ArcOf(z)
			if wp.Altitude != plan.Altitudes[arc] {
				t.Fatalf("waypoint %d altitude = %v, want %v", z, wp.Altitude, plan.Altitudes[arc])
			}
			if d := geo.Distance(cfg.Antenna, wp); math.Abs(d-cfg.FarFieldDistance) > 0.01*cfg.FarFieldDistance {
				t.Fatalf("waypoint %d is %vm from antenna, want %v", z, d, cfg.FarFieldDistance)
			}
		}
	}
}

func TestGenerateArcDirectionAlternates(t *testing.T) {
	for _, heading := range []float64{0, 30, 119.5, 120, 200, 240, 301, 359.9} {
		cfg := testConfig(heading, 7, 3)
		plan, err := Generate(cfg)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		left, right := ExtremeBearings(heading)
		unitLeft, unitRight := geo.ToUnitCircle(left), geo.ToUnitCircle(right)
		step := AngleStep(cfg.PointsPerArc)

		for z, angle := range plan.Bearings {
			if angle < 0 || angle >= 360 {
				t.Fatalf("heading %v: bearing %d = %v outside [0,360)", heading, z, angle)
			}
			arc, pos := plan.ArcOf(z)
			var offset float64
			if arc%2 == 0 {
				offset = geo.NormalizeHeading(angle - unitLeft)
			} else {
				offset = geo.NormalizeHeading(unitRight - angle)
			}
			if math.Abs(offset-float64(pos)*step) > 1e-9 && math.Abs(offset-float64(pos)*step-360) > 1e-9 {
				t.Fatalf("heading %v: waypoint %d offset %v, want %v", heading, z, offset, float64(pos)*step)
			}
		}
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	cfg := testConfig(222.2, 11, 3)
	a, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("Generate returned different plans for identical config")
	}
}

func TestGenerateRejectsInvalidConfig(t *testing.T) {
	_, err := Generate(testConfig(0, 4, 1))
	if !errors.Is(err, models.ErrInvalidPointsPerArc) {
		t.Fatalf("Generate with even points = %v, want ErrInvalidPointsPerArc", err)
	}
}

func TestEstimateTravelTimes(t *testing.T) {
	plan, err := Generate(testConfig(0, 3, 2))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	times := EstimateTravelTimes(plan, 1, 500*time.Millisecond)
	if want := 25*time.Second + 500*time.Millisecond; times.First != want {
		t.Fatalf("First = %v, want %v", times.First, want)
	}

	// 60 degrees apart on a 25m circle: chord = 2·25·sin(30°) = 25m.
	chord := ChordDistance(plan)
	if math.Abs(chord-25) > 0.25 {
		t.Fatalf("ChordDistance = %v, want ~25", chord)
	}
	if times.For(0) != times.First || times.For(3) != times.Next || times.For(5) != times.Next {
		t.Fatal("For() did not select First/Next legs")
	}
}
