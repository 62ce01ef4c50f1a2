package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/k3suav/antenna-scan/pkg/models"
)

func baseOptions() options {
	return options{
		latitude:  52.2297,
		longitude: 21.0122,
		altitude:  110,
		heading:   0,
		distance:  25,
		points:    3,
		arcs:      2,
		speed:     1,
		margin:    500 * time.Millisecond,
	}
}

func TestBuildPlanDerivesDistance(t *testing.T) {
	o := baseOptions()
	o.distance = 0
	o.frequency = 2.4e9
	o.length = 0.5

	plan, _, err := buildPlan(o)
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	if math.Abs(plan.FarFieldDistance-4) > 1e-12 {
		t.Fatalf("far field = %v, want 4", plan.FarFieldDistance)
	}

	o.frequency = 0
	if _, _, err := buildPlan(o); !errors.Is(err, models.ErrInvalidFrequency) {
		t.Fatalf("buildPlan without frequency = %v", err)
	}
	o.frequency, o.length = 2.4e9, 0
	if _, _, err := buildPlan(o); !errors.Is(err, models.ErrInvalidLength) {
		t.Fatalf("buildPlan without length = %v", err)
	}
}

func TestBuildPlanRejectsBadGeometry(t *testing.T) {
	o := baseOptions()
	o.points = 4
	if _, _, err := buildPlan(o); !errors.Is(err, models.ErrInvalidPointsPerArc) {
		t.Fatalf("buildPlan = %v, want ErrInvalidPointsPerArc", err)
	}
}

func TestWriteCSV(t *testing.T) {
	plan, times, err := buildPlan(baseOptions())
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	var buf bytes.Buffer
	if err := write(&buf, "csv", plan, times); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 7 {
		t.Fatalf("rows = %d, want header + 6", len(rows))
	}
	if rows[1][7] != "25.50" {
		t.Fatalf("first leg = %s, want 25.50", rows[1][7])
	}
	if rows[4][1] != "1" || rows[4][2] != "0" || rows[4][6] != "108.00" {
		t.Fatalf("first waypoint of second arc = %v", rows[4])
	}
}

func TestWriteJSON(t *testing.T) {
	plan, times, err := buildPlan(baseOptions())
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	var buf bytes.Buffer
	if err := write(&buf, "json", plan, times); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got struct {
		Waypoints       []models.GeoPoint `json:"waypoints"`
		FirstLegSeconds float64           `json:"firstLegSeconds"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Waypoints) != 6 || got.FirstLegSeconds != 25.5 {
		t.Fatalf("decoded = %d waypoints, first leg %v", len(got.Waypoints), got.FirstLegSeconds)
	}

	if err := write(&buf, "xml", plan, times); err == nil {
		t.Fatal("unknown format accepted")
	}
}
