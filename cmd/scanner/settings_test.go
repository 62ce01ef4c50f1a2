package main

import (
	"context"
	"testing"
	"time"

	"github.com/k3suav/antenna-scan/pkg/clock"
	"github.com/k3suav/antenna-scan/pkg/config"
	"github.com/k3suav/antenna-scan/pkg/driver"
	"github.com/k3suav/antenna-scan/pkg/measurement"
	"github.com/k3suav/antenna-scan/pkg/supervisor"
	"github.com/sirupsen/logrus/hooks/test"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Antenna.FrequencyHz = 2.4e9
	cfg.Antenna.LengthMeters = 0.5
	cfg.Antenna.Latitude = 52.2297
	cfg.Antenna.Longitude = 21.0122
	cfg.Antenna.Altitude = 110
	cfg.Antenna.Heading = 45
	return cfg
}

func TestSettingsFrom(t *testing.T) {
	cfg := testConfig()
	s := settingsFrom(cfg)

	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if s.FarFieldDistance != 4 || s.FrequencyHz != 2.4e9 {
		t.Fatalf("far field = %v frequency = %v", s.FarFieldDistance, s.FrequencyHz)
	}
	if s.ManualMode != cfg.Flight.ManualMode || s.CompletionHoldTicks != cfg.Flight.CompletionHoldTicks {
		t.Fatalf("flight settings not copied: %+v", s)
	}
	if s.Antenna != nil {
		t.Fatal("antenna preloaded without antenna.fixed")
	}

	cfg.Antenna.Fixed = true
	s = settingsFrom(cfg)
	if s.Antenna == nil || s.Antenna.Heading != 45 || s.Antenna.Position.Altitude != 110 {
		t.Fatalf("fixed antenna = %+v", s.Antenna)
	}
}

func TestDryRunPilot(t *testing.T) {
	cfg := testConfig().Flight
	if dryRunPilot(0) < cfg.ManualThreshold || dryRunPilot(0) >= cfg.CalibrateThreshold {
		t.Fatal("dry run does not start engaged")
	}
	if dryRunPilot(2500*time.Millisecond) < cfg.CalibrateThreshold {
		t.Fatal("dry run does not calibrate")
	}
	if dryRunPilot(time.Minute) >= cfg.ManualThreshold {
		t.Fatal("dry run never releases")
	}
}

// TestDryRunMission flies the sim driver end to end the way main wires it.
func TestDryRunMission(t *testing.T) {
	driver.Clear()
	registerDrivers()
	defer driver.Clear()

	cfg := testConfig()
	cfg.Scan.FarFieldDistance = 10
	cfg.Flight.CompletionHoldTicks = 4
	cfg.Measurement.OutputPath = t.TempDir()

	c := clock.NewFake(time.Date(2024, 7, 4, 9, 30, 0, 0, time.UTC))
	logger, _ := test.NewNullLogger()

	link, err := driver.Open(context.Background(), "sim", driver.Options{
		Vehicle: cfg.Vehicle,
		Antenna: cfg.Antenna,
		Clock:   c,
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer link.Close()

	sup, err := supervisor.New(settingsFrom(cfg), link, measurement.NewRecorder(nil, c, logger), supervisor.Options{
		Clock:  c,
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := sup.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Kind != supervisor.OutcomeCompleted || out.Captured != 3 {
		t.Fatalf("outcome = %+v, want completed with 3 captures", out)
	}
}
