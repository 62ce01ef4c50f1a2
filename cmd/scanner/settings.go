package main

import (
	"context"
	"time"

	"github.com/k3suav/antenna-scan/pkg/config"
	"github.com/k3suav/antenna-scan/pkg/driver"
	"github.com/k3suav/antenna-scan/pkg/mavlink"
	"github.com/k3suav/antenna-scan/pkg/models"
	"github.com/k3suav/antenna-scan/pkg/sim"
	"github.com/k3suav/antenna-scan/pkg/supervisor"
)

func registerDrivers() {
	driver.Register(driver.New("mavlink", func(ctx context.Context, opts driver.Options) (driver.Link, error) {
		v, err := mavlink.Open(ctx, opts.Vehicle, opts.Clock, opts.Logger)
		if err != nil {
			return nil, err
		}
		return v, nil
	}))
	driver.Register(driver.New("sim", func(ctx context.Context, opts driver.Options) (driver.Link, error) {
		return sim.NewVehicle(opts.Clock, simConfig(opts)), nil
	}))
}

func simConfig(opts driver.Options) sim.Config {
	return sim.Config{
		Start: models.GeoPoint{
			Latitude:  opts.Antenna.Latitude,
			Longitude: opts.Antenna.Longitude,
			Altitude:  opts.Antenna.Altitude,
		},
		Heading:  opts.Antenna.Heading,
		ModeLag:  opts.Vehicle.SimModeLag,
		Jitter:   opts.Vehicle.SimJitter,
		Seed:     opts.Vehicle.SimSeed,
		Override: dryRunPilot,
	}
}

// dryRunPilot engages manual, calibrates for a second, then releases.
func dryRunPilot(elapsed time.Duration) int {
	switch {
	case elapsed < 2*time.Second:
		return 1500
	case elapsed < 3*time.Second:
		return 1700
	default:
		return 1000
	}
}

func settingsFrom(cfg *config.Config) supervisor.Settings {
	s := supervisor.DefaultSettings()
	s.ManualThreshold = cfg.Flight.ManualThreshold
	s.CalibrateThreshold = cfg.Flight.CalibrateThreshold
	s.ManualMode = cfg.Flight.ManualMode
	s.AutonomousMode = cfg.Flight.AutonomousMode
	s.FarFieldDistance = cfg.FarFieldDistance()
	s.PointsPerArc = cfg.Scan.PointsPerArc
	s.NumberOfArcs = cfg.Scan.NumberOfArcs
	s.GroundSpeed = cfg.Flight.GroundSpeed
	s.TravelMargin = cfg.Flight.TravelMargin
	s.FrequencyHz = cfg.Antenna.FrequencyHz
	s.OutputPath = cfg.Measurement.OutputPath
	s.ModeSwitchRetries = cfg.Flight.ModeSwitchRetries
	s.CompletionHoldTicks = cfg.Flight.CompletionHoldTicks
	s.ArrivalRadius = cfg.Flight.ArrivalRadius
	s.ArrivalTimeout = cfg.Flight.ArrivalTimeout

	if cfg.Antenna.Fixed {
		s.Antenna = &supervisor.AntennaReference{
			Position: models.GeoPoint{
				Latitude:  cfg.Antenna.Latitude,
				Longitude: cfg.Antenna.Longitude,
				Altitude:  cfg.Antenna.Altitude,
			},
			Heading: cfg.Antenna.Heading,
		}
	}
	return s
}
