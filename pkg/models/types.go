package models

import (
	"fmt"
	"time"
)

// GeoPoint is a position on the Earth in decimal degrees with an altitude
// in meters above mean sea level.
type GeoPoint struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Altitude  float64 `json:"altitude" yaml:"altitude"`
}

// String formats the point as "(lat, lon, alt)".
func (p GeoPoint) String() string {
	return fmt.Sprintf("(%.7f, %.7f, %.2fm)", p.Latitude, p.Longitude, p.Altitude)
}

// WithAltitude returns a copy of p at the given altitude.
func (p GeoPoint) WithAltitude(alt float64) GeoPoint {
	p.Altitude = alt
	return p
}

// Validate validates the coordinate ranges
func (p GeoPoint) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return ErrInvalidLatitude
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

// ScanConfig holds everything needed to lay out a scan plan around an antenna.
type ScanConfig struct {
	// Scan radius in meters
	FarFieldDistance float64 `json:"farFieldDistance"`

	// Waypoints per arc, odd and at least 3
	PointsPerArc int `json:"pointsPerArc"`

	// Number of arcs, each flown 2m lower than the previous one
	NumberOfArcs int `json:"numberOfArcs"`

	// Antenna reference position
	Antenna GeoPoint `json:"antenna"`

	// Compass heading of the antenna boresight, [0,360)
	Heading float64 `json:"heading"`
}

// Validate validates the scan parameters
func (c ScanConfig) Validate() error {
	if c.PointsPerArc < 3 || c.PointsPerArc%2 == 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidPointsPerArc, c.PointsPerArc)
	}
	if c.NumberOfArcs < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidNumberOfArcs, c.NumberOfArcs)
	}
	if c.FarFieldDistance <= 0 {
		return fmt.Errorf("%w: got %g", ErrInvalidDistance, c.FarFieldDistance)
	}
	if c.Heading < 0 || c.Heading >= 360 {
		return fmt.Errorf("%w: got %g", ErrInvalidHeading, c.Heading)
	}
	if err := c.Antenna.Validate(); err != nil {
		return fmt.Errorf("antenna position: %w", err)
	}
	if c.Antenna.Latitude <= -90 || c.Antenna.Latitude >= 90 {
		return ErrPolarLatitude
	}
	return nil
}

// TotalPoints returns the number of waypoints the plan will contain.
func (c ScanConfig) TotalPoints() int {
	return c.PointsPerArc * c.NumberOfArcs
}

// ScanPlan is the ordered set of waypoints for one mission. It is built once
// and never modified afterwards.
type ScanPlan struct {
	PointsPerArc     int        `json:"pointsPerArc"`
	NumberOfArcs     int        `json:"numberOfArcs"`
	FarFieldDistance float64    `json:"farFieldDistance"`
	Antenna          GeoPoint   `json:"antenna"`
	Heading          float64    `json:"heading"`
	Altitudes        []float64  `json:"altitudes"`
	Waypoints        []GeoPoint `json:"waypoints"`

	// Unit-circle angle used for each waypoint, same order as Waypoints
	Bearings []float64 `json:"bearings"`
}

// Len returns the number of waypoints.
func (p *ScanPlan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Waypoints)
}

// ArcOf returns the arc index and position within the arc of waypoint z.
func (p *ScanPlan) ArcOf(z int) (arc, pos int) {
	return z / p.PointsPerArc, z % p.PointsPerArc
}

// TelemetrySnapshot is a single read of vehicle state.
type TelemetrySnapshot struct {
	Position        GeoPoint  `json:"position"`
	Heading         float64   `json:"heading"`
	OverrideChannel int       `json:"overrideChannel"`
	Armed           bool      `json:"armed"`
	Mode            string    `json:"mode"`
	Timestamp       time.Time `json:"timestamp"`
}

// FlightMode constants
const (
	FlightModeManual       = "MANUAL"
	FlightModeStabilize    = "STABILIZE"
	FlightModeAltitudeHold = "ALT_HOLD"
	FlightModePositionHold = "POSHOLD"
	FlightModeAuto         = "AUTO"
	FlightModeGuided       = "GUIDED"
	FlightModeLoiter       = "LOITER"
	FlightModeRTL          = "RTL"
	FlightModeLand         = "LAND"
	FlightModeUnknown      = "UNKNOWN"
)
