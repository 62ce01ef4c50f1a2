// Package sim provides a simulated vehicle for dry runs and integration
// tests. It flies straight lines toward the last commanded target on an
// injected clock.
package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/k3suav/antenna-scan/pkg/clock"
	"github.com/k3suav/antenna-scan/pkg/geo"
	"github.com/k3suav/antenna-scan/pkg/models"
)

// OverrideScript returns the override channel value at elapsed time since
// the simulation started.
type OverrideScript func(elapsed time.Duration) int

// Config describes the simulated vehicle.
type Config struct {
	// Start is the position the vehicle is powered on at
	Start models.GeoPoint
	// Heading is the compass heading at power on
	Heading float64
	// ModeLag is how many extra SetMode calls are ignored before a mode request takes effect
	ModeLag int
	// ClimbRate bounds vertical speed (m/s); 0 means altitude changes with the leg
	ClimbRate float64
	// Jitter adds uniform GPS noise of up to this many meters
	Jitter float64
	// Seed seeds the noise source
	Seed int64
	// Override scripts the RC override channel. Nil holds SetOverride values.
	Override OverrideScript
}

// Vehicle is a simulated flight controller.
type Vehicle struct {
	mu sync.Mutex

	clock   clock.Clock
	started time.Time
	last    time.Time
	rand    *rand.Rand
	cfg     Config

	position    models.GeoPoint
	heading     float64
	target      *models.GeoPoint
	groundSpeed float64

	mode        string
	pendingMode string
	modeCalls   int
	armed       bool
	override    int

	telemetryErr error
	commandErr   error

	moves []models.GeoPoint
	modes []string
}

// NewVehicle creates a simulated vehicle on c.
func NewVehicle(c clock.Clock, cfg Config) *Vehicle {
	now := c.Now()
	return &Vehicle{
		clock:    c,
		started:  now,
		last:     now,
		rand:     rand.New(rand.NewSource(cfg.Seed)),
		cfg:      cfg,
		position: cfg.Start,
		heading:  geo.NormalizeHeading(cfg.Heading),
		mode:     models.FlightModeStabilize,
		override: 1000,
	}
}

// Telemetry implements supervisor.Vehicle.
func (v *Vehicle) Telemetry(ctx context.Context) (models.TelemetrySnapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.telemetryErr != nil {
		return models.TelemetrySnapshot{}, fmt.Errorf("%w: %w", models.ErrTelemetryUnavailable, v.telemetryErr)
	}

	now := v.clock.Now()
	v.advance(now)

	if v.cfg.Override != nil {
		v.override = v.cfg.Override(now.Sub(v.started))
	}

	pos := v.position
	if v.cfg.Jitter > 0 {
		pos = geo.Project(pos, v.rand.Float64()*360, v.rand.Float64()*v.cfg.Jitter)
	}

	return models.TelemetrySnapshot{
		Position:        pos,
		Heading:         v.heading,
		OverrideChannel: v.override,
		Armed:           v.armed,
		Mode:            v.mode,
		Timestamp:       now,
	}, nil
}

// advance moves the vehicle along its current leg up to now.
func (v *Vehicle) advance(now time.Time) {
	dt := now.Sub(v.last).Seconds()
	v.last = now
	if v.target == nil || dt <= 0 || !v.armed || v.mode != models.FlightModeGuided {
		return
	}

	remaining := geo.Distance(v.position, *v.target)
	step := v.groundSpeed * dt
	climb := v.target.Altitude - v.position.Altitude

	if step >= remaining {
		alt := v.target.Altitude
		if v.cfg.ClimbRate > 0 && math.Abs(climb) > v.cfg.ClimbRate*dt {
			alt = v.position.Altitude + math.Copysign(v.cfg.ClimbRate*dt, climb)
		}
		v.position = v.target.WithAltitude(alt)
		return
	}

	bearing := geo.Bearing(v.position, *v.target)
	next := geo.Project(v.position, geo.ToUnitCircle(bearing), step)
	switch {
	case v.cfg.ClimbRate > 0 && math.Abs(climb) > v.cfg.ClimbRate*dt:
		next.Altitude = v.position.Altitude + math.Copysign(v.cfg.ClimbRate*dt, climb)
	default:
		next.Altitude = v.position.Altitude + climb*step/remaining
	}
	v.position = next
	v.heading = bearing
}

// SetMode implements supervisor.Vehicle. With ModeLag > 0 the request only
// takes effect once it has been repeated ModeLag more times.
func (v *Vehicle) SetMode(ctx context.Context, mode string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.commandErr != nil {
		return v.commandErr
	}
	v.advance(v.clock.Now())
	v.modes = append(v.modes, mode)

	if mode != v.pendingMode {
		v.pendingMode = mode
		v.modeCalls = 0
	}
	v.modeCalls++
	if v.modeCalls > v.cfg.ModeLag {
		v.mode = mode
	}
	return nil
}

// Arm implements supervisor.Vehicle.
func (v *Vehicle) Arm(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.commandErr != nil {
		return v.commandErr
	}
	v.armed = true
	return nil
}

// MoveTo implements supervisor.Vehicle.
func (v *Vehicle) MoveTo(ctx context.Context, target models.GeoPoint, groundSpeed float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.commandErr != nil {
		return v.commandErr
	}
	if v.mode != models.FlightModeGuided {
		return fmt.Errorf("%w: move requires %s, vehicle in %s", models.ErrVehicleCommand, models.FlightModeGuided, v.mode)
	}
	v.advance(v.clock.Now())
	t := target
	v.target = &t
	v.groundSpeed = groundSpeed
	v.moves = append(v.moves, target)
	return nil
}

// SetOverride sets the override channel when no script is configured.
func (v *Vehicle) SetOverride(value int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.override = value
}

// FailTelemetry makes every Telemetry call fail with err until cleared with nil.
func (v *Vehicle) FailTelemetry(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.telemetryErr = err
}

// FailCommands makes every command fail with err until cleared with nil.
func (v *Vehicle) FailCommands(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.commandErr = err
}

// Position returns the true, noise-free position.
func (v *Vehicle) Position() models.GeoPoint {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position
}

// Moves returns every accepted MoveTo target in order.
func (v *Vehicle) Moves() []models.GeoPoint {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.GeoPoint(nil), v.moves...)
}

// Modes returns every accepted SetMode request in order.
func (v *Vehicle) Modes() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.modes...)
}

// Close implements driver.Link. There is nothing to release.
func (v *Vehicle) Close() error { return nil }
