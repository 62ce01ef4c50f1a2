package supervisor

import (
	"context"

	"github.com/k3suav/antenna-scan/pkg/models"
)

// Vehicle is the flight controller link. The supervisor is its only writer.
type Vehicle interface {
	// Telemetry returns the latest snapshot. It returns an error wrapping
	// models.ErrTelemetryUnavailable when no fresh data is available.
	Telemetry(ctx context.Context) (models.TelemetrySnapshot, error)
	SetMode(ctx context.Context, mode string) error
	Arm(ctx context.Context) error
	MoveTo(ctx context.Context, target models.GeoPoint, groundSpeed float64) error
}

// MeasurementService records the signal at a waypoint.
type MeasurementService interface {
	Capture(ctx context.Context, waypointIndex int, frequencyHz float64, outputPath string) error
}

// Observer is told about every state transition.
type Observer interface {
	OnTransition(ctx context.Context, t Transition)
}

// CaptureObserver is implemented by observers that also want capture results.
type CaptureObserver interface {
	OnCapture(ctx context.Context, waypointIndex int, err error)
}

// TelemetryObserver is implemented by observers that track failed telemetry reads.
type TelemetryObserver interface {
	OnTelemetryFailure(ctx context.Context, err error)
}
