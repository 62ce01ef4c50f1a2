package models

import "errors"

var (
	// GPS errors
	ErrInvalidLatitude  = errors.New("invalid latitude: must be between -90 and 90")
	ErrInvalidLongitude = errors.New("invalid longitude: must be between -180 and 180")
	ErrPolarLatitude    = errors.New("latitude must be strictly between the poles")

	// Scan configuration errors
	ErrInvalidPointsPerArc = errors.New("points per arc must be odd and at least 3")
	ErrInvalidNumberOfArcs = errors.New("number of arcs must be at least 1")
	ErrInvalidDistance     = errors.New("far-field distance must be > 0")
	ErrInvalidHeading      = errors.New("heading must be in [0,360)")
	ErrInvalidFrequency    = errors.New("antenna frequency must be > 0")
	ErrInvalidLength       = errors.New("antenna length must be > 0")

	// Telemetry errors
	ErrTelemetryUnavailable = errors.New("telemetry unavailable")
	ErrTelemetryStale       = errors.New("telemetry stale")

	// Vehicle command errors
	ErrVehicleCommand        = errors.New("vehicle command failed")
	ErrModeSwitchUnconfirmed = errors.New("mode switch not confirmed")
	ErrUnknownMode           = errors.New("unknown flight mode")
	ErrVehicleNotConnected   = errors.New("vehicle not connected")

	// Measurement errors
	ErrCaptureFailed  = errors.New("measurement capture failed")
	ErrCaptureTimeout = errors.New("measurement capture timed out")

	// K8s errors
	ErrK8sClientNotInitialized = errors.New("kubernetes client not initialized")
	ErrCRDUpdateFailed         = errors.New("failed to update CRD")
)
