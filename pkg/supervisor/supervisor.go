package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/k3suav/antenna-scan/pkg/clock"
	"github.com/k3suav/antenna-scan/pkg/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultPollInterval is the override polling period.
	DefaultPollInterval = 500 * time.Millisecond

	restoreTimeout = 5 * time.Second
	tracerName     = "github.com/k3suav/antenna-scan/pkg/supervisor"
)

// Options configures a Supervisor. Zero values select defaults.
type Options struct {
	Clock        clock.Clock
	Logger       *logrus.Logger
	Tracer       trace.Tracer
	PollInterval time.Duration
	Observers    []Observer
}

// Supervisor runs a Machine against a live vehicle and measurement service.
type Supervisor struct {
	machine   *Machine
	settings  Settings
	vehicle   Vehicle
	meter     MeasurementService
	clock     clock.Clock
	log       *logrus.Logger
	tracer    trace.Tracer
	interval  time.Duration
	observers []Observer
}

// New creates a supervisor for one mission.
func New(settings Settings, vehicle Vehicle, meter MeasurementService, opts Options) (*Supervisor, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid supervisor settings: %w", err)
	}
	if vehicle == nil {
		return nil, models.ErrVehicleNotConnected
	}
	if meter == nil {
		return nil, errors.New("measurement service is required")
	}

	s := &Supervisor{
		machine:   NewMachine(settings),
		settings:  settings,
		vehicle:   vehicle,
		meter:     meter,
		clock:     opts.Clock,
		log:       opts.Logger,
		tracer:    opts.Tracer,
		interval:  opts.PollInterval,
		observers: opts.Observers,
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.interval <= 0 {
		s.interval = DefaultPollInterval
	}
	return s, nil
}

// Machine exposes the underlying state machine for inspection.
func (s *Supervisor) Machine() *Machine { return s.machine }

// Run polls the vehicle until the mission ends or ctx is cancelled. On
// cancellation the manual mode is restored before Run returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "mission")
	defer span.End()

	s.log.WithFields(logrus.Fields{
		"poll_interval":  s.interval,
		"points_per_arc": s.settings.PointsPerArc,
		"arcs":           s.settings.NumberOfArcs,
		"far_field_m":    fmt.Sprintf("%.2f", s.settings.FarFieldDistance),
	}).Info("Flight supervisor started")

	var cmdErr error
	for {
		if ctx.Err() != nil {
			return s.interrupt(ctx, span)
		}

		snap, telErr := s.vehicle.Telemetry(ctx)
		if telErr != nil {
			if ctx.Err() != nil {
				return s.interrupt(ctx, span)
			}
			s.notifyTelemetryFailure(ctx, telErr)
		}

		fx := s.machine.Step(Input{
			Now:          s.clock.Now(),
			Telemetry:    snap,
			TelemetryErr: telErr,
			CommandErr:   cmdErr,
		})
		cmdErr = s.dispatch(ctx, span, fx)

		if s.machine.Done() {
			if cmdErr != nil {
				s.log.WithError(cmdErr).Warn("Failed to return control to pilot")
			}
			return s.finish(span), nil
		}

		select {
		case <-ctx.Done():
			return s.interrupt(ctx, span)
		case <-s.clock.After(s.interval):
		}
	}
}

func (s *Supervisor) interrupt(ctx context.Context, span trace.Span) (Outcome, error) {
	s.log.WithError(ctx.Err()).Warn("Mission interrupted, restoring manual control")

	restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()

	fx := s.machine.Interrupt(s.clock.Now(), "supervisor stopped")
	if err := s.dispatch(restoreCtx, span, fx); err != nil {
		s.log.WithError(err).Error("Failed to restore manual control")
	}
	s.finish(span)
	return s.machine.Outcome(), ctx.Err()
}

func (s *Supervisor) finish(span trace.Span) Outcome {
	out := s.machine.Outcome()
	span.SetAttributes(
		attribute.String("outcome", out.Kind.String()),
		attribute.Int("captured", out.Captured),
	)
	if out.Kind == OutcomeAborted {
		span.SetStatus(codes.Error, out.Reason)
	}

	entry := s.log.WithFields(logrus.Fields{
		"outcome":  out.Kind.String(),
		"reason":   out.Reason,
		"captured": out.Captured,
	})
	if out.Err != nil {
		entry = entry.WithError(out.Err)
	}
	entry.Info("Mission finished")
	return out
}

// dispatch carries out effects in order and returns the joined vehicle
// command errors. Capture failures are reported but not returned.
func (s *Supervisor) dispatch(ctx context.Context, span trace.Span, fx []Effect) error {
	var errs []error
	for _, e := range fx {
		switch e := e.(type) {
		case SetMode:
			if err := s.vehicle.SetMode(ctx, e.Mode); err != nil {
				errs = append(errs, fmt.Errorf("set mode %s: %w", e.Mode, err))
				continue
			}
			s.log.WithField("mode", e.Mode).Info("Mode change requested")

		case Arm:
			if err := s.vehicle.Arm(ctx); err != nil {
				errs = append(errs, fmt.Errorf("arm: %w", err))
				continue
			}
			s.log.Info("Arming requested")

		case MoveTo:
			if err := s.vehicle.MoveTo(ctx, e.Target, e.GroundSpeed); err != nil {
				errs = append(errs, fmt.Errorf("move to waypoint %d: %w", e.Index, err))
				continue
			}
			s.log.WithFields(logrus.Fields{
				"waypoint": e.Index,
				"lat":      fmt.Sprintf("%.7f", e.Target.Latitude),
				"lon":      fmt.Sprintf("%.7f", e.Target.Longitude),
				"alt":      fmt.Sprintf("%.2f", e.Target.Altitude),
				"speed":    e.GroundSpeed,
			}).Info("Travelling to waypoint")

		case Capture:
			err := s.meter.Capture(ctx, e.Index, e.FrequencyHz, e.OutputPath)
			if err != nil {
				s.log.WithError(err).WithField("waypoint", e.Index).Warn("Measurement capture failed")
			} else {
				s.log.WithField("waypoint", e.Index).Info("Measurement captured")
			}
			s.notifyCapture(ctx, e.Index, err)

		case Notice:
			entry := s.log.WithField("state", s.machine.State().String())
			if e.Err != nil {
				entry = entry.WithError(e.Err)
			}
			entry.Log(e.Level, e.Message)

		case Transition:
			s.log.WithFields(logrus.Fields{
				"from":   e.From.String(),
				"to":     e.To.String(),
				"reason": e.Reason,
			}).Info("State transition")
			span.AddEvent("transition", trace.WithAttributes(
				attribute.String("from", e.From.String()),
				attribute.String("to", e.To.String()),
				attribute.String("reason", e.Reason),
			))
			for _, o := range s.observers {
				o.OnTransition(ctx, e)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Supervisor) notifyCapture(ctx context.Context, index int, err error) {
	for _, o := range s.observers {
		if co, ok := o.(CaptureObserver); ok {
			co.OnCapture(ctx, index, err)
		}
	}
}

func (s *Supervisor) notifyTelemetryFailure(ctx context.Context, err error) {
	s.log.WithError(err).Debug("Telemetry read failed")
	for _, o := range s.observers {
		if to, ok := o.(TelemetryObserver); ok {
			to.OnTelemetryFailure(ctx, err)
		}
	}
}
