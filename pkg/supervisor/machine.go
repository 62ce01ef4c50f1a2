package supervisor

import (
	"errors"
	"fmt"
	"time"

	"github.com/k3suav/antenna-scan/pkg/geo"
	"github.com/k3suav/antenna-scan/pkg/models"
	"github.com/k3suav/antenna-scan/pkg/scan"
	"github.com/sirupsen/logrus"
)

// Settings holds the fixed mission parameters of a Machine.
type Settings struct {
	// Override channel thresholds (PWM microseconds)
	ManualThreshold    int
	CalibrateThreshold int

	ManualMode     string
	AutonomousMode string

	FarFieldDistance float64
	PointsPerArc     int
	NumberOfArcs     int

	GroundSpeed  float64
	TravelMargin time.Duration

	FrequencyHz float64
	OutputPath  string

	// ModeSwitchRetries bounds how many times the autonomous mode request is
	// re-issued before the mission aborts.
	ModeSwitchRetries int
	// CompletionHoldTicks is how many polls the vehicle holds after the last
	// capture before control returns to the pilot.
	CompletionHoldTicks int

	// ArrivalRadius enables position confirmation on top of the travel
	// deadline when > 0. ArrivalTimeout caps the extra wait.
	ArrivalRadius  float64
	ArrivalTimeout time.Duration

	// Antenna pre-loads the antenna reference. Calibrating overwrites it.
	Antenna *AntennaReference
}

// DefaultSettings returns the settings the field rig flies with.
func DefaultSettings() Settings {
	return Settings{
		ManualThreshold:     1200,
		CalibrateThreshold:  1600,
		ManualMode:          models.FlightModeStabilize,
		AutonomousMode:      models.FlightModeGuided,
		PointsPerArc:        3,
		NumberOfArcs:        1,
		GroundSpeed:         1,
		TravelMargin:        500 * time.Millisecond,
		ModeSwitchRetries:   20,
		CompletionHoldTicks: 1000,
		ArrivalTimeout:      10 * time.Second,
	}
}

// Validate checks the settings a Machine relies on. Scan geometry is
// checked separately when the plan is generated.
func (s Settings) Validate() error {
	if s.ManualThreshold <= 0 {
		return fmt.Errorf("manual threshold must be > 0")
	}
	if s.CalibrateThreshold <= s.ManualThreshold {
		return fmt.Errorf("calibrate threshold (%d) must be above manual threshold (%d)", s.CalibrateThreshold, s.ManualThreshold)
	}
	if s.ManualMode == "" || s.AutonomousMode == "" {
		return fmt.Errorf("manual and autonomous modes must be set")
	}
	if s.GroundSpeed <= 0 {
		return fmt.Errorf("ground speed must be > 0")
	}
	if s.TravelMargin < 0 {
		return fmt.Errorf("travel margin must be >= 0")
	}
	if s.ModeSwitchRetries <= 0 {
		return fmt.Errorf("mode switch retries must be > 0")
	}
	if s.CompletionHoldTicks < 0 {
		return fmt.Errorf("completion hold ticks must be >= 0")
	}
	if s.ArrivalRadius < 0 {
		return fmt.Errorf("arrival radius must be >= 0")
	}
	if s.FrequencyHz <= 0 {
		return fmt.Errorf("%w: %v", models.ErrInvalidFrequency, s.FrequencyHz)
	}
	return nil
}

// Input is everything the machine sees on one poll tick.
type Input struct {
	Now          time.Time
	Telemetry    models.TelemetrySnapshot
	TelemetryErr error
	// CommandErr is the vehicle command error from dispatching the
	// previous step's effects.
	CommandErr error
}

// Machine is the supervisor transition logic. It performs no I/O: each call
// to Step returns the effects the caller must carry out.
type Machine struct {
	settings Settings

	state   State
	engaged bool
	antenna *AntennaReference
	plan    *models.ScanPlan
	times   scan.TravelTimes

	gateModeSent bool
	modeRetries  int
	legDeadline  time.Time
	holdTicks    int
	captured     int

	warnedWaiting     bool
	warnedNoReference bool
	warnedPlanFailed  bool
	warnedTelemetry   bool
	warnedArrival     bool

	done    bool
	outcome Outcome
}

// NewMachine returns a machine in Manual waiting for the pilot.
func NewMachine(settings Settings) *Machine {
	m := &Machine{settings: settings, state: State{Kind: StateManual}}
	if settings.Antenna != nil {
		ref := *settings.Antenna
		m.antenna = &ref
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Plan returns the active scan plan, or nil before planning.
func (m *Machine) Plan() *models.ScanPlan { return m.plan }

// Antenna returns a copy of the held antenna reference, or nil.
func (m *Machine) Antenna() *AntennaReference { return m.antennaCopy() }

// TravelTimes returns the leg estimates for the active plan.
func (m *Machine) TravelTimes() scan.TravelTimes { return m.times }

// Done reports whether the mission has ended and control was handed back.
func (m *Machine) Done() bool { return m.done }

// Outcome returns how the mission ended. Kind is OutcomePending until Done.
func (m *Machine) Outcome() Outcome { return m.outcome }

// Step advances the machine by one poll tick.
func (m *Machine) Step(in Input) []Effect {
	if m.done {
		return nil
	}
	var fx []Effect

	if in.CommandErr != nil {
		if m.state.Kind.Autonomous() {
			return m.abort(fx, in.Now, "vehicle command failed", fmt.Errorf("%w: %w", models.ErrVehicleCommand, in.CommandErr))
		}
		if !m.engaged {
			m.gateModeSent = false
		}
		fx = append(fx, Notice{Level: logrus.WarnLevel, Message: "vehicle command failed", Err: in.CommandErr})
	}

	if in.TelemetryErr != nil {
		err := telemetryError(in.TelemetryErr)
		if m.state.Kind.Autonomous() {
			return m.abort(fx, in.Now, "telemetry unavailable", err)
		}
		if !m.warnedTelemetry {
			m.warnedTelemetry = true
			fx = append(fx, Notice{Level: logrus.WarnLevel, Message: "telemetry unavailable, holding state", Err: err})
		}
		return fx
	}
	m.warnedTelemetry = false

	switch m.state.Kind {
	case StateManual, StateCalibrating:
		return m.stepManual(fx, in)
	case StatePlanningAndArming:
		return m.stepArming(fx, in)
	case StateTravelling:
		return m.stepTravelling(fx, in)
	case StateMeasuring:
		return m.stepMeasuring(fx, in)
	case StateCompleted:
		return m.stepCompleted(fx, in)
	case StateAborted:
		return m.handBack(fx, in.Now, "aborted")
	}
	return fx
}

// Interrupt ends the mission from outside the poll loop, returning control
// to the pilot. It is a no-op once the machine is done.
func (m *Machine) Interrupt(now time.Time, reason string) []Effect {
	if m.done {
		return nil
	}
	var fx []Effect
	if m.state.Kind != StateManual {
		fx = m.transition(fx, now, State{Kind: StateManual}, reason)
	}
	fx = append(fx, SetMode{Mode: m.settings.ManualMode})
	return m.finish(fx, now, OutcomeCancelled, reason, nil)
}

func (m *Machine) overrideEngaged(tel models.TelemetrySnapshot) bool {
	return tel.OverrideChannel >= m.settings.ManualThreshold
}

func (m *Machine) stepManual(fx []Effect, in Input) []Effect {
	tel := in.Telemetry
	if !m.engaged {
		return m.stepEngage(fx, tel)
	}

	if tel.OverrideChannel > m.settings.CalibrateThreshold {
		if m.state.Kind != StateCalibrating {
			fx = m.transition(fx, in.Now, State{Kind: StateCalibrating}, "calibration switch set")
		}
		m.antenna = &AntennaReference{Position: tel.Position, Heading: geo.NormalizeHeading(tel.Heading)}
		return fx
	}

	if m.state.Kind == StateCalibrating {
		fx = m.transition(fx, in.Now, State{Kind: StateManual}, "calibration switch cleared")
		fx = append(fx, Notice{
			Level:   logrus.InfoLevel,
			Message: fmt.Sprintf("antenna reference %s heading %.1f", m.antenna.Position, m.antenna.Heading),
		})
	}

	if m.overrideEngaged(tel) {
		m.warnedNoReference = false
		m.warnedPlanFailed = false
		return fx
	}
	return m.startMission(fx, in)
}

// stepEngage waits for the pilot to take the override switch, then arms and
// puts the vehicle in the manual mode once.
func (m *Machine) stepEngage(fx []Effect, tel models.TelemetrySnapshot) []Effect {
	if !m.overrideEngaged(tel) {
		if !m.warnedWaiting {
			m.warnedWaiting = true
			fx = append(fx, Notice{Level: logrus.InfoLevel, Message: "waiting for pilot to engage manual control"})
		}
		return fx
	}
	if !m.gateModeSent {
		m.gateModeSent = true
		fx = append(fx, SetMode{Mode: m.settings.ManualMode})
	}
	if !tel.Armed {
		return append(fx, Arm{})
	}
	m.engaged = true
	return append(fx, Notice{Level: logrus.InfoLevel, Message: "manual control engaged"})
}

func (m *Machine) startMission(fx []Effect, in Input) []Effect {
	if m.antenna == nil {
		if !m.warnedNoReference {
			m.warnedNoReference = true
			fx = append(fx, Notice{Level: logrus.WarnLevel, Message: "override released without an antenna reference, calibrate first"})
		}
		return fx
	}

	plan, err := scan.Generate(models.ScanConfig{
		FarFieldDistance: m.settings.FarFieldDistance,
		PointsPerArc:     m.settings.PointsPerArc,
		NumberOfArcs:     m.settings.NumberOfArcs,
		Antenna:          m.antenna.Position,
		Heading:          m.antenna.Heading,
	})
	if err != nil {
		if !m.warnedPlanFailed {
			m.warnedPlanFailed = true
			fx = append(fx, Notice{Level: logrus.ErrorLevel, Message: "scan plan rejected", Err: err})
		}
		return fx
	}

	m.plan = plan
	m.times = scan.EstimateTravelTimes(plan, m.settings.GroundSpeed, m.settings.TravelMargin)
	m.modeRetries = 0

	fx = m.transition(fx, in.Now, State{Kind: StatePlanningAndArming}, "override released")
	fx = append(fx, Notice{
		Level:   logrus.InfoLevel,
		Message: fmt.Sprintf("planned %d waypoints at %.2fm, first leg %s, next legs %s", plan.Len(), plan.FarFieldDistance, m.times.First, m.times.Next),
	})
	if !in.Telemetry.Armed {
		fx = append(fx, Arm{})
	}
	return append(fx, SetMode{Mode: m.settings.AutonomousMode})
}

func (m *Machine) stepArming(fx []Effect, in Input) []Effect {
	tel := in.Telemetry
	if m.overrideEngaged(tel) {
		const reason = "override engaged before traversal"
		fx = append(fx, SetMode{Mode: m.settings.ManualMode})
		fx = m.transition(fx, in.Now, State{Kind: StateManual}, reason)
		return m.finish(fx, in.Now, OutcomeCancelled, reason, nil)
	}

	if tel.Mode == m.settings.AutonomousMode && tel.Armed {
		fx = m.transition(fx, in.Now, State{Kind: StateTravelling}, "autonomous mode confirmed")
		return m.moveTo(fx, in.Now, 0)
	}

	if m.modeRetries >= m.settings.ModeSwitchRetries {
		err := fmt.Errorf("%w: %s not confirmed after %d retries (mode %s, armed %t)",
			models.ErrModeSwitchUnconfirmed, m.settings.AutonomousMode, m.modeRetries, tel.Mode, tel.Armed)
		return m.abort(fx, in.Now, "autonomous mode not confirmed", err)
	}
	m.modeRetries++
	if !tel.Armed {
		fx = append(fx, Arm{})
	}
	return append(fx, SetMode{Mode: m.settings.AutonomousMode})
}

func (m *Machine) moveTo(fx []Effect, now time.Time, i int) []Effect {
	m.legDeadline = now.Add(m.times.For(i))
	m.warnedArrival = false
	return append(fx, MoveTo{Index: i, Target: m.plan.Waypoints[i], GroundSpeed: m.settings.GroundSpeed})
}

func (m *Machine) stepTravelling(fx []Effect, in Input) []Effect {
	i := m.state.WaypointIndex
	if m.overrideEngaged(in.Telemetry) {
		return m.abort(fx, in.Now, fmt.Sprintf("override engaged travelling to waypoint %d", i), nil)
	}
	if in.Now.Before(m.legDeadline) {
		return fx
	}

	if m.settings.ArrivalRadius > 0 {
		target := m.plan.Waypoints[i]
		dist := geo.Distance(in.Telemetry.Position, target)
		if dist > m.settings.ArrivalRadius {
			if in.Now.Before(m.legDeadline.Add(m.settings.ArrivalTimeout)) {
				if !m.warnedArrival {
					m.warnedArrival = true
					fx = append(fx, Notice{
						Level:   logrus.InfoLevel,
						Message: fmt.Sprintf("waypoint %d not reached yet, %.1fm away", i, dist),
					})
				}
				return fx
			}
			fx = append(fx, Notice{
				Level:   logrus.WarnLevel,
				Message: fmt.Sprintf("waypoint %d arrival not confirmed, %.1fm away, measuring anyway", i, dist),
			})
		}
	}

	fx = m.transition(fx, in.Now, State{Kind: StateMeasuring, WaypointIndex: i}, "travel time elapsed")
	m.captured++
	return append(fx, Capture{Index: i, FrequencyHz: m.settings.FrequencyHz, OutputPath: m.settings.OutputPath})
}

func (m *Machine) stepMeasuring(fx []Effect, in Input) []Effect {
	i := m.state.WaypointIndex
	if m.overrideEngaged(in.Telemetry) {
		return m.abort(fx, in.Now, fmt.Sprintf("override engaged after measuring waypoint %d", i), nil)
	}
	if i+1 < m.plan.Len() {
		fx = m.transition(fx, in.Now, State{Kind: StateTravelling, WaypointIndex: i + 1}, "measurement requested")
		return m.moveTo(fx, in.Now, i+1)
	}
	m.holdTicks = 0
	return m.transition(fx, in.Now, State{Kind: StateCompleted}, "last waypoint measured")
}

func (m *Machine) stepCompleted(fx []Effect, in Input) []Effect {
	if m.overrideEngaged(in.Telemetry) {
		return m.handBack(fx, in.Now, "pilot took control")
	}
	if m.holdTicks >= m.settings.CompletionHoldTicks {
		return m.handBack(fx, in.Now, "completion hold elapsed")
	}
	m.holdTicks++
	return fx
}

// handBack returns control to the pilot after Completed or Aborted.
func (m *Machine) handBack(fx []Effect, now time.Time, reason string) []Effect {
	kind := OutcomeCompleted
	if m.state.Kind == StateAborted {
		kind = OutcomeAborted
		reason = m.outcome.Reason
	}
	fx = append(fx, SetMode{Mode: m.settings.ManualMode})
	fx = m.transition(fx, now, State{Kind: StateManual}, reason)
	return m.finish(fx, now, kind, reason, m.outcome.Err)
}

// abort moves to Aborted and immediately hands control back to the pilot.
func (m *Machine) abort(fx []Effect, now time.Time, reason string, err error) []Effect {
	fx = m.transition(fx, now, State{Kind: StateAborted, WaypointIndex: m.state.WaypointIndex}, reason)
	if err != nil {
		fx = append(fx, Notice{Level: logrus.ErrorLevel, Message: "mission aborted", Err: err})
	}
	m.outcome = Outcome{Reason: reason, Err: err}
	return m.handBack(fx, now, reason)
}

func (m *Machine) finish(fx []Effect, now time.Time, kind OutcomeKind, reason string, err error) []Effect {
	m.done = true
	m.outcome = Outcome{Kind: kind, Reason: reason, Err: err, Captured: m.captured, Finished: now}
	return fx
}

func (m *Machine) transition(fx []Effect, now time.Time, to State, reason string) []Effect {
	from := m.state
	m.state = to
	return append(fx, Transition{From: from, To: to, At: now, Reason: reason, Plan: m.plan, Antenna: m.antennaCopy()})
}

func (m *Machine) antennaCopy() *AntennaReference {
	if m.antenna == nil {
		return nil
	}
	ref := *m.antenna
	return &ref
}

func telemetryError(err error) error {
	if errors.Is(err, models.ErrTelemetryUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrTelemetryUnavailable, err)
}
