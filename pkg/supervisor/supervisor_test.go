package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/k3suav/antenna-scan/pkg/clock"
	"github.com/k3suav/antenna-scan/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeVehicle struct {
	clock    *clock.Fake
	tel      models.TelemetrySnapshot
	override func(elapsed time.Duration) int
	failTel  func(elapsed time.Duration) bool
	setErr   error

	modes []string
	arms  int
	moves []models.GeoPoint
}

func newFakeVehicle(c *clock.Fake, override func(time.Duration) int) *fakeVehicle {
	return &fakeVehicle{
		clock:    c,
		override: override,
		tel: models.TelemetrySnapshot{
			Position: testAntenna,
			Mode:     models.FlightModeStabilize,
		},
	}
}

func (v *fakeVehicle) elapsed() time.Duration { return v.clock.Now().Sub(testStart) }

func (v *fakeVehicle) Telemetry(ctx context.Context) (models.TelemetrySnapshot, error) {
	if v.failTel != nil && v.failTel(v.elapsed()) {
		return models.TelemetrySnapshot{}, errors.New("link lost")
	}
	v.tel.OverrideChannel = v.override(v.elapsed())
	v.tel.Timestamp = v.clock.Now()
	return v.tel, nil
}

func (v *fakeVehicle) SetMode(ctx context.Context, mode string) error {
	if v.setErr != nil {
		return v.setErr
	}
	v.modes = append(v.modes, mode)
	v.tel.Mode = mode
	return nil
}

func (v *fakeVehicle) Arm(ctx context.Context) error {
	v.arms++
	v.tel.Armed = true
	return nil
}

func (v *fakeVehicle) MoveTo(ctx context.Context, target models.GeoPoint, groundSpeed float64) error {
	v.moves = append(v.moves, target)
	v.tel.Position = target
	return nil
}

type fakeMeter struct {
	err      error
	captured []int
}

func (m *fakeMeter) Capture(ctx context.Context, waypointIndex int, frequencyHz float64, outputPath string) error {
	m.captured = append(m.captured, waypointIndex)
	return m.err
}

type recorder struct {
	transitions   []Transition
	captureErrs   int
	telemetryErrs int
	onTransition  func(Transition)
}

func (r *recorder) OnTransition(ctx context.Context, t Transition) {
	r.transitions = append(r.transitions, t)
	if r.onTransition != nil {
		r.onTransition(t)
	}
}

func (r *recorder) OnCapture(ctx context.Context, index int, err error) {
	if err != nil {
		r.captureErrs++
	}
}

func (r *recorder) OnTelemetryFailure(ctx context.Context, err error) {
	r.telemetryErrs++
}

// engageThenRelease holds override on for two seconds, then releases it.
func engageThenRelease(elapsed time.Duration) int {
	if elapsed < 2*time.Second {
		return 1500
	}
	return 1000
}

func newTestSupervisor(t *testing.T, v *fakeVehicle, meter *fakeMeter, rec *recorder) (*Supervisor, *test.Hook) {
	t.Helper()
	s := testSettings()
	s.Antenna = &AntennaReference{Position: testAntenna, Heading: 45}

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	sup, err := New(s, v, meter, Options{
		Clock:     v.clock,
		Logger:    logger,
		Observers: []Observer{rec},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sup, hook
}

func TestRunCompletesMission(t *testing.T) {
	c := clock.NewFake(testStart)
	v := newFakeVehicle(c, engageThenRelease)
	meter := &fakeMeter{}
	rec := &recorder{}
	sup, hook := newTestSupervisor(t, v, meter, rec)

	out, err := sup.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Kind != OutcomeCompleted || out.Captured != 6 {
		t.Fatalf("outcome = %+v, want completed with 6 captures", out)
	}

	for i, idx := range meter.captured {
		if idx != i {
			t.Fatalf("captures = %v, want 0..5 in order", meter.captured)
		}
	}
	plan := sup.Machine().Plan()
	if len(v.moves) != plan.Len() {
		t.Fatalf("moves = %d, want %d", len(v.moves), plan.Len())
	}
	for i, wp := range v.moves {
		if wp != plan.Waypoints[i] {
			t.Fatalf("move %d = %v, want %v", i, wp, plan.Waypoints[i])
		}
	}

	wantModes := []string{models.FlightModeStabilize, models.FlightModeGuided, models.FlightModeStabilize}
	if len(v.modes) != len(wantModes) {
		t.Fatalf("modes = %v, want %v", v.modes, wantModes)
	}
	for i := range wantModes {
		if v.modes[i] != wantModes[i] {
			t.Fatalf("modes = %v, want %v", v.modes, wantModes)
		}
	}

	first, last := rec.transitions[0], rec.transitions[len(rec.transitions)-1]
	if first.To.Kind != StatePlanningAndArming || first.Plan == nil {
		t.Fatalf("first transition = %+v, want PlanningAndArming with plan", first)
	}
	if last.From.Kind != StateCompleted || last.To.Kind != StateManual {
		t.Fatalf("last transition = %s -> %s, want Completed -> Manual", last.From, last.To)
	}

	if entry := hook.LastEntry(); entry == nil || entry.Message != "Mission finished" {
		t.Fatalf("last log entry = %v, want Mission finished", entry)
	}
	if c.Waits() == 0 {
		t.Fatal("supervisor never waited on the clock")
	}
}

func TestRunCaptureFailureContinues(t *testing.T) {
	c := clock.NewFake(testStart)
	v := newFakeVehicle(c, engageThenRelease)
	meter := &fakeMeter{err: models.ErrCaptureFailed}
	rec := &recorder{}
	sup, hook := newTestSupervisor(t, v, meter, rec)

	out, err := sup.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Kind != OutcomeCompleted {
		t.Fatalf("outcome = %v, want completed", out.Kind)
	}
	if rec.captureErrs != 6 {
		t.Fatalf("capture errors observed = %d, want 6", rec.captureErrs)
	}

	var warned int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "Measurement capture failed" {
			warned++
		}
	}
	if warned != 6 {
		t.Fatalf("capture warnings = %d, want 6", warned)
	}
}

func TestRunRestoresManualOnCancel(t *testing.T) {
	c := clock.NewFake(testStart)
	v := newFakeVehicle(c, engageThenRelease)
	meter := &fakeMeter{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{onTransition: func(tr Transition) {
		if tr.To == (State{Kind: StateTravelling, WaypointIndex: 1}) {
			cancel()
		}
	}}
	sup, _ := newTestSupervisor(t, v, meter, rec)

	out, err := sup.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if out.Kind != OutcomeCancelled {
		t.Fatalf("outcome = %v, want cancelled", out.Kind)
	}
	if got := v.modes[len(v.modes)-1]; got != models.FlightModeStabilize {
		t.Fatalf("final mode = %s, want STABILIZE", got)
	}
	if len(meter.captured) != 1 {
		t.Fatalf("captures = %v, want only waypoint 0", meter.captured)
	}
}

func TestRunTelemetryFailureAborts(t *testing.T) {
	c := clock.NewFake(testStart)
	v := newFakeVehicle(c, engageThenRelease)
	v.failTel = func(elapsed time.Duration) bool { return elapsed >= 10*time.Second }
	meter := &fakeMeter{}
	rec := &recorder{}
	sup, _ := newTestSupervisor(t, v, meter, rec)

	out, err := sup.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Kind != OutcomeAborted || !errors.Is(out.Err, models.ErrTelemetryUnavailable) {
		t.Fatalf("outcome = %+v, want aborted on telemetry", out)
	}
	if rec.telemetryErrs != 1 {
		t.Fatalf("telemetry failures observed = %d, want 1", rec.telemetryErrs)
	}
	if len(meter.captured) != 0 {
		t.Fatalf("captures = %v, want none", meter.captured)
	}
	if got := v.modes[len(v.modes)-1]; got != models.FlightModeStabilize {
		t.Fatalf("final mode = %s, want STABILIZE", got)
	}
}

func TestRunCommandFailureAborts(t *testing.T) {
	c := clock.NewFake(testStart)
	v := newFakeVehicle(c, engageThenRelease)
	meter := &fakeMeter{}
	rec := &recorder{onTransition: func(tr Transition) {
		if tr.To.Kind == StatePlanningAndArming {
			v.setErr = errors.New("serial write failed")
		}
	}}
	sup, _ := newTestSupervisor(t, v, meter, rec)

	out, err := sup.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Kind != OutcomeAborted || !errors.Is(out.Err, models.ErrVehicleCommand) {
		t.Fatalf("outcome = %+v, want aborted on command failure", out)
	}
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	s := testSettings()
	s.GroundSpeed = 0
	if _, err := New(s, &fakeVehicle{}, &fakeMeter{}, Options{}); err == nil {
		t.Fatal("New accepted zero ground speed")
	}
	if _, err := New(testSettings(), nil, &fakeMeter{}, Options{}); !errors.Is(err, models.ErrVehicleNotConnected) {
		t.Fatalf("New with nil vehicle = %v, want ErrVehicleNotConnected", err)
	}
}
