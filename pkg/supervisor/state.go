package supervisor

import (
	"fmt"
	"time"

	"github.com/k3suav/antenna-scan/pkg/models"
)

// StateKind enumerates the supervisor states.
type StateKind int

const (
	StateManual StateKind = iota
	StateCalibrating
	StatePlanningAndArming
	StateTravelling
	StateMeasuring
	StateCompleted
	StateAborted
)

var stateNames = map[StateKind]string{
	StateManual:            "Manual",
	StateCalibrating:       "Calibrating",
	StatePlanningAndArming: "PlanningAndArming",
	StateTravelling:        "Travelling",
	StateMeasuring:         "Measuring",
	StateCompleted:         "Completed",
	StateAborted:           "Aborted",
}

func (k StateKind) String() string {
	if name, ok := stateNames[k]; ok {
		return name
	}
	return fmt.Sprintf("StateKind(%d)", int(k))
}

// Autonomous reports whether the vehicle is under supervisor control in this state.
func (k StateKind) Autonomous() bool {
	switch k {
	case StatePlanningAndArming, StateTravelling, StateMeasuring, StateCompleted:
		return true
	}
	return false
}

// State is the current supervisor state. WaypointIndex is only meaningful
// for Travelling and Measuring.
type State struct {
	Kind          StateKind
	WaypointIndex int
}

func (s State) String() string {
	switch s.Kind {
	case StateTravelling, StateMeasuring:
		return fmt.Sprintf("%s(%d)", s.Kind, s.WaypointIndex)
	}
	return s.Kind.String()
}

// AntennaReference is the antenna position and boresight heading captured
// while calibrating.
type AntennaReference struct {
	Position models.GeoPoint `json:"position" yaml:"position"`
	Heading  float64         `json:"heading" yaml:"heading"`
}

// OutcomeKind says how a mission ended.
type OutcomeKind int

const (
	OutcomePending OutcomeKind = iota
	OutcomeCompleted
	OutcomeAborted
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeAborted:
		return "aborted"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// Outcome is the final result of a mission.
type Outcome struct {
	Kind     OutcomeKind
	Reason   string
	Err      error
	Captured int
	Finished time.Time
}
