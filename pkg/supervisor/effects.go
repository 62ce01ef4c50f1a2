package supervisor

import (
	"time"

	"github.com/k3suav/antenna-scan/pkg/models"
	"github.com/sirupsen/logrus"
)

// Effect is a side effect requested by the machine. The runner dispatches
// effects in the order they are returned.
type Effect interface {
	isEffect()
}

// SetMode asks the vehicle to switch flight mode.
type SetMode struct {
	Mode string
}

// Arm asks the vehicle to arm its motors.
type Arm struct{}

// MoveTo sends the vehicle toward waypoint Index.
type MoveTo struct {
	Index       int
	Target      models.GeoPoint
	GroundSpeed float64
}

// Capture requests a measurement tagged with the waypoint index.
type Capture struct {
	Index       int
	FrequencyHz float64
	OutputPath  string
}

// Notice is operator-facing status output.
type Notice struct {
	Level   logrus.Level
	Message string
	Err     error
}

// Transition records a state change. Plan and Antenna are the values held by
// the machine at the time of the change and may be nil.
type Transition struct {
	From    State
	To      State
	At      time.Time
	Reason  string
	Plan    *models.ScanPlan
	Antenna *AntennaReference
}

func (SetMode) isEffect()    {}
func (Arm) isEffect()        {}
func (MoveTo) isEffect()     {}
func (Capture) isEffect()    {}
func (Notice) isEffect()     {}
func (Transition) isEffect() {}
