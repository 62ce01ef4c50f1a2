package mavlink

import (
	"fmt"

	"github.com/k3suav/antenna-scan/pkg/models"
)

// ArduCopter custom_mode values
var copterModes = map[string]uint32{
	models.FlightModeStabilize:    0,
	"ACRO":                        1,
	models.FlightModeAltitudeHold: 2,
	models.FlightModeAuto:         3,
	models.FlightModeGuided:       4,
	models.FlightModeLoiter:       5,
	models.FlightModeRTL:          6,
	"CIRCLE":                      7,
	models.FlightModeLand:         9,
	"DRIFT":                       11,
	"SPORT":                       13,
	"FLIP":                        14,
	"AUTOTUNE":                    15,
	models.FlightModePositionHold: 16,
	"BRAKE":                       17,
}

var copterModeNames = func() map[uint32]string {
	names := make(map[uint32]string, len(copterModes))
	for name, id := range copterModes {
		names[id] = name
	}
	return names
}()

// CustomMode returns the ArduCopter custom_mode for a mode name.
func CustomMode(name string) (uint32, error) {
	id, ok := copterModes[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", models.ErrUnknownMode, name)
	}
	return id, nil
}

// ModeName returns the mode name for an ArduCopter custom_mode.
func ModeName(customMode uint32) string {
	if name, ok := copterModeNames[customMode]; ok {
		return name
	}
	return models.FlightModeUnknown
}
