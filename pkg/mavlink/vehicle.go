// Package mavlink drives an ArduCopter flight controller over MAVLink v2.
// A background goroutine folds incoming frames into the latest telemetry;
// commands are written to every open channel.
package mavlink

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/k3suav/antenna-scan/pkg/clock"
	"github.com/k3suav/antenna-scan/pkg/config"
	"github.com/k3suav/antenna-scan/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	// Rate requested for all autopilot data streams (Hz)
	streamRate = 4
	// GLOBAL_POSITION_INT reports an unknown heading as UINT16_MAX
	unknownHeading = 65535
	// RC_CHANNELS reports an unused channel as UINT16_MAX
	unusedChannel = 65535
)

// positionOnly ignores velocity, acceleration and yaw fields of a position target.
var positionOnly = common.POSITION_TARGET_TYPEMASK_VX_IGNORE |
	common.POSITION_TARGET_TYPEMASK_VY_IGNORE |
	common.POSITION_TARGET_TYPEMASK_VZ_IGNORE |
	common.POSITION_TARGET_TYPEMASK_AX_IGNORE |
	common.POSITION_TARGET_TYPEMASK_AY_IGNORE |
	common.POSITION_TARGET_TYPEMASK_AZ_IGNORE |
	common.POSITION_TARGET_TYPEMASK_YAW_IGNORE |
	common.POSITION_TARGET_TYPEMASK_YAW_RATE_IGNORE

// state is the telemetry folded from incoming messages.
type state struct {
	position       models.GeoPoint
	heading        float64
	override       int
	armed          bool
	mode           string
	positionAt     time.Time
	heartbeatAt    time.Time
	rcAt           time.Time
	targetSystem   uint8
	targetComp     uint8
	streamsRequest bool
}

// Vehicle is a MAVLink flight controller link.
type Vehicle struct {
	cfg   config.VehicleConfig
	clock clock.Clock
	log   *logrus.Logger
	write func(message.Message)

	node *gomavlib.Node
	wg   sync.WaitGroup

	mu    sync.RWMutex
	state state
}

// Open connects to the flight controller described by cfg.
func Open(ctx context.Context, cfg config.VehicleConfig, c clock.Clock, log *logrus.Logger) (*Vehicle, error) {
	endpoint, err := endpointFor(cfg)
	if err != nil {
		return nil, err
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:   []gomavlib.EndpointConf{endpoint},
		Dialect:     common.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: byte(cfg.SystemID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MAVLink node: %w", err)
	}

	v := newVehicle(cfg, c, log, func(msg message.Message) {
		node.WriteMessageAll(msg)
	})
	v.node = node

	v.wg.Add(1)
	go v.run()

	log.WithFields(logrus.Fields{
		"transport": cfg.Transport,
		"device":    cfg.Device,
		"baud":      cfg.Baud,
		"udp":       cfg.UDPAddress,
	}).Info("MAVLink link opened")
	return v, nil
}

func newVehicle(cfg config.VehicleConfig, c clock.Clock, log *logrus.Logger, write func(message.Message)) *Vehicle {
	if c == nil {
		c = clock.Real{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Vehicle{
		cfg:   cfg,
		clock: c,
		log:   log,
		write: write,
		state: state{mode: models.FlightModeUnknown},
	}
}

func endpointFor(cfg config.VehicleConfig) (gomavlib.EndpointConf, error) {
	switch cfg.Transport {
	case "serial":
		return gomavlib.EndpointSerial{Device: cfg.Device, Baud: cfg.Baud}, nil
	case "udp":
		return gomavlib.EndpointUDPServer{Address: cfg.UDPAddress}, nil
	default:
		return nil, fmt.Errorf("unsupported MAVLink transport: %s", cfg.Transport)
	}
}

func (v *Vehicle) run() {
	defer v.wg.Done()
	for evt := range v.node.Events() {
		switch e := evt.(type) {
		case *gomavlib.EventFrame:
			v.handle(e.SystemID(), e.ComponentID(), e.Message())
		case *gomavlib.EventChannelOpen:
			v.log.WithField("channel", fmt.Sprint(e.Channel)).Info("MAVLink channel open")
		case *gomavlib.EventChannelClose:
			v.log.WithField("channel", fmt.Sprint(e.Channel)).Warn("MAVLink channel closed")
		}
	}
}

// handle folds one received message into the telemetry state.
func (v *Vehicle) handle(systemID, componentID uint8, msg message.Message) {
	now := v.clock.Now()

	v.mu.Lock()
	first := apply(&v.state, systemID, componentID, msg, now, v.cfg.OverrideChannel)
	target, comp := v.state.targetSystem, v.state.targetComp
	v.mu.Unlock()

	if first {
		v.log.WithFields(logrus.Fields{
			"system":    target,
			"component": comp,
		}).Info("Autopilot heartbeat received, requesting data streams")
		v.write(&common.MessageRequestDataStream{
			TargetSystem:    target,
			TargetComponent: comp,
			ReqStreamId:     uint8(common.MAV_DATA_STREAM_ALL),
			ReqMessageRate:  streamRate,
			StartStop:       1,
		})
	}
}

// apply updates s from msg and reports whether msg was the first autopilot
// heartbeat.
func apply(s *state, systemID, componentID uint8, msg message.Message, now time.Time, overrideChannel int) bool {
	switch m := msg.(type) {
	case *common.MessageHeartbeat:
		if m.Type == common.MAV_TYPE_GCS || m.Autopilot == common.MAV_AUTOPILOT_INVALID {
			return false
		}
		first := s.heartbeatAt.IsZero()
		s.heartbeatAt = now
		s.targetSystem = systemID
		s.targetComp = componentID
		s.armed = m.BaseMode&common.MAV_MODE_FLAG_SAFETY_ARMED != 0
		s.mode = ModeName(m.CustomMode)
		if first && !s.streamsRequest {
			s.streamsRequest = true
			return true
		}

	case *common.MessageGlobalPositionInt:
		s.position = models.GeoPoint{
			Latitude:  float64(m.Lat) / 1e7,
			Longitude: float64(m.Lon) / 1e7,
			Altitude:  float64(m.Alt) / 1000,
		}
		if m.Hdg != unknownHeading {
			s.heading = float64(m.Hdg) / 100
		}
		s.positionAt = now

	case *common.MessageRcChannels:
		if raw := rcChannel(m, overrideChannel); raw != 0 && raw != unusedChannel {
			s.override = int(raw)
			s.rcAt = now
		}
	}
	return false
}

func rcChannel(m *common.MessageRcChannels, n int) uint16 {
	channels := [...]uint16{
		m.Chan1Raw, m.Chan2Raw, m.Chan3Raw, m.Chan4Raw, m.Chan5Raw, m.Chan6Raw,
		m.Chan7Raw, m.Chan8Raw, m.Chan9Raw, m.Chan10Raw, m.Chan11Raw, m.Chan12Raw,
		m.Chan13Raw, m.Chan14Raw, m.Chan15Raw, m.Chan16Raw, m.Chan17Raw, m.Chan18Raw,
	}
	if n < 1 || n > len(channels) {
		return 0
	}
	return channels[n-1]
}

// Telemetry implements supervisor.Vehicle.
func (v *Vehicle) Telemetry(ctx context.Context) (models.TelemetrySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.TelemetrySnapshot{}, err
	}
	now := v.clock.Now()

	v.mu.RLock()
	defer v.mu.RUnlock()

	if err := v.state.freshness(now, v.cfg.StaleAfter); err != nil {
		return models.TelemetrySnapshot{}, err
	}

	return models.TelemetrySnapshot{
		Position:        v.state.position,
		Heading:         v.state.heading,
		OverrideChannel: v.state.override,
		Armed:           v.state.armed,
		Mode:            v.state.mode,
		Timestamp:       v.state.positionAt,
	}, nil
}

// freshness fails unless position, heartbeat and override channel have all
// been received within staleAfter of now.
func (s *state) freshness(now time.Time, staleAfter time.Duration) error {
	sources := []struct {
		name string
		at   time.Time
	}{
		{"position", s.positionAt},
		{"heartbeat", s.heartbeatAt},
		{"RC channels", s.rcAt},
	}
	for _, src := range sources {
		if src.at.IsZero() {
			return fmt.Errorf("%w: no %s received", models.ErrTelemetryUnavailable, src.name)
		}
		if age := now.Sub(src.at); age > staleAfter {
			return fmt.Errorf("%w: %w: last %s %s ago", models.ErrTelemetryUnavailable, models.ErrTelemetryStale, src.name, age)
		}
	}
	return nil
}

func (v *Vehicle) target() (uint8, uint8, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.state.heartbeatAt.IsZero() {
		return 0, 0, models.ErrVehicleNotConnected
	}
	return v.state.targetSystem, v.state.targetComp, nil
}

// SetMode implements supervisor.Vehicle.
func (v *Vehicle) SetMode(ctx context.Context, mode string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := CustomMode(mode)
	if err != nil {
		return err
	}
	sys, _, err := v.target()
	if err != nil {
		return err
	}

	v.write(&common.MessageSetMode{
		TargetSystem: sys,
		BaseMode:     common.MAV_MODE(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED),
		CustomMode:   id,
	})
	return nil
}

// Arm implements supervisor.Vehicle.
func (v *Vehicle) Arm(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sys, comp, err := v.target()
	if err != nil {
		return err
	}

	v.write(&common.MessageCommandLong{
		TargetSystem:    sys,
		TargetComponent: comp,
		Command:         common.MAV_CMD_COMPONENT_ARM_DISARM,
		Param1:          1,
	})
	return nil
}

// MoveTo implements supervisor.Vehicle. The target altitude is above mean
// sea level, matching the telemetry position.
func (v *Vehicle) MoveTo(ctx context.Context, target models.GeoPoint, groundSpeed float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := target.Validate(); err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}
	sys, comp, err := v.target()
	if err != nil {
		return err
	}

	v.write(&common.MessageCommandLong{
		TargetSystem:    sys,
		TargetComponent: comp,
		Command:         common.MAV_CMD_DO_CHANGE_SPEED,
		Param1:          1, // ground speed
		Param2:          float32(groundSpeed),
		Param3:          -1, // throttle unchanged
	})
	v.write(&common.MessageSetPositionTargetGlobalInt{
		TargetSystem:    sys,
		TargetComponent: comp,
		CoordinateFrame: common.MAV_FRAME_GLOBAL_INT,
		TypeMask:        positionOnly,
		LatInt:          int32(math.Round(target.Latitude * 1e7)),
		LonInt:          int32(math.Round(target.Longitude * 1e7)),
		Alt:             float32(target.Altitude),
	})
	return nil
}

// Close shuts the node down and waits for the event loop to exit.
func (v *Vehicle) Close() error {
	if v.node != nil {
		v.node.Close()
		v.wg.Wait()
	}
	return nil
}
