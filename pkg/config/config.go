package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/k3suav/antenna-scan/pkg/models"
	"gopkg.in/yaml.v3"
)

// SpeedOfLight used to derive the antenna wavelength (m/s)
const SpeedOfLight = 3e8

// Config holds the configuration for the scan runner
type Config struct {
	// Agent configuration
	Agent AgentConfig `json:"agent" yaml:"agent"`

	// Antenna under test
	Antenna AntennaConfig `json:"antenna" yaml:"antenna"`

	// Scan pattern
	Scan ScanConfig `json:"scan" yaml:"scan"`

	// Flight supervisor settings
	Flight FlightConfig `json:"flight" yaml:"flight"`

	// Vehicle link
	Vehicle VehicleConfig `json:"vehicle" yaml:"vehicle"`

	// Measurement capture
	Measurement MeasurementConfig `json:"measurement" yaml:"measurement"`

	// Kubernetes configuration
	Kubernetes K8sConfig `json:"kubernetes" yaml:"kubernetes"`

	// Status server
	Status StatusConfig `json:"status" yaml:"status"`

	// Tracing
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// AgentConfig contains process-wide settings
type AgentConfig struct {
	// Mission name, used for the ScanMission resource
	MissionName string `json:"missionName" yaml:"missionName"`

	// Node name (auto-detected from K8s)
	NodeName string `json:"nodeName" yaml:"nodeName"`

	// Agent version
	Version string `json:"version" yaml:"version"`

	// Log level (debug, info, warn, error)
	LogLevel string `json:"logLevel" yaml:"logLevel"`

	// Enable structured logging
	StructuredLogging bool `json:"structuredLogging" yaml:"structuredLogging"`

	// Optional log file, rotated by size
	LogFile       string `json:"logFile" yaml:"logFile"`
	LogMaxSizeMB  int    `json:"logMaxSizeMB" yaml:"logMaxSizeMB"`
	LogMaxBackups int    `json:"logMaxBackups" yaml:"logMaxBackups"`
	LogCompress   bool   `json:"logCompress" yaml:"logCompress"`
}

// AntennaConfig describes the antenna under test
type AntennaConfig struct {
	FrequencyHz  float64 `json:"frequencyHz" yaml:"frequencyHz"`
	LengthMeters float64 `json:"lengthMeters" yaml:"lengthMeters"`

	// Fixed skips calibration and uses the position and heading below
	Fixed     bool    `json:"fixed" yaml:"fixed"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Altitude  float64 `json:"altitude" yaml:"altitude"`
	Heading   float64 `json:"heading" yaml:"heading"`
}

// ScanConfig contains the sweep layout
type ScanConfig struct {
	PointsPerArc int `json:"pointsPerArc" yaml:"pointsPerArc"`
	NumberOfArcs int `json:"numberOfArcs" yaml:"numberOfArcs"`

	// FarFieldDistance overrides the derived 2L²/λ radius when > 0
	FarFieldDistance float64 `json:"farFieldDistance" yaml:"farFieldDistance"`
}

// FlightConfig contains flight supervisor settings
type FlightConfig struct {
	GroundSpeed  float64       `json:"groundSpeed" yaml:"groundSpeed"`
	TravelMargin time.Duration `json:"travelMargin" yaml:"travelMargin"`
	PollInterval time.Duration `json:"pollInterval" yaml:"pollInterval"`

	// Override channel thresholds
	ManualThreshold    int `json:"manualThreshold" yaml:"manualThreshold"`
	CalibrateThreshold int `json:"calibrateThreshold" yaml:"calibrateThreshold"`

	ManualMode     string `json:"manualMode" yaml:"manualMode"`
	AutonomousMode string `json:"autonomousMode" yaml:"autonomousMode"`

	ModeSwitchRetries   int `json:"modeSwitchRetries" yaml:"modeSwitchRetries"`
	CompletionHoldTicks int `json:"completionHoldTicks" yaml:"completionHoldTicks"`

	// Position confirmation, disabled at 0
	ArrivalRadius  float64       `json:"arrivalRadius" yaml:"arrivalRadius"`
	ArrivalTimeout time.Duration `json:"arrivalTimeout" yaml:"arrivalTimeout"`
}

// VehicleConfig contains vehicle link settings
type VehicleConfig struct {
	// Driver name (mavlink, sim)
	Driver string `json:"driver" yaml:"driver"`

	// Transport for the mavlink driver (serial, udp)
	Transport  string `json:"transport" yaml:"transport"`
	Device     string `json:"device" yaml:"device"`
	Baud       int    `json:"baud" yaml:"baud"`
	UDPAddress string `json:"udpAddress" yaml:"udpAddress"`

	// MAVLink identity of this ground station
	SystemID int `json:"systemId" yaml:"systemId"`

	// RC channel carrying the override switch
	OverrideChannel int `json:"overrideChannel" yaml:"overrideChannel"`

	// Telemetry older than this is treated as unavailable
	StaleAfter time.Duration `json:"staleAfter" yaml:"staleAfter"`

	// Simulator settings
	SimModeLag int     `json:"simModeLag" yaml:"simModeLag"`
	SimJitter  float64 `json:"simJitter" yaml:"simJitter"`
	SimSeed    int64   `json:"simSeed" yaml:"simSeed"`
}

// MeasurementConfig contains capture settings
type MeasurementConfig struct {
	// Directory the capture log is written to
	OutputPath string `json:"outputPath" yaml:"outputPath"`

	// Optional serial capture trigger (empty disables it)
	TriggerDevice  string        `json:"triggerDevice" yaml:"triggerDevice"`
	TriggerBaud    int           `json:"triggerBaud" yaml:"triggerBaud"`
	TriggerTimeout time.Duration `json:"triggerTimeout" yaml:"triggerTimeout"`
}

// K8sConfig contains Kubernetes client settings
type K8sConfig struct {
	// Publish mission status to the cluster
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Kubeconfig path (empty for in-cluster config)
	KubeconfigPath string `json:"kubeconfigPath" yaml:"kubeconfigPath"`

	// Namespace for mission resources
	Namespace string `json:"namespace" yaml:"namespace"`

	// CRD Group
	CRDGroup string `json:"crdGroup" yaml:"crdGroup"`

	// CRD Version
	CRDVersion string `json:"crdVersion" yaml:"crdVersion"`

	// CRD plural resource name
	CRDResource string `json:"crdResource" yaml:"crdResource"`

	// Update retry attempts
	RetryAttempts int `json:"retryAttempts" yaml:"retryAttempts"`

	// Retry delay
	RetryDelay time.Duration `json:"retryDelay" yaml:"retryDelay"`

	// Pending transitions buffered for the reporter
	QueueSize int `json:"queueSize" yaml:"queueSize"`
}

// StatusConfig contains the status server settings
type StatusConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	ListenAddr string `json:"listenAddr" yaml:"listenAddr"`
}

// TracingConfig contains tracing settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	ServiceName string  `json:"serviceName" yaml:"serviceName"`
	SampleRatio float64 `json:"sampleRatio" yaml:"sampleRatio"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			MissionName:       getEnvOrDefault("MISSION_NAME", "far-field-scan"),
			NodeName:          getEnvOrDefault("NODE_NAME", ""),
			Version:           "v0.1.0",
			LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
			StructuredLogging: getEnvBoolOrDefault("STRUCTURED_LOGGING", false),
			LogFile:           getEnvOrDefault("LOG_FILE", ""),
			LogMaxSizeMB:      getEnvIntOrDefault("LOG_MAX_SIZE_MB", 50),
			LogMaxBackups:     getEnvIntOrDefault("LOG_MAX_BACKUPS", 5),
			LogCompress:       getEnvBoolOrDefault("LOG_COMPRESS", true),
		},
		Antenna: AntennaConfig{
			FrequencyHz:  getEnvFloatOrDefault("ANTENNA_FREQUENCY_HZ", 0),
			LengthMeters: getEnvFloatOrDefault("ANTENNA_LENGTH_M", 0),
			Fixed:        getEnvBoolOrDefault("ANTENNA_FIXED", false),
			Latitude:     getEnvFloatOrDefault("ANTENNA_LATITUDE", 0),
			Longitude:    getEnvFloatOrDefault("ANTENNA_LONGITUDE", 0),
			Altitude:     getEnvFloatOrDefault("ANTENNA_ALTITUDE", 0),
			Heading:      getEnvFloatOrDefault("ANTENNA_HEADING", 0),
		},
		Scan: ScanConfig{
			PointsPerArc:     getEnvIntOrDefault("SCAN_POINTS_PER_ARC", 3),
			NumberOfArcs:     getEnvIntOrDefault("SCAN_NUMBER_OF_ARCS", 1),
			FarFieldDistance: getEnvFloatOrDefault("SCAN_FAR_FIELD_DISTANCE", 0),
		},
		Flight: FlightConfig{
			GroundSpeed:         getEnvFloatOrDefault("FLIGHT_GROUND_SPEED", 1),
			TravelMargin:        getEnvDurationOrDefault("FLIGHT_TRAVEL_MARGIN", 500*time.Millisecond),
			PollInterval:        getEnvDurationOrDefault("FLIGHT_POLL_INTERVAL", 500*time.Millisecond),
			ManualThreshold:     1200,
			CalibrateThreshold:  1600,
			ManualMode:          getEnvOrDefault("FLIGHT_MANUAL_MODE", models.FlightModeStabilize),
			AutonomousMode:      getEnvOrDefault("FLIGHT_AUTONOMOUS_MODE", models.FlightModeGuided),
			ModeSwitchRetries:   getEnvIntOrDefault("FLIGHT_MODE_SWITCH_RETRIES", 20),
			CompletionHoldTicks: getEnvIntOrDefault("FLIGHT_COMPLETION_HOLD_TICKS", 1000),
			ArrivalRadius:       getEnvFloatOrDefault("FLIGHT_ARRIVAL_RADIUS", 0),
			ArrivalTimeout:      getEnvDurationOrDefault("FLIGHT_ARRIVAL_TIMEOUT", 10*time.Second),
		},
		Vehicle: VehicleConfig{
			Driver:          getEnvOrDefault("VEHICLE_DRIVER", "mavlink"),
			Transport:       getEnvOrDefault("VEHICLE_TRANSPORT", "serial"),
			Device:          getEnvOrDefault("VEHICLE_DEVICE", "/dev/ttyS0"),
			Baud:            getEnvIntOrDefault("VEHICLE_BAUD", 921600),
			UDPAddress:      getEnvOrDefault("VEHICLE_UDP_ADDRESS", "0.0.0.0:14550"),
			SystemID:        getEnvIntOrDefault("VEHICLE_SYSTEM_ID", 255),
			OverrideChannel: getEnvIntOrDefault("VEHICLE_OVERRIDE_CHANNEL", 5),
			StaleAfter:      getEnvDurationOrDefault("VEHICLE_STALE_AFTER", 3*time.Second),
			SimModeLag:      getEnvIntOrDefault("SIM_MODE_LAG", 1),
			SimJitter:       getEnvFloatOrDefault("SIM_JITTER", 0),
			SimSeed:         int64(getEnvIntOrDefault("SIM_SEED", 1)),
		},
		Measurement: MeasurementConfig{
			OutputPath:     getEnvOrDefault("MEASUREMENT_OUTPUT_PATH", "./measurements"),
			TriggerDevice:  getEnvOrDefault("MEASUREMENT_TRIGGER_DEVICE", ""),
			TriggerBaud:    getEnvIntOrDefault("MEASUREMENT_TRIGGER_BAUD", 115200),
			TriggerTimeout: getEnvDurationOrDefault("MEASUREMENT_TRIGGER_TIMEOUT", 5*time.Second),
		},
		Kubernetes: K8sConfig{
			Enabled:        getEnvBoolOrDefault("K8S_ENABLED", false),
			KubeconfigPath: getEnvOrDefault("KUBECONFIG", ""),
			Namespace:      getEnvOrDefault("NAMESPACE", "default"),
			CRDGroup:       "uav.k3s.io",
			CRDVersion:     "v1alpha1",
			CRDResource:    "scanmissions",
			RetryAttempts:  3,
			RetryDelay:     2 * time.Second,
			QueueSize:      64,
		},
		Status: StatusConfig{
			Enabled:    getEnvBoolOrDefault("STATUS_ENABLED", true),
			ListenAddr: getEnvOrDefault("STATUS_LISTEN_ADDR", ":8090"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBoolOrDefault("TRACING_ENABLED", false),
			ServiceName: getEnvOrDefault("TRACING_SERVICE_NAME", "antenna-scan"),
			SampleRatio: getEnvFloatOrDefault("TRACING_SAMPLE_RATIO", 1),
		},
	}
}

// LoadFile overlays the YAML file at path on the defaults
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Wavelength returns the antenna wavelength in meters
func (c *Config) Wavelength() float64 {
	return SpeedOfLight / c.Antenna.FrequencyHz
}

// FarFieldDistance returns the scan radius: the configured override, or the
// far-field boundary 2L²/λ of the antenna.
func (c *Config) FarFieldDistance() float64 {
	if c.Scan.FarFieldDistance > 0 {
		return c.Scan.FarFieldDistance
	}
	return 2 * c.Antenna.LengthMeters * c.Antenna.LengthMeters / c.Wavelength()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate antenna config
	if c.Antenna.FrequencyHz <= 0 {
		return fmt.Errorf("antenna.frequencyHz must be > 0: %w", models.ErrInvalidFrequency)
	}
	if c.Antenna.LengthMeters <= 0 && c.Scan.FarFieldDistance <= 0 {
		return fmt.Errorf("antenna.lengthMeters must be > 0: %w", models.ErrInvalidLength)
	}
	if c.Antenna.Fixed {
		ref := models.GeoPoint{Latitude: c.Antenna.Latitude, Longitude: c.Antenna.Longitude}
		if err := ref.Validate(); err != nil {
			return fmt.Errorf("antenna position: %w", err)
		}
		if c.Antenna.Heading < 0 || c.Antenna.Heading >= 360 {
			return fmt.Errorf("antenna.heading: %w", models.ErrInvalidHeading)
		}
	}

	// Validate scan config
	if c.Scan.PointsPerArc < 3 || c.Scan.PointsPerArc%2 == 0 {
		return fmt.Errorf("scan.pointsPerArc must be odd and >= 3: %w", models.ErrInvalidPointsPerArc)
	}
	if c.Scan.NumberOfArcs < 1 {
		return fmt.Errorf("scan.numberOfArcs must be >= 1: %w", models.ErrInvalidNumberOfArcs)
	}
	if c.Scan.FarFieldDistance < 0 {
		return fmt.Errorf("scan.farFieldDistance must be >= 0")
	}

	// Validate flight config
	if c.Flight.GroundSpeed <= 0 {
		return fmt.Errorf("flight.groundSpeed must be > 0")
	}
	if c.Flight.PollInterval <= 0 {
		return fmt.Errorf("flight.pollInterval must be > 0")
	}
	if c.Flight.TravelMargin < 0 {
		return fmt.Errorf("flight.travelMargin must be >= 0")
	}
	if c.Flight.ManualThreshold <= 0 || c.Flight.CalibrateThreshold <= c.Flight.ManualThreshold {
		return fmt.Errorf("flight.calibrateThreshold must be above flight.manualThreshold")
	}
	if c.Flight.ModeSwitchRetries <= 0 {
		return fmt.Errorf("flight.modeSwitchRetries must be > 0")
	}
	if c.Flight.CompletionHoldTicks < 0 {
		return fmt.Errorf("flight.completionHoldTicks must be >= 0")
	}
	if c.Flight.ArrivalRadius < 0 {
		return fmt.Errorf("flight.arrivalRadius must be >= 0")
	}

	// Validate vehicle config
	switch c.Vehicle.Driver {
	case "mavlink":
		switch c.Vehicle.Transport {
		case "serial":
			if c.Vehicle.Device == "" || c.Vehicle.Baud <= 0 {
				return fmt.Errorf("vehicle.device and vehicle.baud are required for serial transport")
			}
		case "udp":
			if c.Vehicle.UDPAddress == "" {
				return fmt.Errorf("vehicle.udpAddress is required for udp transport")
			}
		default:
			return fmt.Errorf("vehicle.transport must be serial or udp, got %q", c.Vehicle.Transport)
		}
		if c.Vehicle.SystemID < 1 || c.Vehicle.SystemID > 255 {
			return fmt.Errorf("vehicle.systemId must be between 1 and 255")
		}
	case "sim":
	default:
		return fmt.Errorf("vehicle.driver must be mavlink or sim, got %q", c.Vehicle.Driver)
	}
	if c.Vehicle.OverrideChannel < 1 || c.Vehicle.OverrideChannel > 18 {
		return fmt.Errorf("vehicle.overrideChannel must be between 1 and 18")
	}
	if c.Vehicle.StaleAfter <= 0 {
		return fmt.Errorf("vehicle.staleAfter must be > 0")
	}

	// Validate measurement config
	if c.Measurement.OutputPath == "" {
		return fmt.Errorf("measurement.outputPath cannot be empty")
	}
	if c.Measurement.TriggerDevice != "" && c.Measurement.TriggerTimeout <= 0 {
		return fmt.Errorf("measurement.triggerTimeout must be > 0")
	}

	// Validate Kubernetes config
	if c.Kubernetes.Enabled {
		if c.Kubernetes.Namespace == "" {
			return fmt.Errorf("kubernetes.namespace cannot be empty")
		}
		if c.Agent.MissionName == "" {
			return fmt.Errorf("agent.missionName is required when kubernetes is enabled")
		}
	}
	if c.Kubernetes.RetryAttempts < 0 {
		return fmt.Errorf("kubernetes.retryAttempts must be >= 0")
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sampleRatio must be between 0 and 1")
	}

	return nil
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
