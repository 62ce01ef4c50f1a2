package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/k3suav/antenna-scan/pkg/clock"
	"github.com/k3suav/antenna-scan/pkg/config"
	"github.com/k3suav/antenna-scan/pkg/driver"
	"github.com/k3suav/antenna-scan/pkg/k8s"
	"github.com/k3suav/antenna-scan/pkg/logging"
	"github.com/k3suav/antenna-scan/pkg/measurement"
	"github.com/k3suav/antenna-scan/pkg/metrics"
	"github.com/k3suav/antenna-scan/pkg/observability"
	"github.com/k3suav/antenna-scan/pkg/status"
	"github.com/k3suav/antenna-scan/pkg/supervisor"
	"github.com/sirupsen/logrus"
)

const (
	version = "v0.1.0"
)

// Exit codes
const (
	exitOK = iota
	exitError
	exitAborted
)

// newLogger is replaced in tests to observe the log file being closed.
var newLogger func(config.AgentConfig) (*logrus.Logger, io.Closer) = logging.New

func main() {
	configPath := flag.String("config", "", "YAML config file overlaid on the environment defaults")
	driverName := flag.String("driver", "", "vehicle driver (mavlink, sim), overrides vehicle.driver")
	flag.Parse()

	os.Exit(execute(*configPath, *driverName))
}

// execute loads and validates the configuration, then runs the mission. The
// log file is closed on every path before the exit code is returned.
func execute(configPath, driverName string) int {
	cfg, loadErr := loadConfig(configPath)
	if driverName != "" {
		cfg.Vehicle.Driver = driverName
	}

	log, closer := newLogger(cfg.Agent)
	defer closer.Close()

	if loadErr != nil {
		log.WithError(loadErr).Error("Failed to load configuration")
		return exitError
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("Invalid configuration")
		return exitError
	}
	return run(cfg, log)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return config.DefaultConfig(), err
	}
	return cfg, nil
}

func run(cfg *config.Config, log *logrus.Logger) int {
	log.WithField("version", version).Info("Starting antenna scanner")

	log.WithFields(logrus.Fields{
		"mission":          cfg.Agent.MissionName,
		"driver":           cfg.Vehicle.Driver,
		"frequencyHz":      cfg.Antenna.FrequencyHz,
		"farFieldDistance": cfg.FarFieldDistance(),
		"pointsPerArc":     cfg.Scan.PointsPerArc,
		"numberOfArcs":     cfg.Scan.NumberOfArcs,
		"fixedAntenna":     cfg.Antenna.Fixed,
	}).Info("Configuration loaded")

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			log.WithField("signal", sig).Info("Received shutdown signal, returning control to the pilot")
			cancel()
		case <-ctx.Done():
		}
	}()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, nil, log)
	if err != nil {
		log.WithError(err).Error("Failed to initialize tracing")
		return exitError
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		log.WithError(err).Error("Failed to register metrics")
		return exitError
	}
	observers := []supervisor.Observer{collector}

	if cfg.Status.Enabled {
		srv := status.NewServer(cfg.Status.ListenAddr, cfg.Agent.MissionName, collector.Handler(), log)
		defer srv.Close()
		observers = append(observers, srv)
		go func() {
			if err := srv.Start(ctx); err != nil {
				log.WithError(err).Error("Status server stopped")
			}
		}()
	}

	if cfg.Kubernetes.Enabled {
		// The mission flies without the cluster mirror if the API is unreachable.
		k8sClient, err := k8s.NewClient(cfg)
		if err != nil {
			log.WithError(err).Error("Failed to create Kubernetes client, mission status will not be published")
		} else {
			reporter := k8s.NewReporter(k8sClient, cfg.Agent.MissionName, cfg.Agent.NodeName,
				cfg.Antenna.FrequencyHz, cfg.Kubernetes.QueueSize, log)
			reporter.Start(ctx)
			defer reporter.Stop()
			observers = append(observers, reporter)
			log.WithField("namespace", cfg.Kubernetes.Namespace).Info("Kubernetes reporter started")
		}
	}

	registerDrivers()
	link, err := driver.Open(ctx, cfg.Vehicle.Driver, driver.Options{
		Vehicle: cfg.Vehicle,
		Antenna: cfg.Antenna,
		Clock:   clock.Real{},
		Logger:  log,
	})
	if err != nil {
		log.WithError(err).Error("Failed to open vehicle link")
		return exitError
	}
	defer link.Close()

	var trigger measurement.Trigger
	if cfg.Measurement.TriggerDevice != "" {
		serialTrigger, err := measurement.OpenSerialTrigger(cfg.Measurement.TriggerDevice,
			cfg.Measurement.TriggerBaud, cfg.Measurement.TriggerTimeout)
		if err != nil {
			log.WithError(err).Error("Failed to open capture trigger")
			return exitError
		}
		defer serialTrigger.Close()
		trigger = serialTrigger
	}
	recorder := measurement.NewRecorder(trigger, clock.Real{}, log)

	sup, err := supervisor.New(settingsFrom(cfg), link, recorder, supervisor.Options{
		Logger:       log,
		PollInterval: cfg.Flight.PollInterval,
		Observers:    observers,
	})
	if err != nil {
		log.WithError(err).Error("Failed to create supervisor")
		return exitError
	}

	outcome, err := sup.Run(ctx)
	entry := log.WithFields(logrus.Fields{
		"outcome":  outcome.Kind.String(),
		"captured": outcome.Captured,
	})
	if outcome.Reason != "" {
		entry = entry.WithField("reason", outcome.Reason)
	}

	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		entry.WithError(err).Error("Mission runner failed")
		return exitError
	case outcome.Kind == supervisor.OutcomeAborted:
		entry.WithError(outcome.Err).Error("Mission aborted")
		return exitAborted
	}

	entry.Info("Antenna scanner stopped")
	return exitOK
}
