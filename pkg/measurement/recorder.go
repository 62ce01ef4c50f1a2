// Package measurement records the captures taken at each scan waypoint.
package measurement

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/k3suav/antenna-scan/pkg/clock"
	"github.com/k3suav/antenna-scan/pkg/models"
	"github.com/sirupsen/logrus"
)

// LogFile is the capture log written inside the output directory.
const LogFile = "captures.csv"

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

var header = []string{"timestamp", "waypoint", "frequency_hz", "status"}

// Trigger fires the capture hardware for one waypoint.
type Trigger interface {
	Fire(ctx context.Context, waypointIndex int, frequencyHz float64) error
}

// Recorder implements supervisor.MeasurementService. Every capture is
// appended to the log, failed ones included.
type Recorder struct {
	trigger Trigger
	clock   clock.Clock
	log     *logrus.Logger

	mu sync.Mutex
}

// NewRecorder creates a recorder. trigger may be nil.
func NewRecorder(trigger Trigger, c clock.Clock, log *logrus.Logger) *Recorder {
	if c == nil {
		c = clock.Real{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Recorder{trigger: trigger, clock: c, log: log}
}

// Capture fires the trigger, if any, and logs the result under outputPath.
func (r *Recorder) Capture(ctx context.Context, waypointIndex int, frequencyHz float64, outputPath string) error {
	status := StatusOK
	var fireErr error
	if r.trigger != nil {
		if fireErr = r.trigger.Fire(ctx, waypointIndex, frequencyHz); fireErr != nil {
			status = StatusFailed
		}
	}

	row := []string{
		r.clock.Now().UTC().Format(time.RFC3339Nano),
		strconv.Itoa(waypointIndex),
		strconv.FormatFloat(frequencyHz, 'f', -1, 64),
		status,
	}
	if err := r.append(outputPath, row); err != nil {
		return fmt.Errorf("%w: %w", models.ErrCaptureFailed, err)
	}

	r.log.WithFields(logrus.Fields{
		"waypoint":  waypointIndex,
		"frequency": frequencyHz,
		"status":    status,
	}).Debug("Capture recorded")

	if fireErr != nil {
		return fmt.Errorf("%w: waypoint %d: %w", models.ErrCaptureFailed, waypointIndex, fireErr)
	}
	return nil
}

func (r *Recorder) append(dir string, row []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, LogFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open capture log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
