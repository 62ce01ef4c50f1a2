package k8s

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/k3suav/antenna-scan/pkg/supervisor"
	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
)

// Pending transitions are flushed with this budget on Stop
const flushTimeout = 10 * time.Second

// Mission mirrors the ScanMission resource operations the reporter needs.
type Mission interface {
	CreateOrUpdateWithRetry(ctx context.Context, spec *MissionSpec) error
	UpdateStatus(ctx context.Context, mission string, status MissionStatus) error
	RecordEvent(ctx context.Context, mission, eventType, reason, message string) error
}

// Reporter mirrors supervisor transitions into the cluster. OnTransition
// only enqueues, so the control loop never waits on the API server.
type Reporter struct {
	client      Mission
	logger      *logrus.Logger
	mission     string
	node        string
	frequencyHz float64

	queue    chan supervisor.Transition
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Only touched by the run goroutine
	published bool
}

// NewReporter creates a reporter with room for queueSize pending transitions.
func NewReporter(client Mission, mission, node string, frequencyHz float64, queueSize int, logger *logrus.Logger) *Reporter {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Reporter{
		client:      client,
		logger:      logger,
		mission:     mission,
		node:        node,
		frequencyHz: frequencyHz,
		queue:       make(chan supervisor.Transition, queueSize),
		stopCh:      make(chan struct{}),
	}
}

// Start begins draining the queue.
func (r *Reporter) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
}

// Stop publishes whatever is still queued and waits for the worker.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()
}

// OnTransition implements supervisor.Observer.
func (r *Reporter) OnTransition(ctx context.Context, t supervisor.Transition) {
	select {
	case r.queue <- t:
	default:
		r.logger.WithFields(logrus.Fields{
			"from": t.From.String(),
			"to":   t.To.String(),
		}).Warn("Reporter queue full, dropping transition")
	}
}

func (r *Reporter) run(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case t := <-r.queue:
			r.publish(ctx, t)
		case <-ctx.Done():
			r.flush()
			return
		case <-r.stopCh:
			r.flush()
			return
		}
	}
}

func (r *Reporter) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	for {
		select {
		case t := <-r.queue:
			r.publish(ctx, t)
		default:
			return
		}
	}
}

func (r *Reporter) publish(ctx context.Context, t supervisor.Transition) {
	log := r.logger.WithFields(logrus.Fields{
		"mission": r.mission,
		"state":   t.To.String(),
	})

	if !r.published {
		if t.Plan == nil {
			return
		}
		spec := NewMissionSpec(r.mission, r.node, r.frequencyHz, t.Plan)
		if err := r.client.CreateOrUpdateWithRetry(ctx, spec); err != nil {
			log.WithError(err).Error("Failed to publish ScanMission")
			return
		}
		r.published = true
		log.WithField("waypoints", spec.Waypoints).Info("ScanMission published")
	}

	if err := r.client.UpdateStatus(ctx, r.mission, StatusFor(t)); err != nil {
		log.WithError(err).Warn("Failed to update ScanMission status")
	}

	var eventType, reason, message string
	switch t.To.Kind {
	case supervisor.StateCompleted:
		eventType, reason = corev1.EventTypeNormal, "MissionCompleted"
		message = fmt.Sprintf("all %d waypoints measured", t.Plan.Len())
	case supervisor.StateAborted:
		eventType, reason = corev1.EventTypeWarning, "MissionAborted"
		message = fmt.Sprintf("aborted at %s: %s", t.From, t.Reason)
	default:
		return
	}
	if err := r.client.RecordEvent(ctx, r.mission, eventType, reason, message); err != nil {
		log.WithError(err).Warn("Failed to record mission event")
	}
}
