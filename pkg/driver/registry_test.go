package driver

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/k3suav/antenna-scan/pkg/models"
)

type stubLink struct{ closed bool }

func (l *stubLink) Telemetry(ctx context.Context) (models.TelemetrySnapshot, error) {
	return models.TelemetrySnapshot{}, nil
}
func (l *stubLink) SetMode(ctx context.Context, mode string) error { return nil }
func (l *stubLink) Arm(ctx context.Context) error                  { return nil }
func (l *stubLink) MoveTo(ctx context.Context, target models.GeoPoint, speed float64) error {
	return nil
}
func (l *stubLink) Close() error { l.closed = true; return nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	link := &stubLink{}
	r.Register(New("sim", func(ctx context.Context, opts Options) (Link, error) { return link, nil }))
	r.Register(New("mavlink", func(ctx context.Context, opts Options) (Link, error) {
		return nil, errors.New("no serial port")
	}))

	if got, want := r.List(), []string{"mavlink", "sim"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}

	got, err := r.Open(context.Background(), "sim", Options{})
	if err != nil {
		t.Fatalf("Open(sim): %v", err)
	}
	if got != link {
		t.Fatal("Open(sim) returned a different link")
	}

	if _, err := r.Open(context.Background(), "mavlink", Options{}); err == nil || !strings.Contains(err.Error(), "no serial port") {
		t.Fatalf("Open(mavlink) = %v, want wrapped driver error", err)
	}
	if _, err := r.Get("dronekit"); err == nil {
		t.Fatal("Get(unknown) returned nil error")
	}

	r.Clear()
	if len(r.List()) != 0 {
		t.Fatalf("List() after Clear = %v", r.List())
	}
}
