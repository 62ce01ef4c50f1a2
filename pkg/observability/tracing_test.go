package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/k3suav/antenna-scan/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
)

func TestInitTracingDisabled(t *testing.T) {
	logger, _ := test.NewNullLogger()
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{}, nil, logger)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "mission")
	if span.SpanContext().IsValid() {
		t.Fatal("noop provider produced a valid span context")
	}
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingExportsSpans(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var buf bytes.Buffer
	cfg := config.TracingConfig{Enabled: true, ServiceName: "antenna-scan", SampleRatio: 1}

	shutdown, err := InitTracing(context.Background(), cfg, &buf, logger)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "mission")
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, logger)

	out := buf.String()
	if !strings.Contains(out, `"Name": "mission"`) {
		t.Fatalf("exported spans missing mission span:\n%s", out)
	}
	if !strings.Contains(out, "antenna-scan") {
		t.Fatalf("exported spans missing service name:\n%s", out)
	}
}

func TestShutdownWithTimeoutLogsFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	ShutdownWithTimeout(context.Background(), func(context.Context) error {
		return errors.New("flush failed")
	}, logger)
	if hook.LastEntry() == nil || hook.LastEntry().Level != logrus.WarnLevel {
		t.Fatalf("entries = %v, want a warning", hook.AllEntries())
	}

	ShutdownWithTimeout(context.Background(), nil, logger)
}
