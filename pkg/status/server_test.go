package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/k3suav/antenna-scan/pkg/models"
	"github.com/k3suav/antenna-scan/pkg/supervisor"
	"github.com/sirupsen/logrus/hooks/test"
)

var at = time.Date(2024, 7, 4, 9, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T, metrics http.Handler) (*Server, *httptest.Server) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	s := NewServer(":0", "field-a", metrics, logger)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(s.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s = %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, nil)
	var body map[string]string
	getJSON(t, ts.URL+"/health", &body)
	if body["status"] != "healthy" || body["mission"] != "field-a" {
		t.Fatalf("health = %v", body)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("/metrics without handler = %d, want 404", resp.StatusCode)
	}
}

func TestStatusFollowsTransitions(t *testing.T) {
	s, ts := newTestServer(t, nil)

	var snap Snapshot
	getJSON(t, ts.URL+"/status", &snap)
	if snap.State != "Manual" || snap.Plan != nil {
		t.Fatalf("initial status = %+v", snap)
	}

	plan := &models.ScanPlan{PointsPerArc: 3, NumberOfArcs: 2, FarFieldDistance: 25, Heading: 45, Waypoints: make([]models.GeoPoint, 6)}
	s.OnTransition(context.Background(), supervisor.Transition{
		From:   supervisor.State{Kind: supervisor.StatePlanningAndArming},
		To:     supervisor.State{Kind: supervisor.StateTravelling, WaypointIndex: 0},
		At:     at,
		Reason: "autonomous mode confirmed",
		Plan:   plan,
	})

	getJSON(t, ts.URL+"/status", &snap)
	if snap.State != "Travelling(0)" || snap.Transitions != 1 || !snap.Since.Equal(at) {
		t.Fatalf("status = %+v", snap)
	}
	if snap.Plan == nil || snap.Plan.Waypoints != 6 || snap.Plan.FarFieldDistance != 25 {
		t.Fatalf("plan = %+v", snap.Plan)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("scan_current_waypoint 3\n"))
	})
	_, ts := newTestServer(t, metrics)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "scan_current_waypoint 3") {
		t.Fatalf("/metrics = %q", body)
	}
}

func TestWebsocketBroadcast(t *testing.T) {
	s, ts := newTestServer(t, nil)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.clientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.OnTransition(context.Background(), supervisor.Transition{
		From:   supervisor.State{Kind: supervisor.StateTravelling, WaypointIndex: 2},
		To:     supervisor.State{Kind: supervisor.StateMeasuring, WaypointIndex: 2},
		At:     at,
		Reason: "arrived",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.From != "Travelling(2)" || ev.To != "Measuring(2)" || ev.WaypointIndex != 2 || ev.Reason != "arrived" {
		t.Fatalf("event = %+v", ev)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for s.clientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("closed client never dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestTransitionDoesNotWaitForClients holds the client lock the way a stuck
// websocket write would and checks the supervisor side never blocks on it.
func TestTransitionDoesNotWaitForClients(t *testing.T) {
	s, _ := newTestServer(t, nil)

	s.clientsMu.Lock()
	returned := make(chan struct{})
	go func() {
		defer close(returned)
		for i := 0; i < 2*eventQueueSize; i++ {
			s.OnTransition(context.Background(), supervisor.Transition{
				From: supervisor.State{Kind: supervisor.StateMeasuring, WaypointIndex: i},
				To:   supervisor.State{Kind: supervisor.StateTravelling, WaypointIndex: i + 1},
				At:   at,
			})
		}
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		s.clientsMu.Unlock()
		t.Fatal("OnTransition blocked behind a client write")
	}
	s.clientsMu.Unlock()

	if got := s.Snapshot().Transitions; got != 2*eventQueueSize {
		t.Fatalf("transitions = %d, want %d", got, 2*eventQueueSize)
	}
}

func TestStartStopsWithContext(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewServer("127.0.0.1:0", "field-a", nil, logger)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start = %v, want nil after shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
