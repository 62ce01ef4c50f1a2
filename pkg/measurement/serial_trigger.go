package measurement

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/k3suav/antenna-scan/pkg/models"
	serial "go.bug.st/serial"
)

const (
	replyAck   = "ACK"
	replyErr   = "ERR"
	lineBuffer = 16
)

var errTriggerClosed = errors.New("capture device closed")

// SerialTrigger drives a capture device over a line protocol:
//
//	-> CAPTURE,<waypoint>,<frequency_hz>
//	<- ACK,<waypoint> | ERR,<waypoint>,<reason>
//
// Replies for any other waypoint, such as a late ACK for a capture that
// already timed out, are ignored along with unrelated lines.
type SerialTrigger struct {
	port    io.ReadWriteCloser
	timeout time.Duration
	lines   chan string

	mu sync.Mutex
}

// OpenSerialTrigger opens a serial capture device.
func OpenSerialTrigger(device string, baud int, timeout time.Duration) (*SerialTrigger, error) {
	p, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open capture device %s: %w", device, err)
	}
	return NewSerialTrigger(p, timeout), nil
}

// NewSerialTrigger wraps an open port and starts reading from it.
func NewSerialTrigger(port io.ReadWriteCloser, timeout time.Duration) *SerialTrigger {
	t := &SerialTrigger{
		port:    port,
		timeout: timeout,
		lines:   make(chan string, lineBuffer),
	}
	go t.readLoop()
	return t
}

func (t *SerialTrigger) readLoop() {
	defer close(t.lines)
	r := bufio.NewReader(t.port)
	for {
		line, err := r.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			select {
			case t.lines <- line:
			default:
				// Nobody is waiting; drop it.
			}
		}
		if err != nil {
			return
		}
	}
}

// Fire implements Trigger.
func (t *SerialTrigger) Fire(ctx context.Context, waypointIndex int, frequencyHz float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.drain()

	cmd := fmt.Sprintf("CAPTURE,%d,%s\n", waypointIndex, strconv.FormatFloat(frequencyHz, 'f', -1, 64))
	if _, err := io.WriteString(t.port, cmd); err != nil {
		return fmt.Errorf("failed to write capture command: %w", err)
	}

	var timeout <-chan time.Time
	if t.timeout > 0 {
		timer := time.NewTimer(t.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case line, ok := <-t.lines:
			if !ok {
				return errTriggerClosed
			}
			kind, index, detail, ok := parseReply(line)
			if !ok || index != waypointIndex {
				continue
			}
			if kind == replyErr {
				return fmt.Errorf("capture device rejected waypoint %d: %s", waypointIndex, detail)
			}
			return nil
		case <-timeout:
			return fmt.Errorf("%w: no ACK after %s", models.ErrCaptureTimeout, t.timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parseReply splits an ACK or ERR line into its kind, waypoint and reason.
func parseReply(line string) (kind string, index int, detail string, ok bool) {
	parts := strings.SplitN(line, ",", 3)
	if len(parts) < 2 {
		return "", 0, "", false
	}
	kind = parts[0]
	if kind != replyAck && kind != replyErr {
		return "", 0, "", false
	}
	index, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", 0, "", false
	}
	if len(parts) == 3 {
		detail = strings.TrimSpace(parts[2])
	}
	return kind, index, detail, true
}

// drain discards replies left over from an earlier timed out capture.
func (t *SerialTrigger) drain() {
	for {
		select {
		case _, ok := <-t.lines:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Close closes the underlying port.
func (t *SerialTrigger) Close() error {
	if t.port == nil {
		return nil
	}
	return t.port.Close()
}
