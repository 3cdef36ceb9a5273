package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event represents an SSE event to be sent to clients
type Event struct {
	// Event is the SSE event type (e.g., "job_updated", "heartbeat").
	// If empty, no "event:" line will be written
	Event string

	// Data is the payload to send (strings and byte slices are sent as-is;
	// anything else is JSON-encoded)
	Data interface{}

	// ID is an optional event ID for Last-Event-ID reconnection support
	ID string

	// Retry is an optional reconnection time in milliseconds
	Retry int
}

// Send writes an SSE event block to the given writer and flushes immediately.
// Multi-line payloads are written as one data: line per line, per the spec.
func Send(w *bufio.Writer, event Event) error {
	if event.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}

	if event.Retry > 0 {
		if _, err := fmt.Fprintf(w, "retry: %d\n", event.Retry); err != nil {
			return fmt.Errorf("failed to write retry: %w", err)
		}
	}

	if event.Event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event.Event); err != nil {
			return fmt.Errorf("failed to write event type: %w", err)
		}
	}

	var dataStr string
	switch v := event.Data.(type) {
	case string:
		dataStr = v
	case []byte:
		dataStr = string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		dataStr = string(data)
	}

	for _, line := range strings.Split(dataStr, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return fmt.Errorf("failed to write event data: %w", err)
		}
	}
	if _, err := fmt.Fprint(w, "\n"); err != nil {
		return fmt.Errorf("failed to terminate event: %w", err)
	}

	return w.Flush()
}

// SendHeartbeat sends a heartbeat event with a minimal timestamp payload
func SendHeartbeat(w *bufio.Writer) error {
	return Send(w, Event{
		Event: "heartbeat",
		Data:  map[string]interface{}{"ts": time.Now().Unix()},
	})
}

// SendError sends a stream_error event
func SendError(w *bufio.Writer, err error) error {
	return Send(w, Event{
		Event: "stream_error",
		Data: map[string]interface{}{
			"type":    "stream_error",
			"message": err.Error(),
		},
	})
}
