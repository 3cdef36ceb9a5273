package ingest

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/docuquery/docuquery/model"
	"github.com/docuquery/docuquery/services"
	"github.com/docuquery/docuquery/utils/response"
	"github.com/docuquery/docuquery/utils/sse"
)

// streamIdleTimeout closes a subscription after this long without a job event
// (heartbeats do not reset it)
const streamIdleTimeout = 300 * time.Second

// StreamHandler serves the resumable SSE progress stream for a job
type StreamHandler struct {
	orch    *services.Orchestrator
	manager *services.SSEManager
	logger  *slog.Logger
}

// NewStreamHandler creates the stream handler
func NewStreamHandler(orch *services.Orchestrator, manager *services.SSEManager, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		orch:    orch,
		manager: manager,
		logger:  logger.With("component", "ingest_stream"),
	}
}

// Stream handles GET /ingest/:job_id/stream.
// Event order: connection_start, replay (when Last-Event-ID is in
// history), the current job snapshot, then live events until a terminal
// update or disconnect. Heartbeats fill silent stretches.
func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	jobID := c.Params("job_id")
	lastEventID := c.Get("Last-Event-ID")
	clientID := c.Get("X-Client-ID")

	if _, err := h.orch.Get(c.UserContext(), jobID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return response.NotFound(c, "Job not found or expired")
		}
		return response.InternalServerError(c, "Failed to read job state")
	}

	conn := h.manager.Register(clientID, jobID, lastEventID)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	heartbeat := h.manager.HeartbeatInterval()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// The Fiber context is not valid inside the stream writer;
		// all store access uses a fresh background context.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		defer h.manager.Unregister(conn.ConnectionID)

		send := func(ev sse.Event) bool {
			if err := sse.Send(w, ev); err != nil {
				return false
			}
			h.manager.Touch(conn.ConnectionID)
			return true
		}

		// subscribe before replay so no live event falls in the gap
		// between the snapshot and the subscription
		events, unsubscribe, err := h.orch.Subscribe(ctx, jobID)
		if err != nil {
			sse.SendError(w, errors.New("event subscription unavailable"))
			return
		}
		defer unsubscribe()

		if !send(sse.Event{
			Event: "connection_start",
			Data: fiber.Map{
				"connection_id":      conn.ConnectionID,
				"client_id":          conn.ClientID,
				"heartbeat_interval": heartbeat.Seconds(),
				"capabilities":       fiber.Map{"resume": true},
			},
		}) {
			return
		}

		if lastEventID != "" {
			if !h.replay(ctx, w, send, jobID, lastEventID) {
				return
			}
		}

		job, err := h.orch.Get(ctx, jobID)
		if err != nil {
			sse.SendError(w, errors.New("job state unavailable"))
			return
		}
		if !send(sse.Event{Event: "job_status", Data: job}) {
			return
		}
		if job.Status.Terminal() {
			return
		}

		heartbeatTimer := time.NewTimer(heartbeat)
		defer heartbeatTimer.Stop()
		idleTimer := time.NewTimer(streamIdleTimeout)
		defer idleTimer.Stop()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if !send(sse.Event{ID: ev.EventID, Event: ev.Type, Data: ev}) {
					return
				}
				if ev.Type == model.EventJobUpdated && ev.Status.Terminal() {
					return
				}
				resetTimer(heartbeatTimer, heartbeat)
				resetTimer(idleTimer, streamIdleTimeout)

			case <-heartbeatTimer.C:
				if err := sse.SendHeartbeat(w); err != nil {
					return
				}
				h.manager.Touch(conn.ConnectionID)
				heartbeatTimer.Reset(heartbeat)

			case <-idleTimer.C:
				sse.SendError(w, errors.New("stream idle timeout"))
				return
			}
		}
	})

	return nil
}

// replay emits every history event after lastEventID. A missing id means
// no replay. Returns false when the client went away mid-replay.
func (h *StreamHandler) replay(ctx context.Context, w *bufio.Writer, send func(sse.Event) bool, jobID, lastEventID string) bool {
	history, err := h.orch.History(ctx, jobID)
	if err != nil {
		h.logger.Warn("history read failed, skipping replay", "job_id", jobID, "err", err)
		return true
	}

	from := -1
	for i, ev := range history {
		if ev.EventID == lastEventID {
			from = i + 1
			break
		}
	}
	if from < 0 {
		return true
	}

	for _, ev := range history[from:] {
		ok := send(sse.Event{
			ID:    ev.EventID,
			Event: "replay",
			Data: fiber.Map{
				"original_event": fiber.Map{
					"id":   ev.EventID,
					"type": ev.Type,
				},
				"original_data":      ev,
				"original_timestamp": ev.Timestamp,
			},
		})
		if !ok {
			return false
		}
	}
	return true
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
