package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"whisper/contract"
	"whisper/sink"

	"github.com/gofiber/websocket/v2"
)

// Timeouts groups the live-channel liveness knobs.
type Timeouts struct {
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	ReadLimit    int64
}

// client couples one websocket connection to its session and sink.
// The read loop runs on the upgrade goroutine; the write loop runs in
// its own goroutine and is the only writer on the connection.
type client struct {
	conn     *websocket.Conn
	session  *contract.Session
	events   *sink.Sink
	log      *slog.Logger
	timeouts Timeouts
}

func newClient(conn *websocket.Conn, session *contract.Session, events *sink.Sink,
	log *slog.Logger, timeouts Timeouts) *client {
	return &client{conn: conn, session: session, events: events, log: log, timeouts: timeouts}
}

// writePump drains the sink into the socket, pinging to keep the
// connection alive. It exits when the sink closes, the context ends,
// or a write fails; every exit path closes the socket so the read loop
// unblocks.
func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.timeouts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.events.Done():
			deadline := time.Now().Add(c.timeouts.WriteWait)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session replaced"),
				deadline)
			return
		case evt := <-c.events.Events():
			envelope, err := newEnvelope(evt)
			if err != nil {
				c.log.Error("Failed to encode event",
					"event", evt.EventName(), "error", err)
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeouts.WriteWait))
			if err := c.conn.WriteJSON(envelope); err != nil {
				c.log.Debug("Push failed, dropping connection",
					"user_id", c.session.UserID, "error", err)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.timeouts.WriteWait)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// readLoop decodes inbound envelopes and hands them to dispatch until
// the connection drops. Malformed frames are skipped, not fatal.
func (c *client) readLoop(dispatch func(Envelope)) {
	c.conn.SetReadLimit(c.timeouts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var envelope Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			c.log.Debug("Skipping malformed frame", "user_id", c.session.UserID)
			continue
		}
		dispatch(envelope)
	}
}
