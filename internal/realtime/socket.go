package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// ServeConn runs a registered connection over a websocket until the peer
// disconnects. Events are decoded and dispatched sequentially in the read
// loop, which is what gives each connection its in-order processing
// guarantee. The call blocks; on return the connection has been
// unregistered and every presence group it joined has been recomputed.
func (h *Hub) ServeConn(ctx context.Context, ws *websocket.Conn, identity Identity) {
	conn := h.Register(identity)
	h.logger.Info("socket connected",
		zap.String("connection_id", conn.ID),
		zap.String("user_id", identity.UserID))

	go h.writeLoop(ws, conn)
	h.readLoop(ctx, ws, conn)

	h.Unregister(conn)
	h.logger.Info("socket disconnected", zap.String("connection_id", conn.ID))
}

func (h *Hub) readLoop(ctx context.Context, ws *websocket.Conn, conn *Conn) {
	defer ws.Close()
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("socket read ended", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}
		var envelope Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			h.logger.Debug("undecodable frame dropped", zap.String("connection_id", conn.ID))
			continue
		}
		h.dispatch(ctx, conn, envelope)
	}
}

// dispatch routes one inbound event. Events with missing required fields,
// failed authorization, or vanished entities are dropped silently; the
// realtime path is fire-and-forget and never answers per-event errors.
func (h *Hub) dispatch(ctx context.Context, conn *Conn, envelope Envelope) {
	switch envelope.Event {
	case EventJoinProject:
		var payload joinProjectPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.ProjectID == "" {
			return
		}
		if err := h.JoinProject(ctx, conn, payload.ProjectID); err != nil {
			h.logger.Warn("join-project dropped",
				zap.String("connection_id", conn.ID),
				zap.String("project_id", payload.ProjectID),
				zap.Error(err))
		}
	case EventLeaveProject:
		var payload joinProjectPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.ProjectID == "" {
			return
		}
		h.LeaveProject(conn, payload.ProjectID)
	case EventFileEdit:
		var payload fileEditPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return
		}
		outcome := h.HandleEdit(ctx, conn, payload.FileID, payload.Content)
		if outcome.Status == EditDropped {
			h.logger.Debug("file:edit dropped",
				zap.String("connection_id", conn.ID),
				zap.String("file_id", payload.FileID),
				zap.String("reason", outcome.Reason))
		}
	case EventPresenceJoin:
		var payload presenceJoinPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.FileID == "" {
			return
		}
		h.PresenceJoin(conn, payload.FileID, payload.Cursor)
	case EventPresenceLeave:
		var payload presenceLeavePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.FileID == "" {
			return
		}
		h.PresenceLeave(conn, payload.FileID)
	case EventPresenceCursor:
		var payload presenceCursorPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.FileID == "" {
			return
		}
		h.PresenceCursor(conn, payload.FileID, payload.Cursor)
	default:
		h.logger.Debug("unknown event dropped",
			zap.String("connection_id", conn.ID),
			zap.String("event", envelope.Event))
	}
}

func (h *Hub) writeLoop(ws *websocket.Conn, conn *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message := <-conn.outbound:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := writeEnvelope(ws, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-conn.done:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

func writeEnvelope(ws *websocket.Conn, message Message) error {
	data, err := json.Marshal(message.Data)
	if err != nil {
		return errors.New("realtime: unencodable outbound payload")
	}
	return ws.WriteJSON(Envelope{Event: message.Event, Data: data})
}
