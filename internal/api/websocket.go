package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/studyhub/backend/internal/events"
	"github.com/studyhub/backend/internal/logging"
	"github.com/studyhub/backend/internal/models"
	"github.com/studyhub/backend/internal/validation"
	"go.uber.org/zap"
)

// WebSocket message types for the upload protocol
const (
	// Client -> Server messages
	MsgTypeUploadIngest = "upload:ingest"
	MsgTypeUploadRetry  = "upload:retry"
	MsgTypeUploadRemove = "upload:remove"
	MsgTypePing         = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeSnapshot  = "snapshot"
	MsgTypeAck       = "ack"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

const (
	wsWriteWait  = 10 * time.Second
	wsSendBuffer = 32
)

// WSMessage is the envelope of every WebSocket frame
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"` // client correlation id, echoed in acks
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// IngestPayload lists the files of an upload:ingest message
type IngestPayload struct {
	Files []models.FileDescriptor `json:"files"`
}

// ItemPayload targets one upload by id
type ItemPayload struct {
	ID string `json:"id" validate:"required"`
}

// WSErrorPayload describes a rejected message
type WSErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler pushes collection snapshots and accepts lifecycle
// commands over a WebSocket connection
type WebSocketHandler struct {
	uploads   UploadManager
	upgrader  websocket.Upgrader
	readLimit int64
	logger    *zap.Logger
}

// NewWebSocketHandler creates a new WebSocket upload handler.
// readLimitKB bounds incoming frames; zero means 512KB.
func NewWebSocketHandler(uploads UploadManager, readLimitKB int) *WebSocketHandler {
	if readLimitKB <= 0 {
		readLimitKB = 512
	}
	return &WebSocketHandler{
		uploads: uploads,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// CORS is enforced by middleware
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		readLimit: int64(readLimitKB) * 1024,
		logger:    logging.Named("websocket"),
	}
}

// HandleWebSocket upgrades the connection and runs the upload protocol
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	ws.SetReadLimit(wsh.readLimit)

	wsh.logger.Debug("client connected", zap.String("remote", ws.RemoteAddr().String()))

	snapshots, cancel := wsh.uploads.Subscribe()
	defer cancel()

	// All writes go through the writer goroutine; gorilla allows one writer.
	send := make(chan WSMessage, wsSendBuffer)
	done := make(chan struct{})
	go wsh.writeLoop(ws, send, snapshots, done)
	defer close(done)

	send <- WSMessage{Type: MsgTypeConnected, Timestamp: time.Now().UnixMilli()}
	version, items := wsh.uploads.SnapshotVersion()
	send <- snapshotMessage(events.Event{
		Type:      events.EventSnapshot,
		Version:   version,
		Items:     items,
		Timestamp: time.Now().UnixMilli(),
	})

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsh.logger.Warn("connection error", zap.Error(err))
			}
			break
		}

		reply := wsh.handleMessage(msg)
		select {
		case send <- reply:
		case <-c.Request().Context().Done():
			return nil
		}
	}

	wsh.logger.Debug("client disconnected")
	return nil
}

// handleMessage applies one client command and returns the reply frame
func (wsh *WebSocketHandler) handleMessage(msg WSMessage) WSMessage {
	switch msg.Type {
	case MsgTypePing:
		return WSMessage{Type: MsgTypePong, ID: msg.ID, Timestamp: time.Now().UnixMilli()}

	case MsgTypeUploadIngest:
		var payload IngestPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return errorMessage(msg.ID, "invalid ingest payload: "+err.Error(), "INVALID_PAYLOAD")
		}
		return ackMessage(msg.ID, wsh.uploads.Ingest(payload.Files))

	case MsgTypeUploadRetry, MsgTypeUploadRemove:
		var payload ItemPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return errorMessage(msg.ID, "invalid payload: "+err.Error(), "INVALID_PAYLOAD")
		}
		if err := validation.Struct(payload); err != nil {
			return errorMessage(msg.ID, err.Error(), "INVALID_PAYLOAD")
		}
		if msg.Type == MsgTypeUploadRetry {
			wsh.uploads.Retry(payload.ID)
		} else {
			wsh.uploads.Remove(payload.ID)
		}
		return ackMessage(msg.ID, payload)

	default:
		return errorMessage(msg.ID, "unknown message type: "+msg.Type, "INVALID_TYPE")
	}
}

func (wsh *WebSocketHandler) writeLoop(ws *websocket.Conn, send <-chan WSMessage, snapshots <-chan events.Event, done <-chan struct{}) {
	for {
		var msg WSMessage
		select {
		case <-done:
			return
		case msg = <-send:
		case ev, ok := <-snapshots:
			if !ok {
				return
			}
			msg = snapshotMessage(ev)
		}

		ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := ws.WriteJSON(msg); err != nil {
			wsh.logger.Debug("write failed", zap.Error(err))
			// Unblock the reader so the handler returns.
			ws.Close()
			return
		}
	}
}

func snapshotMessage(ev events.Event) WSMessage {
	payload, _ := json.Marshal(ev)
	return WSMessage{Type: MsgTypeSnapshot, Payload: payload, Timestamp: ev.Timestamp}
}

func ackMessage(id string, result interface{}) WSMessage {
	payload, _ := json.Marshal(result)
	return WSMessage{Type: MsgTypeAck, ID: id, Payload: payload, Timestamp: time.Now().UnixMilli()}
}

func errorMessage(id, message, code string) WSMessage {
	payload, _ := json.Marshal(WSErrorPayload{Message: message, Code: code})
	return WSMessage{Type: MsgTypeError, ID: id, Payload: payload, Timestamp: time.Now().UnixMilli()}
}
