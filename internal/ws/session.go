package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sketchwars/sketchwars-backend/internal"
	"github.com/sketchwars/sketchwars-backend/internal/bus"
)

const (
	// Generous enough for a full-length stroke payload.
	maxMessageSize = 256 * 1024
	writeWait      = 10 * time.Second
	sendBuffer     = 256
)

// session is one socket's connection state: the gorilla conn, the buffered
// send channel the write pump drains, and the identity the room knows it by.
// ref distinguishes this socket from the same user's other tabs.
type session struct {
	conn    *websocket.Conn
	ref     string
	userId  string
	roomId  string
	send    chan []byte
	limiter *connLimiter
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(conn *websocket.Conn, ref, userId, roomId string, logger *slog.Logger) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		conn:    conn,
		ref:     ref,
		userId:  userId,
		roomId:  roomId,
		send:    make(chan []byte, sendBuffer),
		limiter: newConnLimiter(),
		logger:  logger.With("room", roomId, "user", userId, "ref", ref),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *session) close() { s.cancel() }

// trySend queues a frame for the write pump, dropping it when the socket
// cannot keep up. Slow readers lose frames, not the whole server.
func (s *session) trySend(frame []byte) {
	select {
	case s.send <- frame:
	default:
		s.logger.Warn("send buffer full, dropping frame")
	}
}

// sendEvent marshals and queues one event frame.
func (s *session) sendEvent(event string, payload any) {
	frame, err := json.Marshal(internal.Event[any]{Event: event, Payload: payload})
	if err != nil {
		s.logger.Error("marshal outbound event", "event", event, "error", err)
		return
	}
	s.trySend(frame)
}

func (s *session) sendError(message string) {
	s.sendEvent(internal.EventError, internal.ErrorData{Message: message})
}

// writeDirect writes on the conn without going through the pump. Only safe
// before writePump starts.
func (s *session) writeDirect(event string, payload any) error {
	return s.conn.WriteJSON(internal.Event[any]{Event: event, Payload: payload})
}

// writePump is the only goroutine that writes the conn after startup.
func (s *session) writePump() {
	defer s.conn.Close()
	for {
		select {
		case <-s.ctx.Done():
			deadline := time.Now().Add(writeWait)
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.cancel()
				return
			}
		}
	}
}

// forward relays bus deliveries for this session's room and user topics to
// the socket, honoring the exclusion markers publishers set. A kick for this
// room closes the session after the frame goes out.
func (s *session) forward(sub *bus.Subscription) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case d, ok := <-sub.Channel():
			if !ok {
				s.cancel()
				return
			}
			if d.Exclude.Ref != "" && d.Exclude.Ref == s.ref {
				continue
			}
			if d.Exclude.User != "" && d.Exclude.User == s.userId {
				continue
			}
			frame, err := d.Frame()
			if err != nil {
				s.logger.Error("frame bus delivery", "event", d.Event, "error", err)
				continue
			}
			s.trySend(frame)

			if d.Event == internal.EventPlayerKicked && d.Topic == bus.UserTopic(s.userId) {
				var kicked internal.PlayerKickedData
				if err := json.Unmarshal(d.Payload, &kicked); err == nil && kicked.RoomId == s.roomId {
					s.logger.Info("session closing, player kicked")
					s.cancel()
					return
				}
			}
		}
	}
}
