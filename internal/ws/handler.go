package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sketchwars/sketchwars-backend/internal"
	"github.com/sketchwars/sketchwars-backend/internal/auth"
	"github.com/sketchwars/sketchwars-backend/internal/bus"
	"github.com/sketchwars/sketchwars-backend/internal/game"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler owns the socket front-end: it authenticates connections, joins them
// to rooms, relays bus events out and routes commands into the engine.
type Handler struct {
	engine   *game.Engine
	bus      *bus.Bus
	verifier *auth.Verifier
	logger   *slog.Logger
}

func NewHandler(engine *game.Engine, b *bus.Bus, verifier *auth.Verifier, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, bus: b, verifier: verifier, logger: logger}
}

// HandleSocket serves GET /ws?room={id}&token={jwt}&name={display name}.
// The connection is the join: a successful upgrade seats the player, and the
// socket closing is the leave.
func (h *Handler) HandleSocket(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	roomId := query.Get("room")
	if roomId == "" {
		http.Error(w, "room is required", http.StatusBadRequest)
		return
	}

	claims, err := h.verifier.Verify(query.Get("token"))
	if err != nil {
		h.logger.Info("rejecting socket, bad token", "room", roomId, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	userId := claims.PlayerId()
	if userId == "" {
		userId = query.Get("user_id")
	}
	if userId == "" {
		userId = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	s := newSession(conn, uuid.NewString(), userId, roomId, h.logger)
	defer s.close()

	// Subscribe before joining so nothing published during the join is lost.
	sub, err := h.bus.Subscribe(s.ctx, bus.RoomTopic(roomId), bus.UserTopic(userId))
	if err != nil {
		s.logger.Error("bus subscribe failed", "error", err)
		s.writeDirect(internal.EventError, internal.ErrorData{Message: "something went wrong"})
		conn.Close()
		return
	}
	defer sub.Close()

	result, err := h.engine.JoinRoom(s.ctx, game.JoinRequest{
		RoomId:   roomId,
		UserId:   userId,
		Name:     query.Get("name"),
		Avatar:   query.Get("avatar"),
		Ref:      s.ref,
		RoomType: internal.RoomType(query.Get("room_type")),
	})
	if err != nil {
		s.writeDirect(internal.EventError, internal.ErrorData{Message: errorMessage(err)})
		conn.Close()
		return
	}

	// The joiner's own snapshot goes out directly; everyone else already got
	// the diff over the bus.
	s.writeDirect(internal.EventRoomInfo, result.Info)
	s.writeDirect(internal.EventPresenceState, result.Presence)
	if result.Turn != nil {
		s.writeDirect(internal.EventTurnStarted, result.Turn)
		for _, reveal := range result.Reveals {
			s.writeDirect(internal.EventLetterReveal, reveal)
		}
		if result.Canvas != nil {
			s.writeDirect(internal.EventDrawing, result.Canvas)
		}
	}

	go s.writePump()
	go s.forward(sub)

	h.readLoop(s)

	leaveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.engine.LeaveRoom(leaveCtx, roomId, userId, s.ref); err != nil {
		s.logger.Error("leave on disconnect failed", "error", err)
	}
}

// readLoop reads, rate-limits and dispatches commands until the socket dies.
func (h *Handler) readLoop(s *session) {
	s.conn.SetReadLimit(maxMessageSize)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info("socket closed", "error", err)
			}
			return
		}

		var msg internal.RawEvent
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			s.sendError("unreadable message")
			continue
		}

		allowed, disconnect := s.limiter.Allow(msg.Event)
		if !allowed {
			if disconnect {
				s.logger.Warn("disconnecting flooding socket", "command", msg.Event)
				return
			}
			s.sendError("too many messages")
			continue
		}

		h.dispatch(s, msg)
	}
}

func (h *Handler) dispatch(s *session, msg internal.RawEvent) {
	ctx := s.ctx
	var err error

	switch msg.Event {
	case internal.CmdNewMessage:
		var p struct {
			Message string `json:"message"`
		}
		if jsonErr := json.Unmarshal(msg.Payload, &p); jsonErr != nil {
			s.sendError("unreadable message")
			return
		}
		err = h.engine.HandleChatMessage(ctx, s.roomId, s.userId, p.Message)

	case internal.CmdDrawing:
		// Stroke spam from non-drawers is dropped without an error frame.
		if err := h.engine.HandleStroke(ctx, s.roomId, s.userId, s.ref, msg.Payload); err != nil && !errors.Is(err, internal.ErrNotDrawer) {
			h.replyError(s, err)
		}
		return

	case internal.CmdDrawingClear:
		if err := h.engine.HandleClear(ctx, s.roomId, s.userId, s.ref); err != nil && !errors.Is(err, internal.ErrNotDrawer) {
			h.replyError(s, err)
		}
		return

	case internal.CmdStartGame:
		err = h.engine.StartGame(ctx, s.roomId, s.userId)

	case internal.CmdStartTurn:
		var p struct {
			Word string `json:"word"`
		}
		if jsonErr := json.Unmarshal(msg.Payload, &p); jsonErr != nil {
			s.sendError("unreadable message")
			return
		}
		err = h.engine.StartTurn(ctx, s.roomId, s.userId, p.Word)

	case internal.CmdSkipWords:
		err = h.engine.SkipWords(ctx, s.roomId, s.userId)

	case internal.CmdUpdateRoomSettings:
		var settings internal.RoomSettings
		if jsonErr := json.Unmarshal(msg.Payload, &settings); jsonErr != nil {
			s.sendError("unreadable message")
			return
		}
		err = h.engine.UpdateSettings(ctx, s.roomId, s.userId, settings)

	case internal.CmdVoteToKick:
		var p struct {
			TargetId string `json:"target_id"`
		}
		if jsonErr := json.Unmarshal(msg.Payload, &p); jsonErr != nil {
			s.sendError("unreadable message")
			return
		}
		err = h.engine.VoteKick(ctx, s.roomId, s.userId, p.TargetId)

	case internal.CmdVoiceJoin:
		err = h.engine.VoiceJoin(ctx, s.roomId, s.userId)

	case internal.CmdVoiceLeave:
		err = h.engine.VoiceLeave(ctx, s.roomId, s.userId)

	case internal.CmdVoiceMute:
		var p struct {
			Muted bool `json:"muted"`
		}
		if jsonErr := json.Unmarshal(msg.Payload, &p); jsonErr != nil {
			s.sendError("unreadable message")
			return
		}
		err = h.engine.VoiceMute(ctx, s.roomId, s.userId, p.Muted)

	case internal.CmdWebRTCOffer, internal.CmdWebRTCAnswer, internal.CmdWebRTCICECandidate:
		err = h.engine.RelaySignal(ctx, s.roomId, s.userId, msg.Event, msg.Payload)

	default:
		s.sendError("unknown command")
		return
	}

	if err != nil {
		h.replyError(s, err)
	}
}

// replyError turns an engine error into a frame for the offending socket.
// Lock contention is not an error to the client; they get a fresh snapshot
// instead and can retry.
func (h *Handler) replyError(s *session, err error) {
	if errors.Is(err, internal.ErrLockNotAcquired) {
		info, snapErr := h.engine.RoomSnapshot(s.ctx, s.roomId)
		if snapErr != nil {
			s.logger.Error("room snapshot after contention failed", "error", snapErr)
			return
		}
		s.sendEvent(internal.EventRoomInfo, info)
		return
	}
	msg := errorMessage(err)
	if msg == "something went wrong" {
		s.logger.Error("command failed", "error", err)
	}
	s.sendError(msg)
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, internal.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, internal.ErrRoomFull):
		return "room is full"
	case errors.Is(err, internal.ErrKicked):
		return "you cannot rejoin this room"
	case errors.Is(err, internal.ErrNotAdmin):
		return "only the room admin can do that"
	case errors.Is(err, internal.ErrNotDrawer):
		return "only the drawer can do that"
	case errors.Is(err, internal.ErrBadState):
		return "that is not possible right now"
	case errors.Is(err, internal.ErrNotEnoughPlayers):
		return "not enough players to start"
	case errors.Is(err, internal.ErrWordNotOffered):
		return "pick one of the offered words"
	case errors.Is(err, internal.ErrSkipUsed):
		return "you already skipped this turn"
	case errors.Is(err, internal.ErrSelfVote):
		return "you cannot vote against yourself"
	case errors.Is(err, internal.ErrInvalidSettings):
		return "invalid room settings"
	case errors.Is(err, internal.ErrEmptyMessage):
		return "message is empty"
	case errors.Is(err, internal.ErrMessageTooLong):
		return "message is too long"
	case errors.Is(err, internal.ErrInvalidName):
		return "pick a display name between 1 and 32 characters"
	case errors.Is(err, internal.ErrPlayerNotFound):
		return "player not found"
	default:
		return "something went wrong"
	}
}
