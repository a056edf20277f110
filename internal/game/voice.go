package game

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sketchwars/sketchwars-backend/internal"
	"github.com/sketchwars/sketchwars-backend/internal/bus"
)

// Voice chat rides alongside the game: the server only tracks who is in the
// voice channel and their mute flags, and passes webrtc signaling through.

func (e *Engine) VoiceJoin(ctx context.Context, roomId, userId string) error {
	return e.voiceChange(ctx, roomId, userId, "joined", func(ctx context.Context) error {
		return e.store.SetVoiceMember(ctx, roomId, userId, false)
	})
}

func (e *Engine) VoiceLeave(ctx context.Context, roomId, userId string) error {
	return e.voiceChange(ctx, roomId, userId, "left", func(ctx context.Context) error {
		return e.store.RemoveVoiceMember(ctx, roomId, userId)
	})
}

func (e *Engine) VoiceMute(ctx context.Context, roomId, userId string, muted bool) error {
	action := "unmuted"
	if muted {
		action = "muted"
	}
	return e.voiceChange(ctx, roomId, userId, action, func(ctx context.Context) error {
		return e.store.SetVoiceMember(ctx, roomId, userId, muted)
	})
}

func (e *Engine) voiceChange(ctx context.Context, roomId, userId, action string, apply func(context.Context) error) error {
	return e.withRoom(ctx, roomId, func(room *internal.Room, out *outbox) error {
		if _, err := e.store.GetPlayer(ctx, roomId, userId); err != nil {
			return err
		}
		if err := apply(ctx); err != nil {
			return err
		}
		members, err := e.store.VoiceMembers(ctx, roomId)
		if err != nil {
			return err
		}
		e.logger.Info("voice state changed", "room", roomId, "user", userId, "action", action)
		out.room(roomId, internal.EventVoiceStateChanged, internal.VoiceStateChangedData{
			UserId: userId,
			Action: action,
			Muted:  members,
		})
		return nil
	})
}

// RelaySignal forwards a webrtc_offer, webrtc_answer or webrtc_ice_candidate
// payload to its target user, stamping the sender in. The payload is
// otherwise opaque to the server.
func (e *Engine) RelaySignal(ctx context.Context, roomId, fromUserId, event string, payload json.RawMessage) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return fmt.Errorf("decode %s payload: %w", event, err)
	}
	var targetId string
	if raw, ok := fields["target_user_id"]; ok {
		if err := json.Unmarshal(raw, &targetId); err != nil {
			return fmt.Errorf("decode %s target: %w", event, err)
		}
	}
	if targetId == "" {
		return internal.ErrPlayerNotFound
	}

	// Both ends must be seated in the room.
	if _, err := e.store.GetPlayer(ctx, roomId, fromUserId); err != nil {
		return err
	}
	if _, err := e.store.GetPlayer(ctx, roomId, targetId); err != nil {
		return err
	}

	from, err := json.Marshal(fromUserId)
	if err != nil {
		return err
	}
	fields["from_user_id"] = from
	e.logger.Debug("relaying webrtc signal", "room", roomId, "event", event,
		"from", fromUserId, "to", targetId)
	return e.bus.Publish(ctx, bus.UserTopic(targetId), event, fields)
}
