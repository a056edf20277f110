package game

import (
	"context"

	"github.com/sketchwars/sketchwars-backend/internal"
)

// UpdateSettings lets the admin reconfigure the room between games. Rejected
// while a game is running and when the new player cap would strand players
// already seated.
func (e *Engine) UpdateSettings(ctx context.Context, roomId, callerId string, s internal.RoomSettings) error {
	return e.withRoom(ctx, roomId, func(room *internal.Room, out *outbox) error {
		if room.AdminId != callerId {
			return internal.ErrNotAdmin
		}
		if room.Status == internal.StatusActive {
			return internal.ErrBadState
		}
		if err := s.Validate(); err != nil {
			return err
		}
		count, err := e.store.PlayerCount(ctx, roomId)
		if err != nil {
			return err
		}
		if s.MaxPlayers < count {
			return internal.ErrInvalidSettings
		}

		wasPublic := room.RoomType == internal.RoomPublic
		room.ApplySettings(s)
		if err := e.store.SaveRoom(ctx, room); err != nil {
			return err
		}
		if isPublic := room.RoomType == internal.RoomPublic; isPublic != wasPublic {
			if isPublic {
				err = e.store.AddPublicRoom(ctx, roomId)
			} else {
				err = e.store.RemovePublicRoom(ctx, roomId)
			}
			if err != nil {
				return err
			}
		}

		e.logger.Info("room settings updated", "room", roomId, "admin", callerId)
		out.room(roomId, internal.EventRoomSettingsUpdated, internal.RoomSettingsUpdatedData{
			RoomId:   roomId,
			Settings: s,
		})
		e.queueRoomInfo(ctx, room, out)
		return nil
	})
}

// VoteKick records one ballot against a player. Ballots are sets, so voting
// twice changes nothing. Reaching ceil(present/2) votes removes the target.
func (e *Engine) VoteKick(ctx context.Context, roomId, voterId, targetId string) error {
	return e.withRoom(ctx, roomId, func(room *internal.Room, out *outbox) error {
		if voterId == targetId {
			return internal.ErrSelfVote
		}
		target, err := e.store.GetPlayer(ctx, roomId, targetId)
		if err != nil {
			return err
		}
		present, err := e.presence.Count(ctx, roomId)
		if err != nil {
			return err
		}
		votes, err := e.store.AddKickVote(ctx, roomId, targetId, voterId)
		if err != nil {
			return err
		}
		threshold := (present + 1) / 2
		e.logger.Info("kick vote cast", "room", roomId, "target", targetId,
			"votes", votes, "threshold", threshold)
		if votes < threshold {
			return nil
		}
		return e.kickPlayer(ctx, room, target, votes, out)
	})
}

// kickPlayer removes the target from every room structure, bars them from
// rejoining, and lets handleDeparture sort out the fallout. Call with the
// lock held.
func (e *Engine) kickPlayer(ctx context.Context, room *internal.Room, target *internal.Player, votes int, out *outbox) error {
	roomId := room.Id
	if err := e.store.MarkKicked(ctx, roomId, target.Id); err != nil {
		return err
	}
	if err := e.store.ClearKickVotes(ctx, roomId, target.Id); err != nil {
		return err
	}
	if err := e.store.RemovePlayer(ctx, roomId, target.Id); err != nil {
		return err
	}
	if err := e.store.RemoveFromDrawerQueue(ctx, roomId, target.Id); err != nil {
		return err
	}
	if err := e.store.RemoveVoiceMember(ctx, roomId, target.Id); err != nil {
		return err
	}
	diff, err := e.presence.Evict(ctx, roomId, target.Id)
	if err != nil {
		return err
	}

	kicked := internal.PlayerKickedData{RoomId: roomId, UserId: target.Id, Name: target.Name, Votes: votes}
	e.logger.Info("player kicked", "room", roomId, "user", target.Id, "votes", votes)
	out.room(roomId, internal.EventPlayerKicked, kicked)
	// The target's sockets listen on their user topic; this tells every one
	// of them, on any node, to drop the room.
	out.user(target.Id, internal.EventPlayerKicked, kicked)
	out.room(roomId, internal.EventPresenceDiff, diff)

	return e.handleDeparture(ctx, room, target.Id, out)
}
