package game

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/sketchwars/sketchwars-backend/internal"
	"github.com/sketchwars/sketchwars-backend/internal/bus"
	"github.com/sketchwars/sketchwars-backend/internal/presence"
	"github.com/sketchwars/sketchwars-backend/internal/store"
)

// JoinRequest carries everything one socket brings to a room.
type JoinRequest struct {
	RoomId   string
	UserId   string
	Name     string
	Avatar   string
	Ref      string
	RoomType internal.RoomType
}

// JoinResult is what the joining socket needs to render the room: the
// snapshot, who is here, and the live turn if one is running.
type JoinResult struct {
	Info     internal.RoomInfoData
	Presence presence.State
	Canvas   *internal.Stroke
	Turn     *internal.TurnStartedData
	Reveals  []internal.LetterRevealData
}

// JoinRoom adds a socket to a room, creating the room on first join. The
// first joiner becomes admin; a player arriving mid-game is queued to draw at
// the end of the current round.
func (e *Engine) JoinRoom(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	name, err := internal.ValidateName(req.Name)
	if err != nil {
		return nil, err
	}

	token, err := e.store.AcquireRoomLock(ctx, req.RoomId)
	if err != nil {
		return nil, err
	}
	out := &outbox{}
	result, err := e.joinLocked(ctx, req, name, out)
	e.store.ReleaseRoomLock(ctx, req.RoomId, token)
	if err != nil {
		return nil, err
	}
	e.flush(ctx, out)
	return result, nil
}

func (e *Engine) joinLocked(ctx context.Context, req JoinRequest, name string, out *outbox) (*JoinResult, error) {
	now := e.now()

	kicked, err := e.store.IsKicked(ctx, req.RoomId, req.UserId)
	if err != nil {
		return nil, err
	}
	if kicked {
		return nil, internal.ErrKicked
	}

	room, err := e.store.LoadRoom(ctx, req.RoomId)
	created := false
	if errors.Is(err, internal.ErrRoomNotFound) {
		room = internal.NewRoom(req.RoomId, now)
		if req.RoomType == internal.RoomPrivate {
			settings := room.Settings()
			settings.RoomType = internal.RoomPrivate
			room.ApplySettings(settings)
		}
		room.AdminId = req.UserId
		created = true
	} else if err != nil {
		return nil, err
	}

	player, err := e.store.GetPlayer(ctx, req.RoomId, req.UserId)
	rejoin := err == nil
	if err != nil && !errors.Is(err, internal.ErrPlayerNotFound) {
		return nil, err
	}
	if rejoin {
		player.Name = name
		if req.Avatar != "" {
			player.Avatar = req.Avatar
		}
	} else {
		count, err := e.store.PlayerCount(ctx, req.RoomId)
		if err != nil {
			return nil, err
		}
		if count >= room.MaxPlayers {
			return nil, internal.ErrRoomFull
		}
		player = internal.NewPlayer(req.UserId, name, req.Avatar, now)
	}
	if err := e.store.SavePlayer(ctx, req.RoomId, player); err != nil {
		return nil, err
	}

	meta := presence.Meta{Ref: req.Ref, Name: name, Avatar: req.Avatar, JoinedAt: now.UnixMilli()}
	diff, err := e.presence.Track(ctx, req.RoomId, req.UserId, meta)
	if err != nil {
		return nil, err
	}

	if err := e.store.MarkOccupied(ctx, req.RoomId); err != nil {
		return nil, err
	}
	if created && room.RoomType == internal.RoomPublic {
		if err := e.store.AddPublicRoom(ctx, req.RoomId); err != nil {
			return nil, err
		}
	}

	// Admin must always point at a present player.
	if room.AdminId == "" {
		room.AdminId = req.UserId
	} else if room.AdminId != req.UserId {
		if _, err := e.store.GetPlayer(ctx, req.RoomId, room.AdminId); errors.Is(err, internal.ErrPlayerNotFound) {
			room.AdminId = req.UserId
			out.room(req.RoomId, internal.EventAdminChanged, internal.AdminChangedData{AdminId: req.UserId, Name: name})
		} else if err != nil {
			return nil, err
		}
	}

	if room.Status == internal.StatusActive && !rejoin {
		queue, err := e.store.DrawerQueue(ctx, req.RoomId)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(queue, req.UserId) && room.CurrentDrawerId != req.UserId {
			if err := e.store.AppendDrawer(ctx, req.RoomId, req.UserId); err != nil {
				return nil, err
			}
		}
	}

	if err := e.store.SaveRoom(ctx, room); err != nil {
		return nil, err
	}

	state, err := e.presence.List(ctx, req.RoomId)
	if err != nil {
		return nil, err
	}
	info, err := e.roomInfo(ctx, room)
	if err != nil {
		return nil, err
	}
	result := &JoinResult{Info: info, Presence: state}

	if room.Status == internal.StatusActive && room.Phase == internal.PhaseDrawing {
		if err := e.fillTurnSnapshot(ctx, room, req.UserId, result); err != nil {
			return nil, err
		}
	}

	e.logger.Info("player joined", "room", req.RoomId, "user", req.UserId,
		"created", created, "rejoin", rejoin)
	out.roomExcept(req.RoomId, bus.Except{Ref: req.Ref}, internal.EventPresenceDiff, diff)
	out.roomExcept(req.RoomId, bus.Except{Ref: req.Ref}, internal.EventRoomInfo, info)
	return result, nil
}

// fillTurnSnapshot gives a socket arriving mid-turn the same view everyone
// else already has: the masked word, revealed letters, and the last canvas
// snapshot.
func (e *Engine) fillTurnSnapshot(ctx context.Context, room *internal.Room, userId string, result *JoinResult) error {
	word := room.CurrentWord
	mask := internal.TurnStartedData{
		DrawerId:     room.CurrentDrawerId,
		CurrentRound: room.CurrentRound,
		TurnTimeSec:  room.TurnTimeSec,
		TurnDeadline: room.TurnDeadline,
		WordLength:   len([]rune(word)),
		SpecialChars: specialChars(word),
	}
	if userId == room.CurrentDrawerId {
		mask.Word = word
	}
	result.Turn = &mask

	revealed, err := e.store.LoadRevealed(ctx, room.Id)
	if err != nil {
		return err
	}
	for _, index := range revealed {
		result.Reveals = append(result.Reveals, internal.LetterRevealData{
			Index: index,
			Char:  runeAt(word, index),
		})
	}

	stroke, ok, err := e.store.LoadCanvas(ctx, room.Id)
	if err != nil {
		return err
	}
	if ok {
		result.Canvas = &stroke
	}
	return nil
}

// LeaveRoom detaches one socket. The player only leaves the room when their
// last socket goes; a leaving drawer ends the turn, a leaving admin hands the
// role to the earliest joiner still present.
func (e *Engine) LeaveRoom(ctx context.Context, roomId, userId, ref string) error {
	err := e.withRoom(ctx, roomId, func(room *internal.Room, out *outbox) error {
		return e.leaveLocked(ctx, room, userId, ref, out)
	})
	if errors.Is(err, internal.ErrRoomNotFound) {
		return nil
	}
	return err
}

func (e *Engine) leaveLocked(ctx context.Context, room *internal.Room, userId, ref string, out *outbox) error {
	diff, left, err := e.presence.Untrack(ctx, room.Id, userId, ref)
	if err != nil {
		return err
	}
	if !left {
		// Another socket of this user is still connected.
		return nil
	}

	if err := e.store.RemovePlayer(ctx, room.Id, userId); err != nil {
		return err
	}
	if err := e.store.RemoveFromDrawerQueue(ctx, room.Id, userId); err != nil {
		return err
	}
	if err := e.store.RemoveVoiceMember(ctx, room.Id, userId); err != nil {
		return err
	}
	if err := e.store.ClearKickVotes(ctx, room.Id, userId); err != nil {
		return err
	}

	out.room(room.Id, internal.EventPresenceDiff, diff)
	e.logger.Info("player left", "room", room.Id, "user", userId)
	return e.handleDeparture(ctx, room, userId, out)
}

// handleDeparture runs the consequences once a player's records are gone:
// admin handover, replacing a gone drawer, dropping back to waiting when the
// room can no longer play. Shared by disconnects and kicks.
func (e *Engine) handleDeparture(ctx context.Context, room *internal.Room, userId string, out *outbox) error {
	players, err := e.store.ListPlayers(ctx, room.Id)
	if err != nil {
		return err
	}

	if len(players) == 0 {
		if err := e.store.MarkEmpty(ctx, room.Id, e.now()); err != nil {
			return err
		}
		if room.Status == internal.StatusActive {
			return e.resetToWaiting(ctx, room, out)
		}
		return nil
	}

	if room.AdminId == userId {
		room.AdminId = players[0].Id
		e.logger.Info("admin handed over", "room", room.Id, "admin", players[0].Id)
		out.room(room.Id, internal.EventAdminChanged, internal.AdminChangedData{
			AdminId: players[0].Id,
			Name:    players[0].Name,
		})
	}

	if room.Status == internal.StatusActive {
		if room.CurrentDrawerId == userId {
			if room.Phase == internal.PhaseDrawing {
				if err := e.endTurn(ctx, room, internal.ReasonDrawerLeft, out); err != nil {
					return err
				}
			} else {
				// Never picked a word; there is no turn to close out.
				if err := e.store.ClearDeadline(ctx, room.Id, store.DeadlineWordPick); err != nil {
					return err
				}
				e.timers.cancel(pickKey(room.Id))
				if err := e.store.DeleteSuggestions(ctx, room.Id); err != nil {
					return err
				}
				room.ClearTurn()
				room.Phase = ""
			}
			if len(players) < internal.MinPlayersToStart {
				return e.resetToWaiting(ctx, room, out)
			}
			return e.beginWordSelection(ctx, room, out)
		}

		if len(players) < internal.MinPlayersToStart {
			return e.resetToWaiting(ctx, room, out)
		}
		if room.Phase == internal.PhaseDrawing && internal.HasEveryoneGuessed(players, room.CurrentDrawerId) {
			if err := e.endTurn(ctx, room, internal.ReasonAllGuessed, out); err != nil {
				return err
			}
			return e.beginWordSelection(ctx, room, out)
		}
	}

	if err := e.store.SaveRoom(ctx, room); err != nil {
		return err
	}
	e.queueRoomInfo(ctx, room, out)
	return nil
}

// FindPublicRoom returns a joinable public room: not finished, at least one
// player, at least one free seat. Empty string when none qualifies.
func (e *Engine) FindPublicRoom(ctx context.Context) (string, error) {
	ids, err := e.store.PublicRooms(ctx)
	if err != nil {
		return "", err
	}
	for _, id := range ids {
		room, err := e.store.LoadRoom(ctx, id)
		if errors.Is(err, internal.ErrRoomNotFound) {
			// Stale index entry; the reaper will drop it.
			continue
		}
		if err != nil {
			return "", err
		}
		if room.Status == internal.StatusFinished {
			continue
		}
		count, err := e.store.PlayerCount(ctx, id)
		if err != nil {
			return "", err
		}
		if count > 0 && count < room.MaxPlayers {
			return id, nil
		}
	}
	return "", nil
}

// StartReaper deletes rooms that stayed empty past the idle TTL. Runs until
// ctx ends.
func (e *Engine) StartReaper(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ReapInterval)
	defer ticker.Stop()
	e.logger.Info("room reaper started", "idle_ttl", e.cfg.IdleRoomTTL)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.reapIdleRooms(ctx)
		}
	}
}

func (e *Engine) reapIdleRooms(ctx context.Context) {
	cutoff := e.now().Add(-e.cfg.IdleRoomTTL)
	ids, err := e.store.ClaimIdleRooms(ctx, cutoff)
	if err != nil {
		e.logger.Error("idle room sweep failed", "error", err)
		return
	}
	for _, id := range ids {
		count, err := e.store.PresenceCount(ctx, id)
		if err != nil {
			e.logger.Error("presence check failed during sweep", "room", id, "error", err)
			continue
		}
		if count > 0 {
			// Someone came back between the mark and the claim.
			continue
		}
		e.timers.cancelRoom(id)
		if err := e.store.DeleteRoom(ctx, id); err != nil {
			e.logger.Error("room delete failed", "room", id, "error", err)
		}
	}
}
