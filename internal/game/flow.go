package game

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/sketchwars/sketchwars-backend/internal"
	"github.com/sketchwars/sketchwars-backend/internal/bus"
	"github.com/sketchwars/sketchwars-backend/internal/store"
)

// StartGame moves a waiting or finished room into its first turn. Admin only,
// at least two players. A restart from finished wipes the previous scores.
func (e *Engine) StartGame(ctx context.Context, roomId, callerId string) error {
	return e.withRoom(ctx, roomId, func(room *internal.Room, out *outbox) error {
		if room.AdminId != callerId {
			return internal.ErrNotAdmin
		}
		if room.Status == internal.StatusActive {
			return internal.ErrBadState
		}
		players, err := e.store.ListPlayers(ctx, roomId)
		if err != nil {
			return err
		}
		if len(players) < internal.MinPlayersToStart {
			return internal.ErrNotEnoughPlayers
		}

		if room.Status == internal.StatusFinished {
			for _, p := range players {
				p.Score = 0
				p.ResetTurnState()
				if err := e.store.SavePlayer(ctx, roomId, p); err != nil {
					return err
				}
			}
			if err := e.store.ClearGuessLog(ctx, roomId); err != nil {
				return err
			}
		}

		queue := make([]string, len(players))
		for i, p := range players {
			queue[i] = p.Id
		}
		if err := e.store.SetDrawerQueue(ctx, roomId, queue); err != nil {
			return err
		}
		if err := e.store.ResetUsedWords(ctx, roomId); err != nil {
			return err
		}

		room.Status = internal.StatusActive
		room.CurrentRound = 1
		room.Degraded = false
		room.ClearTurn()

		e.logger.Info("game started", "room", roomId, "players", len(players), "rounds", room.MaxRounds)
		out.room(roomId, internal.EventGameStarted, internal.GameStartedData{
			RoomId:       roomId,
			CurrentRound: room.CurrentRound,
			DrawerQueue:  queue,
		})
		return e.beginWordSelection(ctx, room, out)
	})
}

// nextPresentDrawer pops queue entries until it finds a player who is still in
// the room. Returns nil when the queue is exhausted.
func (e *Engine) nextPresentDrawer(ctx context.Context, roomId string) (*internal.Player, error) {
	for {
		id, err := e.store.PopNextDrawer(ctx, roomId)
		if err != nil {
			return nil, err
		}
		if id == "" {
			return nil, nil
		}
		p, err := e.store.GetPlayer(ctx, roomId, id)
		if errors.Is(err, internal.ErrPlayerNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// beginWordSelection opens the word-pick window for the next drawer. It also
// owns round advancement: an exhausted queue rolls the round over, and a
// finished final round ends the game. Call with the room lock held.
func (e *Engine) beginWordSelection(ctx context.Context, room *internal.Room, out *outbox) error {
	if room.Degraded {
		e.logger.Error("room is degraded, not scheduling another turn", "room", room.Id)
		return e.store.SaveRoom(ctx, room)
	}

	drawer, err := e.nextPresentDrawer(ctx, room.Id)
	if err != nil {
		return err
	}
	if drawer == nil {
		room.CurrentRound++
		if room.CurrentRound > room.MaxRounds {
			return e.finishGame(ctx, room, out)
		}
		players, err := e.store.ListPlayers(ctx, room.Id)
		if err != nil {
			return err
		}
		if len(players) < internal.MinPlayersToStart {
			return e.resetToWaiting(ctx, room, out)
		}
		queue := make([]string, len(players))
		for i, p := range players {
			queue[i] = p.Id
		}
		if err := e.store.SetDrawerQueue(ctx, room.Id, queue); err != nil {
			return err
		}
		if err := e.store.ResetUsedWords(ctx, room.Id); err != nil {
			return err
		}
		e.logger.Info("round advanced", "room", room.Id, "round", room.CurrentRound)
		if drawer, err = e.nextPresentDrawer(ctx, room.Id); err != nil {
			return err
		}
		if drawer == nil {
			return e.resetToWaiting(ctx, room, out)
		}
	}

	choices, err := e.suggestWords(ctx, room)
	if err != nil {
		return err
	}
	if err := e.store.SaveSuggestions(ctx, room.Id, internal.Suggestions{Words: choices}); err != nil {
		return err
	}

	room.Phase = internal.PhaseSelectingWord
	room.CurrentDrawerId = drawer.Id
	room.CurrentWord = ""
	room.TurnDeadline = 0

	deadline := e.now().Add(internal.WordPickDuration)
	if err := e.store.SetDeadline(ctx, room.Id, store.DeadlineWordPick, deadline, internal.WordPickDuration); err != nil {
		return err
	}
	if err := e.store.SaveRoom(ctx, room); err != nil {
		return err
	}
	e.armWordPick(room.Id, internal.WordPickDuration)

	e.logger.Info("drawer assigned", "room", room.Id, "drawer", drawer.Id, "round", room.CurrentRound)
	out.room(room.Id, internal.EventDrawerAssigned, internal.DrawerAssignedData{
		DrawerId:     drawer.Id,
		DrawerName:   drawer.Name,
		CurrentRound: room.CurrentRound,
	})
	out.user(drawer.Id, internal.EventSelectWord, internal.SelectWordData{
		Choices:      choices,
		RoomId:       room.Id,
		TimeLimitSec: int(internal.WordPickDuration.Seconds()),
		SkipsLeft:    1,
	})
	e.queueRoomInfo(ctx, room, out)
	return nil
}

// suggestWords draws three fresh words for the room's difficulty. Words count
// as used the moment they are proposed, so no drawer sees a word another
// drawer already saw this round.
func (e *Engine) suggestWords(ctx context.Context, room *internal.Room) ([]string, error) {
	used, err := e.store.UsedWords(ctx, room.Id)
	if err != nil {
		return nil, err
	}
	choices, poolReset := e.catalog.Suggest(room.Difficulty, used)
	if poolReset {
		e.logger.Info("word pool exhausted, resetting", "room", room.Id, "difficulty", room.Difficulty)
		if err := e.store.ResetUsedWords(ctx, room.Id); err != nil {
			return nil, err
		}
	}
	if err := e.store.AddUsedWords(ctx, room.Id, choices...); err != nil {
		return nil, err
	}
	return choices, nil
}

// StartTurn is the drawer confirming a word choice. The word must be one of
// the offered suggestions.
func (e *Engine) StartTurn(ctx context.Context, roomId, callerId, word string) error {
	return e.withRoom(ctx, roomId, func(room *internal.Room, out *outbox) error {
		if room.Status != internal.StatusActive || room.Phase != internal.PhaseSelectingWord {
			return internal.ErrBadState
		}
		if room.CurrentDrawerId != callerId {
			return internal.ErrNotDrawer
		}
		sug, err := e.store.LoadSuggestions(ctx, roomId)
		if err != nil {
			return err
		}
		if !slices.Contains(sug.Words, word) {
			return internal.ErrWordNotOffered
		}
		return e.startDrawing(ctx, room, word, out)
	})
}

// SkipWords replaces the drawer's suggestions once per turn. The pick window
// keeps running.
func (e *Engine) SkipWords(ctx context.Context, roomId, callerId string) error {
	return e.withRoom(ctx, roomId, func(room *internal.Room, out *outbox) error {
		if room.Status != internal.StatusActive || room.Phase != internal.PhaseSelectingWord {
			return internal.ErrBadState
		}
		if room.CurrentDrawerId != callerId {
			return internal.ErrNotDrawer
		}
		sug, err := e.store.LoadSuggestions(ctx, roomId)
		if err != nil {
			return err
		}
		if sug.SkipUsed {
			return internal.ErrSkipUsed
		}

		choices, err := e.suggestWords(ctx, room)
		if err != nil {
			return err
		}
		if err := e.store.SaveSuggestions(ctx, roomId, internal.Suggestions{Words: choices, SkipUsed: true}); err != nil {
			return err
		}

		timeLeft := int(internal.WordPickDuration.Seconds())
		if deadline, ok, err := e.store.DeadlineValue(ctx, roomId, store.DeadlineWordPick); err == nil && ok {
			if left := int(deadline.Sub(e.now()).Seconds()); left >= 0 {
				timeLeft = left
			}
		}

		e.logger.Info("suggestions skipped", "room", roomId, "drawer", callerId)
		out.user(callerId, internal.EventSelectWord, internal.SelectWordData{
			Choices:      choices,
			RoomId:       roomId,
			TimeLimitSec: timeLeft,
			SkipsLeft:    0,
		})
		return nil
	})
}

// startDrawing flips the room into the drawing phase with the given word.
// Call with the lock held and the word already validated.
func (e *Engine) startDrawing(ctx context.Context, room *internal.Room, word string, out *outbox) error {
	word = strings.ToLower(strings.TrimSpace(word))

	if err := e.store.ClearDeadline(ctx, room.Id, store.DeadlineWordPick); err != nil {
		return err
	}
	e.timers.cancel(pickKey(room.Id))
	if err := e.store.DeleteSuggestions(ctx, room.Id); err != nil {
		return err
	}
	if err := e.store.AddUsedWords(ctx, room.Id, word); err != nil {
		return err
	}
	if err := e.clearTurnArtifacts(ctx, room.Id); err != nil {
		return err
	}

	players, err := e.store.ListPlayers(ctx, room.Id)
	if err != nil {
		return err
	}
	for _, p := range players {
		if p.GuessedTurn || p.GuessTimeMs != 0 {
			p.ResetTurnState()
			if err := e.store.SavePlayer(ctx, room.Id, p); err != nil {
				return err
			}
		}
	}

	total := room.TurnTime()
	deadline := e.now().Add(total)
	room.Phase = internal.PhaseDrawing
	room.CurrentWord = word
	room.TurnDeadline = deadline.Unix()

	if err := e.store.SetDeadline(ctx, room.Id, store.DeadlineTurn, deadline, total); err != nil {
		return err
	}
	if err := e.store.SaveRoom(ctx, room); err != nil {
		return err
	}
	e.armTurn(room)

	e.logger.Info("turn started", "room", room.Id, "drawer", room.CurrentDrawerId,
		"round", room.CurrentRound, "word_length", len([]rune(word)))

	mask := internal.TurnStartedData{
		DrawerId:     room.CurrentDrawerId,
		CurrentRound: room.CurrentRound,
		TurnTimeSec:  room.TurnTimeSec,
		TurnDeadline: room.TurnDeadline,
		WordLength:   len([]rune(word)),
		SpecialChars: specialChars(word),
	}
	out.roomExcept(room.Id, bus.Except{User: room.CurrentDrawerId}, internal.EventTurnStarted, mask)
	drawerCopy := mask
	drawerCopy.Word = word
	out.user(room.CurrentDrawerId, internal.EventTurnStarted, drawerCopy)
	e.queueRoomInfo(ctx, room, out)
	return nil
}

// endTurn closes the current turn and announces the word. It does not advance
// the game; callers decide whether the next selection or a reset follows.
func (e *Engine) endTurn(ctx context.Context, room *internal.Room, reason internal.TurnEndReason, out *outbox) error {
	word := room.CurrentWord

	if err := e.store.ClearDeadline(ctx, room.Id, store.DeadlineTurn); err != nil {
		return err
	}
	e.cancelTurnTimers(room.Id)

	guessers, err := e.store.TurnGuesses(ctx, room.Id)
	if err != nil {
		return err
	}
	if err := e.clearTurnArtifacts(ctx, room.Id); err != nil {
		return err
	}

	players, err := e.store.ListPlayers(ctx, room.Id)
	if err != nil {
		return err
	}
	for _, p := range players {
		if p.GuessedTurn || p.GuessTimeMs != 0 {
			p.ResetTurnState()
			if err := e.store.SavePlayer(ctx, room.Id, p); err != nil {
				return err
			}
		}
	}

	room.ClearTurn()
	room.Phase = ""

	e.logger.Info("turn over", "room", room.Id, "reason", reason, "correct", len(guessers))
	out.room(room.Id, internal.EventTurnOver, internal.TurnOverData{
		Reason:          reason,
		Word:            word,
		CurrentRound:    room.CurrentRound,
		CorrectGuessers: guessers,
	})
	return nil
}

// clearTurnArtifacts wipes canvas, revealed letters and the per-turn guess
// list. Shared by turn start and turn end so a crash between the two cannot
// leak one turn's state into the next.
func (e *Engine) clearTurnArtifacts(ctx context.Context, roomId string) error {
	if err := e.store.ClearCanvas(ctx, roomId); err != nil {
		return err
	}
	if err := e.store.ClearRevealed(ctx, roomId); err != nil {
		return err
	}
	return e.store.ClearTurnGuesses(ctx, roomId)
}

// finishGame marks the room finished and publishes the final standings. The
// room stays around for a rematch until everyone leaves.
func (e *Engine) finishGame(ctx context.Context, room *internal.Room, out *outbox) error {
	room.Status = internal.StatusFinished
	room.Phase = ""
	room.ClearTurn()
	room.CurrentRound = room.MaxRounds

	if err := e.store.SaveRoom(ctx, room); err != nil {
		return err
	}

	results, err := e.finalResults(ctx, room)
	if err != nil {
		return err
	}

	e.logger.Info("game over", "room", room.Id, "rounds", results.RoundsPlayed, "players", results.TotalPlayers)
	out.room(room.Id, internal.EventGameOver, results)
	e.queueRoomInfo(ctx, room, out)
	return nil
}

// resetToWaiting aborts an active game, keeping players and their scores.
// Used when the room can no longer field a turn.
func (e *Engine) resetToWaiting(ctx context.Context, room *internal.Room, out *outbox) error {
	e.timers.cancelRoom(room.Id)
	if err := e.store.ClearDeadline(ctx, room.Id, store.DeadlineWordPick); err != nil {
		return err
	}
	if err := e.store.ClearDeadline(ctx, room.Id, store.DeadlineTurn); err != nil {
		return err
	}
	if err := e.store.DeleteSuggestions(ctx, room.Id); err != nil {
		return err
	}
	if err := e.clearTurnArtifacts(ctx, room.Id); err != nil {
		return err
	}

	room.Status = internal.StatusWaiting
	room.Phase = ""
	room.ClearTurn()
	room.CurrentRound = 0

	if err := e.store.SaveRoom(ctx, room); err != nil {
		return err
	}
	e.logger.Info("game aborted, room back to waiting", "room", room.Id)
	e.queueRoomInfo(ctx, room, out)
	return nil
}
