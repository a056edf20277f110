package game

import (
	"context"
	"errors"

	"github.com/sketchwars/sketchwars-backend/internal"
	"github.com/sketchwars/sketchwars-backend/internal/bus"
	"github.com/sketchwars/sketchwars-backend/internal/guess"
)

// HandleChatMessage routes one chat line. Outside a drawing phase it is plain
// chat; during one it runs through the guess evaluator, and close or correct
// guesses never reach the room as chat.
func (e *Engine) HandleChatMessage(ctx context.Context, roomId, userId, message string) error {
	msg, err := internal.ValidateChatMessage(message)
	if err != nil {
		return err
	}
	return e.withRoom(ctx, roomId, func(room *internal.Room, out *outbox) error {
		player, err := e.store.GetPlayer(ctx, roomId, userId)
		if err != nil {
			return err
		}

		chat := internal.NewMessageData{UserId: userId, Name: player.Name, Message: msg}

		if room.Status != internal.StatusActive || room.Phase != internal.PhaseDrawing || room.CurrentWord == "" {
			out.room(roomId, internal.EventNewMessage, chat)
			return nil
		}

		word := room.CurrentWord

		// The drawer and players who already guessed know the word; their
		// messages are dropped when they come too close to it.
		if userId == room.CurrentDrawerId || player.GuessedTurn {
			if e.eval.DrawerLeaks(word, msg) {
				e.logger.Info("suppressed word leak in chat", "room", roomId, "user", userId)
				return nil
			}
			out.room(roomId, internal.EventNewMessage, chat)
			return nil
		}

		switch e.eval.Evaluate(word, msg) {
		case guess.Correct:
			return e.applyCorrectGuess(ctx, room, player, out)
		case guess.Close:
			announce := internal.SimilarWordData{UserId: userId, Name: player.Name}
			out.roomExcept(roomId, bus.Except{User: userId}, internal.EventSimilarWord, announce)
			echo := announce
			echo.Message = msg
			out.user(userId, internal.EventSimilarWord, echo)
			return nil
		default:
			out.room(roomId, internal.EventNewMessage, chat)
			return nil
		}
	})
}

// applyCorrectGuess credits the guesser and the drawer and ends the turn early
// once every non-drawer has it. Call with the lock held.
func (e *Engine) applyCorrectGuess(ctx context.Context, room *internal.Room, player *internal.Player, out *outbox) error {
	left := room.TimeLeft(e.now())
	total := room.TurnTime()
	points := GuesserPoints(e.cfg.RoundBase, e.cfg.FloorBonus, left, total)

	player.Score += points
	player.GuessedTurn = true
	player.GuessTimeMs = (total - left).Milliseconds()
	if err := e.store.SavePlayer(ctx, room.Id, player); err != nil {
		return err
	}

	scoreEvent := internal.ScoreUpdatedData{
		UserId:        player.Id,
		Score:         player.Score,
		PointsAwarded: points,
	}

	if bonus := DrawerBonus(e.cfg.DrawerShare, points); bonus > 0 && room.CurrentDrawerId != "" {
		drawer, err := e.store.GetPlayer(ctx, room.Id, room.CurrentDrawerId)
		switch {
		case err == nil:
			drawer.Score += bonus
			if err := e.store.SavePlayer(ctx, room.Id, drawer); err != nil {
				return err
			}
			scoreEvent.DrawerId = drawer.Id
			scoreEvent.DrawerScore = drawer.Score
		case !errors.Is(err, internal.ErrPlayerNotFound):
			return err
		}
	}

	if err := e.store.AppendTurnGuess(ctx, room.Id, internal.PlayerGuess{
		PlayerID:  player.Id,
		Name:      player.Name,
		GuessTime: player.GuessTimeMs,
		Points:    points,
	}); err != nil {
		return err
	}

	e.logger.Info("correct guess", "room", room.Id, "user", player.Id, "points", points)
	out.room(room.Id, internal.EventCorrectGuess, internal.CorrectGuessData{
		UserId:      player.Id,
		Name:        player.Name,
		GuessTimeMs: player.GuessTimeMs,
	})
	out.room(room.Id, internal.EventScoreUpdated, scoreEvent)

	players, err := e.store.ListPlayers(ctx, room.Id)
	if err != nil {
		return err
	}
	if internal.HasEveryoneGuessed(players, room.CurrentDrawerId) {
		if err := e.endTurn(ctx, room, internal.ReasonAllGuessed, out); err != nil {
			return err
		}
		return e.beginWordSelection(ctx, room, out)
	}
	return nil
}
