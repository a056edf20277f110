package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sketchwars/sketchwars-backend/internal"
)

// Correct guesses are appended to two lists: turn_guesses feeds the turn_over
// summary and is cleared when the turn ends, guess_log survives until the room
// is deleted and feeds the end-of-game awards.

func (s *Store) AppendTurnGuess(ctx context.Context, roomId string, g internal.PlayerGuess) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal guess: %w", err)
	}
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, roomSub(roomId, "turn_guesses"), data)
	pipe.RPush(ctx, roomSub(roomId, "guess_log"), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append guess in %s: %w", roomId, err)
	}
	return nil
}

func (s *Store) TurnGuesses(ctx context.Context, roomId string) ([]internal.PlayerGuess, error) {
	return s.guessList(ctx, roomSub(roomId, "turn_guesses"))
}

func (s *Store) ClearTurnGuesses(ctx context.Context, roomId string) error {
	if err := s.rdb.Del(ctx, roomSub(roomId, "turn_guesses")).Err(); err != nil {
		return fmt.Errorf("clear turn guesses in %s: %w", roomId, err)
	}
	return nil
}

func (s *Store) GuessLog(ctx context.Context, roomId string) ([]internal.PlayerGuess, error) {
	return s.guessList(ctx, roomSub(roomId, "guess_log"))
}

func (s *Store) ClearGuessLog(ctx context.Context, roomId string) error {
	if err := s.rdb.Del(ctx, roomSub(roomId, "guess_log")).Err(); err != nil {
		return fmt.Errorf("clear guess log in %s: %w", roomId, err)
	}
	return nil
}

func (s *Store) guessList(ctx context.Context, key string) ([]internal.PlayerGuess, error) {
	items, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	guesses := make([]internal.PlayerGuess, 0, len(items))
	for _, item := range items {
		var g internal.PlayerGuess
		if err := json.Unmarshal([]byte(item), &g); err != nil {
			s.logger.Warn("skipping unreadable guess entry", "key", key, "error", err)
			continue
		}
		guesses = append(guesses, g)
	}
	return guesses, nil
}

// Kicked players may not rejoin for the lifetime of the room.

func (s *Store) MarkKicked(ctx context.Context, roomId, userId string) error {
	if err := s.rdb.SAdd(ctx, roomSub(roomId, "kicked"), userId).Err(); err != nil {
		return fmt.Errorf("mark kicked in %s: %w", roomId, err)
	}
	return nil
}

func (s *Store) IsKicked(ctx context.Context, roomId, userId string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, roomSub(roomId, "kicked"), userId).Result()
	if err != nil {
		return false, fmt.Errorf("kicked check in %s: %w", roomId, err)
	}
	return ok, nil
}
