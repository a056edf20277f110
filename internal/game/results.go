package game

import (
	"context"
	"math"
	"slices"

	"github.com/sketchwars/sketchwars-backend/internal"
)

// finalResults compiles the leaderboard and awards for a finished game. MVP
// is the top scorer; the fastest-guess award scans every correct guess of the
// game. Call with the lock held.
func (e *Engine) finalResults(ctx context.Context, room *internal.Room) (internal.FinalResults, error) {
	results := internal.FinalResults{}

	players, err := e.store.ListPlayers(ctx, room.Id)
	if err != nil {
		return results, err
	}

	leaderboard := make([]internal.GameResultData, 0, len(players))
	for _, p := range players {
		leaderboard = append(leaderboard, internal.GameResultData{
			PlayerID: p.Id,
			Name:     p.Name,
			Score:    p.Score,
		})
	}
	slices.SortFunc(leaderboard, func(a, b internal.GameResultData) int {
		return b.Score - a.Score
	})
	for i := range leaderboard {
		leaderboard[i].Position = i + 1
	}
	results.Leaderboard = leaderboard

	if len(leaderboard) > 0 {
		results.MVP = &leaderboard[0]
	}

	log, err := e.store.GuessLog(ctx, room.Id)
	if err != nil {
		return results, err
	}
	fastest := internal.GameResultData{TimeToGuess: math.MaxInt64}
	for _, g := range log {
		if g.GuessTime < fastest.TimeToGuess {
			fastest.PlayerID = g.PlayerID
			fastest.Name = g.Name
			fastest.TimeToGuess = g.GuessTime
		}
	}
	if fastest.TimeToGuess != math.MaxInt64 {
		results.FastestGuess = &fastest
	}

	results.RoundsPlayed = room.CurrentRound
	results.TotalPlayers = len(players)
	return results, nil
}
