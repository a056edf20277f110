package internal

import (
	"slices"
	"time"
)

// Methods (Room struct)

func DefaultSettings() RoomSettings {
	return RoomSettings{
		MaxPlayers:   MaxPlayersPerRoom,
		MaxRounds:    3,
		TurnTimeSec:  60,
		HintsAllowed: true,
		Difficulty:   DifficultyMedium,
		RoomType:     RoomPublic,
	}
}

func (s RoomSettings) Validate() error {
	if s.MaxPlayers < MinPlayersToStart || s.MaxPlayers > MaxPlayersPerRoom {
		return ErrInvalidSettings
	}
	if !slices.Contains(AllowedMaxRounds, s.MaxRounds) {
		return ErrInvalidSettings
	}
	if !slices.Contains(AllowedTurnTimes, s.TurnTimeSec) {
		return ErrInvalidSettings
	}
	switch s.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return ErrInvalidSettings
	}
	switch s.RoomType {
	case RoomPublic, RoomPrivate:
	default:
		return ErrInvalidSettings
	}
	return nil
}

func NewRoom(id string, now time.Time) *Room {
	r := &Room{
		Id:        id,
		Status:    StatusWaiting,
		CreatedAt: now.Unix(),
	}
	r.ApplySettings(DefaultSettings())
	return r
}

func (r *Room) ApplySettings(s RoomSettings) {
	r.MaxPlayers = s.MaxPlayers
	r.MaxRounds = s.MaxRounds
	r.TurnTimeSec = s.TurnTimeSec
	r.HintsAllowed = s.HintsAllowed
	r.Difficulty = s.Difficulty
	r.RoomType = s.RoomType
}

func (r *Room) Settings() RoomSettings {
	return RoomSettings{
		MaxPlayers:   r.MaxPlayers,
		MaxRounds:    r.MaxRounds,
		TurnTimeSec:  r.TurnTimeSec,
		HintsAllowed: r.HintsAllowed,
		Difficulty:   r.Difficulty,
		RoomType:     r.RoomType,
	}
}

func (r *Room) TurnTime() time.Duration {
	return time.Duration(r.TurnTimeSec) * time.Second
}

// TimeLeft reports the remaining turn time at now, clamped at zero.
func (r *Room) TimeLeft(now time.Time) time.Duration {
	if r.TurnDeadline == 0 {
		return 0
	}
	left := time.Unix(r.TurnDeadline, 0).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

func (r *Room) CanStartGame(playerCount int) bool {
	return r.Status != StatusActive && playerCount >= MinPlayersToStart
}

func (r *Room) IsDrawer(userId string) bool {
	return r.Status == StatusActive && userId != "" && r.CurrentDrawerId == userId
}

// ClearTurn drops all per-turn fields. Round and scores are untouched.
func (r *Room) ClearTurn() {
	r.CurrentDrawerId = ""
	r.CurrentWord = ""
	r.TurnDeadline = 0
}

// HasEveryoneGuessed reports whether every present non-drawer has guessed the
// word, which ends the turn early.
func HasEveryoneGuessed(players []*Player, drawerId string) bool {
	others := 0
	for _, p := range players {
		if p.Id == drawerId {
			continue
		}
		others++
		if !p.GuessedTurn {
			return false
		}
	}
	return others > 0
}

// SortByJoin orders players by joined_at ascending, the order used for admin
// election and drawer queues. Ties break on user id so the order is stable
// across nodes.
func SortByJoin(players []*Player) {
	slices.SortFunc(players, func(a, b *Player) int {
		if a.JoinedAt != b.JoinedAt {
			if a.JoinedAt < b.JoinedAt {
				return -1
			}
			return 1
		}
		if a.Id < b.Id {
			return -1
		}
		if a.Id > b.Id {
			return 1
		}
		return 0
	})
}
