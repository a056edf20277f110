package internal

import "time"

const (
	MaxPlayersPerRoom = 8
	MinPlayersToStart = 2
	MaxNameLength     = 32
	MaxMessageLength  = 500

	WordPickDuration = 10 * time.Second
	SuggestionCount  = 3
)

// Allowed values for room settings coming from update_room_settings.
var (
	AllowedMaxRounds = []int{1, 2, 3, 5, 10}
	AllowedTurnTimes = []int{30, 45, 60, 90, 120}
)

type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusActive   RoomStatus = "active"
	StatusFinished RoomStatus = "finished"
)

type TurnPhase string

const (
	PhaseSelectingWord TurnPhase = "selecting_word"
	PhaseDrawing       TurnPhase = "drawing"
)

type WordDifficulty string

const (
	DifficultyEasy   WordDifficulty = "easy"
	DifficultyMedium WordDifficulty = "medium"
	DifficultyHard   WordDifficulty = "hard"
)

type RoomType string

const (
	RoomPublic  RoomType = "public"
	RoomPrivate RoomType = "private"
)

type TurnEndReason string

const (
	ReasonAllGuessed TurnEndReason = "all_guessed"
	ReasonTimeout    TurnEndReason = "timeout"
	ReasonDrawerLeft TurnEndReason = "drawer_left"
)

// Room is the shared, store-resident state of one game room. Every field is a
// flat hash field so any node can load and mutate it under the room lock.
type Room struct {
	Id              string         `json:"room_id" redis:"id"`
	Status          RoomStatus     `json:"status" redis:"status"`
	Phase           TurnPhase      `json:"phase,omitempty" redis:"phase"`
	RoomType        RoomType       `json:"room_type" redis:"room_type"`
	MaxPlayers      int            `json:"max_players" redis:"max_players"`
	MaxRounds       int            `json:"max_rounds" redis:"max_rounds"`
	TurnTimeSec     int            `json:"turn_time_sec" redis:"turn_time_sec"`
	HintsAllowed    bool           `json:"hints_allowed" redis:"hints_allowed"`
	Difficulty      WordDifficulty `json:"difficulty" redis:"difficulty"`
	AdminId         string         `json:"admin_id" redis:"admin_id"`
	CurrentRound    int            `json:"current_round" redis:"current_round"`
	CurrentDrawerId string         `json:"current_drawer_id,omitempty" redis:"current_drawer_id"`
	CurrentWord     string         `json:"-" redis:"current_word"`
	TurnDeadline    int64          `json:"turn_deadline_unix,omitempty" redis:"turn_deadline_unix"`
	Degraded        bool           `json:"-" redis:"degraded"`
	CreatedAt       int64          `json:"created_at_unix" redis:"created_at_unix"`
}

// RoomSettings is the admin-editable subset of Room, also the payload shape of
// update_room_settings and room_settings_updated.
type RoomSettings struct {
	MaxPlayers   int            `json:"max_players"`
	MaxRounds    int            `json:"max_rounds"`
	TurnTimeSec  int            `json:"turn_time_sec"`
	HintsAllowed bool           `json:"hints_allowed"`
	Difficulty   WordDifficulty `json:"difficulty"`
	RoomType     RoomType       `json:"room_type"`
}

// Player is the per-room state of one user. Stored as JSON values in the room
// players hash, keyed by user id.
type Player struct {
	Id          string `json:"user_id"`
	Name        string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
	JoinedAt    int64  `json:"joined_at"`
	Score       int    `json:"score"`
	GuessedTurn bool   `json:"guessed_this_turn"`
	GuessTimeMs int64  `json:"guess_time_ms,omitempty"`
}

// Suggestions is the word-choice state offered to the current drawer.
type Suggestions struct {
	Words    []string `json:"words"`
	SkipUsed bool     `json:"skip_used"`
}

// PlayerGuess records one correct guess inside a turn.
type PlayerGuess struct {
	PlayerID  string `json:"player_id"`
	Name      string `json:"display_name"`
	GuessTime int64  `json:"guess_time_ms"`
	Points    int    `json:"points"`
}

type GameResultData struct {
	PlayerID    string `json:"player_id"`
	Name        string `json:"display_name"`
	Score       int    `json:"score"`
	Position    int    `json:"position"`
	TimeToGuess int64  `json:"time_to_guess_ms,omitempty"`
}

type FinalResults struct {
	Leaderboard  []GameResultData `json:"leaderboard"`
	MVP          *GameResultData  `json:"mvp,omitempty"`
	FastestGuess *GameResultData  `json:"fastest_guess,omitempty"`
	RoundsPlayed int              `json:"rounds_played"`
	TotalPlayers int              `json:"total_players"`
}
