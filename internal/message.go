package internal

import "encoding/json"

// Event is the self-describing envelope every bus message and socket frame
// carries.
type Event[T any] struct {
	Event   string `json:"event"`
	Payload T      `json:"payload"`
}

// RawEvent is the receive-side counterpart; payloads are decoded per event type.
type RawEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Outbound event names. Clients depend on these strings verbatim.
const (
	EventRoomInfo            = "room_info"
	EventGameStarted         = "game_started"
	EventDrawerAssigned      = "drawer_assigned"
	EventSelectWord          = "select_word"
	EventWordAutoSelected    = "word_auto_selected"
	EventTurnStarted         = "turn_started"
	EventLetterReveal        = "letter_reveal"
	EventNewMessage          = "new_message"
	EventCorrectGuess        = "correct_guess"
	EventSimilarWord         = "similar_word"
	EventScoreUpdated        = "score_updated"
	EventTurnOver            = "turn_over"
	EventGameOver            = "game_over"
	EventDrawing             = "drawing"
	EventDrawingClear        = "drawing_clear"
	EventAdminChanged        = "admin_changed"
	EventRoomSettingsUpdated = "room_settings_updated"
	EventPlayerKicked        = "player_kicked"
	EventVoiceStateChanged   = "voice_state_changed"
	EventPresenceState       = "presence_state"
	EventPresenceDiff        = "presence_diff"
	EventError               = "error"
)

// Inbound command names accepted by the socket front-end.
const (
	CmdNewMessage         = "new_message"
	CmdDrawing            = "drawing"
	CmdDrawingClear       = "drawing_clear"
	CmdStartGame          = "start_game"
	CmdStartTurn          = "start_turn"
	CmdSkipWords          = "skip_words"
	CmdUpdateRoomSettings = "update_room_settings"
	CmdVoteToKick         = "vote_to_kick"
	CmdVoiceJoin          = "voice_join"
	CmdVoiceLeave         = "voice_leave"
	CmdVoiceMute          = "voice_mute"
	CmdWebRTCOffer        = "webrtc_offer"
	CmdWebRTCAnswer       = "webrtc_answer"
	CmdWebRTCICECandidate = "webrtc_ice_candidate"
)

// RoomInfoData is the full room snapshot broadcast on every state transition.
type RoomInfoData struct {
	RoomId          string       `json:"room_id"`
	Status          RoomStatus   `json:"status"`
	Phase           TurnPhase    `json:"phase,omitempty"`
	Settings        RoomSettings `json:"settings"`
	AdminId         string       `json:"admin_id"`
	CurrentRound    int          `json:"current_round"`
	CurrentDrawerId string       `json:"current_drawer_id,omitempty"`
	TurnDeadline    int64        `json:"turn_deadline_unix,omitempty"`
	Players         []*Player    `json:"players"`
	DrawerQueue     []string     `json:"drawer_queue,omitempty"`
}

type GameStartedData struct {
	RoomId       string   `json:"room_id"`
	CurrentRound int      `json:"current_round"`
	DrawerQueue  []string `json:"drawer_queue"`
}

type DrawerAssignedData struct {
	DrawerId     string `json:"drawer_id"`
	DrawerName   string `json:"drawer_name"`
	CurrentRound int    `json:"current_round"`
}

// SelectWordData goes to the drawer only.
type SelectWordData struct {
	Choices      []string `json:"choices"`
	RoomId       string   `json:"room_id"`
	TimeLimitSec int      `json:"time_limit_sec"`
	SkipsLeft    int      `json:"skips_left"`
}

type WordAutoSelectedData struct {
	Word string `json:"word"`
}

// SpecialChar marks a non-letter position revealed up-front with the mask.
type SpecialChar struct {
	Index int    `json:"index"`
	Char  string `json:"char"`
}

type TurnStartedData struct {
	DrawerId     string        `json:"drawer_id"`
	CurrentRound int           `json:"current_round"`
	TurnTimeSec  int           `json:"turn_time_sec"`
	TurnDeadline int64         `json:"turn_deadline_unix"`
	WordLength   int           `json:"word_length"`
	SpecialChars []SpecialChar `json:"special_chars,omitempty"`
	// Word is present only on the copy sent to the drawer.
	Word string `json:"word,omitempty"`
}

type LetterRevealData struct {
	Index int    `json:"index"`
	Char  string `json:"char"`
}

type NewMessageData struct {
	UserId  string `json:"user_id"`
	Name    string `json:"display_name"`
	Message string `json:"message"`
}

type CorrectGuessData struct {
	UserId      string `json:"user_id"`
	Name        string `json:"display_name"`
	GuessTimeMs int64  `json:"guess_time_ms"`
}

// SimilarWordData announces a close guess. Message carries the guess text only
// on the copy echoed to the guesser.
type SimilarWordData struct {
	UserId  string `json:"user_id"`
	Name    string `json:"display_name"`
	Message string `json:"message,omitempty"`
}

type ScoreUpdatedData struct {
	UserId        string `json:"user_id"`
	Score         int    `json:"score"`
	PointsAwarded int    `json:"points_awarded"`
	DrawerId      string `json:"drawer_id,omitempty"`
	DrawerScore   int    `json:"drawer_score,omitempty"`
}

type TurnOverData struct {
	Reason          TurnEndReason `json:"reason"`
	Word            string        `json:"word"`
	CurrentRound    int           `json:"current_round"`
	CorrectGuessers []PlayerGuess `json:"correct_guessers"`
}

type AdminChangedData struct {
	AdminId string `json:"admin_id"`
	Name    string `json:"display_name"`
}

type RoomSettingsUpdatedData struct {
	RoomId   string       `json:"room_id"`
	Settings RoomSettings `json:"settings"`
}

type PlayerKickedData struct {
	RoomId string `json:"room_id"`
	UserId string `json:"user_id"`
	Name   string `json:"display_name"`
	Votes  int    `json:"votes"`
}

type VoiceStateChangedData struct {
	UserId string          `json:"user_id"`
	Action string          `json:"action"`
	Muted  map[string]bool `json:"members"`
}

type ErrorData struct {
	Message string `json:"message"`
}
