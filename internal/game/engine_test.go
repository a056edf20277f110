package game

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/sketchwars/sketchwars-backend/internal"
	"github.com/sketchwars/sketchwars-backend/internal/bus"
	"github.com/sketchwars/sketchwars-backend/internal/store"
	"github.com/sketchwars/sketchwars-backend/internal/words"
)

// The engine tests run against a real Redis in a container and drive full
// game flows through the public entry points. Timer-driven paths call the
// deadline handlers directly so nothing here depends on wall-clock waits.

type testRig struct {
	engine *Engine
	store  *store.Store
	bus    *bus.Bus
	rdb    *goredis.Client
}

func setupRig(t *testing.T, cfg Config) (*testRig, context.Context) {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("skipping, docker not available: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	opts, err := goredis.ParseURL(uri)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	rdb := goredis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(rdb, 0, logger)
	b := bus.New(rdb, logger)

	catalog, err := words.Load()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	engine := New(st, b, catalog, cfg, logger)
	t.Cleanup(engine.Close)
	return &testRig{engine: engine, store: st, bus: b, rdb: rdb}, ctx
}

// join adds a player on a fresh socket ref and fails the test on error.
func (r *testRig) join(t *testing.T, ctx context.Context, roomId, userId, name string) *JoinResult {
	t.Helper()
	res, err := r.engine.JoinRoom(ctx, JoinRequest{
		RoomId: roomId, UserId: userId, Name: name, Ref: "ref-" + userId,
	})
	if err != nil {
		t.Fatalf("join %s: %v", userId, err)
	}
	return res
}

func (r *testRig) room(t *testing.T, ctx context.Context, roomId string) *internal.Room {
	t.Helper()
	room, err := r.store.LoadRoom(ctx, roomId)
	if err != nil {
		t.Fatalf("load room: %v", err)
	}
	return room
}

func (r *testRig) player(t *testing.T, ctx context.Context, roomId, userId string) *internal.Player {
	t.Helper()
	p, err := r.store.GetPlayer(ctx, roomId, userId)
	if err != nil {
		t.Fatalf("get player %s: %v", userId, err)
	}
	return p
}

// startGameToDrawing walks a two-player room into the drawing phase and
// returns the chosen word.
func (r *testRig) startGameToDrawing(t *testing.T, ctx context.Context, roomId, adminId string) string {
	t.Helper()
	if err := r.engine.StartGame(ctx, roomId, adminId); err != nil {
		t.Fatalf("start game: %v", err)
	}
	room := r.room(t, ctx, roomId)
	sug, err := r.store.LoadSuggestions(ctx, roomId)
	if err != nil {
		t.Fatalf("load suggestions: %v", err)
	}
	if len(sug.Words) != internal.SuggestionCount {
		t.Fatalf("expected %d suggestions, got %v", internal.SuggestionCount, sug.Words)
	}
	word := sug.Words[0]
	if err := r.engine.StartTurn(ctx, roomId, room.CurrentDrawerId, word); err != nil {
		t.Fatalf("start turn: %v", err)
	}
	return word
}

func TestJoinCreatesRoomWithFirstJoinerAsAdmin(t *testing.T) {
	rig, ctx := setupRig(t, DefaultConfig())
	const roomId = "join-room"

	res := rig.join(t, ctx, roomId, "alice", "Alice")
	if res.Info.Status != internal.StatusWaiting {
		t.Errorf("new room status = %s, want waiting", res.Info.Status)
	}
	if res.Info.AdminId != "alice" {
		t.Errorf("admin = %s, want alice", res.Info.AdminId)
	}
	if len(res.Presence) != 1 {
		t.Errorf("presence entries = %d, want 1", len(res.Presence))
	}

	res2 := rig.join(t, ctx, roomId, "bob", "Bob")
	if res2.Info.AdminId != "alice" {
		t.Errorf("admin after second join = %s, want alice", res2.Info.AdminId)
	}
	if len(res2.Info.Players) != 2 {
		t.Errorf("players = %d, want 2", len(res2.Info.Players))
	}
}

func TestJoinRejectsFullRoom(t *testing.T) {
	rig, ctx := setupRig(t, DefaultConfig())
	const roomId = "full-room"

	rig.join(t, ctx, roomId, "alice", "Alice")
	room := rig.room(t, ctx, roomId)
	settings := room.Settings()
	settings.MaxPlayers = 2
	if err := rig.engine.UpdateSettings(ctx, roomId, "alice", settings); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	rig.join(t, ctx, roomId, "bob", "Bob")

	_, err := rig.engine.JoinRoom(ctx, JoinRequest{RoomId: roomId, UserId: "carol", Name: "Carol", Ref: "ref-carol"})
	if err != internal.ErrRoomFull {
		t.Errorf("third join error = %v, want ErrRoomFull", err)
	}

	// A seated player reconnecting is not a new seat.
	if _, err := rig.engine.JoinRoom(ctx, JoinRequest{RoomId: roomId, UserId: "bob", Name: "Bob", Ref: "ref-bob-2"}); err != nil {
		t.Errorf("rejoin of seated player failed: %v", err)
	}
}

func TestStartGameGuards(t *testing.T) {
	rig, ctx := setupRig(t, DefaultConfig())
	const roomId = "guard-room"

	rig.join(t, ctx, roomId, "alice", "Alice")
	if err := rig.engine.StartGame(ctx, roomId, "alice"); err != internal.ErrNotEnoughPlayers {
		t.Errorf("solo start error = %v, want ErrNotEnoughPlayers", err)
	}

	rig.join(t, ctx, roomId, "bob", "Bob")
	if err := rig.engine.StartGame(ctx, roomId, "bob"); err != internal.ErrNotAdmin {
		t.Errorf("non-admin start error = %v, want ErrNotAdmin", err)
	}

	if err := rig.engine.StartGame(ctx, roomId, "alice"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	room := rig.room(t, ctx, roomId)
	if room.Status != internal.StatusActive || room.Phase != internal.PhaseSelectingWord {
		t.Errorf("room state = %s/%s, want active/selecting_word", room.Status, room.Phase)
	}
	if room.CurrentDrawerId != "alice" {
		t.Errorf("first drawer = %s, want alice (earliest join)", room.CurrentDrawerId)
	}
	if room.CurrentRound != 1 {
		t.Errorf("round = %d, want 1", room.CurrentRound)
	}

	if err := rig.engine.StartGame(ctx, roomId, "alice"); err != internal.ErrBadState {
		t.Errorf("double start error = %v, want ErrBadState", err)
	}
}

func TestCorrectGuessScoresAndEndsTurn(t *testing.T) {
	rig, ctx := setupRig(t, DefaultConfig())
	const roomId = "score-room"

	base := time.Unix(1_700_000_000, 0)
	rig.engine.now = func() time.Time { return base }
	rig.join(t, ctx, roomId, "alice", "Alice")
	rig.engine.now = func() time.Time { return base.Add(time.Second) }
	rig.join(t, ctx, roomId, "bob", "Bob")

	word := rig.startGameToDrawing(t, ctx, roomId, "alice")

	// Ten seconds into a sixty second turn: 200*50/60 rounds up to 167,
	// plus the flat 50.
	rig.engine.now = func() time.Time { return base.Add(11 * time.Second) }
	if err := rig.engine.HandleChatMessage(ctx, roomId, "bob", word); err != nil {
		t.Fatalf("guess: %v", err)
	}

	bob := rig.player(t, ctx, roomId, "bob")
	if bob.Score != 217 {
		t.Errorf("guesser score = %d, want 217", bob.Score)
	}
	alice := rig.player(t, ctx, roomId, "alice")
	if alice.Score != 108 {
		t.Errorf("drawer score = %d, want 108", alice.Score)
	}

	// Bob was the only guesser, so the turn ended and bob draws next.
	room := rig.room(t, ctx, roomId)
	if room.Phase != internal.PhaseSelectingWord {
		t.Errorf("phase after all guessed = %s, want selecting_word", room.Phase)
	}
	if room.CurrentDrawerId != "bob" {
		t.Errorf("next drawer = %s, want bob", room.CurrentDrawerId)
	}
	if room.CurrentWord != "" {
		t.Errorf("word not cleared after turn")
	}
}

func TestGuessedPlayerCannotDoubleCredit(t *testing.T) {
	rig, ctx := setupRig(t, DefaultConfig())
	const roomId = "double-room"

	base := time.Unix(1_700_000_000, 0)
	rig.engine.now = func() time.Time { return base }
	rig.join(t, ctx, roomId, "alice", "Alice")
	rig.engine.now = func() time.Time { return base.Add(time.Second) }
	rig.join(t, ctx, roomId, "bob", "Bob")
	rig.engine.now = func() time.Time { return base.Add(2 * time.Second) }
	rig.join(t, ctx, roomId, "carol", "Carol")

	word := rig.startGameToDrawing(t, ctx, roomId, "alice")

	if err := rig.engine.HandleChatMessage(ctx, roomId, "bob", word); err != nil {
		t.Fatalf("first guess: %v", err)
	}
	scored := rig.player(t, ctx, roomId, "bob").Score

	// Carol has not guessed, so the turn is still running and bob's
	// repeat cannot score again.
	if err := rig.engine.HandleChatMessage(ctx, roomId, "bob", word); err != nil {
		t.Fatalf("repeat guess: %v", err)
	}
	if got := rig.player(t, ctx, roomId, "bob").Score; got != scored {
		t.Errorf("score after repeat = %d, want %d", got, scored)
	}

	room := rig.room(t, ctx, roomId)
	if room.Phase != internal.PhaseDrawing {
		t.Errorf("turn ended early with a guesser outstanding")
	}
}

func TestStartTurnGuards(t *testing.T) {
	rig, ctx := setupRig(t, DefaultConfig())
	const roomId = "turn-guard-room"

	rig.join(t, ctx, roomId, "alice", "Alice")
	rig.join(t, ctx, roomId, "bob", "Bob")
	if err := rig.engine.StartGame(ctx, roomId, "alice"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	room := rig.room(t, ctx, roomId)
	drawer := room.CurrentDrawerId
	other := "bob"
	if drawer == "bob" {
		other = "alice"
	}

	sug, err := rig.store.LoadSuggestions(ctx, roomId)
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}

	if err := rig.engine.StartTurn(ctx, roomId, other, sug.Words[0]); err != internal.ErrNotDrawer {
		t.Errorf("non-drawer pick error = %v, want ErrNotDrawer", err)
	}
	if err := rig.engine.StartTurn(ctx, roomId, drawer, "definitely-not-offered"); err != internal.ErrWordNotOffered {
		t.Errorf("off-list pick error = %v, want ErrWordNotOffered", err)
	}
	if err := rig.engine.StartTurn(ctx, roomId, drawer, sug.Words[1]); err != nil {
		t.Fatalf("valid pick: %v", err)
	}
	if err := rig.engine.StartTurn(ctx, roomId, drawer, sug.Words[1]); err != internal.ErrBadState {
		t.Errorf("pick during drawing error = %v, want ErrBadState", err)
	}
}

func TestSkipWordsOncePerTurn(t *testing.T) {
	rig, ctx := setupRig(t, DefaultConfig())
	const roomId = "skip-room"

	rig.join(t, ctx, roomId, "alice", "Alice")
	rig.join(t, ctx, roomId, "bob", "Bob")
	if err := rig.engine.StartGame(ctx, roomId, "alice"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	drawer := rig.room(t, ctx, roomId).CurrentDrawerId

	before, err := rig.store.LoadSuggestions(ctx, roomId)
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	if err := rig.engine.SkipWords(ctx, roomId, drawer); err != nil {
		t.Fatalf("skip: %v", err)
	}
	after, err := rig.store.LoadSuggestions(ctx, roomId)
	if err != nil {
		t.Fatalf("suggestions after skip: %v", err)
	}
	if !after.SkipUsed {
		t.Error("skip_used not set")
	}
	for _, w := range after.Words {
		for _, old := range before.Words {
			if w == old {
				t.Errorf("skipped word %q offered again", w)
			}
		}
	}

	if err := rig.engine.SkipWords(ctx, roomId, drawer); err != internal.ErrSkipUsed {
		t.Errorf("second skip error = %v, want ErrSkipUsed", err)
	}
}

func TestPickDeadlineAutoSelectsFirstSuggestion(t *testing.T) {
	rig, ctx := setupRig(t, DefaultConfig())
	const roomId = "auto-room"

	rig.join(t, ctx, roomId, "alice", "Alice")
	rig.join(t, ctx, roomId, "bob", "Bob")
	if err := rig.engine.StartGame(ctx, roomId, "alice"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	sug, err := rig.store.LoadSuggestions(ctx, roomId)
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}

	if err := rig.engine.HandlePickDeadline(ctx, roomId); err != nil {
		t.Fatalf("pick deadline: %v", err)
	}
	room := rig.room(t, ctx, roomId)
	if room.Phase != internal.PhaseDrawing {
		t.Fatalf("phase = %s, want drawing", room.Phase)
	}
	if room.CurrentWord != sug.Words[0] {
		t.Errorf("auto-selected %q, want first suggestion %q", room.CurrentWord, sug.Words[0])
	}

	// The second fire must be a no-op.
	if err := rig.engine.HandlePickDeadline(ctx, roomId); err != nil {
		t.Fatalf("second pick deadline: %v", err)
	}
	if got := rig.room(t, ctx, roomId).CurrentWord; got != room.CurrentWord {
		t.Errorf("double fire changed the word to %q", got)
	}
}

func TestTurnDeadlineEndsTurn(t *testing.T) {
	rig, ctx := setupRig(t, DefaultConfig())
	const roomId = "timeout-room"

	base := time.Unix(1_700_000_000, 0)
	rig.engine.now = func() time.Time { return base }
	rig.join(t, ctx, roomId, "alice", "Alice")
	rig.engine.now = func() time.Time { return base.Add(time.Second) }
	rig.join(t, ctx, roomId, "bob", "Bob")
	rig.startGameToDrawing(t, ctx, roomId, "alice")

	// Before the deadline the handler must not end the turn.
	if err := rig.engine.HandleTurnDeadline(ctx, roomId); err != nil {
		t.Fatalf("early deadline: %v", err)
	}
	if rig.room(t, ctx, roomId).Phase != internal.PhaseDrawing {
		t.Fatal("turn ended before its deadline")
	}

	rig.engine.now = func() time.Time { return base.Add(2 * time.Minute) }
	if err := rig.engine.HandleTurnDeadline(ctx, roomId); err != nil {
		t.Fatalf("deadline: %v", err)
	}
	room := rig.room(t, ctx, roomId)
	if room.Phase != internal.PhaseSelectingWord {
		t.Errorf("phase after timeout = %s, want selecting_word for next drawer", room.Phase)
	}
	if room.CurrentDrawerId != "bob" {
		t.Errorf("next drawer = %s, want bob", room.CurrentDrawerId)
	}
}

func TestDrawerLeavingEndsTurnAndHandsOver(t *testing.T) {
	rig, ctx := setupRig(t, DefaultConfig())
	const roomId = "leave-room"

	base := time.Unix(1_700_000_000, 0)
	rig.engine.now = func() time.Time { return base }
	rig.join(t, ctx, roomId, "alice", "Alice")
	rig.engine.now = func() time.Time { return base.Add(time.Second) }
	rig.join(t, ctx, roomId, "bob", "Bob")
	rig.engine.now = func() time.Time { return base.Add(2 * time.Second) }
	rig.join(t, ctx, roomId, "carol", "Carol")

	rig.startGameToDrawing(t, ctx, roomId, "alice")

	if err := rig.engine.LeaveRoom(ctx, roomId, "alice", "ref-alice"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	room := rig.room(t, ctx, roomId)
	if room.AdminId != "bob" {
		t.Errorf("admin after leave = %s, want bob (earliest remaining)", room.AdminId)
	}
	if room.Status != internal.StatusActive || room.Phase != internal.PhaseSelectingWord {
		t.Errorf("room state = %s/%s, want active/selecting_word", room.Status, room.Phase)
	}
	if room.CurrentDrawerId != "bob" {
		t.Errorf("next drawer = %s, want bob", room.CurrentDrawerId)
	}
	if _, err := rig.store.GetPlayer(ctx, roomId, "alice"); err != internal.ErrPlayerNotFound {
		t.Errorf("left player lookup error = %v, want ErrPlayerNotFound", err)
	}
}

func TestRoomDropsToWaitingBelowTwoPlayers(t *testing.T) {
	rig, ctx := setupRig(t, DefaultConfig())
	const roomId = "shrink-room"

	rig.join(t, ctx, roomId, "alice", "Alice")
	rig.join(t, ctx, roomId, "bob", "Bob")
	rig.startGameToDrawing(t, ctx, roomId, "alice")

	if err := rig.engine.LeaveRoom(ctx, roomId, "bob", "ref-bob"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	room := rig.room(t, ctx, roomId)
	if room.Status != internal.StatusWaiting {
		t.Errorf("status = %s, want waiting with one player left", room.Status)
	}
	if room.CurrentWord != "" || room.CurrentDrawerId != "" {
		t.Error("turn state not cleared on reset")
	}
}

func TestMultipleSocketsOfOneUser(t *testing.T) {
	rig, ctx := setupRig(t, DefaultConfig())
	const roomId = "socket-room"

	rig.join(t, ctx, roomId, "alice", "Alice")
	if _, err := rig.engine.JoinRoom(ctx, JoinRequest{RoomId: roomId, UserId: "alice", Name: "Alice", Ref: "ref-alice-tab2"}); err != nil {
		t.Fatalf("second socket: %v", err)
	}

	if err := rig.engine.LeaveRoom(ctx, roomId, "alice", "ref-alice"); err != nil {
		t.Fatalf("first socket leave: %v", err)
	}
	if _, err := rig.store.GetPlayer(ctx, roomId, "alice"); err != nil {
		t.Fatalf("player gone after closing one of two sockets: %v", err)
	}

	if err := rig.engine.LeaveRoom(ctx, roomId, "alice", "ref-alice-tab2"); err != nil {
		t.Fatalf("second socket leave: %v", err)
	}
	if _, err := rig.store.GetPlayer(ctx, roomId, "alice"); err != internal.ErrPlayerNotFound {
		t.Errorf("player lookup after last socket = %v, want ErrPlayerNotFound", err)
	}
}

func TestVoteKickThresholdAndRejoinBan(t *testing.T) {
	rig, ctx := setupRig(t, DefaultConfig())
	const roomId = "kick-room"

	for _, u := range []string{"alice", "bob", "carol", "dave"} {
		rig.join(t, ctx, roomId, u, u)
	}

	if err := rig.engine.VoteKick(ctx, roomId, "dave", "dave"); err != internal.ErrSelfVote {
		t.Errorf("self vote error = %v, want ErrSelfVote", err)
	}

	// Four present: threshold is two.
	if err := rig.engine.VoteKick(ctx, roomId, "alice", "dave"); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if _, err := rig.store.GetPlayer(ctx, roomId, "dave"); err != nil {
		t.Fatalf("target kicked after one vote of two: %v", err)
	}

	// Repeating the same ballot must not push the count over.
	if err := rig.engine.VoteKick(ctx, roomId, "alice", "dave"); err != nil {
		t.Fatalf("repeat vote: %v", err)
	}
	if _, err := rig.store.GetPlayer(ctx, roomId, "dave"); err != nil {
		t.Fatalf("target kicked by duplicate ballot: %v", err)
	}

	if err := rig.engine.VoteKick(ctx, roomId, "bob", "dave"); err != nil {
		t.Fatalf("second vote: %v", err)
	}
	if _, err := rig.store.GetPlayer(ctx, roomId, "dave"); err != internal.ErrPlayerNotFound {
		t.Errorf("target still seated after threshold: %v", err)
	}

	_, err := rig.engine.JoinRoom(ctx, JoinRequest{RoomId: roomId, UserId: "dave", Name: "dave", Ref: "ref-dave-2"})
	if err != internal.ErrKicked {
		t.Errorf("kicked rejoin error = %v, want ErrKicked", err)
	}
}

func TestUpdateSettingsOnlyBetweenGames(t *testing.T) {
	rig, ctx := setupRig(t, DefaultConfig())
	const roomId = "settings-room"

	rig.join(t, ctx, roomId, "alice", "Alice")
	rig.join(t, ctx, roomId, "bob", "Bob")

	settings := rig.room(t, ctx, roomId).Settings()
	settings.TurnTimeSec = 90
	settings.MaxRounds = 5

	if err := rig.engine.UpdateSettings(ctx, roomId, "bob", settings); err != internal.ErrNotAdmin {
		t.Errorf("non-admin update error = %v, want ErrNotAdmin", err)
	}
	if err := rig.engine.UpdateSettings(ctx, roomId, "alice", settings); err != nil {
		t.Fatalf("update: %v", err)
	}
	room := rig.room(t, ctx, roomId)
	if room.TurnTimeSec != 90 || room.MaxRounds != 5 {
		t.Errorf("settings not applied: %+v", room.Settings())
	}

	bad := settings
	bad.TurnTimeSec = 61
	if err := rig.engine.UpdateSettings(ctx, roomId, "alice", bad); err != internal.ErrInvalidSettings {
		t.Errorf("invalid turn time error = %v, want ErrInvalidSettings", err)
	}

	if err := rig.engine.StartGame(ctx, roomId, "alice"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if err := rig.engine.UpdateSettings(ctx, roomId, "alice", settings); err != internal.ErrBadState {
		t.Errorf("mid-game update error = %v, want ErrBadState", err)
	}
}

func TestGameFinishesAfterAllRounds(t *testing.T) {
	cfg := DefaultConfig()
	rig, ctx := setupRig(t, cfg)
	const roomId = "finish-room"

	base := time.Unix(1_700_000_000, 0)
	rig.engine.now = func() time.Time { return base }
	rig.join(t, ctx, roomId, "alice", "Alice")
	rig.engine.now = func() time.Time { return base.Add(time.Second) }
	rig.join(t, ctx, roomId, "bob", "Bob")

	settings := rig.room(t, ctx, roomId).Settings()
	settings.MaxRounds = 1
	if err := rig.engine.UpdateSettings(ctx, roomId, "alice", settings); err != nil {
		t.Fatalf("settings: %v", err)
	}

	// Round one: alice draws, bob guesses, then bob draws, alice guesses.
	word := rig.startGameToDrawing(t, ctx, roomId, "alice")
	if err := rig.engine.HandleChatMessage(ctx, roomId, "bob", word); err != nil {
		t.Fatalf("bob guess: %v", err)
	}

	room := rig.room(t, ctx, roomId)
	if room.Status != internal.StatusActive || room.CurrentDrawerId != "bob" {
		t.Fatalf("expected bob's turn, got %s drawer=%s", room.Status, room.CurrentDrawerId)
	}
	sug, err := rig.store.LoadSuggestions(ctx, roomId)
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	if err := rig.engine.StartTurn(ctx, roomId, "bob", sug.Words[0]); err != nil {
		t.Fatalf("bob turn: %v", err)
	}
	if err := rig.engine.HandleChatMessage(ctx, roomId, "alice", sug.Words[0]); err != nil {
		t.Fatalf("alice guess: %v", err)
	}

	room = rig.room(t, ctx, roomId)
	if room.Status != internal.StatusFinished {
		t.Fatalf("status after final turn = %s, want finished", room.Status)
	}

	// A fresh start wipes the old scores.
	if err := rig.engine.StartGame(ctx, roomId, "alice"); err != nil {
		t.Fatalf("rematch: %v", err)
	}
	for _, u := range []string{"alice", "bob"} {
		if got := rig.player(t, ctx, roomId, u).Score; got != 0 {
			t.Errorf("%s score after rematch = %d, want 0", u, got)
		}
	}
}

func TestLateJoinerQueuedAndGetsCanvas(t *testing.T) {
	rig, ctx := setupRig(t, DefaultConfig())
	const roomId = "late-room"

	rig.join(t, ctx, roomId, "alice", "Alice")
	rig.join(t, ctx, roomId, "bob", "Bob")
	rig.startGameToDrawing(t, ctx, roomId, "alice")

	stroke := []byte(`{"drawMode":true,"strokeColor":"#112233","strokeWidth":4,"paths":[{"x":1,"y":2},{"x":3,"y":4}]}`)
	if err := rig.engine.HandleStroke(ctx, roomId, "alice", "ref-alice", stroke); err != nil {
		t.Fatalf("stroke: %v", err)
	}

	res := rig.join(t, ctx, roomId, "carol", "Carol")
	if res.Turn == nil {
		t.Fatal("late joiner got no turn snapshot")
	}
	if res.Turn.Word != "" {
		t.Error("late joiner saw the hidden word")
	}
	if res.Turn.WordLength == 0 {
		t.Error("late joiner mask has no word length")
	}
	if res.Canvas == nil {
		t.Fatal("late joiner got no canvas snapshot")
	}
	if res.Canvas.StrokeColor != "#112233" {
		t.Errorf("canvas color = %s", res.Canvas.StrokeColor)
	}

	queue, err := rig.store.DrawerQueue(ctx, roomId)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	found := false
	for _, id := range queue {
		if id == "carol" {
			found = true
		}
	}
	if !found {
		t.Errorf("late joiner not queued to draw, queue=%v", queue)
	}
}

func TestStrokeRejectedFromNonDrawer(t *testing.T) {
	rig, ctx := setupRig(t, DefaultConfig())
	const roomId = "stroke-room"

	rig.join(t, ctx, roomId, "alice", "Alice")
	rig.join(t, ctx, roomId, "bob", "Bob")
	rig.startGameToDrawing(t, ctx, roomId, "alice")

	stroke := []byte(`{"drawMode":true,"strokeColor":"#000","strokeWidth":2,"paths":[{"x":1,"y":1}]}`)
	if err := rig.engine.HandleStroke(ctx, roomId, "bob", "ref-bob", stroke); err != internal.ErrNotDrawer {
		t.Errorf("non-drawer stroke error = %v, want ErrNotDrawer", err)
	}
}

func TestHintRevealsLetter(t *testing.T) {
	rig, ctx := setupRig(t, DefaultConfig())
	const roomId = "hint-room"

	rig.join(t, ctx, roomId, "alice", "Alice")
	rig.join(t, ctx, roomId, "bob", "Bob")
	rig.startGameToDrawing(t, ctx, roomId, "alice")
	room := rig.room(t, ctx, roomId)

	if err := rig.engine.HandleHintTick(ctx, roomId, room.TurnDeadline); err != nil {
		t.Fatalf("hint: %v", err)
	}
	revealed, err := rig.store.LoadRevealed(ctx, roomId)
	if err != nil {
		t.Fatalf("revealed: %v", err)
	}
	if len(revealed) != 1 {
		t.Fatalf("revealed %d letters, want 1", len(revealed))
	}

	// A tick carrying a stale deadline must do nothing.
	if err := rig.engine.HandleHintTick(ctx, roomId, room.TurnDeadline-999); err != nil {
		t.Fatalf("stale hint: %v", err)
	}
	revealed, err = rig.store.LoadRevealed(ctx, roomId)
	if err != nil {
		t.Fatalf("revealed: %v", err)
	}
	if len(revealed) != 1 {
		t.Errorf("stale tick revealed a letter")
	}
}

func TestReaperDeletesIdleRooms(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IdleRoomTTL = 0
	rig, ctx := setupRig(t, cfg)
	const roomId = "reap-room"

	rig.join(t, ctx, roomId, "alice", "Alice")
	if err := rig.engine.LeaveRoom(ctx, roomId, "alice", "ref-alice"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	rig.engine.now = func() time.Time { return time.Now().Add(time.Minute) }
	rig.engine.reapIdleRooms(ctx)

	if _, err := rig.store.LoadRoom(ctx, roomId); err != internal.ErrRoomNotFound {
		t.Errorf("room after reap = %v, want ErrRoomNotFound", err)
	}
}

func TestChatEventsOnBus(t *testing.T) {
	rig, ctx := setupRig(t, DefaultConfig())
	const roomId = "chat-room"

	rig.join(t, ctx, roomId, "alice", "Alice")
	rig.join(t, ctx, roomId, "bob", "Bob")

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub, err := rig.bus.Subscribe(subCtx, bus.RoomTopic(roomId))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if err := rig.engine.HandleChatMessage(ctx, roomId, "alice", "hello there"); err != nil {
		t.Fatalf("chat: %v", err)
	}

	d := waitForEvent(t, sub.Channel(), internal.EventNewMessage)
	var msg internal.NewMessageData
	if err := json.Unmarshal(d.Payload, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.UserId != "alice" || msg.Message != "hello there" {
		t.Errorf("chat payload = %+v", msg)
	}
}

func waitForEvent(t *testing.T, ch <-chan bus.Delivery, event string) bus.Delivery {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case d, ok := <-ch:
			if !ok {
				t.Fatalf("subscription closed waiting for %s", event)
			}
			if d.Event == event {
				return d
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}
