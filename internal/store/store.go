package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sketchwars/sketchwars-backend/internal"
)

// Store is the Redis-backed shared state layer. Any node can load and mutate
// any room through it; room-mutating flows serialize on the advisory lock in
// lock.go.
type Store struct {
	rdb    *redis.Client
	db     int
	logger *slog.Logger
}

// Connect builds the shared Redis client and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func New(rdb *redis.Client, db int, logger *slog.Logger) *Store {
	return &Store{rdb: rdb, db: db, logger: logger}
}

// Key layout. Everything for one room lives under room:{id} so a single
// prefix covers expiry watches and cleanup.
func roomKey(id string) string { return "room:" + id }

func roomSub(id, suffix string) string { return "room:" + id + ":" + suffix }

func kickKey(id, target string) string { return "room:" + id + ":kick:" + target }

const (
	publicRoomsKey = "rooms:public"
	emptySinceKey  = "rooms:empty_since"
)

// Rooms

func (s *Store) SaveRoom(ctx context.Context, room *internal.Room) error {
	if err := s.rdb.HSet(ctx, roomKey(room.Id), room).Err(); err != nil {
		return fmt.Errorf("save room %s: %w", room.Id, err)
	}
	return nil
}

func (s *Store) LoadRoom(ctx context.Context, roomId string) (*internal.Room, error) {
	cmd := s.rdb.HGetAll(ctx, roomKey(roomId))
	fields, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomId, err)
	}
	if len(fields) == 0 {
		return nil, internal.ErrRoomNotFound
	}
	var room internal.Room
	if err := cmd.Scan(&room); err != nil {
		return nil, fmt.Errorf("scan room %s: %w", roomId, err)
	}
	return &room, nil
}

func (s *Store) RoomExists(ctx context.Context, roomId string) (bool, error) {
	n, err := s.rdb.Exists(ctx, roomKey(roomId)).Result()
	if err != nil {
		return false, fmt.Errorf("room exists %s: %w", roomId, err)
	}
	return n > 0, nil
}

// DeleteRoom removes a room and every satellite key, including any pending
// kick ballots.
func (s *Store) DeleteRoom(ctx context.Context, roomId string) error {
	targets, err := s.rdb.SMembers(ctx, roomSub(roomId, "kick_targets")).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("delete room %s: %w", roomId, err)
	}

	keys := []string{
		roomKey(roomId),
		roomSub(roomId, "players"),
		roomSub(roomId, "presence"),
		roomSub(roomId, "drawer_queue"),
		roomSub(roomId, "used_words"),
		roomSub(roomId, "suggestions"),
		roomSub(roomId, "canvas"),
		roomSub(roomId, "revealed"),
		roomSub(roomId, "voice"),
		roomSub(roomId, "kick_targets"),
		roomSub(roomId, "kicked"),
		roomSub(roomId, "turn_guesses"),
		roomSub(roomId, "guess_log"),
		roomSub(roomId, "turn_deadline"),
		roomSub(roomId, "pick_deadline"),
	}
	for _, target := range targets {
		keys = append(keys, kickKey(roomId, target))
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, keys...)
	pipe.SRem(ctx, publicRoomsKey, roomId)
	pipe.ZRem(ctx, emptySinceKey, roomId)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete room %s: %w", roomId, err)
	}
	s.logger.Info("room deleted", "room", roomId)
	return nil
}

// Players

func (s *Store) SavePlayer(ctx context.Context, roomId string, p *internal.Player) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal player %s: %w", p.Id, err)
	}
	if err := s.rdb.HSet(ctx, roomSub(roomId, "players"), p.Id, data).Err(); err != nil {
		return fmt.Errorf("save player %s in %s: %w", p.Id, roomId, err)
	}
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, roomId, userId string) (*internal.Player, error) {
	data, err := s.rdb.HGet(ctx, roomSub(roomId, "players"), userId).Result()
	if err == redis.Nil {
		return nil, internal.ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get player %s in %s: %w", userId, roomId, err)
	}
	var p internal.Player
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("unmarshal player %s: %w", userId, err)
	}
	return &p, nil
}

// ListPlayers returns the room's players ordered by join time.
func (s *Store) ListPlayers(ctx context.Context, roomId string) ([]*internal.Player, error) {
	fields, err := s.rdb.HGetAll(ctx, roomSub(roomId, "players")).Result()
	if err != nil {
		return nil, fmt.Errorf("list players in %s: %w", roomId, err)
	}
	players := make([]*internal.Player, 0, len(fields))
	for id, data := range fields {
		var p internal.Player
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			s.logger.Warn("skipping unreadable player record", "room", roomId, "user", id, "error", err)
			continue
		}
		players = append(players, &p)
	}
	internal.SortByJoin(players)
	return players, nil
}

func (s *Store) RemovePlayer(ctx context.Context, roomId, userId string) error {
	if err := s.rdb.HDel(ctx, roomSub(roomId, "players"), userId).Err(); err != nil {
		return fmt.Errorf("remove player %s from %s: %w", userId, roomId, err)
	}
	return nil
}

func (s *Store) PlayerCount(ctx context.Context, roomId string) (int, error) {
	n, err := s.rdb.HLen(ctx, roomSub(roomId, "players")).Result()
	if err != nil {
		return 0, fmt.Errorf("player count in %s: %w", roomId, err)
	}
	return int(n), nil
}

// Drawer queue

func (s *Store) SetDrawerQueue(ctx context.Context, roomId string, queue []string) error {
	key := roomSub(roomId, "drawer_queue")
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key)
	if len(queue) > 0 {
		args := make([]any, len(queue))
		for i, id := range queue {
			args[i] = id
		}
		pipe.RPush(ctx, key, args...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set drawer queue in %s: %w", roomId, err)
	}
	return nil
}

func (s *Store) DrawerQueue(ctx context.Context, roomId string) ([]string, error) {
	queue, err := s.rdb.LRange(ctx, roomSub(roomId, "drawer_queue"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("drawer queue in %s: %w", roomId, err)
	}
	return queue, nil
}

// PopNextDrawer removes and returns the head of the queue, or "" when the
// queue is exhausted.
func (s *Store) PopNextDrawer(ctx context.Context, roomId string) (string, error) {
	next, err := s.rdb.LPop(ctx, roomSub(roomId, "drawer_queue")).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("pop drawer in %s: %w", roomId, err)
	}
	return next, nil
}

func (s *Store) AppendDrawer(ctx context.Context, roomId, userId string) error {
	if err := s.rdb.RPush(ctx, roomSub(roomId, "drawer_queue"), userId).Err(); err != nil {
		return fmt.Errorf("append drawer %s in %s: %w", userId, roomId, err)
	}
	return nil
}

func (s *Store) RemoveFromDrawerQueue(ctx context.Context, roomId, userId string) error {
	if err := s.rdb.LRem(ctx, roomSub(roomId, "drawer_queue"), 0, userId).Err(); err != nil {
		return fmt.Errorf("remove drawer %s in %s: %w", userId, roomId, err)
	}
	return nil
}

// Word usage per round

func (s *Store) AddUsedWords(ctx context.Context, roomId string, words ...string) error {
	if len(words) == 0 {
		return nil
	}
	members := make([]any, len(words))
	for i, w := range words {
		members[i] = w
	}
	if err := s.rdb.SAdd(ctx, roomSub(roomId, "used_words"), members...).Err(); err != nil {
		return fmt.Errorf("add used words in %s: %w", roomId, err)
	}
	return nil
}

func (s *Store) UsedWords(ctx context.Context, roomId string) ([]string, error) {
	words, err := s.rdb.SMembers(ctx, roomSub(roomId, "used_words")).Result()
	if err != nil {
		return nil, fmt.Errorf("used words in %s: %w", roomId, err)
	}
	return words, nil
}

func (s *Store) ResetUsedWords(ctx context.Context, roomId string) error {
	if err := s.rdb.Del(ctx, roomSub(roomId, "used_words")).Err(); err != nil {
		return fmt.Errorf("reset used words in %s: %w", roomId, err)
	}
	return nil
}

// Suggestions for the current drawer

func (s *Store) SaveSuggestions(ctx context.Context, roomId string, sug internal.Suggestions) error {
	data, err := json.Marshal(sug)
	if err != nil {
		return fmt.Errorf("marshal suggestions: %w", err)
	}
	if err := s.rdb.Set(ctx, roomSub(roomId, "suggestions"), data, 0).Err(); err != nil {
		return fmt.Errorf("save suggestions in %s: %w", roomId, err)
	}
	return nil
}

func (s *Store) LoadSuggestions(ctx context.Context, roomId string) (internal.Suggestions, error) {
	var sug internal.Suggestions
	data, err := s.rdb.Get(ctx, roomSub(roomId, "suggestions")).Result()
	if err == redis.Nil {
		return sug, nil
	}
	if err != nil {
		return sug, fmt.Errorf("load suggestions in %s: %w", roomId, err)
	}
	if err := json.Unmarshal([]byte(data), &sug); err != nil {
		return sug, fmt.Errorf("unmarshal suggestions: %w", err)
	}
	return sug, nil
}

func (s *Store) DeleteSuggestions(ctx context.Context, roomId string) error {
	if err := s.rdb.Del(ctx, roomSub(roomId, "suggestions")).Err(); err != nil {
		return fmt.Errorf("delete suggestions in %s: %w", roomId, err)
	}
	return nil
}

// Canvas snapshot

func (s *Store) SaveCanvas(ctx context.Context, roomId string, stroke internal.Stroke) error {
	data, err := json.Marshal(stroke)
	if err != nil {
		return fmt.Errorf("marshal canvas: %w", err)
	}
	if err := s.rdb.Set(ctx, roomSub(roomId, "canvas"), data, 0).Err(); err != nil {
		return fmt.Errorf("save canvas in %s: %w", roomId, err)
	}
	return nil
}

// LoadCanvas returns the latest stroke snapshot, or ok=false when the canvas
// is clear.
func (s *Store) LoadCanvas(ctx context.Context, roomId string) (internal.Stroke, bool, error) {
	data, err := s.rdb.Get(ctx, roomSub(roomId, "canvas")).Result()
	if err == redis.Nil {
		return internal.Stroke{}, false, nil
	}
	if err != nil {
		return internal.Stroke{}, false, fmt.Errorf("load canvas in %s: %w", roomId, err)
	}
	var stroke internal.Stroke
	if err := json.Unmarshal([]byte(data), &stroke); err != nil {
		return internal.Stroke{}, false, fmt.Errorf("unmarshal canvas: %w", err)
	}
	return stroke, true, nil
}

func (s *Store) ClearCanvas(ctx context.Context, roomId string) error {
	if err := s.rdb.Del(ctx, roomSub(roomId, "canvas")).Err(); err != nil {
		return fmt.Errorf("clear canvas in %s: %w", roomId, err)
	}
	return nil
}

// Revealed letter indexes for the live turn

func (s *Store) SaveRevealed(ctx context.Context, roomId string, indexes []int) error {
	data, err := json.Marshal(indexes)
	if err != nil {
		return fmt.Errorf("marshal revealed: %w", err)
	}
	if err := s.rdb.Set(ctx, roomSub(roomId, "revealed"), data, 0).Err(); err != nil {
		return fmt.Errorf("save revealed in %s: %w", roomId, err)
	}
	return nil
}

func (s *Store) LoadRevealed(ctx context.Context, roomId string) ([]int, error) {
	data, err := s.rdb.Get(ctx, roomSub(roomId, "revealed")).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load revealed in %s: %w", roomId, err)
	}
	var indexes []int
	if err := json.Unmarshal([]byte(data), &indexes); err != nil {
		return nil, fmt.Errorf("unmarshal revealed: %w", err)
	}
	return indexes, nil
}

func (s *Store) ClearRevealed(ctx context.Context, roomId string) error {
	if err := s.rdb.Del(ctx, roomSub(roomId, "revealed")).Err(); err != nil {
		return fmt.Errorf("clear revealed in %s: %w", roomId, err)
	}
	return nil
}

// Presence entries. The tracker in internal/presence owns the value format;
// the store only places them under the room prefix.

func (s *Store) PresenceAll(ctx context.Context, roomId string) (map[string]string, error) {
	fields, err := s.rdb.HGetAll(ctx, roomSub(roomId, "presence")).Result()
	if err != nil {
		return nil, fmt.Errorf("presence in %s: %w", roomId, err)
	}
	return fields, nil
}

func (s *Store) PresenceGet(ctx context.Context, roomId, userId string) (string, bool, error) {
	data, err := s.rdb.HGet(ctx, roomSub(roomId, "presence"), userId).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("presence entry %s in %s: %w", userId, roomId, err)
	}
	return data, true, nil
}

func (s *Store) PresenceSet(ctx context.Context, roomId, userId, entry string) error {
	if err := s.rdb.HSet(ctx, roomSub(roomId, "presence"), userId, entry).Err(); err != nil {
		return fmt.Errorf("set presence %s in %s: %w", userId, roomId, err)
	}
	return nil
}

func (s *Store) PresenceRemove(ctx context.Context, roomId, userId string) error {
	if err := s.rdb.HDel(ctx, roomSub(roomId, "presence"), userId).Err(); err != nil {
		return fmt.Errorf("remove presence %s in %s: %w", userId, roomId, err)
	}
	return nil
}

func (s *Store) PresenceCount(ctx context.Context, roomId string) (int, error) {
	n, err := s.rdb.HLen(ctx, roomSub(roomId, "presence")).Result()
	if err != nil {
		return 0, fmt.Errorf("presence count in %s: %w", roomId, err)
	}
	return int(n), nil
}

// Voice membership

func (s *Store) SetVoiceMember(ctx context.Context, roomId, userId string, muted bool) error {
	val := "0"
	if muted {
		val = "1"
	}
	if err := s.rdb.HSet(ctx, roomSub(roomId, "voice"), userId, val).Err(); err != nil {
		return fmt.Errorf("set voice member %s in %s: %w", userId, roomId, err)
	}
	return nil
}

func (s *Store) RemoveVoiceMember(ctx context.Context, roomId, userId string) error {
	if err := s.rdb.HDel(ctx, roomSub(roomId, "voice"), userId).Err(); err != nil {
		return fmt.Errorf("remove voice member %s in %s: %w", userId, roomId, err)
	}
	return nil
}

func (s *Store) VoiceMembers(ctx context.Context, roomId string) (map[string]bool, error) {
	fields, err := s.rdb.HGetAll(ctx, roomSub(roomId, "voice")).Result()
	if err != nil {
		return nil, fmt.Errorf("voice members in %s: %w", roomId, err)
	}
	members := make(map[string]bool, len(fields))
	for id, muted := range fields {
		members[id] = muted == "1"
	}
	return members, nil
}

// Kick ballots

// AddKickVote records one vote and returns the distinct vote count. SADD makes
// repeat votes from the same voter no-ops.
func (s *Store) AddKickVote(ctx context.Context, roomId, targetId, voterId string) (int, error) {
	pipe := s.rdb.Pipeline()
	pipe.SAdd(ctx, kickKey(roomId, targetId), voterId)
	pipe.SAdd(ctx, roomSub(roomId, "kick_targets"), targetId)
	card := pipe.SCard(ctx, kickKey(roomId, targetId))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("add kick vote in %s: %w", roomId, err)
	}
	return int(card.Val()), nil
}

func (s *Store) ClearKickVotes(ctx context.Context, roomId, targetId string) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, kickKey(roomId, targetId))
	pipe.SRem(ctx, roomSub(roomId, "kick_targets"), targetId)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear kick votes in %s: %w", roomId, err)
	}
	return nil
}

// Public room index

func (s *Store) AddPublicRoom(ctx context.Context, roomId string) error {
	if err := s.rdb.SAdd(ctx, publicRoomsKey, roomId).Err(); err != nil {
		return fmt.Errorf("add public room %s: %w", roomId, err)
	}
	return nil
}

func (s *Store) RemovePublicRoom(ctx context.Context, roomId string) error {
	if err := s.rdb.SRem(ctx, publicRoomsKey, roomId).Err(); err != nil {
		return fmt.Errorf("remove public room %s: %w", roomId, err)
	}
	return nil
}

func (s *Store) PublicRooms(ctx context.Context) ([]string, error) {
	rooms, err := s.rdb.SMembers(ctx, publicRoomsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("public rooms: %w", err)
	}
	return rooms, nil
}

// Empty-room tracking for the reaper

func (s *Store) MarkEmpty(ctx context.Context, roomId string, at time.Time) error {
	if err := s.rdb.ZAdd(ctx, emptySinceKey, redis.Z{Score: float64(at.Unix()), Member: roomId}).Err(); err != nil {
		return fmt.Errorf("mark empty %s: %w", roomId, err)
	}
	return nil
}

func (s *Store) MarkOccupied(ctx context.Context, roomId string) error {
	if err := s.rdb.ZRem(ctx, emptySinceKey, roomId).Err(); err != nil {
		return fmt.Errorf("mark occupied %s: %w", roomId, err)
	}
	return nil
}

// ClaimIdleRooms returns rooms that have been empty since before the cutoff,
// removing each from the index so exactly one node reaps it.
func (s *Store) ClaimIdleRooms(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, emptySinceKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("claim idle rooms: %w", err)
	}
	claimed := make([]string, 0, len(ids))
	for _, id := range ids {
		removed, err := s.rdb.ZRem(ctx, emptySinceKey, id).Result()
		if err != nil {
			return claimed, fmt.Errorf("claim idle room %s: %w", id, err)
		}
		if removed > 0 {
			claimed = append(claimed, id)
		}
	}
	return claimed, nil
}
