package game

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/sketchwars/sketchwars-backend/internal"
	"github.com/sketchwars/sketchwars-backend/internal/bus"
	"github.com/sketchwars/sketchwars-backend/internal/guess"
	"github.com/sketchwars/sketchwars-backend/internal/presence"
	"github.com/sketchwars/sketchwars-backend/internal/store"
	"github.com/sketchwars/sketchwars-backend/internal/words"
)

// Config collects the gameplay tunables.
type Config struct {
	// Scoring: a correct guess pays ceil(RoundBase * time_left/turn_time)
	// + FloorBonus, the drawer gets floor(DrawerShare * that) per guesser.
	RoundBase   int
	FloorBonus  int
	DrawerShare float64

	// Similarity is the close-guess threshold handed to the evaluator.
	Similarity float64

	// HintFractions are the elapsed-time fractions at which a letter is
	// revealed, when the room allows hints.
	HintFractions []float64

	// Rooms empty for longer than IdleRoomTTL are deleted by the reaper.
	IdleRoomTTL  time.Duration
	ReapInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		RoundBase:     200,
		FloorBonus:    50,
		DrawerShare:   0.5,
		Similarity:    guess.DefaultSimilarity,
		HintFractions: []float64{0.5, 0.75},
		IdleRoomTTL:   5 * time.Minute,
		ReapInterval:  time.Minute,
	}
}

// Engine owns every room mutation. All entry points follow the same shape:
// acquire the room lock, load, mutate, save, release, then publish the queued
// events in order. Events are never published while the lock is held.
type Engine struct {
	store    *store.Store
	bus      *bus.Bus
	presence *presence.Tracker
	catalog  *words.Catalog
	eval     *guess.Evaluator
	cfg      Config
	logger   *slog.Logger
	timers   *timerSet

	// now and randIntn are swapped out by tests.
	now      func() time.Time
	randIntn func(n int) int
}

func New(st *store.Store, b *bus.Bus, catalog *words.Catalog, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		store:    st,
		bus:      b,
		presence: presence.NewTracker(st, logger),
		catalog:  catalog,
		eval:     guess.NewEvaluator(cfg.Similarity),
		cfg:      cfg,
		logger:   logger,
		timers:   newTimerSet(),
		now:      time.Now,
		randIntn: rand.Intn,
	}
}

func (e *Engine) Presence() *presence.Tracker { return e.presence }

// Close drops every in-process timer. Store sentinels stay armed, so another
// node picks the deadlines up.
func (e *Engine) Close() { e.timers.cancelAll() }

// outEvent is one queued publish. An empty topic means a room topic; userId
// set means a user topic.
type outEvent struct {
	topic   string
	except  bus.Except
	event   string
	payload any
}

// outbox accumulates events during a locked mutation so they go out after the
// lock is released, in order.
type outbox struct {
	events []outEvent
}

func (o *outbox) room(roomId, event string, payload any) {
	o.events = append(o.events, outEvent{topic: bus.RoomTopic(roomId), event: event, payload: payload})
}

func (o *outbox) roomExcept(roomId string, except bus.Except, event string, payload any) {
	o.events = append(o.events, outEvent{topic: bus.RoomTopic(roomId), except: except, event: event, payload: payload})
}

func (o *outbox) user(userId, event string, payload any) {
	o.events = append(o.events, outEvent{topic: bus.UserTopic(userId), event: event, payload: payload})
}

func (e *Engine) flush(ctx context.Context, out *outbox) {
	for _, ev := range out.events {
		if err := e.bus.PublishExcept(ctx, ev.topic, ev.except, ev.event, ev.payload); err != nil {
			e.logger.Error("event publish failed", "topic", ev.topic, "event", ev.event, "error", err)
		}
	}
}

// withRoom runs fn with the room lock held and the room loaded, then releases
// the lock and publishes whatever fn queued. fn saves the room itself when it
// mutates it.
func (e *Engine) withRoom(ctx context.Context, roomId string, fn func(room *internal.Room, out *outbox) error) error {
	token, err := e.store.AcquireRoomLock(ctx, roomId)
	if err != nil {
		return err
	}
	out := &outbox{}
	room, err := e.store.LoadRoom(ctx, roomId)
	if err == nil {
		err = fn(room, out)
	}
	e.store.ReleaseRoomLock(ctx, roomId, token)
	if err != nil {
		return err
	}
	e.flush(ctx, out)
	return nil
}

// roomInfo builds the full snapshot broadcast on state transitions. Call with
// the room lock held.
func (e *Engine) roomInfo(ctx context.Context, room *internal.Room) (internal.RoomInfoData, error) {
	players, err := e.store.ListPlayers(ctx, room.Id)
	if err != nil {
		return internal.RoomInfoData{}, err
	}
	queue, err := e.store.DrawerQueue(ctx, room.Id)
	if err != nil {
		return internal.RoomInfoData{}, err
	}
	info := internal.RoomInfoData{
		RoomId:       room.Id,
		Status:       room.Status,
		Settings:     room.Settings(),
		AdminId:      room.AdminId,
		CurrentRound: room.CurrentRound,
		Players:      players,
		DrawerQueue:  queue,
	}
	if room.Status == internal.StatusActive {
		info.Phase = room.Phase
		info.CurrentDrawerId = room.CurrentDrawerId
		info.TurnDeadline = room.TurnDeadline
	}
	return info, nil
}

// queueRoomInfo appends a fresh snapshot to the outbox, logging instead of
// failing the caller when the snapshot itself cannot be built.
func (e *Engine) queueRoomInfo(ctx context.Context, room *internal.Room, out *outbox) {
	info, err := e.roomInfo(ctx, room)
	if err != nil {
		e.logger.Error("room snapshot failed", "room", room.Id, "error", err)
		return
	}
	out.room(room.Id, internal.EventRoomInfo, info)
}

// RoomSnapshot loads a room and builds its snapshot without holding the lock,
// for read-only consumers (conflict replies, the HTTP surface).
func (e *Engine) RoomSnapshot(ctx context.Context, roomId string) (internal.RoomInfoData, error) {
	room, err := e.store.LoadRoom(ctx, roomId)
	if err != nil {
		return internal.RoomInfoData{}, err
	}
	return e.roomInfo(ctx, room)
}
