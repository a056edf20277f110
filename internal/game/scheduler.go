package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sketchwars/sketchwars-backend/internal"
	"github.com/sketchwars/sketchwars-backend/internal/store"
)

// Every deadline is armed twice: an in-process timer on the node that started
// the phase, and a TTL sentinel in the store. Whichever fires first wins; the
// handlers re-validate room state under the lock, so the second fire is a
// no-op. The sentinel is what keeps the game moving if the arming node dies.

const handlerTimeout = 10 * time.Second

type timerSet struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func newTimerSet() *timerSet {
	return &timerSet{cancels: make(map[string]context.CancelFunc)}
}

// arm schedules onExpire after d, replacing any timer already armed under the
// same key. Cancellation never triggers onExpire.
func (t *timerSet) arm(key string, d time.Duration, onExpire func()) {
	ctx, cancel := context.WithTimeout(context.Background(), d)

	t.mu.Lock()
	if prev, ok := t.cancels[key]; ok {
		prev()
	}
	t.cancels[key] = cancel
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.mu.Lock()
		if t.cancels[key] != nil {
			delete(t.cancels, key)
		}
		t.mu.Unlock()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			go onExpire()
		}
	}()
}

func (t *timerSet) cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.cancels[key]; ok {
		cancel()
		delete(t.cancels, key)
	}
}

// cancelRoom drops every timer of one room.
func (t *timerSet) cancelRoom(roomId string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prefix := roomId + "/"
	for key, cancel := range t.cancels {
		if strings.HasPrefix(key, prefix) {
			cancel()
			delete(t.cancels, key)
		}
	}
}

func (t *timerSet) cancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, cancel := range t.cancels {
		cancel()
		delete(t.cancels, key)
	}
}

func pickKey(roomId string) string { return roomId + "/pick" }

func turnKey(roomId string) string { return roomId + "/turn" }

func hintKey(roomId string, i int) string { return fmt.Sprintf("%s/hint%d", roomId, i) }

// armWordPick schedules the auto-select for a drawer who never picks.
func (e *Engine) armWordPick(roomId string, d time.Duration) {
	e.timers.arm(pickKey(roomId), d, func() {
		e.runDeadline("word pick", roomId, e.HandlePickDeadline)
	})
}

// armTurn schedules the turn end and, when hints are on, the letter reveals.
// deadline identifies the turn; handlers ignore fires for a deadline the room
// no longer carries.
func (e *Engine) armTurn(room *internal.Room) {
	roomId := room.Id
	total := room.TurnTime()
	deadline := room.TurnDeadline

	e.timers.arm(turnKey(roomId), total, func() {
		e.runDeadline("turn", roomId, e.HandleTurnDeadline)
	})

	if !room.HintsAllowed {
		return
	}
	for i, fraction := range e.cfg.HintFractions {
		wait := time.Duration(fraction * float64(total))
		if wait <= 0 || wait >= total {
			continue
		}
		e.timers.arm(hintKey(roomId, i), wait, func() {
			ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
			defer cancel()
			if err := e.HandleHintTick(ctx, roomId, deadline); err != nil {
				e.logger.Warn("hint reveal failed", "room", roomId, "error", err)
			}
		})
	}
}

func (e *Engine) cancelTurnTimers(roomId string) {
	e.timers.cancel(turnKey(roomId))
	for i := range e.cfg.HintFractions {
		e.timers.cancel(hintKey(roomId, i))
	}
}

// runDeadline drives a deadline handler with one retry. A room that cannot be
// driven after the retry is marked degraded so it stops scheduling turns
// instead of wedging half-finished state.
func (e *Engine) runDeadline(what, roomId string, handler func(ctx context.Context, roomId string) error) {
	run := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		return handler(ctx, roomId)
	}

	err := run()
	if err == nil || errors.Is(err, internal.ErrRoomNotFound) {
		return
	}
	e.logger.Warn("deadline handler failed, retrying", "kind", what, "room", roomId, "error", err)

	time.Sleep(2 * time.Second)
	if err := run(); err != nil && !errors.Is(err, internal.ErrRoomNotFound) {
		e.logger.Error("deadline handler failed twice, marking room degraded", "kind", what, "room", roomId, "error", err)
		e.markDegraded(roomId)
	}
}

func (e *Engine) markDegraded(roomId string) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	err := e.withRoom(ctx, roomId, func(room *internal.Room, out *outbox) error {
		room.Degraded = true
		return e.store.SaveRoom(ctx, room)
	})
	if err != nil {
		e.logger.Error("could not mark room degraded", "room", roomId, "error", err)
	}
}

// HandlePickDeadline fires when the drawer let the word-pick window lapse. The
// first suggestion is chosen for them.
func (e *Engine) HandlePickDeadline(ctx context.Context, roomId string) error {
	return e.withRoom(ctx, roomId, func(room *internal.Room, out *outbox) error {
		if room.Status != internal.StatusActive || room.Phase != internal.PhaseSelectingWord || room.CurrentDrawerId == "" {
			return nil
		}
		sug, err := e.store.LoadSuggestions(ctx, roomId)
		if err != nil {
			return err
		}
		if len(sug.Words) == 0 {
			return nil
		}
		word := sug.Words[0]
		e.logger.Info("word pick timed out, auto-selecting", "room", roomId, "drawer", room.CurrentDrawerId)
		out.user(room.CurrentDrawerId, internal.EventWordAutoSelected, internal.WordAutoSelectedData{Word: word})
		return e.startDrawing(ctx, room, word, out)
	})
}

// HandleTurnDeadline fires when the drawing clock runs out.
func (e *Engine) HandleTurnDeadline(ctx context.Context, roomId string) error {
	return e.withRoom(ctx, roomId, func(room *internal.Room, out *outbox) error {
		if room.Status != internal.StatusActive || room.Phase != internal.PhaseDrawing {
			return nil
		}
		if room.TimeLeft(e.now()) > time.Second {
			// A newer turn owns the deadline now; stale fire.
			return nil
		}
		if err := e.endTurn(ctx, room, internal.ReasonTimeout, out); err != nil {
			return err
		}
		return e.beginWordSelection(ctx, room, out)
	})
}

// HandleHintTick reveals one random unrevealed letter. deadline ties the tick
// to the turn that armed it.
func (e *Engine) HandleHintTick(ctx context.Context, roomId string, deadline int64) error {
	return e.withRoom(ctx, roomId, func(room *internal.Room, out *outbox) error {
		if room.Status != internal.StatusActive || room.Phase != internal.PhaseDrawing || room.TurnDeadline != deadline {
			return nil
		}
		if !room.HintsAllowed || room.CurrentWord == "" {
			return nil
		}
		revealed, err := e.store.LoadRevealed(ctx, roomId)
		if err != nil {
			return err
		}
		candidates := unrevealedLetters(room.CurrentWord, revealed)
		if len(candidates) <= 1 {
			// Never expose the whole word through hints.
			return nil
		}
		index := candidates[e.randIntn(len(candidates))]
		revealed = append(revealed, index)
		if err := e.store.SaveRevealed(ctx, roomId, revealed); err != nil {
			return err
		}
		out.room(roomId, internal.EventLetterReveal, internal.LetterRevealData{
			Index: index,
			Char:  runeAt(room.CurrentWord, index),
		})
		return nil
	})
}

// WatchDeadlines consumes key-expiry notifications and drives the same
// handlers the in-process timers use. Runs until ctx ends.
func (e *Engine) WatchDeadlines(ctx context.Context) error {
	e.store.EnableKeyExpiryNotifications(ctx)
	keys, err := e.store.WatchExpired(ctx)
	if err != nil {
		return err
	}
	e.logger.Info("deadline watcher started")
	for key := range keys {
		roomId, kind, ok := store.ParseDeadlineKey(key)
		if !ok {
			continue
		}
		switch kind {
		case store.DeadlineWordPick:
			go e.runDeadline("word pick", roomId, e.HandlePickDeadline)
		case store.DeadlineTurn:
			go e.runDeadline("turn", roomId, e.HandleTurnDeadline)
		}
	}
	return nil
}
