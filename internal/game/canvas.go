package game

import (
	"context"
	"encoding/json"

	"github.com/sketchwars/sketchwars-backend/internal"
	"github.com/sketchwars/sketchwars-backend/internal/bus"
)

// Stroke relay is the hot path and stays off the room lock: the snapshot is a
// last-writer-wins replace and the drawer check reads a plain room snapshot.

// HandleStroke validates one stroke frame, stores it as the room's canvas
// snapshot and relays it to everyone but the sending socket. Malformed frames
// are dropped without an error reply.
func (e *Engine) HandleStroke(ctx context.Context, roomId, userId, ref string, raw json.RawMessage) error {
	room, err := e.store.LoadRoom(ctx, roomId)
	if err != nil {
		return err
	}
	if room.Phase != internal.PhaseDrawing || !room.IsDrawer(userId) {
		return internal.ErrNotDrawer
	}
	stroke, ok := internal.FilterStroke(raw)
	if !ok {
		e.logger.Debug("dropping malformed stroke", "room", roomId, "user", userId)
		return nil
	}
	if err := e.store.SaveCanvas(ctx, roomId, stroke); err != nil {
		return err
	}
	return e.bus.PublishExcept(ctx, bus.RoomTopic(roomId), bus.Except{Ref: ref}, internal.EventDrawing, stroke)
}

// HandleClear wipes the canvas on the drawer's request.
func (e *Engine) HandleClear(ctx context.Context, roomId, userId, ref string) error {
	room, err := e.store.LoadRoom(ctx, roomId)
	if err != nil {
		return err
	}
	if room.Phase != internal.PhaseDrawing || !room.IsDrawer(userId) {
		return internal.ErrNotDrawer
	}
	if err := e.store.ClearCanvas(ctx, roomId); err != nil {
		return err
	}
	return e.bus.PublishExcept(ctx, bus.RoomTopic(roomId), bus.Except{Ref: ref}, internal.EventDrawingClear, map[string]any{"room_id": roomId})
}
