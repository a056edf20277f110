package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sketchwars/sketchwars-backend/internal/store"
)

// Meta describes one open socket of a user.
type Meta struct {
	Ref      string `json:"ref"`
	Name     string `json:"display_name"`
	Avatar   string `json:"avatar,omitempty"`
	JoinedAt int64  `json:"joined_at"`
}

// Entry is all metas of one user, one per open socket.
type Entry struct {
	Metas []Meta `json:"metas"`
}

// Newest returns the meta with the largest joined_at, the one merge keeps.
func (e Entry) Newest() (Meta, bool) {
	if len(e.Metas) == 0 {
		return Meta{}, false
	}
	newest := e.Metas[0]
	for _, m := range e.Metas[1:] {
		if m.JoinedAt > newest.JoinedAt {
			newest = m
		}
	}
	return newest, true
}

// State maps user id to presence entry; the payload of presence_state.
type State map[string]Entry

// Diff is the payload of presence_diff.
type Diff struct {
	Joins  map[string]Entry `json:"joins"`
	Leaves map[string]Entry `json:"leaves"`
}

// Merge applies a diff under the join-timestamp rules: for joins, the meta
// with the largest joined_at wins; a leave older than the held meta is
// ignored. Applying the same diff twice yields the same state.
func Merge(s State, d Diff) State {
	out := make(State, len(s))
	for id, e := range s {
		out[id] = e
	}
	for id, join := range d.Joins {
		incoming, ok := join.Newest()
		if !ok {
			continue
		}
		if held, exists := out[id]; exists {
			if current, ok := held.Newest(); ok && current.JoinedAt >= incoming.JoinedAt {
				continue
			}
		}
		out[id] = Entry{Metas: []Meta{incoming}}
	}
	for id, leave := range d.Leaves {
		gone, ok := leave.Newest()
		if !ok {
			continue
		}
		held, exists := out[id]
		if !exists {
			continue
		}
		if current, ok := held.Newest(); ok && current.JoinedAt > gone.JoinedAt {
			// A newer socket of this user is still here; stale leave.
			continue
		}
		delete(out, id)
	}
	return out
}

// Tracker maintains the per-room presence set in the shared store. Callers
// hold the room lock across Track/Untrack.
type Tracker struct {
	store  *store.Store
	logger *slog.Logger
}

func NewTracker(s *store.Store, logger *slog.Logger) *Tracker {
	return &Tracker{store: s, logger: logger}
}

// Track registers a socket for a user and returns the join diff to broadcast.
func (t *Tracker) Track(ctx context.Context, roomId, userId string, m Meta) (Diff, error) {
	entry, err := t.load(ctx, roomId, userId)
	if err != nil {
		return Diff{}, err
	}
	entry.Metas = append(entry.Metas, m)
	if err := t.save(ctx, roomId, userId, entry); err != nil {
		return Diff{}, err
	}
	return Diff{Joins: map[string]Entry{userId: {Metas: []Meta{m}}}}, nil
}

// Untrack removes one socket. left is true when it was the user's last socket
// in the room; only then does the diff carry a leave.
func (t *Tracker) Untrack(ctx context.Context, roomId, userId, ref string) (Diff, bool, error) {
	entry, err := t.load(ctx, roomId, userId)
	if err != nil {
		return Diff{}, false, err
	}

	var removed *Meta
	kept := entry.Metas[:0]
	for _, m := range entry.Metas {
		if m.Ref == ref && removed == nil {
			mm := m
			removed = &mm
			continue
		}
		kept = append(kept, m)
	}
	if removed == nil {
		return Diff{}, false, nil
	}

	if len(kept) == 0 {
		if err := t.store.PresenceRemove(ctx, roomId, userId); err != nil {
			return Diff{}, false, err
		}
		return Diff{Leaves: map[string]Entry{userId: {Metas: []Meta{*removed}}}}, true, nil
	}

	entry.Metas = kept
	if err := t.save(ctx, roomId, userId, entry); err != nil {
		return Diff{}, false, err
	}
	return Diff{}, false, nil
}

// Evict removes every socket of a user at once, returning the leave diff.
// Used when a player is kicked rather than disconnecting.
func (t *Tracker) Evict(ctx context.Context, roomId, userId string) (Diff, error) {
	entry, err := t.load(ctx, roomId, userId)
	if err != nil {
		return Diff{}, err
	}
	if len(entry.Metas) == 0 {
		return Diff{}, nil
	}
	if err := t.store.PresenceRemove(ctx, roomId, userId); err != nil {
		return Diff{}, err
	}
	return Diff{Leaves: map[string]Entry{userId: entry}}, nil
}

// List returns the room's full presence state.
func (t *Tracker) List(ctx context.Context, roomId string) (State, error) {
	fields, err := t.store.PresenceAll(ctx, roomId)
	if err != nil {
		return nil, err
	}
	state := make(State, len(fields))
	for id, data := range fields {
		var entry Entry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			t.logger.Warn("skipping unreadable presence entry", "room", roomId, "user", id, "error", err)
			continue
		}
		state[id] = entry
	}
	return state, nil
}

// Present reports whether the user has at least one tracked socket.
func (t *Tracker) Present(ctx context.Context, roomId, userId string) (bool, error) {
	_, ok, err := t.store.PresenceGet(ctx, roomId, userId)
	return ok, err
}

func (t *Tracker) Count(ctx context.Context, roomId string) (int, error) {
	return t.store.PresenceCount(ctx, roomId)
}

func (t *Tracker) load(ctx context.Context, roomId, userId string) (Entry, error) {
	data, ok, err := t.store.PresenceGet(ctx, roomId, userId)
	if err != nil || !ok {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return Entry{}, fmt.Errorf("unmarshal presence entry %s: %w", userId, err)
	}
	return entry, nil
}

func (t *Tracker) save(ctx context.Context, roomId, userId string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal presence entry %s: %w", userId, err)
	}
	return t.store.PresenceSet(ctx, roomId, userId, string(data))
}
