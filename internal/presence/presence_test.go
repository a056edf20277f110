package presence

import (
	"reflect"
	"testing"
)

func entry(ref string, joinedAt int64) Entry {
	return Entry{Metas: []Meta{{Ref: ref, Name: "player", JoinedAt: joinedAt}}}
}

func TestMergeJoinKeepsLargestJoinedAt(t *testing.T) {
	s := State{"u1": entry("a", 100)}

	merged := Merge(s, Diff{Joins: map[string]Entry{"u1": entry("b", 200)}})
	if m, _ := merged["u1"].Newest(); m.JoinedAt != 200 {
		t.Errorf("joined_at = %d, want 200", m.JoinedAt)
	}

	// An older join must not replace the held meta.
	merged = Merge(merged, Diff{Joins: map[string]Entry{"u1": entry("c", 150)}})
	if m, _ := merged["u1"].Newest(); m.JoinedAt != 200 {
		t.Errorf("joined_at after stale join = %d, want 200", m.JoinedAt)
	}
}

func TestMergeIgnoresStaleLeave(t *testing.T) {
	s := State{"u1": entry("b", 200)}

	// One of the user's older sockets dropped; the user stays present.
	merged := Merge(s, Diff{Leaves: map[string]Entry{"u1": entry("a", 100)}})
	if _, ok := merged["u1"]; !ok {
		t.Fatal("stale leave removed a newer presence")
	}

	// A leave at or beyond the held timestamp removes the user.
	merged = Merge(merged, Diff{Leaves: map[string]Entry{"u1": entry("b", 200)}})
	if _, ok := merged["u1"]; ok {
		t.Fatal("current leave did not remove the user")
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	s := State{
		"u1": entry("a", 100),
		"u2": entry("b", 150),
	}
	d := Diff{
		Joins:  map[string]Entry{"u3": entry("c", 300)},
		Leaves: map[string]Entry{"u2": entry("b", 150)},
	}

	once := Merge(s, d)
	twice := Merge(once, d)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("merge not idempotent:\nonce:  %#v\ntwice: %#v", once, twice)
	}
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	s := State{"u1": entry("a", 100)}
	_ = Merge(s, Diff{Leaves: map[string]Entry{"u1": entry("a", 100)}})
	if _, ok := s["u1"]; !ok {
		t.Fatal("Merge mutated its input state")
	}
}

func TestNewest(t *testing.T) {
	e := Entry{Metas: []Meta{
		{Ref: "a", JoinedAt: 10},
		{Ref: "c", JoinedAt: 30},
		{Ref: "b", JoinedAt: 20},
	}}
	m, ok := e.Newest()
	if !ok || m.Ref != "c" {
		t.Errorf("Newest = %+v ok=%v, want ref c", m, ok)
	}

	if _, ok := (Entry{}).Newest(); ok {
		t.Error("Newest on empty entry should report ok=false")
	}
}
