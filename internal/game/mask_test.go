package game

import (
	"reflect"
	"testing"

	"github.com/sketchwars/sketchwars-backend/internal"
)

func TestSpecialChars(t *testing.T) {
	tests := []struct {
		word string
		want []internal.SpecialChar
	}{
		{"apple", nil},
		{"time machine", []internal.SpecialChar{{Index: 4, Char: " "}}},
		{"t-rex", []internal.SpecialChar{{Index: 1, Char: "-"}}},
		{"rock'n'roll", []internal.SpecialChar{{Index: 4, Char: "'"}, {Index: 6, Char: "'"}}},
	}
	for _, tt := range tests {
		got := specialChars(tt.word)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("specialChars(%q) = %v, want %v", tt.word, got, tt.want)
		}
	}
}

func TestUnrevealedLetters(t *testing.T) {
	word := "time machine"

	all := unrevealedLetters(word, nil)
	if len(all) != 11 {
		t.Fatalf("expected 11 letter positions in %q, got %d", word, len(all))
	}
	for _, i := range all {
		if i == 4 {
			t.Fatalf("space position should not be a letter position")
		}
	}

	left := unrevealedLetters(word, []int{0, 5})
	if len(left) != 9 {
		t.Fatalf("expected 9 unrevealed after two hints, got %d", len(left))
	}
	for _, i := range left {
		if i == 0 || i == 5 {
			t.Fatalf("revealed index %d still reported unrevealed", i)
		}
	}
}

func TestRuneAt(t *testing.T) {
	if got := runeAt("apple", 1); got != "p" {
		t.Errorf("runeAt(apple, 1) = %q, want p", got)
	}
	if got := runeAt("apple", 9); got != "" {
		t.Errorf("runeAt out of range = %q, want empty", got)
	}
}
