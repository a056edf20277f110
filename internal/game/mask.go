package game

import (
	"unicode"

	"github.com/sketchwars/sketchwars-backend/internal"
)

// Guessers see the word as a row of blanks. Non-letter runes (spaces, hyphens,
// apostrophes) are shown up-front; hints then reveal individual letters.
// Indexes are rune positions.

func specialChars(word string) []internal.SpecialChar {
	var special []internal.SpecialChar
	for i, r := range []rune(word) {
		if !unicode.IsLetter(r) {
			special = append(special, internal.SpecialChar{Index: i, Char: string(r)})
		}
	}
	return special
}

func letterIndexes(word string) []int {
	var indexes []int
	for i, r := range []rune(word) {
		if unicode.IsLetter(r) {
			indexes = append(indexes, i)
		}
	}
	return indexes
}

func runeAt(word string, index int) string {
	runes := []rune(word)
	if index < 0 || index >= len(runes) {
		return ""
	}
	return string(runes[index])
}

// unrevealedLetters filters the word's letter positions down to those not yet
// revealed by a hint.
func unrevealedLetters(word string, revealed []int) []int {
	taken := make(map[int]bool, len(revealed))
	for _, i := range revealed {
		taken[i] = true
	}
	var left []int
	for _, i := range letterIndexes(word) {
		if !taken[i] {
			left = append(left, i)
		}
	}
	return left
}
