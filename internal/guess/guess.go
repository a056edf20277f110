package guess

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Verdict classifies one chat message against the current word.
type Verdict int

const (
	Miss Verdict = iota
	Close
	Correct
)

func (v Verdict) String() string {
	switch v {
	case Correct:
		return "correct"
	case Close:
		return "close"
	default:
		return "miss"
	}
}

const DefaultSimilarity = 0.75

// Evaluator decides correct/close/miss. The word is compared lowercased with
// punctuation preserved; guesses are trimmed and lowercased.
type Evaluator struct {
	threshold float64
}

func NewEvaluator(threshold float64) *Evaluator {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarity
	}
	return &Evaluator{threshold: threshold}
}

func (e *Evaluator) Evaluate(word, message string) Verdict {
	w := strings.ToLower(word)
	g := strings.ToLower(strings.TrimSpace(message))
	if g == "" || w == "" {
		return Miss
	}
	if g == w {
		return Correct
	}
	if e.isClose(w, g) {
		return Close
	}
	return Miss
}

func (e *Evaluator) isClose(word, guess string) bool {
	if utf8.RuneCountInString(word) == utf8.RuneCountInString(guess) {
		if similarity(word, guess) >= e.threshold {
			return true
		}
	}
	// The whole word buried in a longer guess ("its an apple") still counts.
	return len(guess) > len(word) && strings.Contains(guess, word)
}

// DrawerLeaks reports whether a drawer chat message would give the word away,
// either verbatim or through a close variant of any token.
func (e *Evaluator) DrawerLeaks(word, message string) bool {
	w := strings.ToLower(word)
	m := strings.ToLower(strings.TrimSpace(message))
	if w == "" || m == "" {
		return false
	}
	if strings.Contains(m, w) {
		return true
	}
	for _, token := range strings.Fields(m) {
		if e.Evaluate(w, token) != Miss {
			return true
		}
	}
	return false
}

func similarity(a, b string) float64 {
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
