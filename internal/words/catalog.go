package words

import (
	"embed"
	"encoding/csv"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/sketchwars/sketchwars-backend/internal"
)

//go:embed data/easy.csv data/medium.csv data/hard.csv
var dataFS embed.FS

// Catalog holds the static word dictionaries, one list per difficulty.
type Catalog struct {
	byDifficulty map[internal.WordDifficulty][]string
}

func Load() (*Catalog, error) {
	c := &Catalog{byDifficulty: make(map[internal.WordDifficulty][]string, 3)}
	files := map[internal.WordDifficulty]string{
		internal.DifficultyEasy:   "data/easy.csv",
		internal.DifficultyMedium: "data/medium.csv",
		internal.DifficultyHard:   "data/hard.csv",
	}
	for difficulty, path := range files {
		list, err := readWordFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %s words: %w", difficulty, err)
		}
		if len(list) < internal.SuggestionCount {
			return nil, fmt.Errorf("%s word list has only %d words", difficulty, len(list))
		}
		c.byDifficulty[difficulty] = list
	}
	return c, nil
}

// readWordFile parses a word,count CSV. Counts are popularity data carried
// along in the source files; only the words matter here.
func readWordFile(path string) ([]string, error) {
	f, err := dataFS.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	words := make([]string, 0, len(records))
	for _, record := range records {
		if len(record) < 2 {
			continue
		}
		if _, err := strconv.Atoi(record[1]); err != nil {
			continue
		}
		word := strings.ToLower(strings.TrimSpace(record[0]))
		if word != "" {
			words = append(words, word)
		}
	}
	return words, nil
}

func (c *Catalog) Size(difficulty internal.WordDifficulty) int {
	return len(c.byDifficulty[difficulty])
}

// Suggest returns three random words for the difficulty that are not in the
// used set. When fewer than three unused words remain the pool resets;
// poolReset tells the caller to clear the room's used set.
func (c *Catalog) Suggest(difficulty internal.WordDifficulty, used []string) (choices []string, poolReset bool) {
	list, ok := c.byDifficulty[difficulty]
	if !ok {
		list = c.byDifficulty[internal.DifficultyMedium]
	}

	usedSet := make(map[string]struct{}, len(used))
	for _, w := range used {
		usedSet[strings.ToLower(w)] = struct{}{}
	}

	pool := make([]string, 0, len(list))
	for _, w := range list {
		if _, taken := usedSet[w]; !taken {
			pool = append(pool, w)
		}
	}
	if len(pool) < internal.SuggestionCount {
		pool = append([]string(nil), list...)
		poolReset = true
	}

	rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	return pool[:internal.SuggestionCount], poolReset
}
