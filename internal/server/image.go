package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sketchwars/sketchwars-backend/internal"
)

const maxImageBody = 64 * 1024

// GameOverImageHandler renders a shareable SVG scoreboard card from a
// final-results payload. Rooms are deleted shortly after a game ends, so the
// client posts the results it already holds instead of us looking them up.
func (s *Server) GameOverImageHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBody)

	var results internal.FinalResults
	if err := json.NewDecoder(r.Body).Decode(&results); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad results payload"})
		return
	}

	title := "Game over!"
	if len(results.Leaderboard) > 0 {
		top := results.Leaderboard[0]
		title = fmt.Sprintf("%s wins with %d points!", top.Name, top.Score)
	}

	// Leaderboard rows, top 3 get medals.
	medals := []string{"🥇", "🥈", "🥉"}
	rows := ""
	for i, entry := range results.Leaderboard {
		if i >= 6 {
			break
		}
		medal := ""
		if i < len(medals) {
			medal = medals[i]
		}
		y := 230 + i*56
		bg := "#f8fafc"
		if i == 0 {
			bg = "#fef3c7"
		}
		rows += fmt.Sprintf(
			`<rect x="80" y="%d" width="480" height="48" rx="10" fill="%s"/>`+
				`<text x="104" y="%d" font-size="26">%s</text>`+
				`<text x="150" y="%d" font-size="24" font-weight="600" fill="#0f172a" font-family="sans-serif">%s</text>`+
				`<text x="536" y="%d" text-anchor="end" font-size="24" font-weight="700" fill="#7c3aed" font-family="sans-serif">%d</text>`,
			y, bg,
			y+33, medal,
			y+33, svgEsc(entry.Name),
			y+33, entry.Score,
		)
	}

	// Award panel on the right.
	awards := ""
	awardY := 250
	if results.MVP != nil {
		awards += fmt.Sprintf(
			`<text x="880" y="%d" text-anchor="middle" font-size="22" fill="#64748b" font-family="sans-serif">MVP</text>`+
				`<text x="880" y="%d" text-anchor="middle" font-size="30" font-weight="700" fill="#0f172a" font-family="sans-serif">%s</text>`,
			awardY, awardY+40, svgEsc(results.MVP.Name),
		)
		awardY += 110
	}
	if results.FastestGuess != nil {
		awards += fmt.Sprintf(
			`<text x="880" y="%d" text-anchor="middle" font-size="22" fill="#64748b" font-family="sans-serif">Fastest guess</text>`+
				`<text x="880" y="%d" text-anchor="middle" font-size="30" font-weight="700" fill="#0f172a" font-family="sans-serif">%s · %.1fs</text>`,
			awardY, awardY+40, svgEsc(results.FastestGuess.Name), float64(results.FastestGuess.TimeToGuess)/1000,
		)
	}

	footer := fmt.Sprintf("%d rounds · %d players", results.RoundsPlayed, results.TotalPlayers)

	svg := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="1200" height="630" viewBox="0 0 1200 630">
  <defs>
    <linearGradient id="bg" x1="0" y1="0" x2="1" y2="1">
      <stop offset="0%%" stop-color="#7c3aed"/>
      <stop offset="100%%" stop-color="#c084fc"/>
    </linearGradient>
  </defs>
  <rect width="1200" height="630" fill="url(#bg)"/>
  <rect x="32" y="32" width="1136" height="566" rx="24" fill="white" opacity="0.97"/>

  <!-- Title -->
  <text x="600" y="110" text-anchor="middle" font-size="44" font-weight="900" fill="#0f172a" font-family="sans-serif">🎨 %s</text>

  <!-- Divider -->
  <line x1="680" y1="180" x2="680" y2="540" stroke="#e2e8f0" stroke-width="2" stroke-dasharray="6,6"/>

  <!-- Leaderboard -->
  <text x="320" y="200" text-anchor="middle" font-size="24" font-weight="700" fill="#64748b" font-family="sans-serif">Leaderboard</text>
  %s

  <!-- Awards -->
  %s

  <!-- Footer -->
  <text x="600" y="580" text-anchor="middle" font-size="20" fill="#94a3b8" font-family="sans-serif">Sketch Wars · %s</text>
</svg>`,
		svgEsc(title), rows, awards, svgEsc(footer))

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write([]byte(svg))
}

func svgEsc(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	return s
}
