package internal

import (
	"strings"
	"time"
	"unicode/utf8"
)

func NewPlayer(id, name, avatar string, now time.Time) *Player {
	return &Player{
		Id:       id,
		Name:     name,
		Avatar:   avatar,
		JoinedAt: now.UnixMilli(),
	}
}

// ResetTurnState clears the per-turn guess flags between turns.
func (p *Player) ResetTurnState() {
	p.GuessedTurn = false
	p.GuessTimeMs = 0
}

// ValidateName trims and checks a display name against the join contract.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < 1 || n > MaxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

// ValidateChatMessage enforces the new_message payload constraints.
func ValidateChatMessage(msg string) (string, error) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(msg) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return msg, nil
}
