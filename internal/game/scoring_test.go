package game

import (
	"testing"
	"time"
)

func TestGuesserPoints(t *testing.T) {
	tests := []struct {
		name  string
		left  time.Duration
		total time.Duration
		want  int
	}{
		{"guess at 10s of 60s", 50 * time.Second, 60 * time.Second, 217},
		{"instant guess", 60 * time.Second, 60 * time.Second, 250},
		{"last second", 1 * time.Second, 60 * time.Second, 54},
		{"clock expired", 0, 60 * time.Second, 50},
		{"negative clamped", -3 * time.Second, 60 * time.Second, 50},
		{"half of 90s", 45 * time.Second, 90 * time.Second, 150},
		{"sub-second remainder rounds up", 100 * time.Millisecond, 60 * time.Second, 51},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GuesserPoints(200, 50, tt.left, tt.total)
			if got != tt.want {
				t.Errorf("GuesserPoints(200, 50, %v, %v) = %d, want %d", tt.left, tt.total, got, tt.want)
			}
		})
	}
}

func TestDrawerBonus(t *testing.T) {
	tests := []struct {
		name   string
		share  float64
		points int
		want   int
	}{
		{"half of 217", 0.5, 217, 108},
		{"half of 250", 0.5, 250, 125},
		{"half of 51", 0.5, 51, 25},
		{"zero share", 0, 217, 0},
		{"zero points", 0.5, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DrawerBonus(tt.share, tt.points)
			if got != tt.want {
				t.Errorf("DrawerBonus(%v, %d) = %d, want %d", tt.share, tt.points, got, tt.want)
			}
		})
	}
}
