package internal

import "encoding/json"

// Stroke is the only drawing payload the relay accepts. Decoding into this
// closed struct and re-marshalling strips any extra fields a client sends.
type Stroke struct {
	DrawMode    bool        `json:"drawMode"`
	StrokeColor string      `json:"strokeColor"`
	StrokeWidth float64     `json:"strokeWidth"`
	Paths       []PathPoint `json:"paths"`
}

type PathPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

const (
	MaxStrokeWidth = 100
	MaxPathPoints  = 2048
)

// FilterStroke parses a raw drawing payload into the fixed stroke schema and
// bounds it. Returns false when the payload is not a usable stroke.
func FilterStroke(raw json.RawMessage) (Stroke, bool) {
	var s Stroke
	if err := json.Unmarshal(raw, &s); err != nil {
		return Stroke{}, false
	}
	if len(s.Paths) == 0 || len(s.Paths) > MaxPathPoints {
		return Stroke{}, false
	}
	if s.StrokeWidth < 0 || s.StrokeWidth > MaxStrokeWidth {
		return Stroke{}, false
	}
	return s, true
}
