package ws

import (
	"sync"
	"time"

	"github.com/sketchwars/sketchwars-backend/internal"
)

// limit is a token-bucket refill config. Rate is tokens per second, Burst the
// bucket capacity.
type limit struct {
	Rate  float64
	Burst int
}

// Per-command budgets. Drawing is the hot path and gets room to stream;
// everything that mutates game state is strict.
var commandLimits = map[string]limit{
	internal.CmdDrawing:      {Rate: 30, Burst: 90},
	internal.CmdDrawingClear: {Rate: 1, Burst: 3},
	internal.CmdNewMessage:   {Rate: 2, Burst: 6},

	internal.CmdStartGame:          {Rate: 0.5, Burst: 2},
	internal.CmdStartTurn:          {Rate: 1, Burst: 3},
	internal.CmdSkipWords:          {Rate: 0.5, Burst: 2},
	internal.CmdUpdateRoomSettings: {Rate: 0.5, Burst: 3},
	internal.CmdVoteToKick:         {Rate: 0.2, Burst: 2},

	internal.CmdVoiceJoin:  {Rate: 0.5, Burst: 3},
	internal.CmdVoiceLeave: {Rate: 0.5, Burst: 3},
	internal.CmdVoiceMute:  {Rate: 1, Burst: 4},

	internal.CmdWebRTCOffer:        {Rate: 2, Burst: 8},
	internal.CmdWebRTCAnswer:       {Rate: 2, Burst: 8},
	internal.CmdWebRTCICECandidate: {Rate: 10, Burst: 40},
}

// globalLimit caps one connection's total throughput regardless of command.
var globalLimit = limit{Rate: 40, Burst: 120}

// disconnectAfter is the violation count that gets a connection dropped.
const disconnectAfter = 60

type tokenBucket struct {
	tokens    float64
	max       float64
	rate      float64
	lastCheck time.Time
}

func newTokenBucket(l limit, now time.Time) *tokenBucket {
	return &tokenBucket{
		tokens:    float64(l.Burst),
		max:       float64(l.Burst),
		rate:      l.Rate,
		lastCheck: now,
	}
}

func (tb *tokenBucket) allow(now time.Time) bool {
	tb.tokens += now.Sub(tb.lastCheck).Seconds() * tb.rate
	tb.lastCheck = now
	if tb.tokens > tb.max {
		tb.tokens = tb.max
	}
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// connLimiter rate-limits one socket, globally and per command. Repeated
// violations escalate to a disconnect.
type connLimiter struct {
	mu         sync.Mutex
	global     *tokenBucket
	buckets    map[string]*tokenBucket
	violations int

	now func() time.Time
}

func newConnLimiter() *connLimiter {
	now := time.Now
	return &connLimiter{
		global:  newTokenBucket(globalLimit, now()),
		buckets: make(map[string]*tokenBucket),
		now:     now,
	}
}

// Allow reports whether the command may proceed, and whether the connection
// has violated enough to be dropped.
func (rl *connLimiter) Allow(command string) (allowed, disconnect bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if !rl.global.allow(now) {
		rl.violations++
		return false, rl.violations >= disconnectAfter
	}

	cfg, ok := commandLimits[command]
	if !ok {
		// Unknown commands get a strict default.
		cfg = limit{Rate: 1, Burst: 2}
	}
	bucket, ok := rl.buckets[command]
	if !ok {
		bucket = newTokenBucket(cfg, now)
		rl.buckets[command] = bucket
	}
	if !bucket.allow(now) {
		rl.violations++
		return false, rl.violations >= disconnectAfter
	}

	if rl.violations > 0 {
		rl.violations--
	}
	return true, false
}
