package game

import (
	"math"
	"time"
)

// GuesserPoints computes the award for a correct guess. The guesser gets a
// share of base proportional to the time still on the clock, rounded up, plus
// a flat bonus so even a last-second guess pays out.
func GuesserPoints(base, bonus int, left, total time.Duration) int {
	if total <= 0 {
		return bonus
	}
	if left < 0 {
		left = 0
	}
	if left > total {
		left = total
	}
	fraction := left.Seconds() / total.Seconds()
	return int(math.Ceil(float64(base)*fraction)) + bonus
}

// DrawerBonus is the drawer's cut of a single correct guess, rounded down.
// The drawer earns it once per guesser, so a turn where everyone guesses
// instantly pays the drawer the most.
func DrawerBonus(share float64, guesserPoints int) int {
	if share <= 0 || guesserPoints <= 0 {
		return 0
	}
	return int(math.Floor(share * float64(guesserPoints)))
}
