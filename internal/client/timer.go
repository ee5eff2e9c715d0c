package client

import (
	"time"

	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/position"
	"github.com/cricklet/chessuci/internal/uci"
)

type playerClock struct {
	remaining time.Duration
	increment time.Duration
}

// Timer is a game clock for both sides. It builds the go command for the
// side to move and charges elapsed time when that side moves.
type Timer struct {
	white    Optional[playerClock]
	black    Optional[playerClock]
	moveTime Optional[time.Duration]

	side    position.Color
	started Optional[time.Time]

	// repeating time control: every period moves each side gets bonus
	period    int
	movesToGo int
	bonus     time.Duration

	now func() time.Time
}

// NewTimer gives both sides the same time and increment.
func NewTimer(initial time.Duration, increment time.Duration) *Timer {
	clock := Some(playerClock{remaining: initial, increment: increment})
	return &Timer{white: clock, black: clock, side: position.White, now: time.Now}
}

// NewMoveTimeTimer gives every move a fixed time.
func NewMoveTimeTimer(moveTime time.Duration) *Timer {
	return &Timer{moveTime: Some(moveTime), side: position.White, now: time.Now}
}

// NewTimerFromGo mirrors the clock of a go command, with side to move.
func NewTimerFromGo(g uci.Go, side position.Color) *Timer {
	t := &Timer{moveTime: g.MoveTime, side: side, now: time.Now}
	if g.WTime.HasValue() {
		t.white = Some(playerClock{remaining: g.WTime.Value(), increment: g.WInc.ValueOr(0)})
	}
	if g.BTime.HasValue() {
		t.black = Some(playerClock{remaining: g.BTime.Value(), increment: g.BInc.ValueOr(0)})
	}
	if g.MovesToGo.HasValue() && g.MovesToGo.Value() > 0 {
		t.period = g.MovesToGo.Value()
		t.movesToGo = t.period
	}
	return t
}

// WithMovesToGo turns the clock into a repeating control of period moves,
// adding bonus to both sides when a period completes.
func (t *Timer) WithMovesToGo(period int, bonus time.Duration) *Timer {
	t.period = period
	t.movesToGo = period
	t.bonus = bonus
	return t
}

func (t *Timer) SideToMove() position.Color {
	return t.side
}

// Start runs the clock of the side to move.
func (t *Timer) Start() {
	t.started = Some(t.now())
}

func (t *Timer) elapsed() time.Duration {
	if t.started.IsEmpty() {
		return 0
	}
	return t.now().Sub(t.started.Value())
}

func (t *Timer) clock(side position.Color) *Optional[playerClock] {
	if side == position.White {
		return &t.white
	}
	return &t.black
}

func remainingOrZero(total time.Duration, elapsed time.Duration) time.Duration {
	if elapsed > total {
		return 0
	}
	return total - elapsed
}

// Remaining is empty when side has neither a clock nor a move time.
func (t *Timer) Remaining(side position.Color) Optional[time.Duration] {
	elapsed := time.Duration(0)
	if side == t.side {
		elapsed = t.elapsed()
	}
	if clock := *t.clock(side); clock.HasValue() {
		return Some(remainingOrZero(clock.Value().remaining, elapsed))
	}
	if t.moveTime.HasValue() {
		return Some(remainingOrZero(t.moveTime.Value(), elapsed))
	}
	return Empty[time.Duration]()
}

// Flagged reports whether side ran out of clock time.
func (t *Timer) Flagged(side position.Color) bool {
	if t.clock(side).IsEmpty() {
		return false
	}
	return t.Remaining(side).Value() == 0
}

// MadeMove charges the side to move, adds its increment and starts the
// other side's clock.
func (t *Timer) MadeMove() {
	if clock := t.clock(t.side); clock.HasValue() {
		c := clock.Value()
		c.remaining = remainingOrZero(c.remaining, t.elapsed()) + c.increment
		*clock = Some(c)
	}

	if t.period > 0 && t.side == position.Black {
		t.movesToGo--
		if t.movesToGo <= 0 {
			t.movesToGo = t.period
			for _, side := range []position.Color{position.White, position.Black} {
				if clock := t.clock(side); clock.HasValue() {
					c := clock.Value()
					c.remaining += t.bonus
					*clock = Some(c)
				}
			}
		}
	}

	t.side = t.side.Other()
	t.Start()
}

// Go builds the go command for the side to move. Without any clock or move
// time for that side the search is infinite.
func (t *Timer) Go() uci.Go {
	g := uci.Go{MoveTime: t.moveTime}
	if t.white.HasValue() {
		g.WTime = t.Remaining(position.White)
		if inc := t.white.Value().increment; inc != 0 {
			g.WInc = Some(inc)
		}
	}
	if t.black.HasValue() {
		g.BTime = t.Remaining(position.Black)
		if inc := t.black.Value().increment; inc != 0 {
			g.BInc = Some(inc)
		}
	}
	if t.period > 0 {
		g.MovesToGo = Some(t.movesToGo)
	}
	if t.clock(t.side).IsEmpty() && t.moveTime.IsEmpty() {
		g.Infinite = true
	}
	return g
}
