package search

import (
	"time"

	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/position"
	"github.com/cricklet/chessuci/internal/uci"
)

// Clock holds the time control sent with "go". Overhead is the
// communication latency the engine should keep in reserve.
type Clock struct {
	WTime     Optional[time.Duration]
	BTime     Optional[time.Duration]
	WInc      Optional[time.Duration]
	BInc      Optional[time.Duration]
	MovesToGo Optional[int]
	Overhead  time.Duration
}

func (c Clock) Remaining(side position.Color) Optional[time.Duration] {
	if side == position.White {
		return c.WTime
	}
	return c.BTime
}

func (c Clock) Increment(side position.Color) time.Duration {
	if side == position.White {
		return c.WInc.ValueOr(0)
	}
	return c.BInc.ValueOr(0)
}

// Limits constrain a search. Absent values mean unconstrained.
type Limits struct {
	Depth       Optional[int]
	Nodes       Optional[int]
	Mate        Optional[int]
	MoveTime    Optional[time.Duration]
	Clock       Clock
	Infinite    bool
	Ponder      bool
	SearchMoves []position.Move
}

func LimitsFromGo(g uci.Go) Limits {
	return Limits{
		Depth:    g.Depth,
		Nodes:    g.Nodes,
		Mate:     g.Mate,
		MoveTime: g.MoveTime,
		Clock: Clock{
			WTime:     g.WTime,
			BTime:     g.BTime,
			WInc:      g.WInc,
			BInc:      g.BInc,
			MovesToGo: g.MovesToGo,
		},
		Infinite:    g.Infinite,
		Ponder:      g.Ponder,
		SearchMoves: g.SearchMoves,
	}
}

// HasClock is true when the side to move has a remaining time.
func (l Limits) HasClock(side position.Color) bool {
	return l.Clock.Remaining(side).HasValue()
}

// RootMoves restricts the legal moves to SearchMoves. Illegal entries are
// ignored; when none remain every legal move is searched.
func (l Limits) RootMoves(pos position.Position) []position.Move {
	legal := pos.LegalMoves()
	if len(l.SearchMoves) == 0 {
		return legal
	}
	restricted := FilterSlice(legal, func(m position.Move) bool {
		return Contains(l.SearchMoves, m)
	})
	if len(restricted) == 0 {
		return legal
	}
	return restricted
}
