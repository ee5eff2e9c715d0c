package search

import (
	"context"
	"time"

	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/options"
	"github.com/cricklet/chessuci/internal/position"
	"github.com/cricklet/chessuci/internal/uci"
)

// Searcher picks a move. It must poll ctx and return promptly once it is
// cancelled, with the best move found so far.
type Searcher interface {
	Search(ctx context.Context, request Request, evaluator Evaluator, report Reporter) (Result, error)
}

// SearchFunc adapts a function to the Searcher interface.
type SearchFunc func(ctx context.Context, request Request, evaluator Evaluator, report Reporter) (Result, error)

func (f SearchFunc) Search(ctx context.Context, request Request, evaluator Evaluator, report Reporter) (Result, error) {
	return f(ctx, request, evaluator, report)
}

// Evaluator scores a position from the side to move's point of view.
type Evaluator interface {
	Evaluate(pos position.Position) Score
}

// TimeManager turns the game clock into a budget for one move.
type TimeManager interface {
	Allocate(clock Clock, side position.Color) time.Duration
}

// Warmer is implemented by searchers that need setup before the first
// search, eg. allocating a hash table.
type Warmer interface {
	WarmUp(ctx context.Context) error
}

// Resetter is implemented by searchers that keep state between moves of
// the same game.
type Resetter interface {
	NewGame()
}

type HashClearer interface {
	ClearHash()
}

// Configurable capabilities are handed the option values before each search.
type Configurable interface {
	Configure(opts options.Snapshot)
}

type Request struct {
	Position position.Position
	Limits   Limits
	Options  options.Snapshot
}

// Reporter receives progress snapshots while a search runs.
type Reporter func(Progress)

type Progress struct {
	Depth    int
	SelDepth int
	Nodes    int
	Elapsed  time.Duration
	Score    Score
	PV       []position.Move
	HashFull Optional[int]
}

func (p Progress) Info() uci.Info {
	info := uci.Info{
		Depth: Some(p.Depth),
		Nodes: Some(p.Nodes),
		Time:  Some(p.Elapsed),
		Score: Some(p.Score.UCI()),
		PV:    p.PV,
	}
	if p.SelDepth > 0 {
		info.SelDepth = Some(p.SelDepth)
	}
	if ms := p.Elapsed.Milliseconds(); ms > 0 {
		info.NPS = Some(int(int64(p.Nodes) * 1000 / ms))
	}
	if len(p.PV) == 0 {
		info.PV = nil
	}
	info.HashFull = p.HashFull
	return info
}

type Result struct {
	BestMove position.Move
	Ponder   Optional[position.Move]
	Score    Optional[Score]
	PV       []position.Move
}

func (r Result) BestMoveResponse() uci.BestMove {
	return uci.BestMove{Move: r.BestMove, Ponder: r.Ponder}
}

// ResultFromPV builds a result whose best and ponder moves come from pv.
func ResultFromPV(pv []position.Move, score Optional[Score]) Result {
	result := Result{BestMove: position.NullMove, Score: score, PV: pv}
	if len(pv) > 0 {
		result.BestMove = pv[0]
	}
	if len(pv) > 1 {
		result.Ponder = Some(pv[1])
	}
	return result
}
