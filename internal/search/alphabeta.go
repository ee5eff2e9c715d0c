package search

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/notnil/chess"

	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/options"
	"github.com/cricklet/chessuci/internal/position"
)

const (
	DefaultHashMB   = 16
	DefaultMaxDepth = 64

	_checkInterval   = 1024
	_quiescenceDepth = 6
)

// AlphaBeta is an iterative deepening negamax searcher with a
// transposition table. It reports after every completed depth.
type AlphaBeta struct {
	MaxDepth int
	Logger   Logger

	mu      sync.Mutex
	table   *TranspositionTable
	tableMB int
}

var _ Searcher = (*AlphaBeta)(nil)
var _ Warmer = (*AlphaBeta)(nil)
var _ Resetter = (*AlphaBeta)(nil)
var _ HashClearer = (*AlphaBeta)(nil)

func NewAlphaBeta(maxDepth int, logger Logger) *AlphaBeta {
	return &AlphaBeta{MaxDepth: maxDepth, Logger: logger}
}

func (s *AlphaBeta) logger() Logger {
	if s.Logger == nil {
		return &SilentLogger
	}
	return s.Logger
}

func (s *AlphaBeta) ensureTable(mb int) {
	if s.table == nil || s.tableMB != mb {
		s.table = NewTranspositionTableMB(mb)
		s.tableMB = mb
	}
}

func (s *AlphaBeta) WarmUp(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureTable(DefaultHashMB)
	return ctx.Err()
}

func (s *AlphaBeta) NewGame() {
	s.ClearHash()
}

func (s *AlphaBeta) ClearHash() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table != nil {
		s.table.Clear()
	}
}

func (s *AlphaBeta) maxDepth(limits Limits) int {
	result := s.MaxDepth
	if result <= 0 {
		result = DefaultMaxDepth
	}
	if limits.Depth.HasValue() {
		result = MinInt(result, MaxInt(limits.Depth.Value(), 1))
	}
	if limits.Mate.HasValue() {
		result = MinInt(result, MaxInt(2*limits.Mate.Value()-1, 1))
	}
	return result
}

func (s *AlphaBeta) Search(ctx context.Context, request Request, evaluator Evaluator, report Reporter) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureTable(request.Options.Spin(options.Hash, DefaultHashMB))

	root := request.Position
	rootMoves := request.Limits.RootMoves(root)
	if len(rootMoves) == 0 {
		return Result{BestMove: position.NullMove}, nil
	}

	start := time.Now()
	a := &alphaBetaSearch{
		ctx:       ctx,
		evaluator: evaluator,
		table:     s.table,
		nodeLimit: request.Limits.Nodes,
	}

	result := Result{BestMove: rootMoves[0]}
	maxDepth := s.maxDepth(request.Limits)
	for depth := 1; depth <= maxDepth; depth++ {
		score, pv, complete := a.searchRoot(root, rootMoves, depth)
		if !complete {
			break
		}

		result = ResultFromPV(pv, Some(score))
		if report != nil {
			report(Progress{
				Depth:    depth,
				SelDepth: a.selDepth,
				Nodes:    a.nodes,
				Elapsed:  time.Since(start),
				Score:    score,
				PV:       pv,
				HashFull: Some(s.table.HashFull()),
			})
		}

		if score.IsMate() {
			break
		}
	}

	s.logger().Println("searched", a.nodes, "nodes, best move", result.BestMove, "-", s.table.Stats())
	return result, nil
}

type alphaBetaSearch struct {
	ctx       context.Context
	evaluator Evaluator
	table     *TranspositionTable
	nodeLimit Optional[int]

	nodes    int
	selDepth int
	stopped  bool
}

func (a *alphaBetaSearch) visit() bool {
	a.nodes++
	if a.stopped {
		return false
	}
	if a.nodeLimit.HasValue() && a.nodes > a.nodeLimit.Value() {
		a.stopped = true
	} else if a.nodes%_checkInterval == 0 && a.ctx.Err() != nil {
		a.stopped = true
	}
	return !a.stopped
}

func (a *alphaBetaSearch) searchRoot(root position.Position, rootMoves []position.Move, depth int) (Score, []position.Move, bool) {
	successors := FilterSlice(root.Successors(), func(s position.Successor) bool {
		return Contains(rootMoves, s.Move)
	})

	key := HashKey(root)
	ttMove := position.NullMove
	if entry := a.table.Lookup(key); entry.HasValue() {
		ttMove = entry.Value().Move
	}
	orderSuccessors(successors, ttMove)

	alpha, beta := -Infinity, Infinity
	bestScore := -Infinity
	var bestPV []position.Move
	for _, successor := range successors {
		if !a.visit() {
			return bestScore, bestPV, false
		}
		score, pv := a.negamax(successor.Position, depth-1, 1, -beta, -alpha)
		score = -score
		if a.stopped {
			return bestScore, bestPV, false
		}

		if score > bestScore {
			bestScore = score
			bestPV = append([]position.Move{successor.Move}, pv...)
		}
		if score > alpha {
			alpha = score
		}
	}

	a.table.Put(key, depth, bestScore.toTable(0), Exact, bestPV[0])
	return bestScore, bestPV, true
}

func (a *alphaBetaSearch) negamax(pos position.Position, depth int, ply int, alpha Score, beta Score) (Score, []position.Move) {
	if ply > a.selDepth {
		a.selDepth = ply
	}

	key := HashKey(pos)
	ttMove := position.NullMove
	if entry := a.table.Get(key, depth); entry.HasValue() {
		cached := entry.Value()
		score := cached.Score.fromTable(ply)
		switch cached.ScoreType {
		case Exact:
			return score, []position.Move{cached.Move}
		case BetaFailLowerBound:
			if score >= beta {
				return score, []position.Move{cached.Move}
			}
		case AlphaFailUpperBound:
			if score <= alpha {
				return score, nil
			}
		}
		ttMove = cached.Move
	} else if entry = a.table.Lookup(key); entry.HasValue() {
		ttMove = entry.Value().Move
	}

	successors := pos.Successors()
	if len(successors) == 0 {
		if pos.IsCheckmate() {
			return MatedIn(ply), nil
		}
		return 0, nil
	}

	if depth <= 0 {
		return a.quiesce(pos, successors, ply, alpha, beta, 0), nil
	}

	orderSuccessors(successors, ttMove)

	originalAlpha := alpha
	bestScore := -Infinity
	var bestPV []position.Move
	for _, successor := range successors {
		if !a.visit() {
			return 0, nil
		}
		score, pv := a.negamax(successor.Position, depth-1, ply+1, -beta, -alpha)
		score = -score
		if a.stopped {
			return 0, nil
		}

		if score > bestScore {
			bestScore = score
			bestPV = append([]position.Move{successor.Move}, pv...)
		}
		if score > alpha {
			alpha = score
		}
		if alpha >= beta {
			// The enemy will avoid this line
			break
		}
	}

	scoreType := Exact
	if bestScore <= originalAlpha {
		scoreType = AlphaFailUpperBound
	} else if bestScore >= beta {
		scoreType = BetaFailLowerBound
	}
	a.table.Put(key, depth, bestScore.toTable(ply), scoreType, bestPV[0])

	return bestScore, bestPV
}

// quiesce only follows captures and promotions so the static evaluation
// isn't taken in the middle of an exchange.
func (a *alphaBetaSearch) quiesce(pos position.Position, successors []position.Successor, ply int, alpha Score, beta Score, qdepth int) Score {
	standPat := a.evaluator.Evaluate(pos)
	if standPat >= beta || qdepth >= _quiescenceDepth {
		return standPat
	}
	if standPat > alpha {
		alpha = standPat
	}

	if successors == nil {
		successors = pos.Successors()
	}
	captures := FilterSlice(successors, isNoisy)
	orderSuccessors(captures, position.NullMove)

	for _, capture := range captures {
		if !a.visit() {
			return 0
		}
		score := -a.quiesce(capture.Position, nil, ply+1, -beta, -alpha, qdepth+1)
		if a.stopped {
			return 0
		}
		if score >= beta {
			return score
		}
		if score > alpha {
			alpha = score
		}
	}
	return alpha
}

func isNoisy(s position.Successor) bool {
	return s.Capture != chess.NoPieceType || s.Move.Promotion != chess.NoPieceType
}

// orderSuccessors puts the hash move first, then captures by victim value.
func orderSuccessors(successors []position.Successor, ttMove position.Move) {
	priority := func(s position.Successor) int {
		if s.Move == ttMove {
			return 100000
		}
		return PieceValue(s.Capture)*10 + PieceValue(s.Move.Promotion)
	}
	sort.SliceStable(successors, func(i, j int) bool {
		return priority(successors[i]) > priority(successors[j])
	})
}
