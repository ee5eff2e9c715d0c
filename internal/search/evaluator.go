package search

import (
	"sync/atomic"

	"github.com/notnil/chess"

	"github.com/cricklet/chessuci/internal/options"
	"github.com/cricklet/chessuci/internal/position"
)

var _pieceValues = map[chess.PieceType]int{
	chess.Pawn:   100,
	chess.Knight: 295,
	chess.Bishop: 330,
	chess.Rook:   500,
	chess.Queen:  900,
	chess.King:   0,
}

func PieceValue(p chess.PieceType) int {
	return _pieceValues[p]
}

var _developmentScale = 10

// Development tables are oriented for white with rank 8 in the first row.
var _developmentTables = map[chess.PieceType]developmentTable{
	chess.Rook: newDevelopmentTable([8][8]int{
		{0, 0, 0, 1, 1, 0, 0, 0},
		{0, 2, 2, 2, 2, 2, 2, 0},
		{1, 0, 0, 0, 0, 0, 0, 1},
		{-1, 0, 0, 0, 0, 0, 0, -1},
		{-1, 0, 0, 0, 0, 0, 0, -1},
		{-1, 0, 0, 0, 0, 0, 0, -1},
		{-1, 0, 0, 0, 0, 0, 0, -1},
		{0, 0, 0, 2, 2, 0, 0, 0},
	}, _developmentScale),
	chess.Pawn: newDevelopmentTable([8][8]int{
		{4, 4, 4, 4, 4, 4, 4, 4},
		{3, 3, 3, 4, 4, 3, 3, 3},
		{3, 3, 3, 3, 3, 3, 3, 3},
		{2, 2, 2, 1, 1, 2, 2, 2},
		{1, 1, 1, 3, 3, 1, 1, 1},
		{0, 1, 1, 2, 2, 1, 1, 0},
		{0, 0, 0, 0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0, 0, 0, 0},
	}, _developmentScale*2),
	chess.Bishop: newDevelopmentTable([8][8]int{
		{-1, -1, -1, -1, -1, -1, -1, -1},
		{-1, 0, 0, 0, 0, 0, 0, -1},
		{-1, 0, 1, 1, 1, 1, 0, -1},
		{-1, 1, 1, 2, 2, 1, 1, -1},
		{-1, 0, 1, 2, 2, 1, 0, -1},
		{-1, 2, 2, 2, 2, 2, 2, -1},
		{-1, 1, 0, 0, 0, 0, 1, -1},
		{-1, -1, -1, -1, -1, -1, -1, -1},
	}, _developmentScale),
	chess.Knight: newDevelopmentTable([8][8]int{
		{-2, -2, -2, -2, -2, -2, -2, -2},
		{-2, -1, 0, 0, 0, 0, -1, -2},
		{-2, 0, 1, 2, 2, 1, 0, -2},
		{-2, 1, 2, 2, 2, 2, 1, -2},
		{-2, 0, 2, 2, 2, 2, 0, -2},
		{-2, 1, 1, 2, 2, 1, 1, -2},
		{-2, -1, 0, 0, 0, 0, -1, -2},
		{-2, -2, -2, -2, -2, -2, -2, -2},
	}, _developmentScale),
	chess.Queen: newDevelopmentTable([8][8]int{
		{-1, -1, -1, -1, -1, -1, -1, -1},
		{-1, 1, 1, 1, 1, 1, 1, -1},
		{-1, 0, 0, 0, 0, 0, 0, -1},
		{-1, 0, 0, 0, 0, 0, 0, -1},
		{0, 0, 0, 0, 0, 0, 0, 0},
		{-1, 0, 0, 0, 0, 0, 0, -1},
		{-1, 0, 0, 1, 1, 0, 0, -1},
		{-1, -1, -1, 0, 0, -1, -1, -1},
	}, _developmentScale/2),
}

// developmentTable holds per-square bonuses indexed by chess.Square, one
// array per color.
type developmentTable struct {
	white [64]int
	black [64]int
}

func newDevelopmentTable(whiteOriented [8][8]int, scale int) developmentTable {
	t := developmentTable{}
	for row := 0; row < 8; row++ {
		for file := 0; file < 8; file++ {
			t.white[(7-row)*8+file] = whiteOriented[row][file] * scale
			t.black[row*8+file] = whiteOriented[row][file] * scale
		}
	}
	return t
}

func (t developmentTable) value(color chess.Color, sq chess.Square) int {
	if color == chess.White {
		return t.white[sq]
	}
	return t.black[sq]
}

var _styleScales = map[string]int64{
	"Solid":  50,
	"Normal": 100,
	"Risky":  200,
}

// MaterialEvaluator counts material plus a development bonus for well
// placed pieces. The bonus is scaled by the Style option.
type MaterialEvaluator struct {
	// percent applied to the development bonus, 100 when zero
	scale atomic.Int64
}

var _ Evaluator = (*MaterialEvaluator)(nil)
var _ Configurable = (*MaterialEvaluator)(nil)

func (e *MaterialEvaluator) Configure(opts options.Snapshot) {
	if scale, ok := _styleScales[opts.Text(options.Style)]; ok {
		e.scale.Store(scale)
	}
}

func (e *MaterialEvaluator) Evaluate(pos position.Position) Score {
	scale := e.scale.Load()
	if scale == 0 {
		scale = 100
	}

	material := 0
	development := 0
	for sq, piece := range pos.Board().SquareMap() {
		sign := 1
		if piece.Color() != pos.SideToMove() {
			sign = -1
		}
		material += sign * PieceValue(piece.Type())
		if table, ok := _developmentTables[piece.Type()]; ok {
			development += sign * table.value(piece.Color(), sq)
		}
	}

	return Score(material + int(int64(development)*scale/100))
}
