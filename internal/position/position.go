package position

import (
	"fmt"

	"github.com/notnil/chess"
)

const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Position is immutable; Apply returns a new value.
type Position struct {
	pos *chess.Position
}

type IllegalMoveError struct {
	Move Move
	FEN  string
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("illegal move %v in position %v", e.Move, e.FEN)
}

func Start() Position {
	return Position{pos: chess.StartingPosition()}
}

func FromFEN(fen string) (Position, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return Position{}, fmt.Errorf("invalid fen %q: %w", fen, err)
	}
	return Position{pos: chess.NewGame(opt).Position()}, nil
}

// FromChess wraps a position owned by a notnil game.
func FromChess(pos *chess.Position) Position {
	return Position{pos: pos}
}

func (p Position) inner() *chess.Position {
	if p.pos == nil {
		return chess.StartingPosition()
	}
	return p.pos
}

func (p Position) Chess() *chess.Position {
	return p.inner()
}

func (p Position) Apply(move Move) (Position, error) {
	m, err := p.Resolve(move)
	if err != nil {
		return p, err
	}
	return Position{pos: p.inner().Update(m)}, nil
}

// Resolve finds the legal notnil move matching move, eg. to play it in a
// chess.Game.
func (p Position) Resolve(move Move) (*chess.Move, error) {
	pos := p.inner()
	for _, m := range pos.ValidMoves() {
		if move.matches(m) {
			return m, nil
		}
	}
	return nil, &IllegalMoveError{Move: move, FEN: pos.String()}
}

// ApplyAll replays moves in order. On an illegal move it returns the
// position reached by the legal prefix alongside the error.
func (p Position) ApplyAll(moves []Move) (Position, error) {
	current := p
	for _, move := range moves {
		next, err := current.Apply(move)
		if err != nil {
			return current, err
		}
		current = next
	}
	return current, nil
}

func (p Position) IsLegal(move Move) bool {
	for _, m := range p.inner().ValidMoves() {
		if move.matches(m) {
			return true
		}
	}
	return false
}

func (p Position) LegalMoves() []Move {
	valid := p.inner().ValidMoves()
	result := make([]Move, len(valid))
	for i, m := range valid {
		result[i] = fromChessMove(m)
	}
	return result
}

type Successor struct {
	Move     Move
	Position Position
	Capture  PieceType
}

// Successors pairs every legal move with the resulting position and the
// captured piece type, if any.
func (p Position) Successors() []Successor {
	pos := p.inner()
	board := pos.Board()
	valid := pos.ValidMoves()
	result := make([]Successor, len(valid))
	for i, m := range valid {
		capture := board.Piece(m.S2()).Type()
		if m.HasTag(chess.EnPassant) {
			capture = chess.Pawn
		}
		result[i] = Successor{
			Move:     fromChessMove(m),
			Position: Position{pos: pos.Update(m)},
			Capture:  capture,
		}
	}
	return result
}

func (p Position) SideToMove() Color {
	return p.inner().Turn()
}

func (p Position) FEN() string {
	return p.inner().String()
}

func (p Position) String() string {
	return p.FEN()
}

func (p Position) IsCheckmate() bool {
	return p.inner().Status() == chess.Checkmate
}

func (p Position) IsStalemate() bool {
	return p.inner().Status() == chess.Stalemate
}

func (p Position) Hash() [16]byte {
	return p.inner().Hash()
}

func (p Position) Board() *chess.Board {
	return p.inner().Board()
}
