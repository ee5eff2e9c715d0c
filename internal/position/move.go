package position

import (
	"fmt"

	"github.com/notnil/chess"
)

type (
	Color     = chess.Color
	Square    = chess.Square
	PieceType = chess.PieceType
)

const (
	White = chess.White
	Black = chess.Black
)

// Move is a plain value. Castling and en passant are recognised by the
// position the move is applied to.
type Move struct {
	From      Square
	To        Square
	Promotion PieceType
}

// NullMove is sent as bestmove when no legal move exists.
var NullMove = Move{From: chess.NoSquare, To: chess.NoSquare}

func (m Move) IsNull() bool {
	return m.From == chess.NoSquare || m.To == chess.NoSquare || m.From == m.To
}

func (m Move) String() string {
	if m.IsNull() {
		return "0000"
	}
	result := m.From.String() + m.To.String()
	if m.Promotion != chess.NoPieceType {
		result += string(promotionLetters[m.Promotion])
	}
	return result
}

var promotionLetters = map[PieceType]byte{
	chess.Queen:  'q',
	chess.Rook:   'r',
	chess.Bishop: 'b',
	chess.Knight: 'n',
}

var promotionPieces = map[byte]PieceType{
	'q': chess.Queen,
	'r': chess.Rook,
	'b': chess.Bishop,
	'n': chess.Knight,
}

// ParseMove reads long algebraic notation, eg "e2e4", "e7e8q" or "0000".
func ParseMove(s string) (Move, error) {
	if s == "0000" {
		return NullMove, nil
	}
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("invalid move %q", s)
	}

	from, err := parseSquare(s[0:2])
	if err != nil {
		return Move{}, fmt.Errorf("invalid move %q: %w", s, err)
	}
	to, err := parseSquare(s[2:4])
	if err != nil {
		return Move{}, fmt.Errorf("invalid move %q: %w", s, err)
	}

	move := Move{From: from, To: to, Promotion: chess.NoPieceType}
	if len(s) == 5 {
		promotion, ok := promotionPieces[s[4]]
		if !ok {
			return Move{}, fmt.Errorf("invalid promotion in move %q", s)
		}
		move.Promotion = promotion
	}
	return move, nil
}

func parseSquare(s string) (Square, error) {
	file := s[0]
	rank := s[1]
	if file < 'a' || file > 'h' || rank < '1' || rank > '8' {
		return chess.NoSquare, fmt.Errorf("invalid square %q", s)
	}
	return chess.Square(int(rank-'1')*8 + int(file-'a')), nil
}

func fromChessMove(m *chess.Move) Move {
	return Move{From: m.S1(), To: m.S2(), Promotion: m.Promo()}
}

func (m Move) matches(other *chess.Move) bool {
	return m.From == other.S1() && m.To == other.S2() && m.Promotion == other.Promo()
}
