package accuracy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/notnil/chess"

	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/position"
)

// Epd is one test position: the engine should play one of BestMoves and
// none of AvoidMoves.
type Epd struct {
	Raw        string
	ID         string
	Position   position.Position
	BestMoves  []position.Move
	AvoidMoves []position.Move
}

// EpdToFen keeps the board, side, castling and en passant fields.
func EpdToFen(epd string) string {
	parts := strings.Fields(epd)
	if len(parts) > 4 {
		parts = parts[0:4]
	}
	return strings.Join(parts, " ") + " 0 1"
}

func stripSAN(san string) string {
	for _, s := range []string{"+", "#", "!", "?", "="} {
		san = strings.ReplaceAll(san, s, "")
	}
	return san
}

// DecodeSAN finds the legal move written as san.
func DecodeSAN(pos position.Position, san string) (position.Move, error) {
	target := stripSAN(san)
	inner := pos.Chess()
	for _, m := range inner.ValidMoves() {
		if stripSAN(chess.AlgebraicNotation{}.Encode(inner, m)) != target {
			continue
		}
		return position.ParseMove(chess.UCINotation{}.Encode(inner, m))
	}
	return position.NullMove, fmt.Errorf("no legal move %q in %v", san, pos.FEN())
}

// operand returns the value of an EPD opcode such as bm or id.
func operand(epd string, opcode string) Optional[string] {
	for _, op := range strings.Split(epd, ";") {
		fields := strings.Fields(op)
		// the first operation shares its line with the board
		if len(fields) > 4 && strings.Contains(fields[0], "/") {
			fields = fields[4:]
			// some suites keep the move counters, or a stray "-"
			for len(fields) > 0 && strings.Trim(fields[0], "-0123456789") == "" {
				fields = fields[1:]
			}
		}
		if len(fields) > 1 && fields[0] == opcode {
			return Some(strings.Join(fields[1:], " "))
		}
	}
	return Empty[string]()
}

func decodeMoves(pos position.Position, list Optional[string]) ([]position.Move, error) {
	moves := []position.Move{}
	if list.IsEmpty() {
		return moves, nil
	}
	for _, san := range strings.FieldsFunc(list.Value(), func(r rune) bool {
		return r == ' ' || r == ','
	}) {
		move, err := DecodeSAN(pos, san)
		if err != nil {
			return nil, err
		}
		moves = append(moves, move)
	}
	return moves, nil
}

func ParseEpd(line string) (Epd, error) {
	pos, err := position.FromFEN(EpdToFen(line))
	if err != nil {
		return Epd{}, err
	}

	e := Epd{
		Raw:      line,
		ID:       strings.Trim(operand(line, "id").ValueOr(""), `"`),
		Position: pos,
	}
	e.BestMoves, err = decodeMoves(pos, operand(line, "bm"))
	if err != nil {
		return Epd{}, err
	}
	e.AvoidMoves, err = decodeMoves(pos, operand(line, "am"))
	if err != nil {
		return Epd{}, err
	}
	return e, nil
}

// Solved reports whether move satisfies the bm and am operations.
func (e Epd) Solved(move position.Move) bool {
	if len(e.BestMoves) > 0 && !Contains(e.BestMoves, move) {
		return false
	}
	if len(e.AvoidMoves) > 0 && Contains(e.AvoidMoves, move) {
		return false
	}
	return true
}

// ReadEpds parses one position per line, skipping blanks and # comments.
func ReadEpds(r io.Reader) ([]Epd, error) {
	epds := []Epd{}
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := ParseEpd(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNumber, err)
		}
		epds = append(epds, e)
	}
	return epds, scanner.Err()
}

func LoadEpd(path string) ([]Epd, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Wrap(err).Err()
	}
	defer f.Close()
	return ReadEpds(f)
}
