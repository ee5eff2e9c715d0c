package uci

import (
	"strconv"
	"strings"
	"time"

	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/position"
)

type tokens struct {
	line   string
	fields []string
	i      int
}

func newTokens(line string) *tokens {
	return &tokens{line: line, fields: strings.Fields(line)}
}

func (t *tokens) done() bool {
	return t.i >= len(t.fields)
}

func (t *tokens) peek() string {
	if t.done() {
		return ""
	}
	return t.fields[t.i]
}

func (t *tokens) next() (string, bool) {
	if t.done() {
		return "", false
	}
	t.i++
	return t.fields[t.i-1], true
}

// until consumes tokens up to (not including) the first one in stop.
func (t *tokens) until(stop map[string]bool) []string {
	start := t.i
	for !t.done() && !stop[t.peek()] {
		t.i++
	}
	return t.fields[start:t.i]
}

func (t *tokens) rest() []string {
	result := t.fields[t.i:]
	t.i = len(t.fields)
	return result
}

func (t *tokens) int(keyword string) (int, error) {
	s, ok := t.next()
	if !ok {
		return 0, parseErrorf(t.line, "missing value for %v", keyword)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, parseErrorf(t.line, "invalid value %q for %v", s, keyword)
	}
	return n, nil
}

func (t *tokens) optionalInt(keyword string) (Optional[int], error) {
	n, err := t.int(keyword)
	if err != nil {
		return Empty[int](), err
	}
	return Some(n), nil
}

func (t *tokens) millis(keyword string) (Optional[time.Duration], error) {
	n, err := t.int(keyword)
	if err != nil {
		return Empty[time.Duration](), err
	}
	return Some(time.Duration(n) * time.Millisecond), nil
}

func (t *tokens) move(keyword string) (position.Move, error) {
	s, ok := t.next()
	if !ok {
		return position.Move{}, parseErrorf(t.line, "missing move for %v", keyword)
	}
	m, err := position.ParseMove(s)
	if err != nil {
		return position.Move{}, &ParseError{Line: t.line, Reason: err.Error()}
	}
	return m, nil
}

// moves consumes moves until a keyword in stop or the end of the line.
func (t *tokens) moves(stop map[string]bool) ([]position.Move, error) {
	result := []position.Move{}
	for _, s := range t.until(stop) {
		m, err := position.ParseMove(s)
		if err != nil {
			return nil, &ParseError{Line: t.line, Reason: err.Error()}
		}
		result = append(result, m)
	}
	return result, nil
}

func formatMoves(moves []position.Move) string {
	return strings.Join(MapSlice(moves, position.Move.String), " ")
}

func millis(d time.Duration) int64 {
	return d.Milliseconds()
}

func keywords(words ...string) map[string]bool {
	result := make(map[string]bool, len(words))
	for _, w := range words {
		result[w] = true
	}
	return result
}
