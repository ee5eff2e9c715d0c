package uci

import (
	"fmt"
	"strings"
	"time"

	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/position"
)

// Command is a message sent from the GUI to the engine.
type Command interface {
	fmt.Stringer
	isCommand()
}

type (
	UCI        struct{}
	IsReady    struct{}
	UCINewGame struct{}
	Stop       struct{}
	PonderHit  struct{}
	Quit       struct{}
)

type Debug struct {
	On bool
}

type SetOption struct {
	Name  string
	Value Optional[string]
}

type Register struct {
	Later bool
	Name  string
	Code  string
}

// Position sets up the board. An empty FEN means the start position.
type Position struct {
	FEN   Optional[string]
	Moves []position.Move
}

type Go struct {
	SearchMoves []position.Move
	Ponder      bool
	WTime       Optional[time.Duration]
	BTime       Optional[time.Duration]
	WInc        Optional[time.Duration]
	BInc        Optional[time.Duration]
	MovesToGo   Optional[int]
	Depth       Optional[int]
	Nodes       Optional[int]
	Mate        Optional[int]
	MoveTime    Optional[time.Duration]
	Infinite    bool
}

func (UCI) isCommand()        {}
func (IsReady) isCommand()    {}
func (UCINewGame) isCommand() {}
func (Stop) isCommand()       {}
func (PonderHit) isCommand()  {}
func (Quit) isCommand()       {}
func (Debug) isCommand()      {}
func (SetOption) isCommand()  {}
func (Register) isCommand()   {}
func (Position) isCommand()   {}
func (Go) isCommand()         {}

func (UCI) String() string        { return "uci" }
func (IsReady) String() string    { return "isready" }
func (UCINewGame) String() string { return "ucinewgame" }
func (Stop) String() string       { return "stop" }
func (PonderHit) String() string  { return "ponderhit" }
func (Quit) String() string       { return "quit" }

func (c Debug) String() string {
	if c.On {
		return "debug on"
	}
	return "debug off"
}

func (c SetOption) String() string {
	if c.Value.HasValue() {
		return fmt.Sprintf("setoption name %v value %v", c.Name, c.Value.Value())
	}
	return "setoption name " + c.Name
}

func (c Register) String() string {
	if c.Later {
		return "register later"
	}
	return fmt.Sprintf("register name %v code %v", c.Name, c.Code)
}

func (c Position) String() string {
	result := "position startpos"
	if c.FEN.HasValue() {
		result = "position fen " + c.FEN.Value()
	}
	if len(c.Moves) > 0 {
		result += " moves " + formatMoves(c.Moves)
	}
	return result
}

func (c Go) String() string {
	parts := []string{"go"}
	if len(c.SearchMoves) > 0 {
		parts = append(parts, "searchmoves", formatMoves(c.SearchMoves))
	}
	if c.Ponder {
		parts = append(parts, "ponder")
	}
	for _, d := range []struct {
		name  string
		value Optional[time.Duration]
	}{
		{"wtime", c.WTime}, {"btime", c.BTime}, {"winc", c.WInc}, {"binc", c.BInc},
	} {
		if d.value.HasValue() {
			parts = append(parts, fmt.Sprintf("%v %d", d.name, millis(d.value.Value())))
		}
	}
	for _, n := range []struct {
		name  string
		value Optional[int]
	}{
		{"movestogo", c.MovesToGo}, {"depth", c.Depth}, {"nodes", c.Nodes}, {"mate", c.Mate},
	} {
		if n.value.HasValue() {
			parts = append(parts, fmt.Sprintf("%v %d", n.name, n.value.Value()))
		}
	}
	if c.MoveTime.HasValue() {
		parts = append(parts, fmt.Sprintf("movetime %d", millis(c.MoveTime.Value())))
	}
	if c.Infinite {
		parts = append(parts, "infinite")
	}
	return strings.Join(parts, " ")
}

var goKeywords = keywords(
	"searchmoves", "ponder", "wtime", "btime", "winc", "binc",
	"movestogo", "depth", "nodes", "mate", "movetime", "infinite")

// ParseCommand decodes one GUI to engine line.
func ParseCommand(line string) (Command, error) {
	t := newTokens(line)
	head, ok := t.next()
	if !ok {
		return nil, &ParseError{Line: line, Err: ErrNotACommand}
	}

	var cmd Command
	switch head {
	case "uci":
		cmd = UCI{}
	case "isready":
		cmd = IsReady{}
	case "ucinewgame":
		cmd = UCINewGame{}
	case "stop":
		cmd = Stop{}
	case "ponderhit":
		cmd = PonderHit{}
	case "quit":
		cmd = Quit{}
	case "debug":
		return parseDebug(t)
	case "setoption":
		return parseSetOption(t)
	case "register":
		return parseRegister(t)
	case "position":
		return parsePosition(t)
	case "go":
		return parseGo(t)
	default:
		return nil, &ParseError{Line: line, Err: ErrNotACommand}
	}

	if !t.done() {
		return nil, parseErrorf(line, "unexpected arguments to %v", head)
	}
	return cmd, nil
}

func parseDebug(t *tokens) (Command, error) {
	arg, _ := t.next()
	if !t.done() {
		return nil, parseErrorf(t.line, "unexpected arguments to debug")
	}
	switch arg {
	case "on":
		return Debug{On: true}, nil
	case "off":
		return Debug{On: false}, nil
	}
	return nil, parseErrorf(t.line, "debug expects on or off")
}

func parseSetOption(t *tokens) (Command, error) {
	if s, _ := t.next(); s != "name" {
		return nil, parseErrorf(t.line, "setoption expects name")
	}
	name := t.until(keywords("value"))
	if len(name) == 0 {
		return nil, parseErrorf(t.line, "setoption is missing an option name")
	}
	cmd := SetOption{Name: strings.Join(name, " ")}
	if _, ok := t.next(); ok {
		cmd.Value = Some(strings.Join(t.rest(), " "))
	}
	return cmd, nil
}

func parseRegister(t *tokens) (Command, error) {
	if t.peek() == "later" {
		t.next()
		if !t.done() {
			return nil, parseErrorf(t.line, "unexpected arguments to register later")
		}
		return Register{Later: true}, nil
	}

	cmd := Register{}
	for !t.done() {
		keyword, _ := t.next()
		value := strings.Join(t.until(keywords("name", "code")), " ")
		switch keyword {
		case "name":
			cmd.Name = value
		case "code":
			cmd.Code = value
		default:
			return nil, parseErrorf(t.line, "unexpected register argument %q", keyword)
		}
	}
	if cmd.Name == "" || cmd.Code == "" {
		return nil, parseErrorf(t.line, "register expects later or name and code")
	}
	return cmd, nil
}

func parsePosition(t *tokens) (Command, error) {
	cmd := Position{}
	switch head, _ := t.next(); head {
	case "startpos":
	case "fen":
		fen := t.until(keywords("moves"))
		if len(fen) == 0 {
			return nil, parseErrorf(t.line, "position fen is missing the fen")
		}
		cmd.FEN = Some(strings.Join(fen, " "))
	default:
		return nil, parseErrorf(t.line, "position expects startpos or fen")
	}

	if t.done() {
		return cmd, nil
	}
	if s, _ := t.next(); s != "moves" {
		return nil, parseErrorf(t.line, "unexpected position argument %q", s)
	}
	moves, err := t.moves(nil)
	if err != nil {
		return nil, err
	}
	if len(moves) > 0 {
		cmd.Moves = moves
	}
	return cmd, nil
}

func parseGo(t *tokens) (Command, error) {
	cmd := Go{}
	var err error
	for !t.done() && err == nil {
		keyword, _ := t.next()
		switch keyword {
		case "searchmoves":
			cmd.SearchMoves, err = t.moves(goKeywords)
			if err == nil && len(cmd.SearchMoves) == 0 {
				cmd.SearchMoves = nil
			}
		case "ponder":
			cmd.Ponder = true
		case "infinite":
			cmd.Infinite = true
		case "wtime":
			cmd.WTime, err = t.millis(keyword)
		case "btime":
			cmd.BTime, err = t.millis(keyword)
		case "winc":
			cmd.WInc, err = t.millis(keyword)
		case "binc":
			cmd.BInc, err = t.millis(keyword)
		case "movetime":
			cmd.MoveTime, err = t.millis(keyword)
		case "movestogo":
			cmd.MovesToGo, err = t.optionalInt(keyword)
		case "depth":
			cmd.Depth, err = t.optionalInt(keyword)
		case "nodes":
			cmd.Nodes, err = t.optionalInt(keyword)
		case "mate":
			cmd.Mate, err = t.optionalInt(keyword)
		default:
			err = parseErrorf(t.line, "unknown go argument %q", keyword)
		}
	}
	if err != nil {
		return nil, err
	}
	return cmd, nil
}
