package uci

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/position"
)

// Response is a message sent from the engine to the GUI.
type Response interface {
	fmt.Stringer
	isResponse()
}

// Message is either a Command or a Response.
type Message interface {
	String() string
}

// Serialize renders a message as one protocol line.
func Serialize(m Message) string {
	return m.String() + "\n"
}

type (
	UCIOk   struct{}
	ReadyOk struct{}
)

type IDName struct {
	Name string
}

type IDAuthor struct {
	Author string
}

type BestMove struct {
	Move   position.Move
	Ponder Optional[position.Move]
}

type Status string

const (
	StatusChecking Status = "checking"
	StatusOk       Status = "ok"
	StatusError    Status = "error"
)

type CopyProtection struct {
	Status Status
}

type Registration struct {
	Status Status
}

type Bound int

const (
	Exact Bound = iota
	LowerBound
	UpperBound
)

// Score is either centipawns or mate in moves (negative when being mated).
type Score struct {
	Mate  bool
	Value int
	Bound Bound
}

func Centipawns(cp int) Score {
	return Score{Value: cp}
}

func MateIn(moves int) Score {
	return Score{Mate: true, Value: moves}
}

func (s Score) String() string {
	result := fmt.Sprintf("cp %d", s.Value)
	if s.Mate {
		result = fmt.Sprintf("mate %d", s.Value)
	}
	switch s.Bound {
	case LowerBound:
		result += " lowerbound"
	case UpperBound:
		result += " upperbound"
	}
	return result
}

type CurrLine struct {
	CPU   Optional[int]
	Moves []position.Move
}

// Info carries search progress. Text is sent as the "string" field, which
// must come last since it consumes the rest of the line.
type Info struct {
	Depth          Optional[int]
	SelDepth       Optional[int]
	Time           Optional[time.Duration]
	Nodes          Optional[int]
	NPS            Optional[int]
	MultiPV        Optional[int]
	Score          Optional[Score]
	CurrMove       Optional[position.Move]
	CurrMoveNumber Optional[int]
	HashFull       Optional[int]
	TBHits         Optional[int]
	CPULoad        Optional[int]
	PV             []position.Move
	Refutation     []position.Move
	CurrLine       Optional[CurrLine]
	Text           Optional[string]
}

type OptionType string

const (
	CheckType  OptionType = "check"
	SpinType   OptionType = "spin"
	ComboType  OptionType = "combo"
	ButtonType OptionType = "button"
	StringType OptionType = "string"
)

// Option declares a configurable engine parameter.
type Option struct {
	Name    string
	Type    OptionType
	Default Optional[string]
	Min     Optional[int]
	Max     Optional[int]
	Vars    []string
}

func (UCIOk) isResponse()          {}
func (ReadyOk) isResponse()        {}
func (IDName) isResponse()         {}
func (IDAuthor) isResponse()       {}
func (BestMove) isResponse()       {}
func (CopyProtection) isResponse() {}
func (Registration) isResponse()   {}
func (Info) isResponse()           {}
func (Option) isResponse()         {}

func (UCIOk) String() string   { return "uciok" }
func (ReadyOk) String() string { return "readyok" }

func (r IDName) String() string   { return "id name " + r.Name }
func (r IDAuthor) String() string { return "id author " + r.Author }

func (r BestMove) String() string {
	if r.Ponder.HasValue() {
		return fmt.Sprintf("bestmove %v ponder %v", r.Move, r.Ponder.Value())
	}
	return "bestmove " + r.Move.String()
}

func (r CopyProtection) String() string { return "copyprotection " + string(r.Status) }
func (r Registration) String() string   { return "registration " + string(r.Status) }

func (r Info) String() string {
	parts := []string{"info"}
	addInt := func(name string, value Optional[int]) {
		if value.HasValue() {
			parts = append(parts, name, strconv.Itoa(value.Value()))
		}
	}

	addInt("depth", r.Depth)
	addInt("seldepth", r.SelDepth)
	if r.Time.HasValue() {
		parts = append(parts, "time", strconv.FormatInt(millis(r.Time.Value()), 10))
	}
	addInt("nodes", r.Nodes)
	addInt("nps", r.NPS)
	addInt("multipv", r.MultiPV)
	if r.Score.HasValue() {
		parts = append(parts, "score", r.Score.Value().String())
	}
	if r.CurrMove.HasValue() {
		parts = append(parts, "currmove", r.CurrMove.Value().String())
	}
	addInt("currmovenumber", r.CurrMoveNumber)
	addInt("hashfull", r.HashFull)
	addInt("tbhits", r.TBHits)
	addInt("cpuload", r.CPULoad)
	if len(r.PV) > 0 {
		parts = append(parts, "pv", formatMoves(r.PV))
	}
	if len(r.Refutation) > 0 {
		parts = append(parts, "refutation", formatMoves(r.Refutation))
	}
	if r.CurrLine.HasValue() {
		parts = append(parts, "currline")
		line := r.CurrLine.Value()
		if line.CPU.HasValue() {
			parts = append(parts, strconv.Itoa(line.CPU.Value()))
		}
		if len(line.Moves) > 0 {
			parts = append(parts, formatMoves(line.Moves))
		}
	}
	if r.Text.HasValue() {
		parts = append(parts, "string", r.Text.Value())
	}
	return strings.Join(parts, " ")
}

func (r Option) String() string {
	parts := []string{"option", "name", r.Name, "type", string(r.Type)}
	if r.Default.HasValue() {
		value := r.Default.Value()
		if value == "" {
			value = "<empty>"
		}
		parts = append(parts, "default", value)
	}
	if r.Min.HasValue() {
		parts = append(parts, "min", strconv.Itoa(r.Min.Value()))
	}
	if r.Max.HasValue() {
		parts = append(parts, "max", strconv.Itoa(r.Max.Value()))
	}
	for _, v := range r.Vars {
		parts = append(parts, "var", v)
	}
	return strings.Join(parts, " ")
}

// InfoString is the common free-text info line.
func InfoString(s string) Info {
	return Info{Text: Some(s)}
}

var infoKeywords = keywords(
	"depth", "seldepth", "time", "nodes", "nps", "multipv", "score",
	"currmove", "currmovenumber", "hashfull", "tbhits", "cpuload",
	"pv", "refutation", "currline", "string")

var optionKeywords = keywords("name", "type", "default", "min", "max", "var")

// ParseResponse decodes one engine to GUI line.
func ParseResponse(line string) (Response, error) {
	t := newTokens(line)
	head, ok := t.next()
	if !ok {
		return nil, &ParseError{Line: line, Err: ErrNotAResponse}
	}

	switch head {
	case "uciok", "readyok":
		if !t.done() {
			return nil, parseErrorf(line, "unexpected arguments to %v", head)
		}
		if head == "uciok" {
			return UCIOk{}, nil
		}
		return ReadyOk{}, nil
	case "id":
		return parseID(t)
	case "bestmove":
		return parseBestMove(t)
	case "copyprotection", "registration":
		status, err := parseStatus(t)
		if err != nil {
			return nil, err
		}
		if head == "copyprotection" {
			return CopyProtection{Status: status}, nil
		}
		return Registration{Status: status}, nil
	case "info":
		return parseInfo(t)
	case "option":
		return parseOption(t)
	}
	return nil, &ParseError{Line: line, Err: ErrNotAResponse}
}

func parseID(t *tokens) (Response, error) {
	kind, _ := t.next()
	value := strings.Join(t.rest(), " ")
	switch kind {
	case "name":
		return IDName{Name: value}, nil
	case "author":
		return IDAuthor{Author: value}, nil
	}
	return nil, parseErrorf(t.line, "id expects name or author")
}

func parseBestMove(t *tokens) (Response, error) {
	move, err := t.move("bestmove")
	if err != nil {
		return nil, err
	}
	result := BestMove{Move: move}
	if t.done() {
		return result, nil
	}
	if s, _ := t.next(); s != "ponder" {
		return nil, parseErrorf(t.line, "unexpected bestmove argument %q", s)
	}
	// some engines send a bare "ponder" or "ponder (none)"
	if t.done() || t.peek() == "(none)" {
		return result, nil
	}
	ponder, err := t.move("ponder")
	if err != nil {
		return nil, err
	}
	result.Ponder = Some(ponder)
	if !t.done() {
		return nil, parseErrorf(t.line, "unexpected arguments after ponder move")
	}
	return result, nil
}

func parseStatus(t *tokens) (Status, error) {
	s, _ := t.next()
	if !t.done() {
		return "", parseErrorf(t.line, "unexpected arguments after status")
	}
	switch status := Status(s); status {
	case StatusChecking, StatusOk, StatusError:
		return status, nil
	}
	return "", parseErrorf(t.line, "invalid status %q", s)
}

func parseInfo(t *tokens) (Response, error) {
	info := Info{}
	var err error
	for !t.done() && err == nil {
		keyword, _ := t.next()
		switch keyword {
		case "depth":
			info.Depth, err = t.optionalInt(keyword)
		case "seldepth":
			info.SelDepth, err = t.optionalInt(keyword)
		case "time":
			info.Time, err = t.millis(keyword)
		case "nodes":
			info.Nodes, err = t.optionalInt(keyword)
		case "nps":
			info.NPS, err = t.optionalInt(keyword)
		case "multipv":
			info.MultiPV, err = t.optionalInt(keyword)
		case "currmovenumber":
			info.CurrMoveNumber, err = t.optionalInt(keyword)
		case "hashfull":
			info.HashFull, err = t.optionalInt(keyword)
		case "tbhits":
			info.TBHits, err = t.optionalInt(keyword)
		case "cpuload":
			info.CPULoad, err = t.optionalInt(keyword)
		case "score":
			var score Score
			score, err = parseScore(t)
			info.Score = Some(score)
		case "currmove":
			var move position.Move
			move, err = t.move(keyword)
			info.CurrMove = Some(move)
		case "pv":
			info.PV, err = t.moves(infoKeywords)
		case "refutation":
			info.Refutation, err = t.moves(infoKeywords)
		case "currline":
			line := CurrLine{}
			if n, convErr := strconv.Atoi(t.peek()); convErr == nil {
				t.next()
				line.CPU = Some(n)
			}
			line.Moves, err = t.moves(infoKeywords)
			if len(line.Moves) == 0 {
				line.Moves = nil
			}
			info.CurrLine = Some(line)
		case "string":
			info.Text = Some(strings.Join(t.rest(), " "))
		default:
			// fields such as wdl are skipped along with their values
			t.until(infoKeywords)
		}
	}
	if err != nil {
		return nil, err
	}
	if len(info.PV) == 0 {
		info.PV = nil
	}
	if len(info.Refutation) == 0 {
		info.Refutation = nil
	}
	return info, nil
}

func parseScore(t *tokens) (Score, error) {
	score := Score{}
	switch kind, _ := t.next(); kind {
	case "cp":
	case "mate":
		score.Mate = true
	default:
		return score, parseErrorf(t.line, "score expects cp or mate")
	}
	value, err := t.int("score")
	if err != nil {
		return score, err
	}
	score.Value = value
	switch t.peek() {
	case "lowerbound":
		t.next()
		score.Bound = LowerBound
	case "upperbound":
		t.next()
		score.Bound = UpperBound
	}
	return score, nil
}

func parseOption(t *tokens) (Response, error) {
	if s, _ := t.next(); s != "name" {
		return nil, parseErrorf(t.line, "option expects name")
	}
	option := Option{Name: strings.Join(t.until(keywords("type")), " ")}
	if option.Name == "" {
		return nil, parseErrorf(t.line, "option is missing a name")
	}

	for !t.done() {
		keyword, _ := t.next()
		value := strings.Join(t.until(optionKeywords), " ")
		switch keyword {
		case "type":
			option.Type = OptionType(value)
		case "default":
			if value == "<empty>" {
				value = ""
			}
			option.Default = Some(value)
		case "min", "max":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, parseErrorf(t.line, "invalid %v %q", keyword, value)
			}
			if keyword == "min" {
				option.Min = Some(n)
			} else {
				option.Max = Some(n)
			}
		case "var":
			option.Vars = append(option.Vars, value)
		default:
			return nil, parseErrorf(t.line, "unexpected option field %q", keyword)
		}
	}

	switch option.Type {
	case CheckType, SpinType, ComboType, ButtonType, StringType:
		return option, nil
	}
	return nil, parseErrorf(t.line, "invalid option type %q", option.Type)
}
