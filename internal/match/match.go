package match

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jlouis/glicko2"
	combinations "github.com/mxschmitt/golang-combinations"
	"github.com/notnil/chess"

	"github.com/cricklet/chessuci/internal/client"
	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/position"
	"github.com/cricklet/chessuci/internal/uci"
)

const DefaultMaxPlies = 400

type Config struct {
	// empty for the standard starting position
	StartFEN string
	// NewTimer returns the clock for one game. Defaults to 100ms per move.
	NewTimer func() *client.Timer
	MaxPlies int
	Logger   Logger
}

func (c Config) withDefaults() Config {
	if c.NewTimer == nil {
		c.NewTimer = func() *client.Timer {
			return client.NewMoveTimeTimer(100 * time.Millisecond)
		}
	}
	if c.MaxPlies <= 0 {
		c.MaxPlies = DefaultMaxPlies
	}
	if c.Logger == nil {
		c.Logger = &SilentLogger
	}
	return c
}

type Reason string

const (
	Checkmate            Reason = "checkmate"
	Stalemate            Reason = "stalemate"
	Repetition           Reason = "threefold repetition"
	FiftyMoves           Reason = "fifty move rule"
	InsufficientMaterial Reason = "insufficient material"
	IllegalMove          Reason = "illegal move"
	TimeForfeit          Reason = "time forfeit"
	MoveLimit            Reason = "move limit"
)

// Game is a finished game. Score is from white's point of view.
type Game struct {
	ID     string
	White  string
	Black  string
	Score  float64
	Reason Reason
	Moves  []position.Move
	FEN    string
	PGN    string
}

func (g Game) String() string {
	return fmt.Sprintf("%v vs %v: %v (%v) after %v plies", g.White, g.Black, g.Score, g.Reason, len(g.Moves))
}

type Player struct {
	Name   string
	Client *client.Client
	// sent before every game
	Options []uci.SetOption
}

// WithOptions returns a copy of p that sets opts before every game, named
// after them.
func (p Player) WithOptions(opts ...uci.SetOption) Player {
	p.Options = append(append([]uci.SetOption{}, p.Options...), opts...)
	for _, opt := range opts {
		p.Name += fmt.Sprintf(" %v=%v", opt.Name, opt.Value.ValueOr(""))
	}
	return p
}

// Sweep returns every non-empty combination of overrides followed by the
// empty baseline. Each combination should be played by a fresh engine, since
// options persist across games.
func Sweep(overrides []uci.SetOption) [][]uci.SetOption {
	return append(combinations.All(overrides), []uci.SetOption{})
}

func scoreFor(winner position.Color) float64 {
	if winner == position.White {
		return 1
	}
	return 0
}

// Play runs one game between two engines. Moves are checked and the game
// is adjudicated by a notnil chess.Game.
func Play(ctx context.Context, white Player, black Player, config Config) (Game, error) {
	config = config.withDefaults()
	result := Game{ID: uuid.NewString(), White: white.Name, Black: black.Name, Score: 0.5}

	game := chess.NewGame()
	start := Empty[string]()
	if config.StartFEN != "" {
		opt, err := chess.FEN(config.StartFEN)
		if err != nil {
			return result, Wrap(fmt.Errorf("invalid start fen: %w", err)).Err()
		}
		game = chess.NewGame(opt)
		start = Some(config.StartFEN)
	}

	for _, player := range []Player{white, black} {
		for _, opt := range player.Options {
			if err := player.Client.Send(opt); err != nil {
				return result, err
			}
		}
		if err := player.Client.Send(uci.UCINewGame{}); err != nil {
			return result, err
		}
		if err := player.Client.Synchronize(ctx); err != nil {
			return result, err
		}
	}

	finish := func(score float64, reason Reason) (Game, error) {
		result.Score = score
		result.Reason = reason
		result.FEN = game.Position().String()
		result.PGN = game.String()
		config.Logger.Println(result.ID, result)
		return result, nil
	}

	timer := config.NewTimer()
	timer.Start()
	for ply := 0; ply < config.MaxPlies; ply++ {
		side := game.Position().Turn()
		player := white
		if side == position.Black {
			player = black
		}

		best, err := player.Client.Search(ctx, uci.Position{FEN: start, Moves: result.Moves}, timer.Go(), nil)
		if err != nil {
			return result, err
		}
		if timer.Flagged(side) {
			return finish(scoreFor(side.Other()), TimeForfeit)
		}

		m, err := position.FromChess(game.Position()).Resolve(best.Move)
		if err != nil {
			config.Logger.Println(player.Name, err)
			return finish(scoreFor(side.Other()), IllegalMove)
		}
		if err := game.Move(m); err != nil {
			return result, Wrap(err).Err()
		}
		result.Moves = append(result.Moves, best.Move)
		timer.MadeMove()

		if reason, over := adjudicate(game); over {
			switch game.Outcome() {
			case chess.WhiteWon:
				return finish(1, reason)
			case chess.BlackWon:
				return finish(0, reason)
			}
			return finish(0.5, reason)
		}
	}

	return finish(0.5, MoveLimit)
}

// adjudicate ends the game on mate or automatic draws, and claims
// threefold repetition and the fifty move rule on behalf of the players.
func adjudicate(game *chess.Game) (Reason, bool) {
	if game.Outcome() == chess.NoOutcome {
		for _, method := range game.EligibleDraws() {
			if method == chess.ThreefoldRepetition || method == chess.FiftyMoveRule {
				if err := game.Draw(method); err == nil {
					break
				}
			}
		}
	}
	if game.Outcome() == chess.NoOutcome {
		return "", false
	}

	switch game.Method() {
	case chess.Checkmate:
		return Checkmate, true
	case chess.Stalemate:
		return Stalemate, true
	case chess.ThreefoldRepetition, chess.FivefoldRepetition:
		return Repetition, true
	case chess.FiftyMoveRule, chess.SeventyFiveMoveRule:
		return FiftyMoves, true
	case chess.InsufficientMaterial:
		return InsufficientMaterial, true
	}
	return Reason(fmt.Sprint(game.Method())), true
}

// Score accumulates results from the first engine's point of view.
type Score struct {
	Wins   int
	Losses int
	Draws  int
}

func (s Score) Games() int {
	return s.Wins + s.Losses + s.Draws
}

func (s Score) Points() float64 {
	return float64(s.Wins) + float64(s.Draws)/2
}

// Glicko-2 parameters for an unrated engine.
const (
	InitialRating    = 1500.0
	InitialDeviation = 350.0
	InitialSigma     = 0.06
	Tau              = 0.5
)

// opponent is one game against an unrated engine, as glicko2 expects it.
type opponent struct {
	score float64
}

func (o opponent) R() float64     { return InitialRating }
func (o opponent) RD() float64    { return InitialDeviation }
func (o opponent) Sigma() float64 { return InitialSigma }
func (o opponent) SJ() float64    { return o.score }

// Rating rates the first engine after one rating period against an
// unrated opponent, returning the rating and its deviation.
func (s Score) Rating() (float64, float64) {
	if s.Games() == 0 {
		return InitialRating, InitialDeviation
	}
	games := make([]glicko2.Opponent, 0, s.Games())
	for _, result := range []struct {
		count int
		score float64
	}{{s.Wins, 1}, {s.Draws, 0.5}, {s.Losses, 0}} {
		for i := 0; i < result.count; i++ {
			games = append(games, opponent{score: result.score})
		}
	}
	rating, deviation, _ := glicko2.Rank(InitialRating, InitialDeviation, InitialSigma, games, Tau)
	return rating, deviation
}

// EloDifference estimates how much stronger the first engine is.
func (s Score) EloDifference() float64 {
	rating, _ := s.Rating()
	return rating - InitialRating
}

func (s Score) String() string {
	return fmt.Sprintf("+%v -%v =%v (%.1f/%v)", s.Wins, s.Losses, s.Draws, s.Points(), s.Games())
}

// Run plays games between a and b, alternating colours with a starting as
// white. onGame is called after every game.
func Run(ctx context.Context, a Player, b Player, games int, config Config, onGame func(Game, Score)) (Score, error) {
	score := Score{}
	for i := 0; i < games; i++ {
		white, black := a, b
		if i%2 == 1 {
			white, black = b, a
		}

		game, err := Play(ctx, white, black, config)
		if err != nil {
			return score, err
		}

		points := game.Score
		if i%2 == 1 {
			points = 1 - points
		}
		switch points {
		case 1:
			score.Wins++
		case 0:
			score.Losses++
		default:
			score.Draws++
		}
		if onGame != nil {
			onGame(game, score)
		}
	}
	return score, nil
}
