package analysis

import (
	"context"
	"fmt"

	"github.com/notnil/chess"

	"github.com/cricklet/chessuci/internal/accuracy"
)

const (
	SuboptimalThreshold = 30
	InaccuracyThreshold = 50
	MistakeThreshold    = 100
	BlunderThreshold    = 200
)

type Classification string

const (
	Good       Classification = "good"
	Suboptimal Classification = "suboptimal"
	Inaccuracy Classification = "inaccuracy"
	Mistake    Classification = "mistake"
	Blunder    Classification = "blunder"
	Unknown    Classification = "unknown"
)

type MoveReview struct {
	Ply    int
	UCI    string
	SAN    string
	White  bool
	Before Evaluation
	After  Evaluation
	// centipawns the mover gave away
	Loss           int
	Classification Classification
	// 0-100, empty when either side of the move is a mate score
	Accuracy *float64
}

// Classify compares the evaluation before a move, from the mover's side,
// with the evaluation after it, from the opponent's side. Mate scores are
// not classified.
func Classify(before Evaluation, after Evaluation) (int, Classification) {
	if before.Score.CP == nil || after.Score.CP == nil {
		return 0, Unknown
	}

	loss := *before.Score.CP + *after.Score.CP
	if loss < 0 {
		loss = 0
	}

	switch {
	case loss >= BlunderThreshold:
		return loss, Blunder
	case loss >= MistakeThreshold:
		return loss, Mistake
	case loss >= InaccuracyThreshold:
		return loss, Inaccuracy
	case loss >= SuboptimalThreshold:
		return loss, Suboptimal
	}
	return loss, Good
}

// ReviewGame analyzes every position of a PGN game, up to maxPlies moves
// when maxPlies is positive, and classifies each move.
func (a *Analyzer) ReviewGame(ctx context.Context, pgn string, maxPlies int) ([]MoveReview, error) {
	game := chess.NewGame()
	if err := game.UnmarshalText([]byte(pgn)); err != nil {
		return nil, fmt.Errorf("invalid pgn: %w", err)
	}
	positions := game.Positions()
	moves := game.Moves()
	if maxPlies > 0 && len(moves) > maxPlies {
		moves = moves[:maxPlies]
	}

	evaluations := make([]Evaluation, len(moves)+1)
	for i := range evaluations {
		e, err := a.Analyze(ctx, positions[i].String())
		if err != nil {
			return nil, err
		}
		evaluations[i] = e
	}

	reviews := make([]MoveReview, len(moves))
	for i, m := range moves {
		loss, classification := Classify(evaluations[i], evaluations[i+1])
		var moveAccuracy *float64
		if classification != Unknown {
			value := accuracy.AccuracyForScores(*evaluations[i].Score.CP, -*evaluations[i+1].Score.CP)
			moveAccuracy = &value
		}
		reviews[i] = MoveReview{
			Ply:            i + 1,
			UCI:            chess.UCINotation{}.Encode(nil, m),
			SAN:            chess.AlgebraicNotation{}.Encode(positions[i], m),
			White:          positions[i].Turn() == chess.White,
			Before:         evaluations[i],
			After:          evaluations[i+1],
			Loss:           loss,
			Classification: classification,
			Accuracy:       moveAccuracy,
		}
	}
	return reviews, nil
}
