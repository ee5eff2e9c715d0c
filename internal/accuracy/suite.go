package accuracy

import (
	"context"
	"fmt"
	"time"

	"github.com/cricklet/chessuci/internal/client"
	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/uci"
)

type Result struct {
	ID      string `json:"id"`
	FEN     string `json:"fen"`
	Move    string `json:"move"`
	Depth   int    `json:"depth"`
	Success bool   `json:"success"`
}

// Check asks the engine behind c for a move in e, searching for moveTime.
func Check(ctx context.Context, c *client.Client, e Epd, moveTime time.Duration) (Result, error) {
	if err := c.Send(uci.UCINewGame{}); err != nil {
		return Result{}, err
	}
	if err := c.Synchronize(ctx); err != nil {
		return Result{}, err
	}

	depth := 0
	best, err := c.Search(ctx,
		uci.Position{FEN: Some(e.Position.FEN())},
		uci.Go{MoveTime: Some(moveTime)},
		func(info uci.Info) {
			depth = MaxInt(depth, info.Depth.ValueOr(0))
		})
	if err != nil {
		return Result{}, err
	}

	return Result{
		ID:      e.ID,
		FEN:     e.Position.FEN(),
		Move:    best.Move.String(),
		Depth:   depth,
		Success: e.Solved(best.Move),
	}, nil
}

type Summary struct {
	Passed int
	Failed int
}

func (s Summary) String() string {
	total := s.Passed + s.Failed
	if total == 0 {
		return "0/0"
	}
	return fmt.Sprintf("%d/%d (%.0f%%)", s.Passed, total, 100*float64(s.Passed)/float64(total))
}

// RunSuite checks every position in order, calling onResult after each.
func RunSuite(ctx context.Context, c *client.Client, epds []Epd, moveTime time.Duration, onResult func(Result, Summary)) (Summary, error) {
	summary := Summary{}
	for _, e := range epds {
		result, err := Check(ctx, c, e, moveTime)
		if err != nil {
			return summary, fmt.Errorf("%v: %w", e.ID, err)
		}
		if result.Success {
			summary.Passed++
		} else {
			summary.Failed++
		}
		if onResult != nil {
			onResult(result, summary)
		}
	}
	return summary, nil
}
