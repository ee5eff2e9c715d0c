package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cricklet/chessuci/internal/client"
	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/position"
	"github.com/cricklet/chessuci/internal/uci"
)

const DefaultDepth = 12

// Score is from the side to move's point of view. At most one of CP and
// Mate is set; neither is set when the engine reported no score.
type Score struct {
	CP   *int `json:"cp,omitempty"`
	Mate *int `json:"mate,omitempty"`
}

func scoreFromUCI(s uci.Score) Score {
	value := s.Value
	if s.Mate {
		return Score{Mate: &value}
	}
	return Score{CP: &value}
}

func (s Score) String() string {
	switch {
	case s.Mate != nil:
		return fmt.Sprintf("mate %v", *s.Mate)
	case s.CP != nil:
		return fmt.Sprintf("cp %v", *s.CP)
	}
	return "none"
}

type Evaluation struct {
	FEN      string   `json:"fen"`
	Depth    int      `json:"depth"`
	BestMove string   `json:"best_move"`
	Score    Score    `json:"score"`
	PV       []string `json:"pv,omitempty"`
}

// WhiteToMove reads the side to move from the evaluated FEN.
func (e Evaluation) WhiteToMove() bool {
	fields := strings.Fields(e.FEN)
	return len(fields) < 2 || fields[1] == "w"
}

// Normalize drops the move counters so transpositions share a cache entry.
func Normalize(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}

// Analyzer evaluates positions with one engine, consulting the cache
// first. The engine is used by one analysis at a time.
type Analyzer struct {
	Client *client.Client
	Cache  Cache
	Depth  int
	Logger Logger

	mu sync.Mutex
}

func NewAnalyzer(c *client.Client, cache Cache, depth int, logger Logger) *Analyzer {
	if depth <= 0 {
		depth = DefaultDepth
	}
	if logger == nil {
		logger = &DefaultLogger
	}
	return &Analyzer{Client: c, Cache: cache, Depth: depth, Logger: logger}
}

// Analyze returns a cached evaluation at least as deep as the analyzer's
// depth, otherwise searches fen and stores the result.
func (a *Analyzer) Analyze(ctx context.Context, fen string) (Evaluation, error) {
	if _, err := position.FromFEN(fen); err != nil {
		return Evaluation{}, err
	}

	if a.Cache != nil {
		cached, err := a.Cache.Get(ctx, fen)
		if err != nil {
			a.Logger.Println("cache lookup failed", err)
		} else if cached.HasValue() && cached.Value().Depth >= a.Depth {
			return cached.Value(), nil
		}
	}

	e, err := a.search(ctx, fen)
	if err != nil {
		return e, err
	}

	if a.Cache != nil {
		if _, err := a.Cache.Put(ctx, e); err != nil {
			a.Logger.Println("cache store failed", err)
		}
	}
	return e, nil
}

func (a *Analyzer) search(ctx context.Context, fen string) (Evaluation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e := Evaluation{FEN: Normalize(fen), Depth: a.Depth}
	best, err := a.Client.Search(ctx, uci.Position{FEN: Some(fen)}, uci.Go{Depth: Some(a.Depth)}, func(info uci.Info) {
		if info.Text.HasValue() || info.MultiPV.ValueOr(1) != 1 {
			return
		}
		if info.Score.HasValue() {
			e.Score = scoreFromUCI(info.Score.Value())
		}
		if len(info.PV) > 0 {
			e.PV = MapSlice(info.PV, position.Move.String)
		}
	})
	if err != nil {
		return Evaluation{}, err
	}
	e.BestMove = best.Move.String()
	return e, nil
}
