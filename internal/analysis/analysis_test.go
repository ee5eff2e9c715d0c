package analysis

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cricklet/chessuci/internal/client"
	"github.com/cricklet/chessuci/internal/engine"
	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/search"
)

const hangingQueenFEN = "4k3/8/8/3q4/4P3/8/8/4K3 w - - 0 1"

func cp(v int) *int {
	return &v
}

func connect(t *testing.T) *client.Client {
	commandsR, commandsW := io.Pipe()
	responsesR, responsesW := io.Pipe()

	e := engine.New(search.NewAlphaBeta(4, &SilentLogger), &search.MaterialEvaluator{}, search.NewDefaultTimeManager(),
		engine.WithLogger(&SilentLogger))
	go func() {
		defer responsesW.Close()
		_ = e.Run(context.Background(), commandsR, responsesW)
	}()

	c := client.New(responsesR, commandsW, client.WithLogger(&SilentLogger))
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
}

func countSearches(c *client.Client) int {
	return strings.Count(c.Flush(), "in:  go ")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "4k3/8/8/3q4/4P3/8/8/4K3 w - -", Normalize(hangingQueenFEN))
	assert.Equal(t, Normalize("4k3/8/8/3q4/4P3/8/8/4K3 w - - 12 40"), Normalize(hangingQueenFEN))
}

func TestMemoryCacheKeepsDeepest(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()

	stored, err := cache.Put(ctx, Evaluation{FEN: hangingQueenFEN, Depth: 6, BestMove: "e4d5"})
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = cache.Put(ctx, Evaluation{FEN: hangingQueenFEN, Depth: 4, BestMove: "e1d1"})
	require.NoError(t, err)
	assert.False(t, stored)

	stored, err = cache.Put(ctx, Evaluation{FEN: "4k3/8/8/3q4/4P3/8/8/4K3 w - - 3 9", Depth: 8, BestMove: "e4d5"})
	require.NoError(t, err)
	assert.True(t, stored)

	e, err := cache.Get(ctx, hangingQueenFEN)
	require.NoError(t, err)
	require.True(t, e.HasValue())
	assert.Equal(t, 8, e.Value().Depth)
	assert.Equal(t, 1, cache.Len())

	missing, err := cache.Get(ctx, "8/8/8/8/8/8/8/K6k w - - 0 1")
	require.NoError(t, err)
	assert.True(t, missing.IsEmpty())
}

func TestEvaluationJSON(t *testing.T) {
	data, err := json.Marshal(Evaluation{FEN: "fen", Depth: 3, BestMove: "e2e4", Score: Score{CP: cp(25)}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"fen":"fen","depth":3,"best_move":"e2e4","score":{"cp":25}}`, string(data))
}

func TestClassify(t *testing.T) {
	before := Evaluation{Score: Score{CP: cp(40)}}
	for _, tc := range []struct {
		after          int
		loss           int
		classification Classification
	}{
		{after: -60, loss: 0, classification: Good},
		{after: -5, loss: 35, classification: Suboptimal},
		{after: 20, loss: 60, classification: Inaccuracy},
		{after: 100, loss: 140, classification: Mistake},
		{after: 500, loss: 540, classification: Blunder},
	} {
		loss, classification := Classify(before, Evaluation{Score: Score{CP: cp(tc.after)}})
		assert.Equal(t, tc.loss, loss)
		assert.Equal(t, tc.classification, classification)
	}

	mate := 2
	_, classification := Classify(before, Evaluation{Score: Score{Mate: &mate}})
	assert.Equal(t, Unknown, classification)
}

func TestAnalyzeUsesCache(t *testing.T) {
	c := connect(t)
	cache := NewMemoryCache()
	analyzer := NewAnalyzer(c, cache, 2, &SilentLogger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	e, err := analyzer.Analyze(ctx, hangingQueenFEN)
	require.NoError(t, err)
	assert.Equal(t, "e4d5", e.BestMove)
	assert.Equal(t, 2, e.Depth)
	require.NotNil(t, e.Score.CP)
	assert.Greater(t, *e.Score.CP, 0)
	assert.True(t, e.WhiteToMove())
	assert.Equal(t, 1, countSearches(c))

	again, err := analyzer.Analyze(ctx, "4k3/8/8/3q4/4P3/8/8/4K3 w - - 7 30")
	require.NoError(t, err)
	assert.Equal(t, e, again)
	assert.Equal(t, 1, countSearches(c))

	analyzer.Depth = 3
	deeper, err := analyzer.Analyze(ctx, hangingQueenFEN)
	require.NoError(t, err)
	assert.Equal(t, 3, deeper.Depth)
	assert.Equal(t, 2, countSearches(c))

	cached, err := cache.Get(ctx, hangingQueenFEN)
	require.NoError(t, err)
	assert.Equal(t, 3, cached.Value().Depth)
}

func TestAnalyzeRejectsBadFEN(t *testing.T) {
	analyzer := NewAnalyzer(nil, NewMemoryCache(), 2, &SilentLogger)
	_, err := analyzer.Analyze(context.Background(), "not a fen")
	assert.Error(t, err)
}

func TestReviewGame(t *testing.T) {
	c := connect(t)
	analyzer := NewAnalyzer(c, NewMemoryCache(), 2, &SilentLogger)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reviews, err := analyzer.ReviewGame(ctx, "1. e4 e5 2. Qh5 Nc6 3. Bc4 Nf6 4. Qxf7# 1-0", 0)
	require.NoError(t, err)
	require.Len(t, reviews, 7)
	assert.Equal(t, "e4", reviews[0].SAN)
	assert.Equal(t, "e2e4", reviews[0].UCI)
	assert.True(t, reviews[0].White)
	assert.False(t, reviews[1].White)
	assert.Equal(t, "Qxf7#", reviews[6].SAN)
	require.NotNil(t, reviews[0].Accuracy)
	assert.GreaterOrEqual(t, *reviews[0].Accuracy, 0.0)
	assert.LessOrEqual(t, *reviews[0].Accuracy, 100.0)

	short, err := analyzer.ReviewGame(ctx, "1. e4 e5 2. Qh5 Nc6 3. Bc4 Nf6 4. Qxf7# 1-0", 2)
	require.NoError(t, err)
	assert.Len(t, short, 2)
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("ANALYSIS_REDIS_URL")
	if url == "" {
		t.Skip("ANALYSIS_REDIS_URL not set")
	}
	ctx := context.Background()
	conn, err := ConnectRedis(ctx, url)
	require.NoError(t, err)
	defer conn.Close()

	prefix := "chessuci:test:" + time.Now().Format(time.RFC3339Nano) + ":"
	cache := NewRedisCache(conn, prefix, time.Minute)

	stored, err := cache.Put(ctx, Evaluation{FEN: hangingQueenFEN, Depth: 6, BestMove: "e4d5", Score: Score{CP: cp(880)}})
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = cache.Put(ctx, Evaluation{FEN: hangingQueenFEN, Depth: 5, BestMove: "e1d1"})
	require.NoError(t, err)
	assert.False(t, stored)

	e, err := cache.Get(ctx, hangingQueenFEN)
	require.NoError(t, err)
	require.True(t, e.HasValue())
	assert.Equal(t, "e4d5", e.Value().BestMove)
	assert.Equal(t, 880, *e.Value().Score.CP)
}
