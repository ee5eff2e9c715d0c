package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/options"
	"github.com/cricklet/chessuci/internal/position"
	"github.com/cricklet/chessuci/internal/search"
	"github.com/cricklet/chessuci/internal/uci"
)

type lineWriter struct {
	lines chan string
}

func (w *lineWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		w.lines <- line
	}
	return len(p), nil
}

type harness struct {
	t     *testing.T
	in    *io.PipeWriter
	out   *lineWriter
	done  chan error
	mu    sync.Mutex
	diags []error
}

func (h *harness) diagnostics() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error{}, h.diags...)
}

func startEngine[S search.Searcher](t *testing.T, searcher S, opts ...Option) *harness {
	h := &harness{
		t:    t,
		out:  &lineWriter{lines: make(chan string, 10000)},
		done: make(chan error, 1),
	}
	opts = append([]Option{
		WithLogger(&SilentLogger),
		WithDiagnostics(func(err error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.diags = append(h.diags, err)
		}),
	}, opts...)

	e := New(searcher, &search.MaterialEvaluator{}, search.NewDefaultTimeManager(), opts...)
	r, w := io.Pipe()
	h.in = w
	go func() {
		h.done <- e.Run(context.Background(), r, h.out)
	}()
	t.Cleanup(func() {
		w.Close()
	})
	return h
}

func (h *harness) send(lines ...string) {
	for _, line := range lines {
		_, err := fmt.Fprintln(h.in, line)
		require.NoError(h.t, err)
	}
}

// expect reads lines until one starts with prefix and returns every line read.
func (h *harness) expect(prefix string, timeout time.Duration) []string {
	h.t.Helper()
	result := []string{}
	deadline := time.After(timeout)
	for {
		select {
		case line := <-h.out.lines:
			result = append(result, line)
			if strings.HasPrefix(line, prefix) {
				return result
			}
		case <-deadline:
			require.FailNow(h.t, "timed out", "waiting for %q, got %v", prefix, result)
			return nil
		}
	}
}

func (h *harness) expectNothing(wait time.Duration) {
	h.t.Helper()
	select {
	case line := <-h.out.lines:
		assert.Fail(h.t, "unexpected output", line)
	case <-time.After(wait):
	}
}

func (h *harness) quit() {
	h.t.Helper()
	h.send("quit")
	select {
	case err := <-h.done:
		assert.NoError(h.t, err)
	case <-time.After(time.Second):
		assert.Fail(h.t, "engine did not quit")
	}
}

// blockingSearcher ignores its limits and returns its best line only once
// cancelled.
func blockingSearcher(pv ...string) search.SearchFunc {
	return func(ctx context.Context, request search.Request, evaluator search.Evaluator, report search.Reporter) (search.Result, error) {
		moves := []position.Move{}
		for _, s := range pv {
			m, _ := position.ParseMove(s)
			moves = append(moves, m)
		}
		report(search.Progress{Depth: 1, Nodes: 10, PV: moves, Score: 12})
		<-ctx.Done()
		return search.ResultFromPV(moves, Some(search.Score(12))), nil
	}
}

func TestHandshake(t *testing.T) {
	h := startEngine(t, search.NewAlphaBeta(3, &SilentLogger), WithIdentity("tester", "someone"))
	h.send("uci")

	lines := h.expect("uciok", time.Second)
	assert.Equal(t, "id name tester", lines[0])
	assert.Equal(t, "id author someone", lines[1])
	assert.Contains(t, lines, "option name Hash type spin default 16 min 1 max 1024")
	assert.Contains(t, lines, "option name Clear Hash type button")

	h.send("isready")
	assert.Equal(t, []string{"readyok"}, h.expect("readyok", time.Second))
	h.quit()
}

func TestGoDepthFromMoves(t *testing.T) {
	h := startEngine(t, search.NewAlphaBeta(3, &SilentLogger))
	h.send("uci", "position startpos moves e2e4 e7e5", "go depth 1")

	lines := h.expect("bestmove", 5*time.Second)
	move, err := uci.ParseResponse(lines[len(lines)-1])
	require.NoError(t, err)

	pos, err := position.Start().ApplyAll(mustMoves(t, "e2e4", "e7e5"))
	require.NoError(t, err)
	assert.True(t, pos.IsLegal(move.(uci.BestMove).Move))

	h.send("isready")
	lines = h.expect("readyok", time.Second)
	for _, line := range lines {
		assert.False(t, strings.HasPrefix(line, "bestmove"), "exactly one bestmove")
	}
	h.quit()
}

func mustMoves(t *testing.T, ss ...string) []position.Move {
	result := []position.Move{}
	for _, s := range ss {
		m, err := position.ParseMove(s)
		require.NoError(t, err)
		result = append(result, m)
	}
	return result
}

func TestStopInfiniteWithinGrace(t *testing.T) {
	grace := 50 * time.Millisecond
	h := startEngine(t, search.NewAlphaBeta(search.DefaultMaxDepth, &SilentLogger), WithGracePeriod(grace))
	h.send("uci", "isready")
	h.expect("readyok", 5*time.Second)

	h.send("position startpos", "go infinite")
	time.Sleep(50 * time.Millisecond)

	stopped := time.Now()
	h.send("stop")
	h.expect("bestmove", time.Second)
	assert.Less(t, time.Since(stopped), grace+100*time.Millisecond)
	h.quit()
}

func TestStopWithStubbornSearcher(t *testing.T) {
	grace := 30 * time.Millisecond
	stubborn := search.SearchFunc(func(ctx context.Context, request search.Request, evaluator search.Evaluator, report search.Reporter) (search.Result, error) {
		report(search.Progress{Depth: 2, PV: mustMoves(t, "d2d4", "d7d5")})
		time.Sleep(2 * time.Second)
		return search.Result{BestMove: mustMoves(t, "a2a3")[0]}, nil
	})
	h := startEngine(t, stubborn, WithGracePeriod(grace))
	h.send("position startpos", "go infinite")
	h.expect("info depth 2", time.Second)

	stopped := time.Now()
	h.send("stop")
	lines := h.expect("bestmove", time.Second)
	assert.Less(t, time.Since(stopped), grace+100*time.Millisecond)
	assert.Equal(t, "bestmove d2d4 ponder d7d5", lines[len(lines)-1])

	var failure *CapabilityFailure
	assert.Eventually(t, func() bool {
		for _, err := range h.diagnostics() {
			if errors.As(err, &failure) {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
	h.quit()
}

func TestSetOptionOutOfRange(t *testing.T) {
	h := startEngine(t, search.NewAlphaBeta(3, &SilentLogger))
	h.send("uci", "setoption name Hash value -5", "setoption name NoSuchThing value 1", "isready")
	h.expect("readyok", time.Second)

	diags := h.diagnostics()
	require.Len(t, diags, 2)
	var rejected *options.RejectedError
	assert.True(t, errors.As(diags[0], &rejected))
	assert.Equal(t, "Hash", rejected.Name)
	h.quit()
}

func TestGoWhileSearchingIsRejected(t *testing.T) {
	h := startEngine(t, blockingSearcher("e2e4"))
	h.send("position startpos", "go infinite")
	h.expect("info", time.Second)

	h.send("go depth 3", "position startpos moves d2d4", "setoption name Hash value 32", "ucinewgame", "ponderhit", "isready")
	h.expect("readyok", time.Second)

	diags := h.diagnostics()
	require.Len(t, diags, 5)
	for _, err := range diags {
		var violation *ProtocolViolation
		assert.True(t, errors.As(err, &violation), err)
	}

	h.send("stop")
	lines := h.expect("bestmove", time.Second)
	assert.Equal(t, "bestmove e2e4", lines[len(lines)-1])
	h.quit()
}

func TestIsReadyAfterStopFollowsBestMove(t *testing.T) {
	h := startEngine(t, blockingSearcher("g1f3"))
	h.send("position startpos", "go infinite")
	h.expect("info", time.Second)

	h.send("stop", "isready", "isready")
	lines := h.expect("readyok", time.Second)
	assert.Equal(t, "bestmove g1f3", lines[len(lines)-2])
	h.expect("readyok", time.Second)
	h.quit()
}

func TestIsReadyDuringSearchIsImmediate(t *testing.T) {
	h := startEngine(t, blockingSearcher("g1f3"))
	h.send("go infinite")
	h.expect("info", time.Second)

	for i := 0; i < 3; i++ {
		h.send("isready")
		assert.Equal(t, []string{"readyok"}, h.expect("readyok", 200*time.Millisecond))
	}
	h.send("stop")
	h.expect("bestmove", time.Second)
	h.quit()
}

func TestInfiniteHoldsResultUntilStop(t *testing.T) {
	h := startEngine(t, search.NewAlphaBeta(3, &SilentLogger))
	h.send("uci", "position startpos", "go infinite depth 1")
	h.expect("info depth 1", 5*time.Second)
	h.expectNothing(100 * time.Millisecond)

	h.send("stop")
	h.expect("bestmove", time.Second)
	h.quit()
}

func TestPonderHitReleasesResult(t *testing.T) {
	h := startEngine(t, search.NewAlphaBeta(3, &SilentLogger))
	h.send("uci", "position startpos moves e2e4", "go ponder depth 1")
	h.expect("info depth 1", 5*time.Second)
	h.expectNothing(100 * time.Millisecond)

	h.send("ponderhit")
	h.expect("bestmove", time.Second)

	h.send("ponderhit", "isready")
	h.expect("readyok", time.Second)
	var violation *ProtocolViolation
	require.NotEmpty(t, h.diagnostics())
	assert.True(t, errors.As(h.diagnostics()[0], &violation))
	h.quit()
}

func TestPonderHitStartsClock(t *testing.T) {
	h := startEngine(t, blockingSearcher("e7e5"))
	h.send("position startpos moves e2e4", "go ponder movetime 100")
	h.expect("info", time.Second)
	h.expectNothing(200 * time.Millisecond)

	h.send("ponderhit")
	start := time.Now()
	h.expect("bestmove e7e5", time.Second)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	h.quit()
}

func TestMoveTimeIsHonoured(t *testing.T) {
	h := startEngine(t, blockingSearcher("e2e4"))
	start := time.Now()
	h.send("go movetime 100")
	h.expect("bestmove e2e4", time.Second)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	h.quit()
}

func TestDepthRegressionIsDropped(t *testing.T) {
	regressing := search.SearchFunc(func(ctx context.Context, request search.Request, evaluator search.Evaluator, report search.Reporter) (search.Result, error) {
		report(search.Progress{Depth: 3, PV: mustMoves(t, "e2e4")})
		report(search.Progress{Depth: 2, PV: mustMoves(t, "d2d4")})
		report(search.Progress{Depth: 4, PV: mustMoves(t, "c2c4")})
		return search.Result{BestMove: mustMoves(t, "c2c4")[0]}, nil
	})
	h := startEngine(t, regressing)
	h.send("go depth 4")

	lines := h.expect("bestmove", time.Second)
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "info depth 3"))
	assert.True(t, strings.HasPrefix(lines[1], "info depth 4"))
	h.quit()
}

func TestFailingSearcherFallsBack(t *testing.T) {
	panicking := search.SearchFunc(func(ctx context.Context, request search.Request, evaluator search.Evaluator, report search.Reporter) (search.Result, error) {
		panic("boom")
	})
	h := startEngine(t, panicking)
	h.send("position startpos", "go depth 2")
	lines := h.expect("bestmove", time.Second)

	move, err := uci.ParseResponse(lines[len(lines)-1])
	require.NoError(t, err)
	assert.True(t, position.Start().IsLegal(move.(uci.BestMove).Move))
	h.quit()
}

func TestNoLegalMovesSendsNullMove(t *testing.T) {
	h := startEngine(t, search.NewAlphaBeta(3, &SilentLogger))
	h.send("position fen 7k/5Q2/6K1/8/8/8/8/8 b - - 0 1", "go depth 2")
	h.expect("bestmove 0000", time.Second)
	h.quit()
}

func TestIllegalMoveKeepsPrefix(t *testing.T) {
	h := startEngine(t, search.NewAlphaBeta(3, &SilentLogger))
	h.send("position startpos moves e2e4 e7e5 e1e3 g1f3", "go depth 1")
	lines := h.expect("bestmove", 5*time.Second)

	move, err := uci.ParseResponse(lines[len(lines)-1])
	require.NoError(t, err)
	pos, err := position.Start().ApplyAll(mustMoves(t, "e2e4", "e7e5"))
	require.NoError(t, err)
	assert.True(t, pos.IsLegal(move.(uci.BestMove).Move), "white to move after the legal prefix")

	var illegal *position.IllegalMoveError
	require.NotEmpty(t, h.diagnostics())
	assert.True(t, errors.As(h.diagnostics()[0], &illegal))
	h.quit()
}

func TestDebugSendsDiagnosticsAsInfo(t *testing.T) {
	h := startEngine(t, search.NewAlphaBeta(3, &SilentLogger))
	h.send("debug on", "frobnicate", "isready")
	lines := h.expect("readyok", time.Second)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "info string"))
	h.quit()
}

func TestQuitDuringSearch(t *testing.T) {
	h := startEngine(t, blockingSearcher("e2e4"))
	h.send("go infinite")
	h.expect("info", time.Second)
	h.quit()
}

func TestImplicitInitialization(t *testing.T) {
	e := New(search.NewAlphaBeta(2, &SilentLogger), &search.MaterialEvaluator{}, search.NewDefaultTimeManager(),
		WithLogger(&SilentLogger))
	assert.Equal(t, Uninitialized, e.State())

	assert.False(t, e.HandleLine("position startpos moves e2e4"))
	assert.Equal(t, Idle, e.State())
	assert.Equal(t, position.Black, e.Position().SideToMove())

	assert.True(t, e.Handle(uci.Quit{}))
	assert.Equal(t, Terminated, e.State())
}

func TestCommandsAfterStopApplyToNextSearch(t *testing.T) {
	h := startEngine(t, search.NewAlphaBeta(3, &SilentLogger))
	h.send("uci", "position startpos", "go infinite")
	h.expect("info depth 1", 5*time.Second)

	h.send("stop", "position startpos moves e2e4", "go depth 1")
	h.expect("bestmove", time.Second)
	lines := h.expect("bestmove", 5*time.Second)

	move, err := uci.ParseResponse(lines[len(lines)-1])
	require.NoError(t, err)
	pos, err := position.Start().ApplyAll(mustMoves(t, "e2e4"))
	require.NoError(t, err)
	assert.True(t, pos.IsLegal(move.(uci.BestMove).Move), "black to move after e2e4")
	assert.Empty(t, h.diagnostics())
	h.quit()
}

func TestQuitWaitsAtMostTheGracePeriod(t *testing.T) {
	grace := 30 * time.Millisecond
	stubborn := search.SearchFunc(func(ctx context.Context, request search.Request, evaluator search.Evaluator, report search.Reporter) (search.Result, error) {
		report(search.Progress{Depth: 1, PV: mustMoves(t, "e2e4")})
		time.Sleep(2 * time.Second)
		return search.Result{BestMove: mustMoves(t, "e2e4")[0]}, nil
	})
	h := startEngine(t, stubborn, WithGracePeriod(grace))
	h.send("go infinite")
	h.expect("info depth 1", time.Second)

	quitAt := time.Now()
	h.send("quit")
	select {
	case err := <-h.done:
		assert.NoError(t, err)
		assert.Less(t, time.Since(quitAt), grace+100*time.Millisecond)
	case <-time.After(time.Second):
		assert.Fail(t, "engine did not quit")
	}
}

func TestDiagnosticsMayCallBackIntoEngine(t *testing.T) {
	var e *Reference
	states := make(chan State, 10)
	e = New(search.NewAlphaBeta(2, &SilentLogger), &search.MaterialEvaluator{}, search.NewDefaultTimeManager(),
		WithLogger(&SilentLogger),
		WithDiagnostics(func(err error) {
			_ = e.Position()
			states <- e.State()
		}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.HandleLine("position startpos moves e2e5")
		e.HandleLine("setoption name Hash value -5")
		e.HandleLine("ucinewgame")
		e.HandleLine("ponderhit")
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "diagnostics hook deadlocked")
	}
	require.Len(t, states, 3)
	assert.Equal(t, Idle, <-states)
	e.Handle(uci.Quit{})
}
