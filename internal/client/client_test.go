package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cricklet/chessuci/internal/engine"
	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/position"
	"github.com/cricklet/chessuci/internal/search"
	"github.com/cricklet/chessuci/internal/uci"
)

// stubEngine answers every command line with the lines respond returns.
func stubEngine(t *testing.T, respond func(line string) []string, opts ...Option) *Client {
	commandsR, commandsW := io.Pipe()
	responsesR, responsesW := io.Pipe()
	go func() {
		defer responsesW.Close()
		scanner := bufio.NewScanner(commandsR)
		for scanner.Scan() {
			for _, line := range respond(scanner.Text()) {
				_, _ = fmt.Fprintln(responsesW, line)
			}
			if scanner.Text() == "quit" {
				return
			}
		}
	}()

	c := New(responsesR, commandsW, append([]Option{WithLogger(&SilentLogger)}, opts...)...)
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
}

func TestMalformedLineIsSkipped(t *testing.T) {
	c := New(strings.NewReader("foo bar baz\nbestmove e2e4\n"), io.Discard, WithLogger(&SilentLogger))

	response, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bestmove e2e4", response.String())

	_, err = c.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestAllYieldsInOrderUntilEOF(t *testing.T) {
	output := strings.Join([]string{
		"id name stub",
		"",
		"uciok",
		"info depth 1 score cp 20 pv e2e4",
		"bestmove e2e4 ponder e7e5",
	}, "\n")
	c := New(strings.NewReader(output), io.Discard, WithLogger(&SilentLogger))

	result := []string{}
	for response, err := range c.All(context.Background()) {
		require.NoError(t, err)
		result = append(result, response.String())
	}
	assert.Equal(t, []string{
		"id name stub",
		"uciok",
		"info depth 1 score cp 20 pv e2e4",
		"bestmove e2e4 ponder e7e5",
	}, result)
}

func TestReadFailureIsTransportError(t *testing.T) {
	c := New(iotest.ErrReader(errors.New("broken pipe")), io.Discard, WithLogger(&SilentLogger))

	_, err := c.Next(context.Background())
	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, "read", transport.Op)

	_, err = c.Next(context.Background())
	assert.ErrorAs(t, err, &transport)
}

func TestNextHonoursContext(t *testing.T) {
	c := stubEngine(t, func(string) []string { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSynchronizeKeepsOtherResponses(t *testing.T) {
	c := stubEngine(t, func(line string) []string {
		if line == "isready" {
			return []string{"info string warming up", "readyok"}
		}
		return nil
	})

	require.NoError(t, c.Synchronize(context.Background()))

	response, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "info string warming up", response.String())
}

func TestConcurrentSynchronize(t *testing.T) {
	c := stubEngine(t, func(line string) []string {
		if line == "isready" {
			return []string{"readyok"}
		}
		return nil
	})

	wg := sync.WaitGroup{}
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Synchronize(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "every readyok went to a waiter")
}

func TestSynchronizeWhenEngineDies(t *testing.T) {
	c := New(strings.NewReader(""), io.Discard, WithLogger(&SilentLogger))

	err := c.Synchronize(context.Background())
	var transport *TransportError
	assert.ErrorAs(t, err, &transport)
}

func TestSearchSendsStopOnCancel(t *testing.T) {
	c := stubEngine(t, func(line string) []string {
		switch {
		case strings.HasPrefix(line, "go"):
			return []string{"info depth 1 score cp 5 pv e2e4"}
		case line == "stop":
			return []string{"bestmove e2e4 ponder e7e5"}
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	infos := []uci.Info{}
	best, err := c.Search(ctx, uci.Position{}, uci.Go{Infinite: true}, func(info uci.Info) {
		infos = append(infos, info)
		cancel()
	})
	require.NoError(t, err)
	assert.Equal(t, "bestmove e2e4 ponder e7e5", best.String())
	assert.Len(t, infos, 1)

	record := c.Flush()
	assert.Contains(t, record, "> in:  position startpos")
	assert.Contains(t, record, "> in:  go infinite")
	assert.Contains(t, record, "> in:  stop")
}

func TestSearchGivesUpAfterStopTimeout(t *testing.T) {
	c := stubEngine(t, func(string) []string { return nil }, WithStopTimeout(30*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := c.Search(ctx, uci.Position{}, uci.Go{Infinite: true}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLateBestMoveIsNotReturnedByNextSearch(t *testing.T) {
	c := stubEngine(t, func(line string) []string {
		switch {
		case line == "stop":
			time.Sleep(60 * time.Millisecond)
			return []string{"bestmove a2a3"}
		case strings.HasPrefix(line, "go depth"):
			return []string{"info depth 1 score cp 10 pv e2e4", "bestmove e2e4"}
		}
		return nil
	}, WithStopTimeout(20*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Search(ctx, uci.Position{}, uci.Go{Infinite: true}, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	depths := []int{}
	best, err := c.Search(context.Background(), uci.Position{}, uci.Go{Depth: Some(1)}, func(info uci.Info) {
		depths = append(depths, info.Depth.Value())
	})
	require.NoError(t, err)
	assert.Equal(t, "e2e4", best.Move.String())
	assert.Equal(t, []int{1}, depths)
}

func TestSendAfterClose(t *testing.T) {
	c := stubEngine(t, func(string) []string { return nil })
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send(uci.IsReady{}), ErrClosed)
	assert.NoError(t, c.Close())
}

// connect runs an in-process engine behind a pair of pipes.
func connect(t *testing.T) *Client {
	commandsR, commandsW := io.Pipe()
	responsesR, responsesW := io.Pipe()

	e := engine.New(search.NewAlphaBeta(3, &SilentLogger), &search.MaterialEvaluator{}, search.NewDefaultTimeManager(),
		engine.WithLogger(&SilentLogger), engine.WithIdentity("chessuci test", "cricklet"))
	go func() {
		defer responsesW.Close()
		_ = e.Run(context.Background(), commandsR, responsesW)
	}()

	c := New(responsesR, commandsW, WithLogger(&SilentLogger))
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
}

func TestAgainstEngine(t *testing.T) {
	c := connect(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := c.Handshake(ctx)
	require.NoError(t, err)
	assert.Equal(t, "chessuci test", info.Name)
	assert.Equal(t, "cricklet", info.Author)
	assert.Len(t, info.Options, 7)

	require.NoError(t, c.Send(uci.SetOption{Name: "Hash", Value: Some("32")}))
	require.NoError(t, c.Synchronize(ctx))

	moves := []position.Move{}
	for _, s := range []string{"e2e4", "e7e5"} {
		m, err := position.ParseMove(s)
		require.NoError(t, err)
		moves = append(moves, m)
	}
	depths := []int{}
	best, err := c.Search(ctx, uci.Position{Moves: moves}, uci.Go{Depth: Some(2)}, func(info uci.Info) {
		depths = append(depths, info.Depth.Value())
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, depths)

	pos, err := position.Start().ApplyAll(moves)
	require.NoError(t, err)
	assert.True(t, pos.IsLegal(best.Move))

	assert.NoError(t, c.Close())
}

func TestPipe(t *testing.T) {
	e := engine.New(search.NewAlphaBeta(2, &SilentLogger), &search.MaterialEvaluator{}, search.NewDefaultTimeManager(),
		engine.WithLogger(&SilentLogger))
	c := Pipe(context.Background(), e.Run, WithLogger(&SilentLogger))

	require.NoError(t, c.Synchronize(context.Background()))
	require.NoError(t, c.Close())
	assert.Equal(t, engine.Terminated, e.State())
}

func TestLaunchStockfish(t *testing.T) {
	path, err := exec.LookPath("stockfish")
	if err != nil {
		t.Skip("stockfish not installed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := Launch(ctx, path, nil, WithLogger(&SilentLogger))
	require.NoError(t, err)
	defer c.Close()

	info, err := c.Handshake(ctx)
	require.NoError(t, err)
	assert.Contains(t, info.Name, "Stockfish")

	best, err := c.Search(ctx,
		uci.Position{FEN: Some("6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1")},
		uci.Go{Depth: Some(5)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "a1a8", best.Move.String())
}
