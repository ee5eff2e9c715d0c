package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"github.com/cricklet/chessuci/internal/client"
	"github.com/cricklet/chessuci/internal/config"
	"github.com/cricklet/chessuci/internal/engine"
	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/match"
	"github.com/cricklet/chessuci/internal/uci"
)

const builtin = "builtin"

func usage() {
	fmt.Fprintln(os.Stderr, "usage: match <engine|builtin> <engine|builtin> [games] [movetime ms] [Name=Value ...]")
	os.Exit(2)
}

// connect launches path, or runs the bundled engine in process.
func connect(ctx context.Context, path string, cfg *config.EngineConfig) (match.Player, Error) {
	logger := &SlogLogger{Level: slog.LevelDebug, Attrs: []any{"engine", path}}
	var c *client.Client
	if path == builtin {
		e := engine.NewReference(cfg, logger)
		c = client.Pipe(ctx, e.Run, client.WithLogger(logger))
	} else {
		var err error
		c, err = client.Launch(ctx, path, nil, client.WithLogger(logger))
		if err != nil {
			return match.Player{}, Wrap(err)
		}
	}

	info, err := c.Handshake(ctx)
	if err != nil {
		c.Close()
		return match.Player{}, Wrap(err)
	}
	name := info.Name
	if name == "" {
		name = path
	}
	return match.Player{Name: name, Client: c}, NilError
}

// parseOverrides reads Name=Value pairs to sweep against the first engine.
func parseOverrides(args []string) ([]uci.SetOption, Error) {
	overrides := []uci.SetOption{}
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, Errorf("expected Name=Value, got %q", arg)
		}
		overrides = append(overrides, uci.SetOption{Name: name, Value: Some(value)})
	}
	return overrides, NilError
}

type playConfig struct {
	games    int
	moveTime time.Duration
}

func play(ctx context.Context, a, b match.Player, pc playConfig) (match.Score, error) {
	bar := progressbar.Default(int64(pc.games), fmt.Sprintf("%v vs %v", a.Name, b.Name))
	plies := 0
	started := time.Now()
	score, err := match.Run(ctx, a, b, pc.games, match.Config{
		NewTimer: func() *client.Timer {
			return client.NewMoveTimeTimer(pc.moveTime)
		},
		Logger: &SlogLogger{Level: slog.LevelInfo},
	}, func(game match.Game, score match.Score) {
		plies += len(game.Moves)
		bar.Describe(score.String())
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	if err != nil {
		return score, err
	}

	rating, deviation := score.Rating()
	fmt.Println()
	fmt.Printf("%v vs %v: %v\n", a.Name, b.Name, score)
	fmt.Printf("elo difference: %.0f (rating %.0f ± %.0f)\n", score.EloDifference(), rating, deviation)
	fmt.Printf("%v plies, started %v\n", humanize.Comma(int64(plies)), humanize.Time(started))
	return score, nil
}

func main() {
	config.SetLogLevel()
	args := os.Args[1:]
	if len(args) < 2 {
		usage()
	}

	pc := playConfig{games: 10, moveTime: 100 * time.Millisecond}
	if len(args) > 2 {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			usage()
		}
		pc.games = n
	}
	if len(args) > 3 {
		ms, err := strconv.Atoi(args[3])
		if err != nil {
			usage()
		}
		pc.moveTime = time.Duration(ms) * time.Millisecond
	}
	overrides := []uci.SetOption{}
	if len(args) > 4 {
		var traceErr Error
		overrides, traceErr = parseOverrides(args[4:])
		if !IsNil(traceErr) {
			fmt.Fprintln(os.Stderr, traceErr)
			usage()
		}
	}

	cfg, err := config.LoadEngineConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	b, traceErr := connect(ctx, args[1], cfg)
	if !IsNil(traceErr) {
		fmt.Fprintln(os.Stderr, traceErr)
		os.Exit(1)
	}
	defer b.Client.Close()

	// options persist inside an engine, so every combination gets its own
	sweep := [][]uci.SetOption{{}}
	if len(overrides) > 0 {
		sweep = match.Sweep(overrides)
	}
	results := map[string]match.Score{}
	names := []string{}
	for _, opts := range sweep {
		a, traceErr := connect(ctx, args[0], cfg)
		if !IsNil(traceErr) {
			fmt.Fprintln(os.Stderr, traceErr)
			os.Exit(1)
		}
		a = a.WithOptions(opts...)
		score, err := play(ctx, a, b, pc)
		a.Client.Close()
		if err != nil {
			fmt.Fprintln(os.Stderr, Wrap(err))
			os.Exit(1)
		}
		results[a.Name] = score
		names = append(names, a.Name)
	}

	if len(sweep) > 1 {
		fmt.Println()
		for _, name := range names {
			fmt.Printf("%v: %v, elo %.0f\n", name, results[name], results[name].EloDifference())
		}
	}
}
