package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/cricklet/chessuci/internal/analysis"
	"github.com/cricklet/chessuci/internal/client"
	"github.com/cricklet/chessuci/internal/config"
	"github.com/cricklet/chessuci/internal/engine"
	. "github.com/cricklet/chessuci/internal/helpers"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: analyze <fen>... | analyze pgn <file> [plies]")
	os.Exit(2)
}

func printJSON(v any) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(Wrap(err))
	}
	fmt.Println(string(output))
}

func main() {
	config.SetLogLevel()
	args := os.Args[1:]
	if len(args) == 0 {
		usage()
	}

	cfg, err := config.LoadAnalysisConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := &SlogLogger{Level: slog.LevelDebug, Attrs: []any{"engine", cfg.EnginePath}}
	var c *client.Client
	if cfg.EnginePath == "builtin" {
		engineConfig, err := config.LoadEngineConfig()
		if err != nil {
			fmt.Fprintln(os.Stderr, "config:", err)
			os.Exit(1)
		}
		c = client.Pipe(ctx, engine.NewReference(engineConfig, logger).Run, client.WithLogger(logger))
	} else {
		c, err = client.Launch(ctx, cfg.EnginePath, nil, client.WithLogger(logger))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	defer c.Close()

	if _, err := c.Handshake(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var cache analysis.Cache = analysis.NewMemoryCache()
	if cfg.RedisURL != "" {
		conn, err := analysis.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer conn.Close()
		cache = analysis.NewRedisCache(conn, cfg.KeyPrefix, 0)
	}
	analyzer := analysis.NewAnalyzer(c, cache, cfg.Depth, &SlogLogger{Level: slog.LevelWarn})

	if args[0] == "pgn" {
		if len(args) < 2 {
			usage()
		}
		pgn, err := os.ReadFile(args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, Wrap(err))
			os.Exit(1)
		}
		plies := 0
		if len(args) > 2 {
			fmt.Sscanf(args[2], "%d", &plies)
		}
		reviews, err := analyzer.ReviewGame(ctx, string(pgn), plies)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		printJSON(reviews)
		return
	}

	evaluations := []analysis.Evaluation{}
	for _, fen := range args {
		e, err := analyzer.Analyze(ctx, fen)
		if err != nil {
			fmt.Fprintln(os.Stderr, fen, err)
			os.Exit(1)
		}
		evaluations = append(evaluations, e)
	}
	printJSON(evaluations)
}
