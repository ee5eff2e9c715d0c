package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"

	. "github.com/cricklet/chessuci/internal/accuracy"
	"github.com/cricklet/chessuci/internal/client"
	"github.com/cricklet/chessuci/internal/config"
	"github.com/cricklet/chessuci/internal/engine"
	. "github.com/cricklet/chessuci/internal/helpers"
)

func marshalResults(jsonPath string, results []Result) Error {
	output, err := json.MarshalIndent(results, "", "  ")
	if !IsNil(err) {
		return Wrap(err)
	}
	return Wrap(os.WriteFile(jsonPath, output, 0644))
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintln(os.Stderr, fmt.Sprint(r))
			fmt.Fprintln(os.Stderr, string(debug.Stack()))
			os.Exit(1)
		}
	}()

	config.SetLogLevel()
	args := os.Args[1:]
	if len(args) < 2 {
		fmt.Println("usage:")
		fmt.Println(" > accuracy <engine|builtin> <epd file> [movetime ms] [results.json]")
		return
	}

	moveTime := time.Second
	if len(args) > 2 {
		ms, err := strconv.Atoi(args[2])
		if err != nil {
			panic(Wrap(err))
		}
		moveTime = time.Duration(ms) * time.Millisecond
	}

	epds, err := LoadEpd(args[1])
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := &SlogLogger{Level: slog.LevelDebug, Attrs: []any{"engine", args[0]}}
	var c *client.Client
	if args[0] == "builtin" {
		cfg, err := config.LoadEngineConfig()
		if err != nil {
			panic(err)
		}
		c = client.Pipe(ctx, engine.NewReference(cfg, logger).Run, client.WithLogger(logger))
	} else {
		c, err = client.Launch(ctx, args[0], nil, client.WithLogger(logger))
		if err != nil {
			panic(err)
		}
	}
	defer c.Close()

	bar := progressbar.Default(int64(len(epds)), args[1])
	results := []Result{}
	summary, err := RunSuite(ctx, c, epds, moveTime, func(result Result, summary Summary) {
		results = append(results, result)
		if !result.Success {
			logger.Println("failed", result.ID, result.FEN, "played", result.Move)
		}
		bar.Describe(summary.String())
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	fmt.Println("solved", summary)
	if len(args) > 3 {
		if err := marshalResults(args[3], results); !IsNil(err) {
			panic(err)
		}
	}
}
