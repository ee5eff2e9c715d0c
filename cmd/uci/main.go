package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/profile"

	"github.com/cricklet/chessuci/internal/config"
	"github.com/cricklet/chessuci/internal/engine"
	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/options"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintln(os.Stderr, "recover()", r)
			os.Exit(1)
		}
	}()

	config.SetLogLevel()
	args := os.Args[1:]

	if Contains(args, "profile") {
		p := profile.Start(profile.ProfilePath(os.Getenv("UCI_PROFILE_DIR")), profile.NoShutdownHook)
		defer p.Stop()
	}
	args = FilterSlice(args, func(arg string) bool {
		return arg != "profile"
	})

	cfg, err := config.LoadEngineConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	if len(args) > 0 && args[0] == "options" {
		for _, def := range options.Standard(cfg.HashMB, int(cfg.MoveOverhead.Milliseconds())) {
			fmt.Println(def.Declaration())
		}
		return
	}

	logger := &SlogLogger{Level: slog.LevelDebug, Attrs: []any{"engine", cfg.Name}}
	e := engine.NewReference(cfg, logger, engine.WithDiagnostics(func(err error) {
		slog.Warn("diagnostic", "error", err)
	}))

	if err := e.Run(context.Background(), os.Stdin, os.Stdout); err != nil {
		slog.Error("engine stopped", "error", err)
		os.Exit(1)
	}
}
