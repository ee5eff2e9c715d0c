package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"strconv"

	"github.com/cricklet/chessuci/internal/config"
	"github.com/cricklet/chessuci/internal/engine"
	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/server"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintln(os.Stderr, fmt.Sprint(r))
			fmt.Fprintln(os.Stderr, string(debug.Stack()))
		}
	}()

	config.SetLogLevel()

	engineConfig, err := config.LoadEngineConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	serverConfig, err := config.LoadServerConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	port := serverConfig.Port
	for _, arg := range os.Args[1:] {
		if parsed, err := strconv.Atoi(arg); err == nil {
			port = parsed
		}
	}

	logger := &SlogLogger{Level: slog.LevelInfo}
	s := server.New(func(logger Logger) server.Session {
		return engine.NewReference(engineConfig, logger)
	}, logger, server.WithStatic(os.Getenv("UCI_STATIC_DIR")))

	slog.Info("serving", "port", port)
	err = Wrap(http.ListenAndServe(fmt.Sprintf(":%v", port), s))
	if !IsNil(err) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
