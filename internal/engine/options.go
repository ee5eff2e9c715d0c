package engine

import (
	"time"

	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/options"
)

const DefaultGracePeriod = 50 * time.Millisecond

type Identity struct {
	Name   string
	Author string
}

type settings struct {
	identity     Identity
	gracePeriod  time.Duration
	logger       Logger
	diagnostics  func(error)
	hashMB       int
	moveOverhead time.Duration
	extraOptions []options.Definition
}

type Option func(*settings)

func WithIdentity(name, author string) Option {
	return func(c *settings) {
		c.identity = Identity{Name: name, Author: author}
	}
}

// WithGracePeriod bounds the time between a stop and its bestmove.
func WithGracePeriod(d time.Duration) Option {
	return func(c *settings) {
		c.gracePeriod = d
	}
}

func WithLogger(logger Logger) Option {
	return func(c *settings) {
		c.logger = logger
	}
}

// WithDiagnostics receives protocol violations, rejected options, illegal
// moves and capability failures. By default they are logged.
func WithDiagnostics(f func(error)) Option {
	return func(c *settings) {
		c.diagnostics = f
	}
}

func WithDefaultHash(mb int) Option {
	return func(c *settings) {
		c.hashMB = mb
	}
}

func WithMoveOverhead(d time.Duration) Option {
	return func(c *settings) {
		c.moveOverhead = d
	}
}

// WithOptions declares engine specific options next to the standard set.
func WithOptions(defs ...options.Definition) Option {
	return func(c *settings) {
		c.extraOptions = append(c.extraOptions, defs...)
	}
}
