package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"

	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/options"
	"github.com/cricklet/chessuci/internal/position"
	"github.com/cricklet/chessuci/internal/search"
	"github.com/cricklet/chessuci/internal/uci"
)

// Engine serves the UCI protocol for one searcher, evaluator and time
// manager. Commands are handled on the caller's goroutine; searches run in
// the background.
type Engine[S search.Searcher, E search.Evaluator, T search.TimeManager] struct {
	searcher    S
	evaluator   E
	timeManager T

	settings settings
	registry *options.Registry
	debug    atomic.Bool

	lifetime context.Context
	shutdown context.CancelFunc

	outMu sync.Mutex
	out   io.Writer
	trace io.WriteCloser

	mu       sync.Mutex
	state    State
	position position.Position
	warm     chan struct{}
	job      *searchJob
}

func New[S search.Searcher, E search.Evaluator, T search.TimeManager](
	searcher S, evaluator E, timeManager T, opts ...Option,
) *Engine[S, E, T] {
	c := settings{
		identity:     Identity{Name: "chessuci", Author: "cricklet"},
		gracePeriod:  DefaultGracePeriod,
		logger:       &DefaultLogger,
		hashMB:       search.DefaultHashMB,
		moveOverhead: 30 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&c)
	}

	e := &Engine[S, E, T]{
		searcher:    searcher,
		evaluator:   evaluator,
		timeManager: timeManager,
		settings:    c,
		out:         io.Discard,
		position:    position.Start(),
	}
	e.lifetime, e.shutdown = context.WithCancel(context.Background())

	e.registry = options.NewRegistry(options.Standard(c.hashMB, int(c.moveOverhead/time.Millisecond))...)
	for _, def := range c.extraOptions {
		e.registry.Declare(def)
	}
	e.registry.OnChange(options.ClearHash, func(string) {
		if clearer, ok := any(e.searcher).(search.HashClearer); ok {
			clearer.ClearHash()
		}
	})
	e.registry.OnChange(options.DebugLogFile, e.openTrace)

	return e
}

func (e *Engine[S, E, T]) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine[S, E, T]) Position() position.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

func (e *Engine[S, E, T]) Options() options.Snapshot {
	return e.registry.Snapshot()
}

// Run reads commands from r until quit, EOF or ctx is done, writing
// responses to w. A read failure is returned; quit and EOF return nil.
func (e *Engine[S, E, T]) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	e.outMu.Lock()
	e.out = w
	e.outMu.Unlock()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-e.lifetime.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			e.quit()
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				e.quit()
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("reading commands: %w", err)
					}
				default:
				}
				return nil
			}
			if e.HandleLine(line) {
				return nil
			}
		}
	}
}

// HandleLine parses and handles one line. It returns true after quit.
func (e *Engine[S, E, T]) HandleLine(line string) bool {
	e.traceLine(">>", line)
	if strings.TrimSpace(line) == "" {
		return false
	}
	cmd, err := uci.ParseCommand(line)
	if err != nil {
		e.diagnose(err)
		return false
	}
	return e.Handle(cmd)
}

// Handle applies one command. It returns true after quit.
func (e *Engine[S, E, T]) Handle(cmd uci.Command) bool {
	if e.State() == Terminated {
		return true
	}
	if _, ok := cmd.(uci.UCI); !ok {
		e.mu.Lock()
		if e.state == Uninitialized {
			e.settings.logger.Println("implicitly initializing before", cmd)
			e.initialize()
		}
		e.mu.Unlock()
	}

	switch cmd := cmd.(type) {
	case uci.UCI:
		e.handleUCI()
	case uci.Debug:
		e.debug.Store(cmd.On)
	case uci.IsReady:
		e.handleIsReady()
	case uci.SetOption:
		e.handleSetOption(cmd)
	case uci.Register:
		e.settings.logger.Println("ignoring", cmd)
	case uci.UCINewGame:
		e.handleNewGame(cmd)
	case uci.Position:
		e.handlePosition(cmd)
	case uci.Go:
		e.handleGo(cmd)
	case uci.Stop:
		e.handleStop()
	case uci.PonderHit:
		e.handlePonderHit(cmd)
	case uci.Quit:
		e.quit()
		return true
	}
	return false
}

// initialize must be called with e.mu held.
func (e *Engine[S, E, T]) initialize() {
	if e.state != Uninitialized {
		return
	}
	e.state = Idle

	warm := make(chan struct{})
	e.warm = warm
	warmer, ok := any(e.searcher).(search.Warmer)
	if !ok {
		close(warm)
		return
	}
	go func() {
		defer close(warm)
		defer func() {
			if r := recover(); r != nil {
				e.diagnose(recovered("searcher warm-up", r))
			}
		}()
		if err := warmer.WarmUp(e.lifetime); err != nil {
			e.diagnose(&CapabilityFailure{Capability: "searcher warm-up", Err: err})
		}
	}()
}

func (e *Engine[S, E, T]) handleUCI() {
	e.send(uci.IDName{Name: e.settings.identity.Name})
	e.send(uci.IDAuthor{Author: e.settings.identity.Author})
	for _, option := range e.registry.Declarations() {
		e.send(option)
	}
	e.send(uci.UCIOk{})

	e.mu.Lock()
	e.initialize()
	e.mu.Unlock()
}

func (e *Engine[S, E, T]) handleIsReady() {
	e.mu.Lock()
	warm := e.warm
	e.mu.Unlock()

	if warm != nil {
		<-warm
	}
	e.awaitStopped()
	e.send(uci.ReadyOk{})
}

// awaitStopped waits for a stopped search to send its bestmove, which the
// supervisor does within the grace period. Commands that follow a stop then
// apply to an idle engine.
func (e *Engine[S, E, T]) awaitStopped() {
	e.mu.Lock()
	job := e.job
	e.mu.Unlock()

	if job != nil && job.isCancelled() {
		<-job.done
	}
}

// violation returns an error when a search is running.
// It must be called with e.mu held.
func (e *Engine[S, E, T]) violation(cmd uci.Command) error {
	if !e.state.busy() {
		return nil
	}
	return &ProtocolViolation{Command: cmd, State: e.state}
}

func (e *Engine[S, E, T]) handleSetOption(cmd uci.SetOption) {
	e.awaitStopped()

	e.mu.Lock()
	err := e.violation(cmd)
	e.mu.Unlock()
	if err == nil {
		err = e.registry.Set(cmd.Name, cmd.Value)
	}
	e.diagnose(err)
}

func (e *Engine[S, E, T]) handleNewGame(cmd uci.UCINewGame) {
	e.awaitStopped()
	e.diagnose(e.newGame(cmd))
}

func (e *Engine[S, E, T]) newGame(cmd uci.UCINewGame) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.violation(cmd); err != nil {
		return err
	}
	e.position = position.Start()

	if resetter, ok := any(e.searcher).(search.Resetter); ok {
		defer func() {
			if r := recover(); r != nil {
				err = recovered("searcher reset", r)
			}
		}()
		resetter.NewGame()
	}
	return nil
}

func (e *Engine[S, E, T]) handlePosition(cmd uci.Position) {
	e.awaitStopped()
	e.diagnose(e.setPosition(cmd))
}

func (e *Engine[S, E, T]) setPosition(cmd uci.Position) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.violation(cmd); err != nil {
		return err
	}

	base := position.Start()
	if cmd.FEN.HasValue() {
		var err error
		base, err = position.FromFEN(cmd.FEN.Value())
		if err != nil {
			return err
		}
	}

	pos, err := base.ApplyAll(cmd.Moves)
	e.position = pos
	return err
}

func (e *Engine[S, E, T]) handleGo(cmd uci.Go) {
	e.awaitStopped()
	e.diagnose(e.startSearch(cmd))
}

func (e *Engine[S, E, T]) startSearch(cmd uci.Go) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.violation(cmd); err != nil {
		return err
	}

	snapshot := e.registry.Snapshot()
	limits := search.LimitsFromGo(cmd)
	limits.Clock.Overhead = time.Duration(snapshot.Spin(options.MoveOverhead, 0)) * time.Millisecond
	side := e.position.SideToMove()

	var allocateErr error
	budget := Empty[time.Duration]()
	if limits.MoveTime.HasValue() {
		budget = Some(limits.MoveTime.Value())
	} else if !limits.Infinite && limits.HasClock(side) {
		var allocated time.Duration
		allocated, allocateErr = e.allocate(limits.Clock, side)
		budget = Some(allocated)
	}

	for _, capability := range []any{e.searcher, e.evaluator, e.timeManager} {
		if configurable, ok := capability.(search.Configurable); ok {
			configurable.Configure(snapshot)
		}
	}

	request := search.Request{Position: e.position, Limits: limits, Options: snapshot}
	if e.debug.Load() {
		e.settings.logger.Println("starting search", spew.Sdump(limits), "budget", budget)
	}

	job := newSearchJob(e.lifetime, request, budget)
	e.job = job
	e.state = Searching
	if job.pondering {
		e.state = Pondering
	}

	results := make(chan outcome, 1)
	go e.runSearch(job, e.warm, results)
	go e.supervise(job, results)
	return allocateErr
}

func (e *Engine[S, E, T]) allocate(clock search.Clock, side position.Color) (budget time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			budget, err = 0, recovered("time manager", r)
		}
	}()
	return e.timeManager.Allocate(clock, side), nil
}

func (e *Engine[S, E, T]) handleStop() {
	e.mu.Lock()
	job := e.job
	e.mu.Unlock()

	if job != nil {
		job.stop()
	}
}

func (e *Engine[S, E, T]) handlePonderHit(cmd uci.PonderHit) {
	e.mu.Lock()
	if e.state != Pondering || e.job == nil {
		err := &ProtocolViolation{Command: cmd, State: e.state}
		e.mu.Unlock()
		e.diagnose(err)
		return
	}
	e.state = Searching
	e.job.ponderHit()
	e.mu.Unlock()
}

// quit stops any search, waits at most the grace period for its bestmove
// and terminates.
func (e *Engine[S, E, T]) quit() {
	e.mu.Lock()
	if e.state == Terminated {
		e.mu.Unlock()
		return
	}
	job := e.job
	e.mu.Unlock()

	if job != nil {
		job.stop()
		select {
		case <-job.done:
		case <-time.After(e.settings.gracePeriod):
		}
	}

	e.mu.Lock()
	e.state = Terminated
	e.mu.Unlock()
	e.shutdown()

	e.outMu.Lock()
	if e.trace != nil {
		e.trace.Close()
		e.trace = nil
	}
	e.outMu.Unlock()
}

func (e *Engine[S, E, T]) send(r uci.Response) {
	line := uci.Serialize(r)

	e.outMu.Lock()
	defer e.outMu.Unlock()
	if e.trace != nil {
		fmt.Fprint(e.trace, "<< ", line)
	}
	if _, err := io.WriteString(e.out, line); err != nil {
		e.settings.logger.Println("failed to write", strings.TrimSpace(line), err)
	}
}

// diagnose reports err to the diagnostics hook, and as an info string in
// debug mode. nil is ignored. It must not be called with e.mu held, so the
// hook may call back into the engine.
func (e *Engine[S, E, T]) diagnose(err error) {
	if err == nil {
		return
	}
	e.notify(err)
	e.announce(err)
}

func (e *Engine[S, E, T]) notify(err error) {
	if e.settings.diagnostics != nil {
		e.settings.diagnostics(err)
	} else {
		e.settings.logger.Println(err)
	}
}

func (e *Engine[S, E, T]) announce(err error) {
	if e.debug.Load() {
		e.send(uci.InfoString(err.Error()))
	}
}

func (e *Engine[S, E, T]) traceLine(direction string, line string) {
	e.outMu.Lock()
	defer e.outMu.Unlock()
	if e.trace != nil {
		fmt.Fprintln(e.trace, direction, line)
	}
}

func (e *Engine[S, E, T]) openTrace(path string) {
	e.outMu.Lock()
	defer e.outMu.Unlock()
	if e.trace != nil {
		e.trace.Close()
		e.trace = nil
	}
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		e.settings.logger.Println("couldn't open debug log file", err)
		return
	}
	e.trace = f
}
